package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/retriever/internal/domain"
	logpkg "github.com/kailas-cloud/retriever/internal/logger"
	"github.com/kailas-cloud/retriever/internal/usecase/build"
	"github.com/kailas-cloud/retriever/internal/usecase/engine"
	healthuc "github.com/kailas-cloud/retriever/internal/usecase/health"
	"github.com/kailas-cloud/retriever/internal/usecase/query"
)

// Engine is the retrieval engine served over HTTP.
type Engine interface {
	Rebuild(ctx context.Context) (build.Report, error)
	Query(ctx context.Context, question string, k int, threshold float64) ([]query.Result, error)
	Status() engine.Status
}

// Options holds request defaults and deadlines.
type Options struct {
	DefaultK         int
	DefaultThreshold float64
	QueryTimeout     time.Duration // 0 = request context only
	RebuildTimeout   time.Duration // 0 = no deadline
}

// QueryRequest is the POST /query body.
type QueryRequest struct {
	Question  string   `json:"question"`
	K         *int     `json:"k,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// QueryResponse lists ranked passages.
type QueryResponse struct {
	Question string         `json:"question"`
	Results  []query.Result `json:"results"`
	Count    int            `json:"count"`
}

// RebuildResponse reports a rebuild. Shared is set when the request joined a
// rebuild already in flight.
type RebuildResponse struct {
	build.Report
	Shared bool `json:"shared"`
}

// RebuildErrorResponse is returned when a rebuild indexed no source.
type RebuildErrorResponse struct {
	ErrorResponse
	Report build.Report `json:"report"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status healthuc.Status                 `json:"status"`
	Checks map[string]healthuc.CheckResult `json:"checks"`
}

// Server serves the retrieval engine.
type Server struct {
	engine   Engine
	health   *healthuc.Service
	opts     Options
	rebuilds singleflight.Group
	logger   *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(e Engine, health *healthuc.Service, opts Options, logger *zap.Logger) *Server {
	if opts.DefaultK <= 0 {
		opts.DefaultK = query.DefaultK
	}
	return &Server{engine: e, health: health, opts: opts, logger: logger}
}

// Register mounts the API routes on r.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Get("/status", s.GetStatus)
	r.Post("/rebuild", s.Rebuild)
	r.Post("/query", s.Query)
	r.Get("/search", s.Search)
}

// Rebuild handles POST /rebuild. Concurrent requests share one rebuild.
func (s *Server) Rebuild(w http.ResponseWriter, r *http.Request) {
	// The rebuild outlives a disconnecting client; joined requests share it.
	ctx := context.WithoutCancel(r.Context())
	v, err, shared := s.rebuilds.Do("rebuild", func() (any, error) {
		if s.opts.RebuildTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.opts.RebuildTimeout)
			defer cancel()
		}
		return s.engine.Rebuild(ctx)
	})
	report, _ := v.(build.Report)

	if errors.Is(err, domain.ErrRebuildFailed) {
		logpkg.FromContext(r.Context()).Warn("rebuild failed", zap.String("summary", report.Summary))
		writeJSON(w, http.StatusUnprocessableEntity, RebuildErrorResponse{
			ErrorResponse: ErrorResponse{Code: ErrorCodeRebuildFailed, Message: report.Summary},
			Report:        report,
		})
		return
	}
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	s.logger.Info("Rebuild served",
		zap.String("build_id", report.BuildID),
		zap.String("summary", report.Summary),
		zap.Bool("shared", shared),
	)
	writeJSON(w, http.StatusOK, RebuildResponse{Report: report, Shared: shared})
}

// Query handles POST /query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	k, threshold := s.opts.DefaultK, s.opts.DefaultThreshold
	if req.K != nil {
		k = *req.K
	}
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	s.answer(w, r, req.Question, k, threshold)
}

// Search handles GET /search?q=...&k=...&threshold=...
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	var question string
	if err := runtime.BindQueryParameter("form", true, true, "q", params, &question); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, err.Error())
		return
	}
	k := s.opts.DefaultK
	if err := runtime.BindQueryParameter("form", true, false, "k", params, &k); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, err.Error())
		return
	}
	threshold := s.opts.DefaultThreshold
	if err := runtime.BindQueryParameter("form", true, false, "threshold", params, &threshold); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, err.Error())
		return
	}
	s.answer(w, r, question, k, threshold)
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request, question string, k int, threshold float64) {
	ctx, usage := domain.NewContextWithUsage(r.Context())
	if s.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.QueryTimeout)
		defer cancel()
	}

	results, err := s.engine.Query(ctx, question, k, threshold)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, QueryResponse{Question: question, Results: results, Count: len(results)})
}

// GetStatus handles GET /status.
func (s *Server) GetStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: report.Status,
		Checks: report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage != nil && usage.Used {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
