package retriever

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/retriever/internal/chunker"
	"github.com/kailas-cloud/retriever/internal/domain"
	"github.com/kailas-cloud/retriever/internal/index"
	"github.com/kailas-cloud/retriever/internal/loader"
	"github.com/kailas-cloud/retriever/internal/tokenizer"
	"github.com/kailas-cloud/retriever/internal/transport/hashing"
	openaiEmb "github.com/kailas-cloud/retriever/internal/transport/openai"
	"github.com/kailas-cloud/retriever/internal/usecase/build"
	"github.com/kailas-cloud/retriever/internal/usecase/embedding"
	"github.com/kailas-cloud/retriever/internal/usecase/engine"
	healthuc "github.com/kailas-cloud/retriever/internal/usecase/health"
	"github.com/kailas-cloud/retriever/internal/usecase/query"
)

const (
	defaultMaxTokens     = 500
	defaultOverlapTokens = 50
	defaultFetchTimeout  = 30 * time.Second
)

// Client is the retriever SDK entry point. Methods are safe for concurrent
// use; rebuilds are serialized.
type Client struct {
	engine   *engine.Engine
	health   *healthuc.Service
	sources  *staticRegistry
	rebuildM sync.Mutex
	obs      *observer
}

// New assembles a Client and loads the committed index from the index
// directory, if any. A corrupt index does not fail New; it is reported by
// Status and Health until the next successful Rebuild.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		encoding:     tokenizer.DefaultEncoding,
		maxTokens:    defaultMaxTokens,
		overlap:      defaultOverlapTokens,
		fetchTimeout: defaultFetchTimeout,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.indexDir == "" {
		return nil, errors.New("retriever: index directory required (use WithIndexDir)")
	}
	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	tok, err := tokenizer.New(cfg.encoding)
	if err != nil {
		return nil, fmt.Errorf("retriever: tokenizer: %w", err)
	}
	ch, err := chunker.New(tok, chunker.Config{MaxTokens: cfg.maxTokens, OverlapTokens: cfg.overlap})
	if err != nil {
		return nil, fmt.Errorf("retriever: chunker: %w", err)
	}

	nop := zap.NewNop()
	embCfg := embedding.Config{
		BatchSize:       cfg.batchSize,
		InterBatchDelay: cfg.batchDelay,
		MaxRetries:      cfg.maxRetries,
		BackoffUnit:     cfg.backoffUnit,
		Provider:        "sdk",
	}
	batcher := embedding.New(provider, tok, embCfg, nop)
	embCfg.InterBatchDelay = -1
	queryBatcher := embedding.New(provider, tok, embCfg, nop)
	store := index.NewStore(cfg.indexDir, nop)
	builder := build.New(loader.NewSet(loader.Config{Timeout: cfg.fetchTimeout}), ch, batcher, store, cfg.batchSize, nop)
	querier := query.New(queryBatcher, query.Config{Synonyms: cfg.synonyms}, nop)

	sources := &staticRegistry{}
	eng := engine.New(sources, builder, store, querier, nop)
	c := &Client{
		engine:  eng,
		health:  healthuc.New(eng, healthProbe{provider}, nil),
		sources: sources,
		obs:     obs,
	}

	start := time.Now()
	loadErr := eng.Load()
	c.obs.observe("load", start, loadErr)
	return c, nil
}

func buildProvider(cfg *clientConfig) (domain.Embedder, error) {
	switch {
	case cfg.embedder != nil:
		return &embedderAdapter{inner: cfg.embedder}, nil
	case cfg.useHashing:
		return hashing.New(cfg.hashingDim), nil
	case cfg.openAIKey != "":
		return openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.openAIKey,
			BaseURL:    cfg.openAIURL,
			Model:      cfg.openAIModel,
			Dimensions: cfg.dimensions,
			Provider:   "openai",
		}), nil
	default:
		return nil, errors.New("retriever: embedder required (use WithOpenAI, WithHashingEmbedder or WithEmbedder)")
	}
}

// Rebuild indexes sources into a new generation and swaps it in. Sources
// that fail are reported and skipped. When none succeeds the report is
// returned with ErrRebuildFailed and the previous index keeps serving.
func (c *Client) Rebuild(ctx context.Context, sources ...Source) (report Report, err error) {
	start := time.Now()
	defer func() { c.obs.observe("rebuild", start, err) }()

	list, err := validateSources(sources)
	if err != nil {
		return Report{}, err
	}

	c.rebuildM.Lock()
	defer c.rebuildM.Unlock()

	c.sources.set(list)
	r, err := c.engine.Rebuild(ctx)
	if err != nil {
		return fromBuildReport(r), fmt.Errorf("rebuild: %w", err)
	}
	return fromBuildReport(r), nil
}

// Query returns up to k passages whose similarity to question is at least
// threshold, most similar first.
func (c *Client) Query(ctx context.Context, question string, k int, threshold float64) (results []Result, err error) {
	start := time.Now()
	defer func() { c.obs.observe("query", start, err) }()

	rs, err := c.engine.Query(ctx, question, k, threshold)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	results = make([]Result, len(rs))
	for i, r := range rs {
		results[i] = fromQueryResult(r)
	}
	return results, nil
}

// Status reports the serving index.
func (c *Client) Status() Status {
	return fromEngineStatus(c.engine.Status())
}

// Health checks the index and the embedding provider.
func (c *Client) Health(ctx context.Context) HealthStatus {
	return fromHealthReport(c.health.Check(ctx))
}

func validateSources(sources []Source) ([]domain.Source, error) {
	seen := make(map[string]bool, len(sources))
	out := make([]domain.Source, 0, len(sources))
	for _, s := range sources {
		if _, err := domain.ParseSourceType(string(s.Type)); err != nil {
			return nil, fmt.Errorf("source %q: %w", s.Label, err)
		}
		if s.Label == "" || s.Location == "" {
			return nil, fmt.Errorf("%w: source needs a label and a location", domain.ErrInvalidConfig)
		}
		src := toDomainSource(s)
		if seen[src.Key()] {
			return nil, fmt.Errorf("%w: duplicate source %s", domain.ErrInvalidConfig, src.Key())
		}
		seen[src.Key()] = true
		out = append(out, src)
	}
	return out, nil
}

// staticRegistry serves the sources of the rebuild in progress.
type staticRegistry struct {
	mu      sync.Mutex
	sources []domain.Source
}

func (r *staticRegistry) set(sources []domain.Source) {
	r.mu.Lock()
	r.sources = sources
	r.mu.Unlock()
}

func (r *staticRegistry) ListEnabled(context.Context) ([]domain.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sources, nil
}

// healthProbe checks providers that support it.
type healthProbe struct {
	embedder domain.Embedder
}

func (p healthProbe) HealthCheck(ctx context.Context) error {
	if hc, ok := p.embedder.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // reported as a check result
	}
	return nil
}
