// Package engine holds the serving index and ties rebuilds to queries.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/retriever/internal/domain"
	"github.com/kailas-cloud/retriever/internal/index"
	"github.com/kailas-cloud/retriever/internal/metrics"
	"github.com/kailas-cloud/retriever/internal/usecase/build"
	"github.com/kailas-cloud/retriever/internal/usecase/query"
)

// Status describes the serving index.
type Status struct {
	Loaded     bool           `json:"loaded"`
	BuildID    string         `json:"build_id,omitempty"`
	IndexSize  int            `json:"index_size"`
	ChunkCount int            `json:"chunk_count"`
	Dim        int            `json:"dim"`
	Sources    map[string]int `json:"sources"`
	LoadedAt   time.Time      `json:"loaded_at,omitzero"`
	Error      string         `json:"error,omitempty"`
}

type snapshot struct {
	idx      *index.Index
	loadedAt time.Time
}

// Engine serves queries from the live index and swaps in new generations
// after successful rebuilds. Rebuilds must be serialized by the caller.
type Engine struct {
	registry Registry
	builder  Builder
	store    Store
	querier  Querier
	logger   *zap.Logger

	live atomic.Pointer[snapshot]

	mu      sync.RWMutex
	loadErr error
}

// New creates an Engine with no index loaded.
func New(registry Registry, builder Builder, store Store, querier Querier, logger *zap.Logger) *Engine {
	return &Engine{
		registry: registry,
		builder:  builder,
		store:    store,
		querier:  querier,
		logger:   logger,
	}
}

// Load reads the committed index. A store without a committed index is not
// an error; a corrupt one is returned and reported by Health until the next
// successful rebuild.
func (e *Engine) Load() error {
	idx, err := e.store.Load()
	switch {
	case errors.Is(err, domain.ErrIndexNotLoaded):
		e.logger.Info("No committed index, serving nothing until rebuild")
		return nil
	case err != nil:
		e.setLoadErr(err)
		e.logger.Error("Failed to load index", zap.Error(err))
		return fmt.Errorf("load index: %w", err)
	}
	e.swap(idx)
	return nil
}

// Rebuild indexes the enabled sources and swaps the new generation in. A
// rebuild that indexed no source returns its report with ErrRebuildFailed
// and keeps the previous index serving.
func (e *Engine) Rebuild(ctx context.Context) (build.Report, error) {
	sources, err := e.registry.ListEnabled(ctx)
	if err != nil {
		return build.Report{}, fmt.Errorf("list sources: %w", err)
	}

	report, err := e.builder.Rebuild(ctx, sources)
	if err != nil {
		return report, fmt.Errorf("rebuild: %w", err)
	}
	if !report.OK {
		return report, fmt.Errorf("%s: %w", report.Summary, domain.ErrRebuildFailed)
	}

	idx, err := e.store.LoadGeneration(report.BuildID)
	if err != nil {
		return report, fmt.Errorf("load committed generation %s: %w", report.BuildID, err)
	}
	e.swap(idx)
	return report, nil
}

// Query answers question against the live index.
func (e *Engine) Query(ctx context.Context, question string, k int, threshold float64) ([]query.Result, error) {
	snap := e.live.Load()
	if snap == nil {
		if err := e.getLoadErr(); err != nil {
			return nil, err
		}
		return nil, domain.ErrIndexNotLoaded
	}
	return e.querier.Query(ctx, snap.idx, question, k, threshold) //nolint:wrapcheck // query errors carry sentinels
}

// Status reports the live index.
func (e *Engine) Status() Status {
	st := Status{Sources: map[string]int{}}
	if err := e.getLoadErr(); err != nil {
		st.Error = err.Error()
	}
	snap := e.live.Load()
	if snap == nil {
		return st
	}
	st.Loaded = true
	st.BuildID = snap.idx.BuildID()
	st.IndexSize = snap.idx.Len()
	st.ChunkCount = len(snap.idx.Chunks())
	st.Dim = snap.idx.Dim()
	st.Sources = snap.idx.SourceCounts()
	st.LoadedAt = snap.loadedAt
	return st
}

// HealthCheck fails when no index is serving.
func (e *Engine) HealthCheck(context.Context) error {
	if e.live.Load() != nil {
		return nil
	}
	if err := e.getLoadErr(); err != nil {
		return err
	}
	return domain.ErrIndexNotLoaded
}

func (e *Engine) swap(idx *index.Index) {
	e.live.Store(&snapshot{idx: idx, loadedAt: time.Now().UTC()})
	e.setLoadErr(nil)
	metrics.IndexChunks.Set(float64(idx.Len()))
	e.logger.Info("Index loaded",
		zap.String("build_id", idx.BuildID()),
		zap.Int("chunks", idx.Len()),
		zap.Int("dim", idx.Dim()),
	)
}

func (e *Engine) setLoadErr(err error) {
	e.mu.Lock()
	e.loadErr = err
	e.mu.Unlock()
}

func (e *Engine) getLoadErr() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loadErr
}
