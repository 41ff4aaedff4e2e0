package build

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/retriever/internal/domain"
	"github.com/kailas-cloud/retriever/internal/index"
	"github.com/kailas-cloud/retriever/internal/metrics"
)

// DefaultBatchSize is the embedding batch size used while indexing.
const DefaultBatchSize = 8

// NoSourcesSummary is reported when no source could be indexed.
const NoSourcesSummary = "No sources could be processed successfully"

// Outcome is the result of processing one source.
type Outcome string

const (
	// Indexed means the source contributed chunks to the build.
	Indexed Outcome = "indexed"
	// Skipped means the source produced no text or no chunks.
	Skipped Outcome = "skipped"
	// Failed means loading, chunking or embedding the source failed.
	Failed Outcome = "failed"
)

// SourceReport describes what happened to one source.
type SourceReport struct {
	Label   string            `json:"label"`
	Type    domain.SourceType `json:"type"`
	Outcome Outcome           `json:"outcome"`
	Chunks  int               `json:"chunks"`
	Error   string            `json:"error,omitempty"`
}

// Report summarises a rebuild.
type Report struct {
	OK       bool           `json:"ok"`
	Summary  string         `json:"summary"`
	BuildID  string         `json:"build_id"`
	Chunks   int            `json:"chunks"`
	Sources  []SourceReport `json:"sources"`
	Duration time.Duration  `json:"duration"`
}

// Service builds a new index generation from a list of sources.
type Service struct {
	loader    Loader
	chunker   Chunker
	embedder  Embedder
	store     Store
	batchSize int
	newID     func() string
	logger    *zap.Logger
}

// New creates a build Service. batchSize <= 0 uses DefaultBatchSize.
func New(loader Loader, chunker Chunker, embedder Embedder, store Store, batchSize int, logger *zap.Logger) *Service {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Service{
		loader:    loader,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		batchSize: batchSize,
		newID:     uuid.NewString,
		logger:    logger,
	}
}

// Rebuild indexes sources in order. A failing source is logged and skipped;
// the build commits when at least one source was indexed and otherwise
// leaves the live index untouched. Context cancellation aborts the build and
// a commit failure is returned as an error.
func (s *Service) Rebuild(ctx context.Context, sources []domain.Source) (Report, error) {
	start := time.Now()
	buildID := s.newID()
	idx := index.New(buildID, 0)
	report := Report{BuildID: buildID, Sources: make([]SourceReport, 0, len(sources))}
	var done []string

	log := s.logger.With(zap.String("build_id", buildID))
	log.Info("Rebuild started", zap.Int("sources", len(sources)))

	for _, src := range sources {
		sr, err := s.processSource(ctx, idx, src)
		if err != nil && ctx.Err() != nil {
			metrics.RebuildsTotal.WithLabelValues("error").Inc()
			log.Warn("Rebuild cancelled", zap.String("source", src.Label), zap.Error(ctx.Err()))
			return s.finish(report, start), fmt.Errorf("rebuild %s: %w", buildID, ctx.Err())
		}
		report.Sources = append(report.Sources, sr)
		metrics.SourcesProcessedTotal.WithLabelValues(string(src.Type), string(sr.Outcome)).Inc()

		switch sr.Outcome {
		case Indexed:
			done = append(done, src.Label)
			log.Info("Source indexed",
				zap.String("source", src.Label),
				zap.String("type", string(src.Type)),
				zap.Int("chunks", sr.Chunks),
			)
			s.checkpoint(log, index.Checkpoint{
				BuildID:   buildID,
				Sources:   done,
				Chunks:    idx.Chunks(),
				UpdatedAt: time.Now().UTC(),
			})
		case Skipped:
			log.Warn("Source skipped",
				zap.String("source", src.Label),
				zap.String("type", string(src.Type)),
				zap.String("reason", sr.Error),
			)
		case Failed:
			log.Error("Source failed",
				zap.String("source", src.Label),
				zap.String("type", string(src.Type)),
				zap.Error(err),
			)
		}
	}

	if len(done) == 0 {
		report.Summary = NoSourcesSummary
		metrics.RebuildsTotal.WithLabelValues("failed").Inc()
		log.Error("Rebuild indexed no sources", zap.Int("sources", len(sources)))
		return s.finish(report, start), nil
	}

	if err := s.store.Commit(idx); err != nil {
		metrics.RebuildsTotal.WithLabelValues("error").Inc()
		log.Error("Failed to commit index", zap.Error(err))
		return s.finish(report, start), fmt.Errorf("commit build %s: %w", buildID, err)
	}
	if err := s.store.RemoveCheckpoint(buildID); err != nil {
		log.Warn("Failed to remove checkpoint", zap.Error(err))
	}

	report.OK = true
	report.Chunks = idx.Len()
	report.Summary = fmt.Sprintf("Indexed %d chunks from %d/%d sources", idx.Len(), len(done), len(sources))
	metrics.RebuildsTotal.WithLabelValues("success").Inc()
	report = s.finish(report, start)
	log.Info("Rebuild completed",
		zap.String("summary", report.Summary),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// processSource appends the chunks of one source to idx. The index is only
// touched once every vector of the source is available.
func (s *Service) processSource(ctx context.Context, idx *index.Index, src domain.Source) (SourceReport, error) {
	sr := SourceReport{Label: src.Label, Type: src.Type}
	fail := func(err error) (SourceReport, error) {
		sr.Outcome = Failed
		sr.Error = err.Error()
		return sr, err
	}

	text, err := s.loader.Load(ctx, src)
	if err != nil {
		return fail(fmt.Errorf("load: %w", err))
	}
	if text == "" {
		sr.Outcome = Skipped
		sr.Error = "no text extracted"
		return sr, nil
	}

	texts := s.chunker.Chunk(text)
	if len(texts) == 0 {
		sr.Outcome = Skipped
		sr.Error = "no chunks produced"
		return sr, nil
	}

	vecs, err := s.embedder.Embed(ctx, texts, s.batchSize)
	if err != nil {
		return fail(fmt.Errorf("embed: %w", err))
	}
	if len(vecs) != len(texts) {
		return fail(fmt.Errorf("embed: got %d vectors for %d chunks: %w",
			len(vecs), len(texts), domain.ErrEmbeddingProviderError))
	}
	for _, v := range vecs {
		if idx.Dim() != 0 && len(v) != idx.Dim() {
			return fail(fmt.Errorf("embed: got %d dimensions, index has %d: %w",
				len(v), idx.Dim(), domain.ErrVectorDimMismatch))
		}
	}

	next := idx.Len()
	for i, t := range texts {
		c := domain.Chunk{
			ID:       next + i,
			Source:   src.Label,
			Text:     t,
			Position: domain.NewPosition(i, len(texts)),
		}
		if err := idx.Add(c, vecs[i]); err != nil {
			return fail(fmt.Errorf("add to index: %w", err))
		}
	}

	sr.Outcome = Indexed
	sr.Chunks = len(texts)
	return sr, nil
}

func (s *Service) checkpoint(log *zap.Logger, cp index.Checkpoint) {
	if err := s.store.WriteCheckpoint(cp); err != nil {
		log.Warn("Failed to write checkpoint", zap.Error(err))
	}
}

func (s *Service) finish(r Report, start time.Time) Report {
	r.Duration = time.Since(start)
	metrics.RebuildDuration.Observe(r.Duration.Seconds())
	return r
}
