// Package embedding turns texts into vectors through a provider with
// batching, input truncation, retries and inter-batch pacing.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/retriever/internal/domain"
	"github.com/kailas-cloud/retriever/internal/metrics"
	"github.com/kailas-cloud/retriever/internal/retry"
	"github.com/kailas-cloud/retriever/internal/tokenizer"
)

// Defaults.
const (
	DefaultBatchSize       = 32
	DefaultInterBatchDelay = 2 * time.Second
	DefaultMaxInputChars   = 24000
	DefaultMaxInputTokens  = 8000
	DefaultMaxRetries      = 5
	DefaultBackoffUnit     = time.Second
)

// BatchError reports the batch that could not be embedded.
type BatchError struct {
	Batch int
	Err   error
}

func (e *BatchError) Error() string { return fmt.Sprintf("embed batch %d: %v", e.Batch, e.Err) }
func (e *BatchError) Unwrap() error { return e.Err }

// Config tunes a Batcher. Zero values take the package defaults; a negative
// InterBatchDelay or MaxRetries disables pacing or retries.
type Config struct {
	BatchSize       int
	InterBatchDelay time.Duration
	MaxInputChars   int
	MaxInputTokens  int
	MaxRetries      int
	BackoffUnit     time.Duration
	// Provider labels log lines.
	Provider string
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	switch {
	case c.InterBatchDelay == 0:
		c.InterBatchDelay = DefaultInterBatchDelay
	case c.InterBatchDelay < 0:
		c.InterBatchDelay = 0
	}
	if c.MaxInputChars <= 0 {
		c.MaxInputChars = DefaultMaxInputChars
	}
	if c.MaxInputTokens <= 0 {
		c.MaxInputTokens = DefaultMaxInputTokens
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = DefaultMaxRetries
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	if c.BackoffUnit <= 0 {
		c.BackoffUnit = DefaultBackoffUnit
	}
}

// Batcher embeds texts in order, one provider call per batch.
type Batcher struct {
	provider domain.Embedder
	tok      tokenizer.Tokenizer
	cfg      Config
	policy   retry.Policy
	pacer    *pacer
	logger   *zap.Logger
}

// pacer holds provider calls back until delay has passed since the last batch
// finished, whichever Embed call ran it.
type pacer struct {
	delay time.Duration

	mu   sync.Mutex
	gate *rate.Limiter
}

func (p *pacer) wait(ctx context.Context) error {
	p.mu.Lock()
	gate := p.gate
	p.mu.Unlock()
	if gate == nil {
		return nil
	}
	return gate.Wait(ctx) //nolint:wrapcheck // wrapped by the caller
}

// done starts the delay. The fresh limiter's only token is spent at once, so
// the next one becomes available exactly delay from now.
func (p *pacer) done() {
	if p.delay <= 0 {
		return
	}
	gate := rate.NewLimiter(rate.Every(p.delay), 1)
	gate.Allow()

	p.mu.Lock()
	p.gate = gate
	p.mu.Unlock()
}

// New creates a Batcher. tok may be nil, which disables token truncation.
func New(provider domain.Embedder, tok tokenizer.Tokenizer, cfg Config, logger *zap.Logger) *Batcher {
	cfg.applyDefaults()
	return &Batcher{
		provider: provider,
		tok:      tok,
		cfg:      cfg,
		policy: retry.Policy{
			MaxRetries: cfg.MaxRetries,
			Backoff:    retry.Doubling(cfg.BackoffUnit),
			Retryable:  IsTransient,
		},
		pacer:  &pacer{delay: cfg.InterBatchDelay},
		logger: logger,
	}
}

// IsTransient reports whether a provider error is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, domain.ErrProviderUnavailable)
}

// Embed returns one vector per text, in input order. batchSize <= 0 uses the
// configured default. The first failing batch aborts the call with a *BatchError.
// Every batch, including the first of a call, starts at least InterBatchDelay
// after the previous batch of this Batcher finished.
func (b *Batcher) Embed(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = b.cfg.BatchSize
	}

	out := make([][]float32, 0, len(texts))
	dim := 0
	batches := (len(texts) + batchSize - 1) / batchSize

	for n := 0; n < batches; n++ {
		if err := b.pacer.wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for batch %d: %w", n, err)
		}

		lo := n * batchSize
		hi := min(lo+batchSize, len(texts))
		batch := b.prepare(texts[lo:hi], lo)

		vecs, err := b.embedBatch(ctx, n, batch)
		b.pacer.done()
		if err != nil {
			b.logger.Error("Embedding batch failed",
				zap.String("provider", b.cfg.Provider),
				zap.Int("batch", n),
				zap.Int("batches", batches),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			return nil, &BatchError{Batch: n, Err: err}
		}

		for _, v := range vecs {
			if dim == 0 {
				dim = len(v)
			}
			if len(v) == 0 || len(v) != dim {
				return nil, &BatchError{Batch: n, Err: fmt.Errorf("got %d dimensions, want %d: %w",
					len(v), dim, domain.ErrVectorDimMismatch)}
			}
			out = append(out, v)
		}

		b.logger.Debug("Embedding batch completed",
			zap.String("provider", b.cfg.Provider),
			zap.Int("batch", n),
			zap.Int("batches", batches),
			zap.Int("batch_size", len(batch)),
		)
	}

	return out, nil
}

func (b *Batcher) embedBatch(ctx context.Context, n int, batch []string) ([][]float32, error) {
	var vecs [][]float32
	err := b.policy.Do(ctx, func(ctx context.Context) error {
		res, err := domain.EmbedBatch(ctx, b.provider, batch)
		if err != nil {
			return err //nolint:wrapcheck // classified by the retry policy
		}
		if len(res.Embeddings) != len(batch) {
			return fmt.Errorf("expected %d embeddings, got %d: %w",
				len(batch), len(res.Embeddings), domain.ErrEmbeddingProviderError)
		}
		vecs = res.Embeddings
		domain.UsageFromContext(ctx).AddTokens(res.TotalTokens)
		return nil
	}, func(err error, attempt int, wait time.Duration) {
		metrics.EmbeddingRetriesTotal.Inc()
		b.logger.Warn("Embedding batch failed, retrying",
			zap.String("provider", b.cfg.Provider),
			zap.Int("batch", n),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped in BatchError by the caller
	}
	return vecs, nil
}

// prepare truncates inputs above the character or token ceilings.
func (b *Batcher) prepare(texts []string, offset int) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		if utf8.RuneCountInString(t) > b.cfg.MaxInputChars {
			metrics.EmbeddingTruncationsTotal.WithLabelValues("chars").Inc()
			b.logger.Warn("Truncating embedding input",
				zap.Int("input", offset+i),
				zap.String("limit", "chars"),
				zap.Int("max", b.cfg.MaxInputChars),
			)
			t = string([]rune(t)[:b.cfg.MaxInputChars])
		}
		if b.tok != nil {
			if ids := b.tok.Encode(t); len(ids) > b.cfg.MaxInputTokens {
				metrics.EmbeddingTruncationsTotal.WithLabelValues("tokens").Inc()
				b.logger.Warn("Truncating embedding input",
					zap.Int("input", offset+i),
					zap.String("limit", "tokens"),
					zap.Int("tokens", len(ids)),
					zap.Int("max", b.cfg.MaxInputTokens),
				)
				t = b.tok.Decode(ids[:b.cfg.MaxInputTokens])
			}
		}
		out[i] = t
	}
	return out
}
