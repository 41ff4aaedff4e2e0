package embedding

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/retriever/internal/domain"
	"github.com/kailas-cloud/retriever/internal/tokenizer"
)

// --- Mocks ---

// mockProvider embeds "<n>" as [n, 1] and fails according to failFn.
type mockProvider struct {
	mu      sync.Mutex
	calls   int
	batches [][]string
	failFn  func(call int) error
	dimFn   func(call int) int
	short   bool
	latency time.Duration
	starts  []time.Time
	ends    []time.Time
}

func (m *mockProvider) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := m.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: res.Embeddings[0]}, nil
}

func (m *mockProvider) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts = append(m.starts, time.Now())
	if m.latency > 0 {
		time.Sleep(m.latency)
	}
	defer func() { m.ends = append(m.ends, time.Now()) }()
	m.calls++
	m.batches = append(m.batches, append([]string(nil), texts...))
	if m.failFn != nil {
		if err := m.failFn(m.calls); err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
	}

	dim := 2
	if m.dimFn != nil {
		dim = m.dimFn(m.calls)
	}
	n := len(texts)
	if m.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		id, _ := strconv.Atoi(texts[i])
		v[0] = float32(id)
		out[i] = v
	}
	return domain.BatchEmbeddingResult{Embeddings: out, TotalTokens: len(texts)}, nil
}

func numbered(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}

func fastConfig() Config {
	return Config{
		InterBatchDelay: -1,
		BackoffUnit:     time.Millisecond,
		Provider:        "mock",
	}
}

// --- Tests ---

func TestEmbed_PartitionsAndPreservesOrder(t *testing.T) {
	p := &mockProvider{}
	b := New(p, nil, fastConfig(), zap.NewNop())

	vecs, err := b.Embed(context.Background(), numbered(10), 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 10 {
		t.Fatalf("expected 10 vectors, got %d", len(vecs))
	}
	for i, v := range vecs {
		if v[0] != float32(i) {
			t.Errorf("vector %d out of order: %v", i, v)
		}
	}

	sizes := make([]int, len(p.batches))
	for i, batch := range p.batches {
		sizes[i] = len(batch)
	}
	if fmt.Sprint(sizes) != "[4 4 2]" {
		t.Errorf("unexpected batch sizes %v", sizes)
	}
}

func TestEmbed_RecordsUsage(t *testing.T) {
	p := &mockProvider{}
	b := New(p, nil, fastConfig(), zap.NewNop())

	ctx, usage := domain.NewContextWithUsage(context.Background())
	if _, err := b.Embed(ctx, numbered(5), 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !usage.Used || usage.TotalTokens != 5 {
		t.Errorf("expected 5 tokens recorded, got %+v", usage)
	}
}

func TestEmbed_DefaultBatchSize(t *testing.T) {
	p := &mockProvider{}
	b := New(p, nil, fastConfig(), zap.NewNop())

	if _, err := b.Embed(context.Background(), numbered(40), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.batches) != 2 || len(p.batches[0]) != DefaultBatchSize {
		t.Fatalf("expected batches of %d, got %d calls", DefaultBatchSize, len(p.batches))
	}
}

func TestEmbed_EmptyInput(t *testing.T) {
	p := &mockProvider{}
	b := New(p, nil, fastConfig(), zap.NewNop())

	vecs, err := b.Embed(context.Background(), nil, 8)
	if err != nil || vecs != nil {
		t.Fatalf("expected nil, nil; got %v, %v", vecs, err)
	}
	if p.calls != 0 {
		t.Errorf("expected no provider calls, got %d", p.calls)
	}
}

func TestEmbed_RetriesTransientFailures(t *testing.T) {
	p := &mockProvider{failFn: func(call int) error {
		if call <= 2 {
			return fmt.Errorf("status 503: %w", domain.ErrProviderUnavailable)
		}
		return nil
	}}
	b := New(p, nil, fastConfig(), zap.NewNop())

	vecs, err := b.Embed(context.Background(), numbered(3), 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	if p.calls != 3 {
		t.Errorf("expected 3 provider calls, got %d", p.calls)
	}
}

func TestEmbed_ExhaustedRetries(t *testing.T) {
	p := &mockProvider{failFn: func(int) error {
		return fmt.Errorf("status 429: %w", domain.ErrProviderUnavailable)
	}}
	b := New(p, nil, fastConfig(), zap.NewNop())

	_, err := b.Embed(context.Background(), numbered(3), 8)

	var be *BatchError
	if !errors.As(err, &be) {
		t.Fatalf("expected *BatchError, got %v", err)
	}
	if be.Batch != 0 {
		t.Errorf("expected batch 0, got %d", be.Batch)
	}
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Errorf("expected provider error to be wrapped, got %v", err)
	}
	if p.calls != 1+DefaultMaxRetries {
		t.Errorf("expected %d provider calls, got %d", 1+DefaultMaxRetries, p.calls)
	}
}

func TestEmbed_PermanentErrorNotRetried(t *testing.T) {
	p := &mockProvider{failFn: func(call int) error {
		if call == 2 {
			return fmt.Errorf("status 400: %w", domain.ErrEmbeddingProviderError)
		}
		return nil
	}}
	b := New(p, nil, fastConfig(), zap.NewNop())

	_, err := b.Embed(context.Background(), numbered(6), 2)

	var be *BatchError
	if !errors.As(err, &be) {
		t.Fatalf("expected *BatchError, got %v", err)
	}
	if be.Batch != 1 {
		t.Errorf("expected batch 1, got %d", be.Batch)
	}
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if p.calls != 2 {
		t.Errorf("expected 2 provider calls, got %d", p.calls)
	}
}

func TestEmbed_NegativeMaxRetriesDisablesRetry(t *testing.T) {
	p := &mockProvider{failFn: func(int) error { return domain.ErrProviderUnavailable }}
	cfg := fastConfig()
	cfg.MaxRetries = -1
	b := New(p, nil, cfg, zap.NewNop())

	if _, err := b.Embed(context.Background(), numbered(1), 1); err == nil {
		t.Fatal("expected error")
	}
	if p.calls != 1 {
		t.Errorf("expected 1 call, got %d", p.calls)
	}
}

func TestEmbed_CountMismatch(t *testing.T) {
	p := &mockProvider{short: true}
	b := New(p, nil, fastConfig(), zap.NewNop())

	_, err := b.Embed(context.Background(), numbered(3), 8)
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
	if p.calls != 1 {
		t.Errorf("count mismatch must not be retried, got %d calls", p.calls)
	}
}

func TestEmbed_DimensionMismatchAcrossBatches(t *testing.T) {
	p := &mockProvider{dimFn: func(call int) int {
		if call == 2 {
			return 3
		}
		return 2
	}}
	b := New(p, nil, fastConfig(), zap.NewNop())

	_, err := b.Embed(context.Background(), numbered(4), 2)
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestEmbed_TruncatesLongInputByChars(t *testing.T) {
	p := &mockProvider{}
	cfg := fastConfig()
	cfg.MaxInputChars = 10
	b := New(p, nil, cfg, zap.NewNop())

	long := strings.Repeat("é", 25)
	if _, err := b.Embed(context.Background(), []string{long}, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sent := p.batches[0][0]
	if utf8.RuneCountInString(sent) != 10 || !utf8.ValidString(sent) {
		t.Errorf("expected 10 valid runes, got %q", sent)
	}
}

func TestEmbed_TruncatesLongInputByTokens(t *testing.T) {
	p := &mockProvider{}
	cfg := fastConfig()
	cfg.MaxInputTokens = 3
	b := New(p, tokenizer.NewWords(), cfg, zap.NewNop())

	if _, err := b.Embed(context.Background(), []string{"one two three four five"}, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.batches[0][0]; got != "one two three" {
		t.Errorf("expected token-truncated input, got %q", got)
	}
}

func TestEmbed_PacesBatches(t *testing.T) {
	p := &mockProvider{}
	cfg := fastConfig()
	cfg.InterBatchDelay = 30 * time.Millisecond
	b := New(p, nil, cfg, zap.NewNop())

	start := time.Now()
	if _, err := b.Embed(context.Background(), numbered(3), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 55*time.Millisecond {
		t.Errorf("expected at least two inter-batch delays, took %v", elapsed)
	}
}

func TestEmbed_PacesAcrossCalls(t *testing.T) {
	p := &mockProvider{}
	cfg := fastConfig()
	cfg.InterBatchDelay = 50 * time.Millisecond
	b := New(p, nil, cfg, zap.NewNop())

	for range 2 {
		if _, err := b.Embed(context.Background(), numbered(1), 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if gap := p.starts[1].Sub(p.ends[0]); gap < 45*time.Millisecond {
		t.Errorf("second call started %v after the first finished, want >= 50ms", gap)
	}
}

func TestEmbed_DelayStartsWhenBatchFinishes(t *testing.T) {
	p := &mockProvider{latency: 80 * time.Millisecond}
	cfg := fastConfig()
	cfg.InterBatchDelay = 50 * time.Millisecond
	b := New(p, nil, cfg, zap.NewNop())

	if _, err := b.Embed(context.Background(), numbered(2), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gap := p.starts[1].Sub(p.ends[0]); gap < 45*time.Millisecond {
		t.Errorf("a slow batch shortened the delay: next batch started %v after it finished", gap)
	}
}

func TestEmbed_PacesAfterFailedBatch(t *testing.T) {
	p := &mockProvider{failFn: func(call int) error {
		if call == 1 {
			return domain.ErrEmbeddingProviderError
		}
		return nil
	}}
	cfg := fastConfig()
	cfg.InterBatchDelay = 50 * time.Millisecond
	b := New(p, nil, cfg, zap.NewNop())

	if _, err := b.Embed(context.Background(), numbered(1), 1); err == nil {
		t.Fatal("expected the first call to fail")
	}
	if _, err := b.Embed(context.Background(), numbered(1), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gap := p.starts[1].Sub(p.ends[0]); gap < 45*time.Millisecond {
		t.Errorf("expected the delay after a failed batch, got %v", gap)
	}
}

func TestEmbed_CancelledWhilePacing(t *testing.T) {
	p := &mockProvider{}
	cfg := fastConfig()
	cfg.InterBatchDelay = time.Hour
	b := New(p, nil, cfg, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.Embed(ctx, numbered(2), 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if p.calls != 1 {
		t.Errorf("expected only the first batch to run, got %d calls", p.calls)
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(fmt.Errorf("x: %w", domain.ErrProviderUnavailable)) {
		t.Error("expected wrapped ErrProviderUnavailable to be transient")
	}
	if IsTransient(domain.ErrEmbeddingProviderError) {
		t.Error("expected ErrEmbeddingProviderError to be permanent")
	}
}
