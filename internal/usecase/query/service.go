// Package query answers questions against a vector index: it expands the
// question, retrieves nearest chunks, boosts adjacent hits and fuses runs of
// nearby chunks into passages.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/retriever/internal/domain"
	"github.com/kailas-cloud/retriever/internal/metrics"
)

// Defaults.
const (
	DefaultK             = 3
	DefaultThreshold     = 0.35
	DefaultOverFetch     = 3
	DefaultNeighborBoost = 0.05
	DefaultFusionGap     = 2
)

// Result is a ranked passage. Chunk carries the first chunk of the fused run
// with the joined text; ChunkIDs lists every chunk in the run and End is the
// position of its last chunk.
type Result struct {
	Chunk      domain.Chunk `json:"chunk"`
	Similarity float64      `json:"similarity"`
	ChunkIDs   []int        `json:"chunk_ids"`
	End        int          `json:"end"`
}

// Config tunes ranking. Zero values take the package defaults.
type Config struct {
	Synonyms      map[string][]string
	OverFetch     int
	NeighborBoost float64
	FusionGap     int
}

// Service runs queries.
type Service struct {
	embedder  Embedder
	synonyms  *Synonyms
	overFetch int
	boost     float64
	gap       int
	logger    *zap.Logger
}

// New creates a query Service. A nil synonym table uses DefaultSynonyms.
func New(embedder Embedder, cfg Config, logger *zap.Logger) *Service {
	table := cfg.Synonyms
	if table == nil {
		table = DefaultSynonyms
	}
	if cfg.OverFetch <= 0 {
		cfg.OverFetch = DefaultOverFetch
	}
	if cfg.NeighborBoost <= 0 {
		cfg.NeighborBoost = DefaultNeighborBoost
	}
	if cfg.FusionGap <= 0 {
		cfg.FusionGap = DefaultFusionGap
	}
	return &Service{
		embedder:  embedder,
		synonyms:  NewSynonyms(table),
		overFetch: cfg.OverFetch,
		boost:     cfg.NeighborBoost,
		gap:       cfg.FusionGap,
		logger:    logger,
	}
}

// Expand returns the preprocessed question as it is embedded.
func (s *Service) Expand(question string) string {
	return s.synonyms.Expand(question)
}

// Query returns at most k passages whose similarity is at least threshold,
// best first. No match yields an empty slice.
func (s *Service) Query(ctx context.Context, idx Searcher, question string, k int, threshold float64) ([]Result, error) {
	start := time.Now()

	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("empty question: %w", domain.ErrInvalidQuery)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d: %w", k, domain.ErrInvalidQuery)
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be within [0, 1], got %g: %w", threshold, domain.ErrInvalidQuery)
	}
	if idx == nil || idx.Len() == 0 {
		return nil, domain.ErrIndexNotLoaded
	}

	expanded := s.synonyms.Expand(question)
	vecs, err := s.embedder.Embed(ctx, []string{expanded}, 1)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 query vector, got %d: %w", len(vecs), domain.ErrEmbeddingProviderError)
	}

	// Bound k by the index size before multiplying so a huge k cannot overflow.
	n := idx.Len()
	hits, err := idx.Search(vecs[0], min(min(k, n)*s.overFetch, n))
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	candidates := make([]candidate, 0, len(hits))
	for _, h := range hits {
		sim := Similarity(h.Distance)
		if sim >= threshold {
			candidates = append(candidates, candidate{chunk: h.Chunk, sim: sim})
		}
	}

	boostNeighbors(candidates, s.boost)
	results := fuse(candidates, s.gap)
	if len(results) > k {
		results = results[:k]
	}

	metrics.QueryDuration.Observe(time.Since(start).Seconds())
	metrics.QueryResults.Observe(float64(len(results)))
	s.logger.Debug("Query completed",
		zap.String("expanded", expanded),
		zap.Int("candidates", len(hits)),
		zap.Int("above_threshold", len(candidates)),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)),
	)

	return results, nil
}

// Similarity maps a squared L2 distance between unit vectors to [0, 1].
func Similarity(distance float32) float64 {
	sim := 1 - float64(distance)/2
	switch {
	case sim < 0:
		return 0
	case sim > 1:
		return 1
	}
	return sim
}

type candidate struct {
	chunk domain.Chunk
	sim   float64
}

// bySourcePosition groups candidates by source, each group sorted by position.
// Sources keep the order of their best candidate.
func bySourcePosition(cands []candidate) [][]int {
	groups := make(map[string][]int)
	var order []string
	for i, c := range cands {
		if _, ok := groups[c.chunk.Source]; !ok {
			order = append(order, c.chunk.Source)
		}
		groups[c.chunk.Source] = append(groups[c.chunk.Source], i)
	}

	out := make([][]int, 0, len(order))
	for _, src := range order {
		g := groups[src]
		sort.SliceStable(g, func(a, b int) bool {
			return cands[g[a]].chunk.Position.Index < cands[g[b]].chunk.Position.Index
		})
		out = append(out, g)
	}
	return out
}

// boostNeighbors multiplies both members of every pair of same-source
// candidates at adjacent positions by 1+boost, capped at 1.
func boostNeighbors(cands []candidate, boost float64) {
	for _, g := range bySourcePosition(cands) {
		for i := 1; i < len(g); i++ {
			prev, cur := &cands[g[i-1]], &cands[g[i]]
			if cur.chunk.Position.Index-prev.chunk.Position.Index != 1 {
				continue
			}
			prev.sim = min(prev.sim*(1+boost), 1)
			cur.sim = min(cur.sim*(1+boost), 1)
		}
	}
}

// fuse merges same-source runs whose consecutive positions differ by at most
// gap, then orders passages by similarity, ties by first chunk ID.
func fuse(cands []candidate, gap int) []Result {
	results := make([]Result, 0, len(cands))
	for _, g := range bySourcePosition(cands) {
		var run []candidate
		for _, i := range g {
			c := cands[i]
			if len(run) > 0 && c.chunk.Position.Index-run[len(run)-1].chunk.Position.Index > gap {
				results = append(results, merge(run))
				run = nil
			}
			run = append(run, c)
		}
		if len(run) > 0 {
			results = append(results, merge(run))
		}
	}

	sort.SliceStable(results, func(a, b int) bool {
		if results[a].Similarity != results[b].Similarity {
			return results[a].Similarity > results[b].Similarity
		}
		return results[a].Chunk.ID < results[b].Chunk.ID
	})
	return results
}

func merge(run []candidate) Result {
	first, last := run[0].chunk, run[len(run)-1].chunk

	texts := make([]string, len(run))
	ids := make([]int, len(run))
	best := 0.0
	for i, c := range run {
		texts[i] = c.chunk.Text
		ids[i] = c.chunk.ID
		best = max(best, c.sim)
	}

	chunk := first
	chunk.Text = strings.Join(texts, "\n\n")
	chunk.Position.IsLast = last.Position.IsLast
	return Result{Chunk: chunk, Similarity: best, ChunkIDs: ids, End: last.Position.Index}
}
