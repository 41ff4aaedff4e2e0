// Package index holds chunk vectors in a flat (exhaustive) L2 index and
// persists them as generations on disk.
package index

import (
	"fmt"
	"sort"

	"github.com/kailas-cloud/retriever/internal/domain"
)

// Hit is a search result: the matched chunk and its squared L2 distance.
type Hit struct {
	Chunk    domain.Chunk
	Distance float32
}

// Index is an in-memory flat L2 index. Row i of the vectors belongs to
// chunk i of the metadata. An Index is not safe for concurrent mutation;
// once built it is read-only and may be searched concurrently.
type Index struct {
	buildID string
	dim     int
	vectors []float32
	chunks  []domain.Chunk
}

// New creates an empty index. dim 0 is fixed by the first Add.
func New(buildID string, dim int) *Index {
	return &Index{buildID: buildID, dim: dim}
}

// BuildID identifies the build that produced the index.
func (x *Index) BuildID() string { return x.buildID }

// Dim returns the vector dimension, 0 for an empty index without a fixed dimension.
func (x *Index) Dim() int { return x.dim }

// Len returns the number of vectors.
func (x *Index) Len() int { return len(x.chunks) }

// Add appends one chunk with its vector.
func (x *Index) Add(chunk domain.Chunk, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("chunk %d: empty vector: %w", chunk.ID, domain.ErrVectorDimMismatch)
	}
	if x.dim == 0 {
		x.dim = len(vec)
	}
	if len(vec) != x.dim {
		return fmt.Errorf("chunk %d: got %d dimensions, want %d: %w",
			chunk.ID, len(vec), x.dim, domain.ErrVectorDimMismatch)
	}
	x.vectors = append(x.vectors, vec...)
	x.chunks = append(x.chunks, chunk)
	return nil
}

// Chunks returns a copy of the chunk metadata in row order.
func (x *Index) Chunks() []domain.Chunk {
	out := make([]domain.Chunk, len(x.chunks))
	copy(out, x.chunks)
	return out
}

// Vector returns the vector of row i.
func (x *Index) Vector(i int) []float32 {
	return x.vectors[i*x.dim : (i+1)*x.dim]
}

// SourceCounts returns the number of chunks per source label.
func (x *Index) SourceCounts() map[string]int {
	counts := make(map[string]int)
	for _, c := range x.chunks {
		counts[c.Source]++
	}
	return counts
}

// Search returns the k rows nearest to vec by squared L2 distance, nearest
// first. Equal distances keep row order.
func (x *Index) Search(vec []float32, k int) ([]Hit, error) {
	if len(x.chunks) == 0 {
		return nil, domain.ErrIndexNotLoaded
	}
	if len(vec) != x.dim {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w",
			len(vec), x.dim, domain.ErrVectorDimMismatch)
	}
	if k <= 0 {
		return nil, nil
	}
	k = min(k, len(x.chunks))

	type scored struct {
		row  int
		dist float32
	}
	all := make([]scored, len(x.chunks))
	for i := range x.chunks {
		all[i] = scored{row: i, dist: squaredL2(vec, x.Vector(i))}
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].dist < all[b].dist })

	hits := make([]Hit, k)
	for i := range hits {
		hits[i] = Hit{Chunk: x.chunks[all[i].row], Distance: all[i].dist}
	}
	return hits, nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
