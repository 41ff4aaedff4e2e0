package index

import (
	"errors"
	"testing"

	"github.com/kailas-cloud/retriever/internal/domain"
)

func chunk(id int, source string, pos, total int) domain.Chunk {
	return domain.Chunk{
		ID:       id,
		Source:   source,
		Text:     source + " chunk text long enough to keep",
		Position: domain.NewPosition(pos, total),
	}
}

func buildIndex(t *testing.T, vecs ...[]float32) *Index {
	t.Helper()
	x := New("test-build", 0)
	for i, v := range vecs {
		if err := x.Add(chunk(i, "doc", i, len(vecs)), v); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	return x
}

func TestAdd_FixesDimension(t *testing.T) {
	x := New("b", 0)
	if err := x.Add(chunk(0, "a", 0, 2), []float32{1, 0, 0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if x.Dim() != 3 {
		t.Fatalf("expected dim 3, got %d", x.Dim())
	}

	err := x.Add(chunk(1, "a", 1, 2), []float32{1, 0})
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
	if x.Len() != 1 {
		t.Errorf("rejected vector must not be added, len=%d", x.Len())
	}
}

func TestAdd_EmptyVector(t *testing.T) {
	if err := New("b", 0).Add(chunk(0, "a", 0, 1), nil); !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestSearch_NearestFirst(t *testing.T) {
	x := buildIndex(t,
		[]float32{1, 0},
		[]float32{0, 1},
		[]float32{0.8, 0.6},
	)

	hits, err := x.Search([]float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Chunk.ID != 0 || hits[0].Distance != 0 {
		t.Errorf("expected exact match first, got %+v", hits[0])
	}
	if hits[1].Chunk.ID != 2 {
		t.Errorf("expected chunk 2 second, got %d", hits[1].Chunk.ID)
	}
	// |(1,0)-(0.8,0.6)|^2 = 0.04 + 0.36
	if d := hits[1].Distance; d < 0.399 || d > 0.401 {
		t.Errorf("expected squared distance 0.4, got %f", d)
	}
}

func TestSearch_KLargerThanIndex(t *testing.T) {
	x := buildIndex(t, []float32{1, 0}, []float32{0, 1})

	hits, err := x.Search([]float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("expected 2 hits, got %d", len(hits))
	}
}

func TestSearch_TiesKeepRowOrder(t *testing.T) {
	x := buildIndex(t, []float32{0, 1}, []float32{0, 1}, []float32{0, 1})

	hits, err := x.Search([]float32{0, 1}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, h := range hits {
		if h.Chunk.ID != i {
			t.Errorf("hit %d: expected chunk %d, got %d", i, i, h.Chunk.ID)
		}
	}
}

func TestSearch_Errors(t *testing.T) {
	if _, err := New("b", 2).Search([]float32{1, 0}, 1); !errors.Is(err, domain.ErrIndexNotLoaded) {
		t.Errorf("expected ErrIndexNotLoaded on empty index, got %v", err)
	}

	x := buildIndex(t, []float32{1, 0})
	if _, err := x.Search([]float32{1, 0, 0}, 1); !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Errorf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestSourceCounts(t *testing.T) {
	x := New("b", 0)
	_ = x.Add(chunk(0, "pool", 0, 2), []float32{1})
	_ = x.Add(chunk(1, "pool", 1, 2), []float32{1})
	_ = x.Add(chunk(2, "gym", 0, 1), []float32{1})

	counts := x.SourceCounts()
	if counts["pool"] != 2 || counts["gym"] != 1 || len(counts) != 2 {
		t.Errorf("unexpected counts %v", counts)
	}
}

func TestChunks_ReturnsCopy(t *testing.T) {
	x := buildIndex(t, []float32{1})
	c := x.Chunks()
	c[0].Text = "mutated"
	if x.Chunks()[0].Text == "mutated" {
		t.Error("Chunks must not expose internal storage")
	}
}
