package chunker

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kailas-cloud/retriever/internal/domain"
	"github.com/kailas-cloud/retriever/internal/tokenizer"
)

func newTestChunker(t *testing.T, maxTokens, overlap int) (*Chunker, *tokenizer.Words) {
	t.Helper()
	tok := tokenizer.NewWords()
	c, err := New(tok, Config{MaxTokens: maxTokens, OverlapTokens: overlap})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, tok
}

// paragraph returns n distinct words tagged with name.
func paragraph(name string, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%s%d", name, i)
	}
	return strings.Join(words, " ")
}

func corpus() string {
	sizes := []int{12, 40, 7, 25, 90, 18, 33, 5, 61, 14}
	paras := make([]string, len(sizes))
	for i, n := range sizes {
		paras[i] = paragraph(fmt.Sprintf("p%d-", i), n)
	}
	return strings.Join(paras, "\n\n")
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero max", Config{MaxTokens: 0}},
		{"negative max", Config{MaxTokens: -5}},
		{"negative overlap", Config{MaxTokens: 10, OverlapTokens: -1}},
		{"overlap equals max", Config{MaxTokens: 10, OverlapTokens: 10}},
		{"overlap above max", Config{MaxTokens: 10, OverlapTokens: 11}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tokenizer.NewWords(), tt.cfg)
			if !errors.Is(err, domain.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(tokenizer.NewWords(), Config{MaxTokens: 100, OverlapTokens: 10})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Config().MinChars != DefaultMinChars {
		t.Errorf("expected MinChars %d, got %d", DefaultMinChars, c.Config().MinChars)
	}
	if c.Config().MaxUnitChars != DefaultMaxUnitChars {
		t.Errorf("expected MaxUnitChars %d, got %d", DefaultMaxUnitChars, c.Config().MaxUnitChars)
	}
}

func TestChunk_EmptyInput(t *testing.T) {
	c, _ := newTestChunker(t, 50, 5)

	for _, text := range []string{"", "   ", "\n\n\n"} {
		if chunks := c.Chunk(text); len(chunks) != 0 {
			t.Errorf("expected 0 chunks for %q, got %d", text, len(chunks))
		}
	}
}

func TestChunk_RespectsTokenBudget(t *testing.T) {
	for _, tc := range []struct{ max, overlap int }{
		{10, 0}, {10, 3}, {30, 5}, {64, 16}, {200, 50},
	} {
		t.Run(fmt.Sprintf("max=%d/overlap=%d", tc.max, tc.overlap), func(t *testing.T) {
			c, tok := newTestChunker(t, tc.max, tc.overlap)

			chunks := c.Chunk(corpus())
			if len(chunks) == 0 {
				t.Fatal("expected chunks")
			}
			for i, ch := range chunks {
				if n := tokenizer.Count(tok, ch); n > tc.max {
					t.Errorf("chunk %d has %d tokens, budget %d", i, n, tc.max)
				}
			}
		})
	}
}

func TestChunk_OverlapBetweenAdjacentChunks(t *testing.T) {
	const overlap = 4
	c, tok := newTestChunker(t, 30, overlap)

	chunks := c.Chunk(corpus())
	if len(chunks) < 3 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i := 0; i+1 < len(chunks); i++ {
		prev := tok.Encode(chunks[i])
		next := tok.Encode(chunks[i+1])
		want := prev[len(prev)-overlap:]
		got := next[:overlap]
		if !reflect.DeepEqual(want, got) {
			t.Errorf("chunks %d/%d: trailing %v != leading %v", i, i+1,
				tok.Decode(want), tok.Decode(got))
		}
	}
}

func TestChunk_NoOverlap(t *testing.T) {
	c, _ := newTestChunker(t, 30, 0)

	chunks := c.Chunk(corpus())
	joined := strings.Join(chunks, " ")
	if strings.Count(joined, "p4-0 ") != 1 {
		t.Errorf("expected every word once without overlap")
	}
}

func TestChunk_ForcedSplitOfOversizedUnit(t *testing.T) {
	const maxTokens, overlap = 20, 5
	c, tok := newTestChunker(t, maxTokens, overlap)

	chunks := c.Chunk(paragraph("w", 100))

	// 20 tokens in the first piece, then 15 fresh tokens behind each 5-token seed.
	if len(chunks) != 7 {
		t.Fatalf("expected 7 pieces, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if n := tokenizer.Count(tok, ch); n > maxTokens {
			t.Errorf("piece %d has %d tokens", i, n)
		}
	}
	for i := 1; i < len(chunks); i++ {
		prev := tok.Encode(chunks[i-1])
		next := tok.Encode(chunks[i])
		if !reflect.DeepEqual(prev[len(prev)-overlap:], next[:overlap]) {
			t.Errorf("piece %d does not start with the tail of piece %d", i, i-1)
		}
	}
	if !strings.HasPrefix(chunks[0], "w0 w1") || !strings.HasSuffix(chunks[len(chunks)-1], "w99") {
		t.Errorf("pieces out of order: first=%q last=%q", chunks[0], chunks[len(chunks)-1])
	}
}

func TestChunk_TieFavoursInclusion(t *testing.T) {
	c, _ := newTestChunker(t, 10, 2)

	// Two units of exactly 5 words fill the 10-token budget.
	text := "alpha bravo charlie delta echo\n\nfoxtrot golf hotel india juliet"
	chunks := c.Chunk(text)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d: %v", len(chunks), chunks)
	}
}

func TestChunk_DropsNoiseUnits(t *testing.T) {
	c, _ := newTestChunker(t, 100, 10)

	text := "Page 3\n\nThe fitness center opens at 6 AM every day of the week.\n\n--"
	chunks := c.Chunk(text)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if strings.Contains(chunks[0], "Page 3") || strings.Contains(chunks[0], "--") {
		t.Errorf("noise leaked into chunk: %q", chunks[0])
	}
}

func TestChunk_PreservesDocumentOrder(t *testing.T) {
	c, _ := newTestChunker(t, 15, 0)

	text := strings.Join([]string{
		paragraph("alpha", 10), paragraph("bravo", 10), paragraph("charlie", 10),
	}, "\n\n")
	chunks := c.Chunk(text)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, prefix := range []string{"alpha0", "bravo0", "charlie0"} {
		if !strings.HasPrefix(chunks[i], prefix) {
			t.Errorf("chunk %d: expected prefix %q, got %q", i, prefix, chunks[i])
		}
	}
}

func TestUnits_SplitsLongParagraphsOnSentences(t *testing.T) {
	tok := tokenizer.NewWords()
	c, err := New(tok, Config{MaxTokens: 100, OverlapTokens: 0, MaxUnitChars: 60})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	para := "The pool closes at 9 PM on weekdays. Lifeguards are on duty until close. " +
		"Children under 12 must be supervised! Towels are available at the front desk? Yes."
	units := c.units(para)
	if len(units) < 3 {
		t.Fatalf("expected the paragraph to be split, got %d units", len(units))
	}
	for _, u := range units {
		if utf8.RuneCountInString(u) > 60 {
			t.Errorf("unit above ceiling: %q", u)
		}
	}
	if units[0] != "The pool closes at 9 PM on weekdays." {
		t.Errorf("unexpected first unit: %q", units[0])
	}
}

func TestGroupSentences_KeepsOversizedSentence(t *testing.T) {
	long := strings.Repeat("x", 80)
	got := groupSentences([]string{"short one.", long, "tail."}, 50)
	want := []string{"short one.", long, "tail."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestChunk_UnitThatFitsAloneIsNotSplit(t *testing.T) {
	c, _ := newTestChunker(t, 10, 3)

	a, b := paragraph("a", 8), paragraph("b", 10)
	chunks := c.Chunk(a + "\n\n" + b)

	want := []string{a, b}
	if !reflect.DeepEqual(chunks, want) {
		t.Fatalf("got %q, want %q", chunks, want)
	}
}

func TestChunk_TrimsSeedToFitNextUnit(t *testing.T) {
	c, _ := newTestChunker(t, 10, 3)

	a, b := paragraph("a", 8), paragraph("b", 8)
	chunks := c.Chunk(a + "\n\n" + b)

	want := []string{a, "a6 a7\n\n" + b}
	if !reflect.DeepEqual(chunks, want) {
		t.Fatalf("got %q, want %q", chunks, want)
	}
}

func TestChunk_KeepsShortTailPiece(t *testing.T) {
	c, _ := newTestChunker(t, 10, 3)

	chunks := c.Chunk(paragraph("w", 11))
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %q", chunks)
	}
	if chunks[1] != "w7 w8 w9 w10" {
		t.Errorf("unexpected tail piece %q", chunks[1])
	}
}

// sharedEdge returns the longest text that ends prev and starts next.
func sharedEdge(prev, next string) string {
	for n := min(len(prev), len(next)); n > 0; n-- {
		if strings.HasSuffix(prev, next[:n]) {
			return next[:n]
		}
	}
	return ""
}

func newTiktokenChunker(t *testing.T, maxTokens, overlap int) (*Chunker, tokenizer.Tokenizer) {
	t.Helper()
	tok, err := tokenizer.New(tokenizer.DefaultEncoding)
	if err != nil {
		t.Fatalf("tokenizer: %v", err)
	}
	c, err := New(tok, Config{MaxTokens: maxTokens, OverlapTokens: overlap})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, tok
}

func TestChunk_Tiktoken(t *testing.T) {
	const maxTokens, overlap = 40, 8
	c, tok := newTiktokenChunker(t, maxTokens, overlap)

	var paras []string
	for i := range 12 {
		paras = append(paras, fmt.Sprintf(
			"Session %d of the aquatic program covers lap swimming, water aerobics and family swim times.", i))
	}
	// One paragraph well above the budget forces the splitting path.
	long := "Über-long notice: the café, sauna and Jacuzzi close early on holidays;"
	for i := range 6 {
		long += fmt.Sprintf(" rule %d asks members to check the schedule posted near desk %d,", i, i+1)
	}
	paras = append(paras, long)
	paras = append(paras, "Guests must register at reception and show a valid photo ID on every visit.")

	chunks := c.Chunk(strings.Join(paras, "\n\n"))
	if len(chunks) < 4 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if n := tokenizer.Count(tok, ch); n > maxTokens {
			t.Errorf("chunk %d has %d tokens, budget %d", i, n, maxTokens)
		}
		if !utf8.ValidString(ch) {
			t.Errorf("chunk %d is not valid UTF-8", i)
		}
	}
	for i := 0; i+1 < len(chunks); i++ {
		edge := sharedEdge(chunks[i], chunks[i+1])
		if n := tokenizer.Count(tok, edge); n == 0 || n > overlap {
			t.Errorf("chunks %d/%d share %q (%d tokens), want 1..%d tokens", i, i+1, edge, n, overlap)
		}
	}
	if last := chunks[len(chunks)-1]; !strings.HasSuffix(last, "on every visit.") {
		t.Errorf("document tail lost, last chunk %q", last)
	}
}

func TestChunk_SplitKeepsSeparatorAfterSeed(t *testing.T) {
	c, tok := newTiktokenChunker(t, 12, 3)

	text := "The pool closes at nine on weekdays.\n\n" +
		"Saturday lessons begin at eight and run until noon for swimmers of all ages and levels."
	chunks := c.Chunk(text)
	if len(chunks) < 3 {
		t.Fatalf("expected the second paragraph to be split, got %q", chunks)
	}
	for i, ch := range chunks {
		if strings.Contains(ch, ".Saturday") {
			t.Errorf("chunk %d fuses the paragraphs: %q", i, ch)
		}
		if n := tokenizer.Count(tok, ch); n > 12 {
			t.Errorf("chunk %d has %d tokens", i, n)
		}
	}
	if !strings.Contains(chunks[1], "\n\nSaturday lessons") {
		t.Errorf("expected the seed to be followed by a separator, got %q", chunks[1])
	}
}
