// Package tokenizer counts and slices text in subword tokens.
package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/kailas-cloud/retriever/internal/domain"
)

// DefaultEncoding is the BPE vocabulary used by OpenAI embedding models.
const DefaultEncoding = "cl100k_base"

// WordsEncoding selects the whitespace tokenizer.
const WordsEncoding = "words"

// Tokenizer encodes text into tokens and back.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// Count returns the number of tokens in text.
func Count(t Tokenizer, text string) int {
	return len(t.Encode(text))
}

// New returns the tokenizer for the given encoding name.
func New(encoding string) (Tokenizer, error) {
	switch encoding {
	case "", DefaultEncoding:
		return NewTiktoken(DefaultEncoding)
	case WordsEncoding:
		return NewWords(), nil
	default:
		return NewTiktoken(encoding)
	}
}

var loaderOnce sync.Once

// Tiktoken wraps a tiktoken BPE encoding. The vocabulary is embedded in the
// binary, no network access is needed.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads a tiktoken encoding such as cl100k_base.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
	})

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w: %w", encoding, domain.ErrInvalidConfig, err)
	}
	return &Tiktoken{enc: enc}, nil
}

// Encode implements Tokenizer. Special tokens are treated as plain text.
func (t *Tiktoken) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// Decode implements Tokenizer.
func (t *Tiktoken) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// Words is a whitespace tokenizer with a vocabulary that grows on demand.
// Decoding joins words with a single space.
type Words struct {
	mu    sync.RWMutex
	ids   map[string]int
	words []string
}

// NewWords creates an empty whitespace tokenizer.
func NewWords() *Words {
	return &Words{ids: make(map[string]int)}
}

// Encode implements Tokenizer.
func (w *Words) Encode(text string) []int {
	fields := strings.Fields(text)
	out := make([]int, len(fields))

	w.mu.Lock()
	defer w.mu.Unlock()
	for i, f := range fields {
		id, ok := w.ids[f]
		if !ok {
			id = len(w.words)
			w.ids[f] = id
			w.words = append(w.words, f)
		}
		out[i] = id
	}
	return out
}

// Decode implements Tokenizer. Unknown ids are skipped.
func (w *Words) Decode(tokens []int) string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	parts := make([]string, 0, len(tokens))
	for _, id := range tokens {
		if id >= 0 && id < len(w.words) {
			parts = append(parts, w.words[id])
		}
	}
	return strings.Join(parts, " ")
}
