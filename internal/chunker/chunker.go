// Package chunker splits raw document text into token-bounded, overlapping
// chunks built from paragraph and sentence units.
package chunker

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kailas-cloud/retriever/internal/domain"
	"github.com/kailas-cloud/retriever/internal/tokenizer"
)

// Defaults used when the corresponding Config field is zero.
const (
	DefaultMaxTokens     = 500
	DefaultOverlapTokens = 50
	DefaultMinChars      = 20
	DefaultMaxUnitChars  = 2000
)

// unitSeparator joins units packed into one chunk.
const unitSeparator = "\n\n"

var (
	blankLine   = regexp.MustCompile(`\n[ \t\r]*\n`)
	sentenceEnd = regexp.MustCompile(`[.!?]+["')\]]*\s+`)
)

// Config bounds chunk sizes.
type Config struct {
	MaxTokens     int // token budget per chunk
	OverlapTokens int // tokens carried from one chunk into the next
	MinChars      int // units shorter than this are noise
	MaxUnitChars  int // paragraphs longer than this are split on sentences
}

// Chunker packs semantic units into chunks.
type Chunker struct {
	tok tokenizer.Tokenizer
	cfg Config
}

// New validates cfg and creates a Chunker. MinChars and MaxUnitChars default
// when zero; MaxTokens and OverlapTokens are taken as given.
func New(tok tokenizer.Tokenizer, cfg Config) (*Chunker, error) {
	if cfg.MaxTokens <= 0 {
		return nil, fmt.Errorf("%w: max_tokens must be positive, got %d", domain.ErrInvalidConfig, cfg.MaxTokens)
	}
	if cfg.OverlapTokens < 0 {
		return nil, fmt.Errorf("%w: overlap_tokens must not be negative, got %d",
			domain.ErrInvalidConfig, cfg.OverlapTokens)
	}
	if cfg.OverlapTokens >= cfg.MaxTokens {
		return nil, fmt.Errorf("%w: overlap_tokens (%d) must be less than max_tokens (%d)",
			domain.ErrInvalidConfig, cfg.OverlapTokens, cfg.MaxTokens)
	}
	if cfg.MinChars <= 0 {
		cfg.MinChars = DefaultMinChars
	}
	if cfg.MaxUnitChars <= 0 {
		cfg.MaxUnitChars = DefaultMaxUnitChars
	}
	return &Chunker{tok: tok, cfg: cfg}, nil
}

// Config returns the effective configuration.
func (c *Chunker) Config() Config { return c.cfg }

// Chunk splits text into chunks in document order. Every chunk holds at most
// MaxTokens tokens, counted on the returned text, and starts with the text
// that ends the chunk before it, up to OverlapTokens tokens.
func (c *Chunker) Chunk(text string) []string {
	p := packer{tok: c.tok, max: c.cfg.MaxTokens, overlap: c.cfg.OverlapTokens}
	for _, u := range c.units(text) {
		p.add(u)
	}
	p.flush()
	return p.chunks
}

// units splits text into paragraphs, breaks oversized paragraphs on sentence
// boundaries and drops noise.
func (c *Chunker) units(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var out []string
	for _, para := range blankLine.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		parts := []string{para}
		if utf8.RuneCountInString(para) > c.cfg.MaxUnitChars {
			parts = groupSentences(splitSentences(para), c.cfg.MaxUnitChars)
		}
		for _, u := range parts {
			if utf8.RuneCountInString(u) >= c.cfg.MinChars {
				out = append(out, u)
			}
		}
	}
	return out
}

func splitSentences(para string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(para, -1) {
		if s := strings.TrimSpace(para[start:loc[1]]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(para[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// groupSentences accumulates sentences into units of at most limit runes.
// A single sentence above the limit becomes its own unit.
func groupSentences(sentences []string, limit int) []string {
	var out []string
	var cur strings.Builder
	curLen := 0
	for _, s := range sentences {
		n := utf8.RuneCountInString(s)
		if curLen > 0 && curLen+1+n > limit {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(s)
		curLen += n
	}
	if curLen > 0 {
		out = append(out, cur.String())
	}
	return out
}

// packer accumulates units into chunks. Budgets are checked by counting the
// exact text that will be emitted, so a BPE tokenizer merging tokens across a
// seam cannot push a chunk over max. cur holds the open chunk; fresh reports
// whether cur contains anything beyond the overlap seed.
type packer struct {
	tok     tokenizer.Tokenizer
	max     int
	overlap int

	chunks []string
	cur    string
	fresh  bool
}

func (p *packer) fits(text string) bool {
	return tokenizer.Count(p.tok, text) <= p.max
}

func (p *packer) add(unit string) {
	if !p.fits(unit) {
		p.split(unit)
		return
	}
	if joined := join(p.cur, unit); p.fits(joined) {
		p.cur, p.fresh = joined, true
		return
	}
	if p.fresh {
		p.close()
		if joined := join(p.cur, unit); p.fits(joined) {
			p.cur, p.fresh = joined, true
			return
		}
	}

	// The unit fits on its own but not behind the full seed: keep as much of
	// the seed as still fits.
	at := suffixStart(p.cur, func(s string) bool { return p.fits(join(trimLeft(s), unit)) })
	p.cur, p.fresh = join(trimLeft(p.cur[at:]), unit), true
}

// close emits the open chunk and seeds the next one with its tail.
func (p *packer) close() {
	p.chunks = append(p.chunks, p.cur)
	p.cur = p.seed(p.cur)
	p.fresh = false
}

// seed returns the longest suffix of text holding at most overlap tokens.
func (p *packer) seed(text string) string {
	if p.overlap == 0 {
		return ""
	}
	at := suffixStart(text, func(s string) bool {
		return tokenizer.Count(p.tok, trimLeft(s)) <= p.overlap
	})
	return trimLeft(text[at:])
}

// split cuts a unit larger than max into pieces. The first piece follows the
// current seed after a unit separator; every later piece starts with the
// tail of the piece before it and continues the unit text. Cuts prefer
// whitespace. The last piece stays open so following units can still join it.
func (p *packer) split(unit string) {
	if p.fresh {
		p.close()
	}
	lead, first := p.cur, true
	rest := unit
	for rest != "" {
		body := trimLeft(rest)
		gap := rest[:len(rest)-len(body)]
		compose := func(piece string) string {
			if first {
				return join(lead, piece)
			}
			if lead == "" {
				return piece
			}
			return lead + gap + piece
		}
		ok := func(piece string) bool { return p.fits(compose(piece)) }

		cut := prefixEnd(body, p.max, ok)
		if cut == 0 && lead != "" {
			lead = ""
			continue
		}
		if cut == 0 {
			// A single rune above the budget; emit it rather than loop.
			_, cut = utf8.DecodeRuneInString(body)
		}
		if cut < len(body) {
			if ws := lastSpace(body[:cut]); ws > 0 && ok(body[:ws]) {
				cut = ws
			}
		}

		p.cur = strings.TrimRightFunc(compose(body[:cut]), unicode.IsSpace)
		p.fresh = true
		rest = body[cut:]
		if strings.TrimSpace(rest) == "" {
			return
		}
		p.close()
		lead, first = p.cur, false
	}
}

func (p *packer) flush() {
	if p.fresh {
		p.chunks = append(p.chunks, p.cur)
	}
	p.cur = ""
	p.fresh = false
}

func join(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + unitSeparator + b
}

func trimLeft(s string) string { return strings.TrimLeftFunc(s, unicode.IsSpace) }

// runeStarts lists the byte offsets of every rune in s plus len(s).
func runeStarts(s string) []int {
	out := make([]int, 0, len(s)+1)
	for i := range s {
		out = append(out, i)
	}
	return append(out, len(s))
}

// suffixStart returns the smallest rune offset whose suffix satisfies ok.
// ok must hold for the empty suffix.
func suffixStart(s string, ok func(string) bool) int {
	offs := runeStarts(s)
	i := sort.Search(len(offs), func(i int) bool { return ok(s[offs[i]:]) })
	if i == len(offs) {
		return len(s)
	}
	return offs[i]
}

// prefixEnd returns the largest rune offset whose prefix satisfies ok. The
// search window starts at a few bytes per token and doubles while the whole
// window still fits, so long inputs are never encoded in full.
func prefixEnd(s string, maxTokens int, ok func(string) bool) int {
	limit := len(s)
	for w := 8 * maxTokens; w < len(s); w *= 2 {
		for w > 0 && !utf8.RuneStart(s[w]) {
			w--
		}
		if !ok(s[:w]) {
			limit = w
			break
		}
	}
	offs := runeStarts(s[:limit])
	i := sort.Search(len(offs), func(i int) bool { return !ok(s[:offs[i]]) })
	if i == 0 {
		return 0
	}
	return offs[i-1]
}

// lastSpace returns the byte offset of the last whitespace rune in s, or -1.
func lastSpace(s string) int {
	return strings.LastIndexFunc(s, unicode.IsSpace)
}
