package query

import (
	"sort"
	"strings"
	"unicode"
)

// DefaultSynonyms covers common facility vocabulary.
var DefaultSynonyms = map[string][]string{
	"hours":    {"schedule", "times", "open", "close"},
	"pool":     {"swim", "swimming", "aquatic"},
	"gym":      {"fitness", "workout", "exercise"},
	"parking":  {"garage", "lot"},
	"class":    {"classes", "session", "lesson"},
	"book":     {"reserve", "booking", "reservation"},
	"price":    {"cost", "fee", "rate"},
	"sauna":    {"steam", "spa"},
	"cancel":   {"cancellation", "refund"},
	"children": {"kids", "child", "youth"},
}

// Synonyms expands queries with related terms. Canonical terms map to
// variants; the table is matched on whole lowercase words.
type Synonyms struct {
	forward map[string][]string
	reverse map[string][]string
}

// NewSynonyms builds an expansion table from canonical -> variants.
func NewSynonyms(table map[string][]string) *Synonyms {
	s := &Synonyms{
		forward: make(map[string][]string, len(table)),
		reverse: make(map[string][]string),
	}
	for canonical, variants := range table {
		c := strings.ToLower(strings.TrimSpace(canonical))
		if c == "" {
			continue
		}
		for _, v := range variants {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "" || v == c {
				continue
			}
			s.forward[c] = append(s.forward[c], v)
			s.reverse[v] = append(s.reverse[v], c)
		}
	}
	for _, cs := range s.reverse {
		sort.Strings(cs)
	}
	return s
}

// Expand returns the lowercased, trimmed question followed by the synonyms
// of its words. A canonical word adds its variants, a variant adds its
// canonical term. Terms already present are not repeated.
func (s *Synonyms) Expand(question string) string {
	norm := strings.ToLower(strings.TrimSpace(question))
	if s == nil || norm == "" {
		return norm
	}

	words := words(norm)
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		seen[w] = true
	}

	var extra []string
	add := func(term string) {
		if !seen[term] {
			seen[term] = true
			extra = append(extra, term)
		}
	}
	for _, w := range words {
		for _, v := range s.forward[w] {
			add(v)
		}
		for _, c := range s.reverse[w] {
			add(c)
		}
	}

	if len(extra) == 0 {
		return norm
	}
	return norm + " " + strings.Join(extra, " ")
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
