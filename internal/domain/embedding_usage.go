package domain

import "context"

type embeddingUsageKey struct{}

// EmbeddingUsage counts provider tokens spent answering one query. Not safe
// for concurrent writers; a query embeds from a single goroutine.
type EmbeddingUsage struct {
	TotalTokens int
	Used        bool // the provider was called, even if a cache hit reported 0 tokens
}

// NewContextWithUsage attaches a fresh usage counter to ctx.
func NewContextWithUsage(ctx context.Context) (context.Context, *EmbeddingUsage) {
	u := &EmbeddingUsage{}
	return context.WithValue(ctx, embeddingUsageKey{}, u), u
}

// UsageFromContext returns the counter attached to ctx, or nil.
func UsageFromContext(ctx context.Context) *EmbeddingUsage {
	u, _ := ctx.Value(embeddingUsageKey{}).(*EmbeddingUsage)
	return u
}

// AddTokens records consumed tokens. Safe on a nil receiver.
func (u *EmbeddingUsage) AddTokens(n int) {
	if u != nil {
		u.TotalTokens += n
		u.Used = true
	}
}
