package domain

import (
	"context"
	"sync/atomic"
)

type embeddingUsageKey struct{}

// EmbeddingUsage collects the provider tokens spent by one index run.
// Batches embed concurrently, so counters are atomic.
type EmbeddingUsage struct {
	tokens  atomic.Int64
	batches atomic.Int64
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *EmbeddingUsage) {
	u := &EmbeddingUsage{}
	return context.WithValue(ctx, embeddingUsageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *EmbeddingUsage {
	u, _ := ctx.Value(embeddingUsageKey{}).(*EmbeddingUsage)
	return u
}

// AddBatch records one embedded batch. A nil collector ignores the call.
func (u *EmbeddingUsage) AddBatch(tokens int) {
	if u == nil {
		return
	}
	u.tokens.Add(int64(tokens))
	u.batches.Add(1)
}

// Tokens returns the tokens recorded so far.
func (u *EmbeddingUsage) Tokens() int {
	if u == nil {
		return 0
	}
	return int(u.tokens.Load())
}

// Batches returns the number of batches recorded so far. Cache hits count with zero tokens.
func (u *EmbeddingUsage) Batches() int {
	if u == nil {
		return 0
	}
	return int(u.batches.Load())
}
