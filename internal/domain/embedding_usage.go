package domain

import "context"

type embeddingUsageKey struct{}

// EmbeddingUsage collects embedding activity for a single HTTP request.
// The handler puts a mutable pointer into the context before calling the service;
// the cache layer records whether it served the vector; the handler reads it for
// response headers.
type EmbeddingUsage struct {
	Calls    int
	CacheHit bool
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

// RecordCall marks a call to the embedding collaborator.
func (u *EmbeddingUsage) RecordCall() {
	if u != nil {
		u.Calls++
	}
}

// RecordCacheHit marks a request served from cache.
func (u *EmbeddingUsage) RecordCacheHit() {
	if u != nil {
		u.CacheHit = true
	}
}
