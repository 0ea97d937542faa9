package domain

import (
	"context"
	"fmt"
)

// KeyPrefix namespaces every key this service writes to the shared store.
const KeyPrefix = "colpali:"

// QueryEmbedder turns query text into one float vector per query token.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) (QueryEmbedding, error)
}

// HealthChecker verifies a collaborator is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// QueryEmbedding is the per-token tensor produced for a query.
type QueryEmbedding struct {
	Vectors [][]float32
}

// Len returns the number of query tokens.
func (q QueryEmbedding) Len() int { return len(q.Vectors) }

// Validate checks every token vector has dim entries.
func (q QueryEmbedding) Validate(dim int) error {
	if len(q.Vectors) == 0 {
		return fmt.Errorf("%w: no query vectors", ErrInvalidQueryEmbedding)
	}
	for i, v := range q.Vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d dims, want %d", ErrInvalidQueryEmbedding, i, len(v), dim)
		}
	}
	return nil
}
