package health

import "context"

// Pinger checks backend availability (index, key-value store).
type Pinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding collaborator availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
