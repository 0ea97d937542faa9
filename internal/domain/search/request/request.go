package request

import (
	"fmt"

	"github.com/kefio/ColPali-Workbench/internal/domain"
	"github.com/kefio/ColPali-Workbench/internal/domain/search/mode"
	"github.com/kefio/ColPali-Workbench/internal/domain/search/plan"
)

// Search parameter limits.
const (
	MaxHits                = 100
	MaxTargetHitsPerVector = 1000
)

// Request is a validated search query.
type Request struct {
	query      string
	searchMode mode.Mode
	hits       int
	targetHits int
	answer     bool
	embedding  [][]float32
}

// New validates and normalizes search parameters.
// Zero hits and targetHits select the plan defaults; an empty mode selects Default.
func New(query string, m mode.Mode, hits, targetHits int, answer bool) (Request, error) {
	if len(query) > plan.MaxQueryLength {
		return Request{}, fmt.Errorf("query too long (max %d chars): %w", plan.MaxQueryLength, domain.ErrInvalidRequest)
	}
	if m == "" {
		m = mode.Default
	}
	if !m.IsValid() {
		return Request{}, fmt.Errorf("invalid ranking mode %q: %w", m, domain.ErrInvalidRequest)
	}
	if hits < 0 || hits > MaxHits {
		return Request{}, fmt.Errorf("hits must be between 0 and %d: %w", MaxHits, domain.ErrInvalidRequest)
	}
	if targetHits < 0 || targetHits > MaxTargetHitsPerVector {
		return Request{}, fmt.Errorf(
			"target_hits_per_vector must be between 0 and %d: %w", MaxTargetHitsPerVector, domain.ErrInvalidRequest,
		)
	}

	return Request{
		query:      query,
		searchMode: m,
		hits:       hits,
		targetHits: targetHits,
		answer:     answer,
	}, nil
}

// WithEmbedding returns a copy carrying a caller-supplied query tensor, which
// skips the embedding collaborator.
func (r Request) WithEmbedding(vectors [][]float32) Request {
	r.embedding = vectors
	return r
}

// Query returns the search query text.
func (r *Request) Query() string { return r.query }

// Mode returns the ranking mode.
func (r *Request) Mode() mode.Mode { return r.searchMode }

// Hits returns the requested hit count (0 selects the default).
func (r *Request) Hits() int { return r.hits }

// TargetHits returns the per-vector nearest neighbor target (0 selects the default).
func (r *Request) TargetHits() int { return r.targetHits }

// Answer reports whether an answer should be generated from the top hit.
func (r *Request) Answer() bool { return r.answer }

// Embedding returns the caller-supplied query tensor, if any.
func (r *Request) Embedding() [][]float32 { return r.embedding }
