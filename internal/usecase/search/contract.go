package search

import (
	"context"
	"time"

	"github.com/kefio/ColPali-Workbench/internal/domain"
	"github.com/kefio/ColPali-Workbench/internal/domain/search/hit"
	"github.com/kefio/ColPali-Workbench/internal/domain/search/plan"
)

// Executor runs query plans against the index.
type Executor interface {
	Execute(ctx context.Context, p *plan.Plan, timeout time.Duration) ([]hit.Hit, error)
}

// Embedder turns query text into a per-token tensor.
type Embedder = domain.QueryEmbedder

// Answerer generates a textual answer from the query and a page image.
type Answerer interface {
	Answer(ctx context.Context, query, imageBase64 string) (string, error)
}
