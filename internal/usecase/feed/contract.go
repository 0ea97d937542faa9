package feed

import (
	"context"

	"github.com/kefio/ColPali-Workbench/internal/domain"
	dompage "github.com/kefio/ColPali-Workbench/internal/domain/page"
)

// Writer opens bounded feed sessions against the index.
type Writer interface {
	Open(ctx context.Context, cfg domain.SessionConfig) (dompage.Batch, error)
}
