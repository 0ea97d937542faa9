package ingest

import (
	"context"

	domfeed "github.com/kefio/ColPali-Workbench/internal/domain/feed"
	domingest "github.com/kefio/ColPali-Workbench/internal/domain/ingest"
	dompage "github.com/kefio/ColPali-Workbench/internal/domain/page"
)

// DocumentEmbedder renders a PDF and returns its per-page text, images and patches.
type DocumentEmbedder interface {
	EmbedDocument(ctx context.Context, url string) (dompage.Document, error)
}

// RecordBuilder turns a document into one record per page.
type RecordBuilder interface {
	Build(doc dompage.Document) ([]dompage.Record, error)
}

// Feeder submits records to the index.
type Feeder interface {
	Feed(ctx context.Context, records []dompage.Record) (domfeed.Report, error)
}

// StatusStore persists job progress by document URL.
type StatusStore interface {
	Save(ctx context.Context, st domingest.Status) error
	Get(ctx context.Context, url string) (domingest.Status, error)
}
