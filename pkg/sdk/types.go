package colpali

import (
	"context"

	"github.com/kefio/ColPali-Workbench/internal/domain"
	domfeed "github.com/kefio/ColPali-Workbench/internal/domain/feed"
	"github.com/kefio/ColPali-Workbench/internal/domain/page"
	"github.com/kefio/ColPali-Workbench/internal/domain/search/hit"
	"github.com/kefio/ColPali-Workbench/internal/domain/search/mode"
)

// Document is one source PDF: its pages in order.
type Document = page.Document

// Page is one rendered page with its text, image and patch embeddings.
type Page = page.Page

// Image is a page image, either raw bytes to be resized and encoded or an
// already encoded base64 JPEG.
type Image = page.Image

// RawImage wraps decoded image bytes (PNG, JPEG or WebP).
func RawImage(b []byte) Image { return page.RawImage(b) }

// PreEncodedImage wraps a base64 string stored as is.
func PreEncodedImage(s string) Image { return page.PreEncodedImage(s) }

// Mode selects the rank profile.
type Mode = mode.Mode

// Search modes.
const (
	ModeDefault            = mode.Default
	ModeRetrievalAndRerank = mode.RetrievalAndRerank
)

// SearchOptions tunes one query. Zero values select the configured defaults.
type SearchOptions struct {
	Mode                Mode
	Hits                int
	TargetHitsPerVector int
}

// Hit is one ranked page.
type Hit struct {
	ID         string
	Title      string
	URL        string
	PageNumber int
	Relevance  float64
	Image      string
}

// Failure is one page record the index rejected.
type Failure struct {
	ID  string
	Err error
}

// Report is the feed outcome of one document.
type Report struct {
	Pages     int
	Succeeded int
	Failed    int
	Failures  []Failure
}

// QueryEmbedder turns query text into one vector per query token.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([][]float32, error)
}

// embedderAdapter wraps a public QueryEmbedder to implement domain.QueryEmbedder.
type embedderAdapter struct {
	inner QueryEmbedder
}

func (a *embedderAdapter) EmbedQuery(ctx context.Context, text string) (domain.QueryEmbedding, error) {
	vectors, err := a.inner.EmbedQuery(ctx, text)
	if err != nil {
		return domain.QueryEmbedding{}, err
	}
	return domain.QueryEmbedding{Vectors: vectors}, nil
}

// noopEmbedder is used when no QueryEmbedder is configured.
type noopEmbedder struct{}

func (noopEmbedder) EmbedQuery(context.Context, string) (domain.QueryEmbedding, error) {
	return domain.QueryEmbedding{}, errNoEmbedder
}

func reportFromDomain(pages int, r domfeed.Report) Report {
	out := Report{Pages: pages, Succeeded: r.Succeeded(), Failed: r.Failed()}
	for _, f := range r.Failures() {
		out.Failures = append(out.Failures, Failure{ID: f.ID(), Err: f.Err()})
	}
	return out
}

func hitFromDomain(h *hit.Hit) Hit {
	return Hit{
		ID:         h.ID(),
		Title:      h.Title(),
		URL:        h.URL(),
		PageNumber: h.PageNumber(),
		Relevance:  h.Relevance(),
		Image:      h.Image(),
	}
}
