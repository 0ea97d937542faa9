package page

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"github.com/kefio/ColPali-Workbench/internal/domain/quantize"
)

// idNamespace scopes record ids; changing it re-keys every stored page.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("colpali-workbench/pdf_page"))

// RecordID derives the stable page id from the document URL and page number.
func RecordID(url string, pageNumber int) string {
	return uuid.NewSHA1(idNamespace, []byte(url+"#"+strconv.Itoa(pageNumber))).String()
}

// Record is one index document: a single page of a single PDF.
type Record struct {
	id         string
	url        string
	title      string
	pageNumber int
	image      string
	text       string
	patches    []quantize.Code
}

// NewRecord assembles a record and derives its id.
func NewRecord(url, title string, pageNumber int, image, text string, patches []quantize.Code) Record {
	return Record{
		id:         RecordID(url, pageNumber),
		url:        url,
		title:      title,
		pageNumber: pageNumber,
		image:      image,
		text:       text,
		patches:    patches,
	}
}

// Reconstruct creates a Record with an explicit id (storage hydration, tests).
func Reconstruct(
	id, url, title string, pageNumber int, image, text string, patches []quantize.Code,
) Record {
	return Record{
		id: id, url: url, title: title, pageNumber: pageNumber,
		image: image, text: text, patches: patches,
	}
}

// ID returns the stable record identifier.
func (r *Record) ID() string { return r.id }

// URL returns the source document URL.
func (r *Record) URL() string { return r.url }

// Title returns the source document title.
func (r *Record) Title() string { return r.title }

// PageNumber returns the zero-based page position.
func (r *Record) PageNumber() int { return r.pageNumber }

// Image returns the base64 JPEG payload.
func (r *Record) Image() string { return r.image }

// Text returns the extracted page text.
func (r *Record) Text() string { return r.text }

// Patches returns the binary codes in patch order.
func (r *Record) Patches() []quantize.Code { return r.patches }

// Embedding returns the patch index -> hex code mapping used on the wire.
// Keys are exactly 0..len(Patches())-1.
func (r *Record) Embedding() map[string]string {
	m := make(map[string]string, len(r.patches))
	for i, c := range r.patches {
		m[strconv.Itoa(i)] = c.Hex()
	}
	return m
}

// Batch submits records to the index within one bounded session.
type Batch interface {
	Upsert(ctx context.Context, rec *Record) error
	Close() error
}
