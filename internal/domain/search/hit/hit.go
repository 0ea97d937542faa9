package hit

// Hit is a single ranked page returned by the index.
type Hit struct {
	id         string
	title      string
	url        string
	pageNumber int
	relevance  float64
	image      string
}

// New creates a hit.
func New(id, title, url string, pageNumber int, relevance float64, image string) Hit {
	return Hit{
		id: id, title: title, url: url,
		pageNumber: pageNumber, relevance: relevance, image: image,
	}
}

// ID returns the index document id.
func (h *Hit) ID() string { return h.id }

// Title returns the source document title.
func (h *Hit) Title() string { return h.title }

// URL returns the source document URL.
func (h *Hit) URL() string { return h.url }

// PageNumber returns the zero-based page position.
func (h *Hit) PageNumber() int { return h.pageNumber }

// Relevance returns the score computed by the rank profile.
func (h *Hit) Relevance() float64 { return h.relevance }

// Image returns the base64 JPEG payload of the page.
func (h *Hit) Image() string { return h.image }
