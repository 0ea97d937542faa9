package page

// Document is one source PDF as returned by the embedding collaborator.
type Document struct {
	URL   string
	Title string
	Pages []Page
}

// Page is one rendered page: extracted text, its image and its patch embeddings
// in model output order.
type Page struct {
	Text    string
	Image   Image
	Patches [][]float32
}

// FromColumns zips the per-page columns of a predictor payload into pages.
// Columns may disagree in length; the page count is the longest column and
// missing cells become empty defaults.
func FromColumns(url, title string, texts []string, images []Image, embeddings [][][]float32) Document {
	n := max(len(texts), len(images), len(embeddings))
	pages := make([]Page, n)
	for i := range pages {
		if i < len(texts) {
			pages[i].Text = texts[i]
		}
		if i < len(images) {
			pages[i].Image = images[i]
		}
		if i < len(embeddings) {
			pages[i].Patches = embeddings[i]
		}
	}
	return Document{URL: url, Title: title, Pages: pages}
}

// PatchCount returns the total number of patches across pages.
func (d *Document) PatchCount() int {
	n := 0
	for i := range d.Pages {
		n += len(d.Pages[i].Patches)
	}
	return n
}
