package page

import (
	"errors"

	"go.uber.org/zap"

	"github.com/kefio/ColPali-Workbench/internal/domain"
	"github.com/kefio/ColPali-Workbench/internal/domain/quantize"
	"github.com/kefio/ColPali-Workbench/internal/imaging"
)

// ImageEncoder turns raw image bytes into the base64 payload stored in the index.
type ImageEncoder func(raw []byte, b imaging.Bounds) (string, error)

// Builder turns a Document into one Record per page.
type Builder struct {
	bounds imaging.Bounds
	encode ImageEncoder
	logger *zap.Logger
}

// NewBuilder creates a builder resizing raw images to fit bounds.
func NewBuilder(bounds imaging.Bounds, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{bounds: bounds, encode: imaging.EncodeBase64JPEG, logger: logger}
}

// WithImageEncoder replaces the raw image encoder.
func (b *Builder) WithImageEncoder(enc ImageEncoder) *Builder {
	if enc != nil {
		b.encode = enc
	}
	return b
}

// Build emits records in page order with page_number equal to the page position.
// A page whose image cannot be encoded keeps an empty image; a patch that cannot
// be quantized fails the whole document with a RecordBuildError.
func (b *Builder) Build(doc Document) ([]Record, error) {
	records := make([]Record, 0, len(doc.Pages))

	for pageNumber := range doc.Pages {
		p := &doc.Pages[pageNumber]

		codes, err := quantize.QuantizeAll(p.Patches)
		if err != nil {
			patch := -1
			var pe *quantize.PatchError
			if errors.As(err, &pe) {
				patch = pe.Index
			}
			return nil, &domain.RecordBuildError{Page: pageNumber, Patch: patch, Err: err}
		}

		records = append(records, NewRecord(
			doc.URL, doc.Title, pageNumber, b.encodeImage(doc.URL, pageNumber, p.Image), p.Text, codes,
		))
	}

	return records, nil
}

func (b *Builder) encodeImage(url string, pageNumber int, img Image) string {
	switch img.Kind() {
	case ImagePreEncoded:
		return img.Encoded()
	case ImageRaw:
		enc, err := b.encode(img.Raw(), b.bounds)
		if err != nil {
			b.logger.Warn("Page image dropped",
				zap.String("url", url),
				zap.Int("page_number", pageNumber),
				zap.Error(err),
			)
			return ""
		}
		return enc
	default:
		return ""
	}
}
