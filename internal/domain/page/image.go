package page

// ImageKind tags the Image variant.
type ImageKind int

// Image variants.
const (
	ImageNone ImageKind = iota
	ImageRaw
	ImagePreEncoded
)

// Image is either decoded bytes (JPEG/PNG) that still need resizing, or a base64
// payload that is fed as-is.
type Image struct {
	kind    ImageKind
	raw     []byte
	encoded string
}

// RawImage wraps image file bytes.
func RawImage(b []byte) Image {
	if len(b) == 0 {
		return Image{}
	}
	return Image{kind: ImageRaw, raw: b}
}

// PreEncodedImage wraps an already base64-encoded payload.
func PreEncodedImage(s string) Image {
	if s == "" {
		return Image{}
	}
	return Image{kind: ImagePreEncoded, encoded: s}
}

// Kind returns the variant tag.
func (i Image) Kind() ImageKind { return i.kind }

// Raw returns the bytes of an ImageRaw.
func (i Image) Raw() []byte { return i.raw }

// Encoded returns the payload of an ImagePreEncoded.
func (i Image) Encoded() string { return i.encoded }
