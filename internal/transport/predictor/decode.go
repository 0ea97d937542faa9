package predictor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kefio/ColPali-Workbench/internal/domain"
	"github.com/kefio/ColPali-Workbench/internal/domain/page"
	"github.com/kefio/ColPali-Workbench/internal/imaging"
)

type predictResponse struct {
	Predictions []json.RawMessage `json:"predictions"`
}

// documentPrediction is one PDF in a document prediction. Columns are per page.
type documentPrediction struct {
	URL        string        `json:"url"`
	Title      string        `json:"title"`
	Images     []string      `json:"images"`
	Texts      []string      `json:"texts"`
	Embeddings [][][]float32 `json:"embeddings"`
}

type queryPrediction struct {
	Query      string        `json:"query"`
	Embeddings [][][]float32 `json:"embeddings"`
}

// ParseDocuments decodes a caller-supplied document prediction payload.
// Malformed payloads match domain.ErrInvalidRequest.
func ParseDocuments(data []byte) ([]page.Document, error) {
	docs, err := decodeDocuments(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	return docs, nil
}

// decodeDocuments decodes a document prediction. The first prediction is
// either a list of PDFs or a single PDF object.
func decodeDocuments(data []byte) ([]page.Document, error) {
	first, err := firstPrediction(data)
	if err != nil {
		return nil, err
	}

	var preds []documentPrediction
	if bytes.HasPrefix(bytes.TrimSpace(first), []byte("[")) {
		err = json.Unmarshal(first, &preds)
	} else {
		var one documentPrediction
		err = json.Unmarshal(first, &one)
		preds = []documentPrediction{one}
	}
	if err != nil {
		return nil, fmt.Errorf("decode document prediction: %w", err)
	}

	docs := make([]page.Document, 0, len(preds))
	for i := range preds {
		p := &preds[i]
		images := make([]page.Image, len(p.Images))
		for j, img := range p.Images {
			images[j] = decodeImage(img)
		}
		docs = append(docs, page.FromColumns(p.URL, p.Title, p.Texts, images, p.Embeddings))
	}
	return docs, nil
}

// decodeQuery decodes a query prediction into the per-token tensor of the
// first batch entry.
func decodeQuery(data []byte) (domain.QueryEmbedding, error) {
	first, err := firstPrediction(data)
	if err != nil {
		return domain.QueryEmbedding{}, err
	}
	var p queryPrediction
	if err := json.Unmarshal(first, &p); err != nil {
		return domain.QueryEmbedding{}, fmt.Errorf("decode query prediction: %w", err)
	}
	if len(p.Embeddings) == 0 || len(p.Embeddings[0]) == 0 {
		return domain.QueryEmbedding{}, errors.New("query prediction without embeddings")
	}
	return domain.QueryEmbedding{Vectors: p.Embeddings[0]}, nil
}

func firstPrediction(data []byte) (json.RawMessage, error) {
	var resp predictResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode prediction response: %w", err)
	}
	if len(resp.Predictions) == 0 {
		return nil, errors.New("prediction response without predictions")
	}
	return resp.Predictions[0], nil
}

// decodeImage turns a base64 payload into raw bytes so the record builder can
// resize it. Payloads that are not valid base64 are kept as-is.
func decodeImage(s string) page.Image {
	if s == "" {
		return page.Image{}
	}
	raw, err := imaging.DecodeBase64(s)
	if err != nil {
		return page.PreEncodedImage(s)
	}
	return page.RawImage(raw)
}
