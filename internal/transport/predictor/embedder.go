package predictor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kefio/ColPali-Workbench/internal/domain"
	"github.com/kefio/ColPali-Workbench/internal/domain/page"
	"github.com/kefio/ColPali-Workbench/internal/metrics"
)

const (
	opDocument = "document"
	opQuery    = "query"
)

// Client turns predict responses into documents and query tensors.
type Client struct {
	predictor Predictor
	logger    *zap.Logger
}

// New creates an embedding client over p (an HTTP predictor or a cache in front of one).
func New(p Predictor, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{predictor: p, logger: logger}
}

// EmbedDocument renders and embeds the PDF at url. The returned document keeps
// url when the prediction omits it.
func (c *Client) EmbedDocument(ctx context.Context, url string) (page.Document, error) {
	if url == "" {
		return page.Document{}, fmt.Errorf("pdf url is required: %w", domain.ErrInvalidRequest)
	}

	data, err := c.predict(ctx, opDocument, FieldPDFURL, url)
	if err != nil {
		return page.Document{}, err
	}

	docs, err := decodeDocuments(data)
	if err == nil && len(docs) == 0 {
		err = errors.New("document prediction without documents")
	}
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(opDocument, "bad_response").Inc()
		return page.Document{}, fmt.Errorf("%w: %w", domain.ErrEmbeddingProviderError, err)
	}

	doc := docs[0]
	if doc.URL == "" {
		doc.URL = url
	}
	c.logger.Debug("Document embedded",
		zap.String("url", doc.URL),
		zap.Int("pages", len(doc.Pages)),
		zap.Int("patches", doc.PatchCount()),
	)
	return doc, nil
}

// EmbedQuery implements domain.QueryEmbedder.
func (c *Client) EmbedQuery(ctx context.Context, text string) (domain.QueryEmbedding, error) {
	data, err := c.predict(ctx, opQuery, FieldQueryText, text)
	if err != nil {
		return domain.QueryEmbedding{}, err
	}

	emb, err := decodeQuery(data)
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(opQuery, "bad_response").Inc()
		return domain.QueryEmbedding{}, fmt.Errorf("%w: %w", domain.ErrEmbeddingProviderError, err)
	}
	return emb, nil
}

func (c *Client) predict(ctx context.Context, op, field, value string) ([]byte, error) {
	domain.UsageFromContext(ctx).RecordCall()

	start := time.Now()
	data, err := c.predictor.Predict(ctx, field, value)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(op, "error").Inc()
		c.logger.Warn("Predict failed",
			zap.String("operation", op),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, fmt.Errorf("predict %s: %w", op, err)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(op, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(op).Observe(duration.Seconds())
	return data, nil
}
