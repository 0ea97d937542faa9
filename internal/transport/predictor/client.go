package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kefio/ColPali-Workbench/internal/domain"
)

// Instance fields understood by the predict endpoint.
const (
	FieldPDFURL    = "pdf_url"
	FieldQueryText = "query_text"
)

// DefaultTimeout bounds one predict call; document embedding is slow.
const DefaultTimeout = 300 * time.Second

const maxErrorBody = 4 << 10

// Predictor runs one prediction and returns the raw response body.
type Predictor interface {
	Predict(ctx context.Context, field, value string) ([]byte, error)
}

// Config holds the predict endpoint settings.
type Config struct {
	Endpoint  string
	HealthURL string
	Token     string
	Timeout   time.Duration
}

// HTTP is a Predictor speaking the instances/predictions protocol over HTTP.
type HTTP struct {
	endpoint  string
	healthURL string
	token     string
	client    *http.Client
}

// NewHTTP creates a predict endpoint client.
func NewHTTP(cfg Config) (*HTTP, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("predictor endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTP{
		endpoint:  cfg.Endpoint,
		healthURL: cfg.HealthURL,
		token:     cfg.Token,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

type predictRequest struct {
	Instances []map[string]string `json:"instances"`
}

// Predict posts a single instance and returns the body of a 2xx response.
func (h *HTTP) Predict(ctx context.Context, field, value string) ([]byte, error) {
	body, err := json.Marshal(predictRequest{Instances: []map[string]string{{field: value}}})
	if err != nil {
		return nil, fmt.Errorf("marshal predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	h.authorize(req)

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.NewSessionTimeout("predict "+field, err)
		}
		return nil, fmt.Errorf("predict request: %v: %w", err, domain.ErrEmbeddingProviderError)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read predict response: %v: %w", err, domain.ErrEmbeddingProviderError)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, fmt.Errorf("predict status %d: %s: %w",
			resp.StatusCode, strings.TrimSpace(string(data)), domain.ErrEmbeddingProviderError)
	}
	return data, nil
}

// HealthCheck GETs the health URL. Without one, it is a no-op.
func (h *HTTP) HealthCheck(ctx context.Context) error {
	if h.healthURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.healthURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}
	h.authorize(req)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("predictor health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("predictor health status %d: %w", resp.StatusCode, domain.ErrEmbeddingProviderError)
	}
	return nil
}

func (h *HTTP) authorize(req *http.Request) {
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
}
