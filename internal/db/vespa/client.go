package vespa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kefio/ColPali-Workbench/internal/db"
)

// Compile-time checks.
var (
	_ db.Index    = (*Client)(nil)
	_ db.Deployer = (*Client)(nil)
)

// Config holds the endpoints of one application.
type Config struct {
	Endpoint     string // container endpoint serving /document/v1 and /search/
	Token        string // data-plane bearer token (empty = no auth)
	Namespace    string // document namespace
	ConfigServer string // deploy endpoint; empty disables Deploy
	AppName      string
}

// Client is the index handle. It owns session bookkeeping only; each
// session carries its own connection pool, released by Session.Close.
type Client struct {
	cfg      Config
	logger   *zap.Logger
	health   *http.Client
	deploy   *http.Client
	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool
}

// NewClient validates cfg and creates a client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	if cfg.AppName == "" {
		cfg.AppName = "colpali"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	cfg.ConfigServer = strings.TrimRight(cfg.ConfigServer, "/")

	return &Client{
		cfg:      cfg,
		logger:   logger,
		health:   &http.Client{Timeout: 5 * time.Second},
		deploy:   &http.Client{Timeout: 5 * time.Minute},
		sessions: make(map[*session]struct{}),
	}, nil
}

// Ping checks the container health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"/state/v1/health", nil)
	if err != nil {
		return &db.Error{Op: db.OpHealth, Err: err}
	}
	c.authorize(req)

	resp, err := c.health.Do(req)
	if err != nil {
		return &db.Error{Op: db.OpHealth, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return statusError(db.OpHealth, resp.StatusCode, body)
	}

	var health struct {
		Status struct {
			Code string `json:"code"`
		} `json:"status"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		return &db.Error{Op: db.OpHealth, Err: fmt.Errorf("decode health: %w", err)}
	}
	if health.Status.Code != "up" {
		return &db.Error{Op: db.OpHealth, Err: fmt.Errorf("status %q", health.Status.Code)}
	}
	return nil
}

// OpenSession starts a session bounded by opts. The session deadline starts now.
func (c *Client) OpenSession(_ context.Context, opts db.SessionOptions) (db.Session, error) {
	if opts.Connections <= 0 {
		opts.Connections = 1
	}
	if opts.Timeout <= 0 {
		return nil, fmt.Errorf("session timeout must be positive")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, db.ErrSessionClosed
	}

	s := newSession(c, opts)
	c.sessions[s] = struct{}{}
	return s, nil
}

// Close releases every open session. Further OpenSession calls fail.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	open := make([]*session, 0, len(c.sessions))
	for s := range c.sessions {
		open = append(open, s)
	}
	c.mu.Unlock()

	for _, s := range open {
		_ = s.Close()
	}
	c.health.CloseIdleConnections()
	c.deploy.CloseIdleConnections()
}

func (c *Client) forget(s *session) {
	c.mu.Lock()
	delete(c.sessions, s)
	c.mu.Unlock()
}

// openSessions returns the number of sessions not yet closed.
func (c *Client) openSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
}

func (c *Client) newJSONRequest(ctx context.Context, method, target string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	return req, nil
}

// statusError turns a non-success response into a db.Error carrying the
// status code and the index's own message when one is present.
func statusError(op string, status int, body []byte) error {
	msg := errorMessage(body)
	if msg == "" {
		return &db.Error{Op: op, StatusCode: status, Err: db.ErrUnexpectedStatus}
	}
	return &db.Error{Op: op, StatusCode: status, Err: fmt.Errorf("%w: %s", db.ErrUnexpectedStatus, msg)}
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Root    struct {
			Errors []struct {
				Summary string `json:"summary"`
				Message string `json:"message"`
			} `json:"errors"`
		} `json:"root"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		s := strings.TrimSpace(string(body))
		if len(s) > 256 {
			s = s[:256]
		}
		return s
	}
	if payload.Message != "" {
		return payload.Message
	}
	msgs := make([]string, 0, len(payload.Root.Errors))
	for _, e := range payload.Root.Errors {
		m := e.Message
		if m == "" {
			m = e.Summary
		}
		msgs = append(msgs, m)
	}
	return strings.Join(msgs, "; ")
}
