package vespa

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kefio/ColPali-Workbench/internal/db"
)

// session bounds concurrent requests with a semaphore sized to the
// connection limit and shares one deadline across all of them.
type session struct {
	client    *Client
	transport *http.Transport
	http      *http.Client
	sem       chan struct{}
	deadline  time.Time
	closed    atomic.Bool
	closeOnce sync.Once
}

func newSession(c *Client, opts db.SessionOptions) *session {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxConnsPerHost = opts.Connections
	tr.MaxIdleConnsPerHost = opts.Connections

	return &session{
		client:    c,
		transport: tr,
		http:      &http.Client{Transport: tr},
		sem:       make(chan struct{}, opts.Connections),
		deadline:  time.Now().Add(opts.Timeout),
	}
}

// acquire takes a connection slot, bounded by the session deadline.
func (s *session) acquire(ctx context.Context, op string) (context.Context, func(), error) {
	if s.closed.Load() {
		return nil, nil, &db.Error{Op: op, Err: db.ErrSessionClosed}
	}
	ctx, cancel := context.WithDeadline(ctx, s.deadline)
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		cancel()
		return nil, nil, &db.Error{Op: op, Err: ctx.Err()}
	}
	return ctx, func() { <-s.sem; cancel() }, nil
}

// Put upserts one document keyed by its id.
func (s *session) Put(ctx context.Context, doc *db.DocumentPut) error {
	if doc.ID == "" {
		return &db.Error{Op: db.OpPut, Err: fmt.Errorf("document id is required")}
	}

	ctx, release, err := s.acquire(ctx, db.OpPut)
	if err != nil {
		return err
	}
	defer release()

	target := s.client.cfg.Endpoint + "/document/v1/" +
		url.PathEscape(s.client.cfg.Namespace) + "/" +
		url.PathEscape(doc.Schema) + "/docid/" +
		url.PathEscape(doc.ID)

	req, err := s.client.newJSONRequest(ctx, http.MethodPost, target, map[string]any{"fields": doc.Fields})
	if err != nil {
		return &db.Error{Op: db.OpPut, Err: err}
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return &db.Error{Op: db.OpPut, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(db.OpPut, resp.StatusCode, body)
	}
	return nil
}

type searchResponse struct {
	Root struct {
		Fields struct {
			TotalCount int `json:"totalCount"`
		} `json:"fields"`
		Children []struct {
			ID        string         `json:"id"`
			Relevance float64        `json:"relevance"`
			Fields    map[string]any `json:"fields"`
		} `json:"children"`
	} `json:"root"`
}

// Query runs one ranked query. Hits keep the order returned by the index.
func (s *session) Query(ctx context.Context, q *db.Query) (*db.QueryResult, error) {
	ctx, release, err := s.acquire(ctx, db.OpQuery)
	if err != nil {
		return nil, err
	}
	defer release()

	req, err := s.client.newJSONRequest(ctx, http.MethodPost, s.client.cfg.Endpoint+"/search/", queryBody(q))
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(db.OpQuery, resp.StatusCode, body)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &db.Error{Op: db.OpQuery, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	result := &db.QueryResult{
		StatusCode: resp.StatusCode,
		TotalCount: parsed.Root.Fields.TotalCount,
		Hits:       make([]db.QueryHit, 0, len(parsed.Root.Children)),
	}
	for _, ch := range parsed.Root.Children {
		result.Hits = append(result.Hits, db.QueryHit{ID: ch.ID, Relevance: ch.Relevance, Fields: ch.Fields})
	}
	return result, nil
}

func queryBody(q *db.Query) map[string]any {
	body := map[string]any{
		"yql":     q.YQL,
		"ranking": q.Ranking,
	}
	if q.Hits > 0 {
		body["hits"] = q.Hits
	}
	if q.Timeout > 0 {
		body["timeout"] = strconv.FormatFloat(q.Timeout.Seconds(), 'f', -1, 64) + "s"
	}
	if q.UserQuery != "" {
		body["userQuery"] = q.UserQuery
	}
	if q.Timing {
		body["presentation.timing"] = true
	}
	for name, v := range q.Inputs {
		body["input.query("+name+")"] = v
	}
	return body
}

// Close releases the session's connections. Safe to call more than once.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.transport.CloseIdleConnections()
		s.client.forget(s)
	})
	return nil
}
