package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kefio/ColPali-Workbench/internal/domain"
	domfeed "github.com/kefio/ColPali-Workbench/internal/domain/feed"
	domingest "github.com/kefio/ColPali-Workbench/internal/domain/ingest"
	dompage "github.com/kefio/ColPali-Workbench/internal/domain/page"
	"github.com/kefio/ColPali-Workbench/internal/domain/search/hit"
	"github.com/kefio/ColPali-Workbench/internal/domain/search/mode"
	"github.com/kefio/ColPali-Workbench/internal/domain/search/request"
	healthuc "github.com/kefio/ColPali-Workbench/internal/usecase/health"
	ingestuc "github.com/kefio/ColPali-Workbench/internal/usecase/ingest"
	searchuc "github.com/kefio/ColPali-Workbench/internal/usecase/search"
)

type mockIngester struct {
	ingestFn   func(ctx context.Context, url string) (ingestuc.Result, error)
	documentFn func(ctx context.Context, doc dompage.Document) (ingestuc.Result, error)
	statusFn   func(ctx context.Context, url string) (domingest.Status, error)
}

func (m *mockIngester) Ingest(ctx context.Context, url string) (ingestuc.Result, error) {
	return m.ingestFn(ctx, url)
}

func (m *mockIngester) IngestDocument(ctx context.Context, doc dompage.Document) (ingestuc.Result, error) {
	return m.documentFn(ctx, doc)
}

func (m *mockIngester) Status(ctx context.Context, url string) (domingest.Status, error) {
	return m.statusFn(ctx, url)
}

type mockSearcher struct {
	lastReq *request.Request
	resp    searchuc.Response
	err     error
	onCtx   func(ctx context.Context)
}

func (m *mockSearcher) Search(ctx context.Context, req *request.Request) (searchuc.Response, error) {
	m.lastReq = req
	if m.onCtx != nil {
		m.onCtx(ctx)
	}
	return m.resp, m.err
}

type mockHealth struct{ report healthuc.Report }

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

func newTestServer(ing Ingester, srch Searcher, h HealthChecker) http.Handler {
	return NewServer(ing, srch, h, zap.NewNop()).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&e); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return e
}

func sampleResult(url string) ingestuc.Result {
	return ingestuc.Result{
		URL:   url,
		Title: "report.pdf",
		Pages: 2,
		Report: domfeed.NewReport([]domfeed.Result{
			domfeed.NewOK("id-0"),
			domfeed.NewError("id-1", errors.New("status 507")),
		}),
	}
}

func TestIngestDocument_OK(t *testing.T) {
	var gotURL string
	ing := &mockIngester{ingestFn: func(_ context.Context, url string) (ingestuc.Result, error) {
		gotURL = url
		return sampleResult(url), nil
	}}
	rr := do(t, newTestServer(ing, nil, nil), "POST", "/documents", `{"url":" https://example.com/r.pdf "}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	if gotURL != "https://example.com/r.pdf" {
		t.Errorf("url = %q", gotURL)
	}
	var resp DocumentResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Pages != 2 || resp.Succeeded != 1 || resp.Failed != 1 {
		t.Errorf("counts = %+v", resp)
	}
	if len(resp.Failures) != 1 || resp.Failures[0].ID != "id-1" {
		t.Errorf("failures = %+v", resp.Failures)
	}
}

func TestIngestDocument_TimeoutIsProcessing(t *testing.T) {
	ing := &mockIngester{ingestFn: func(_ context.Context, url string) (ingestuc.Result, error) {
		return ingestuc.Result{}, domain.NewSessionTimeout("ingest "+url, context.DeadlineExceeded)
	}}
	rr := do(t, newTestServer(ing, nil, nil), "POST", "/documents", `{"url":"https://example.com/big.pdf"}`)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rr.Code)
	}
	var resp ProcessingResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "processing" {
		t.Errorf("status field = %q", resp.Status)
	}
}

func TestIngestDocument_Validation(t *testing.T) {
	ing := &mockIngester{ingestFn: func(context.Context, string) (ingestuc.Result, error) {
		t.Fatal("ingest must not run")
		return ingestuc.Result{}, nil
	}}
	h := newTestServer(ing, nil, nil)

	for name, body := range map[string]string{
		"malformed": `{"url":`,
		"empty url": `{"url":"  "}`,
	} {
		rr := do(t, h, "POST", "/documents", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, rr.Code)
		}
	}
}

func TestIngestDocument_ProviderErrorIs502(t *testing.T) {
	ing := &mockIngester{ingestFn: func(context.Context, string) (ingestuc.Result, error) {
		return ingestuc.Result{}, fmt.Errorf("embed document: %w", domain.ErrEmbeddingProviderError)
	}}
	rr := do(t, newTestServer(ing, nil, nil), "POST", "/documents", `{"url":"u"}`)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
	if e := decodeError(t, rr); e.Message != domain.ErrEmbeddingProviderError.Error() {
		t.Errorf("message = %q, internals must not leak", e.Message)
	}
}

func TestIngestEmbedded(t *testing.T) {
	var mu sync.Mutex
	got := map[string]dompage.Document{}
	ing := &mockIngester{documentFn: func(_ context.Context, doc dompage.Document) (ingestuc.Result, error) {
		mu.Lock()
		got[doc.URL] = doc
		mu.Unlock()
		return ingestuc.Result{
			URL:    doc.URL,
			Pages:  len(doc.Pages),
			Report: domfeed.NewReport([]domfeed.Result{domfeed.NewOK("a")}),
		}, nil
	}}
	body := `{"predictions":[[
		{"url":"https://example.com/a.pdf","title":"a","texts":["p0"],"images":[],"embeddings":[[[1,-1]]]},
		{"url":"https://example.com/b.pdf","title":"b","texts":["p0","p1"],"images":[],"embeddings":[]}
	]]}`
	rr := do(t, newTestServer(ing, nil, nil), "POST", "/documents/embedded", body)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	if len(got) != 2 || len(got["https://example.com/b.pdf"].Pages) != 2 {
		t.Fatalf("documents = %+v", got)
	}
	var resp EmbeddedResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Documents) != 2 {
		t.Fatalf("documents = %d, want 2", len(resp.Documents))
	}
	for i, url := range []string{"https://example.com/a.pdf", "https://example.com/b.pdf"} {
		if d := resp.Documents[i]; d.URL != url || d.Status != "completed" {
			t.Errorf("document %d = %+v", i, d)
		}
	}
}

func TestIngestEmbedded_FailingDocumentDoesNotStopOthers(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	ing := &mockIngester{documentFn: func(_ context.Context, doc dompage.Document) (ingestuc.Result, error) {
		mu.Lock()
		seen = append(seen, doc.URL)
		mu.Unlock()
		switch doc.URL {
		case "b":
			return ingestuc.Result{}, &domain.RecordBuildError{Page: 0, Patch: 1, Err: domain.ErrInvalidVectorLength}
		case "c":
			return ingestuc.Result{}, domain.NewSessionTimeout("ingest c", context.DeadlineExceeded)
		}
		return ingestuc.Result{
			URL:    doc.URL,
			Pages:  1,
			Report: domfeed.NewReport([]domfeed.Result{domfeed.NewError("x", domain.ErrFeedSubmission)}),
		}, nil
	}}
	body := `{"predictions":[[{"url":"a","texts":["p0"]},{"url":"b","texts":["p0"]},{"url":"c","texts":["p0"]}]]}`
	rr := do(t, newTestServer(ing, nil, nil), "POST", "/documents/embedded", body)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	if len(seen) != 3 {
		t.Fatalf("ingested = %v, want all three documents", seen)
	}
	var resp EmbeddedResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []struct{ url, status string }{{"a", "partial"}, {"b", "failed"}, {"c", "processing"}}
	if len(resp.Documents) != len(want) {
		t.Fatalf("documents = %+v", resp.Documents)
	}
	for i, w := range want {
		if d := resp.Documents[i]; d.URL != w.url || d.Status != w.status {
			t.Errorf("document %d = %+v, want %s/%s", i, d, w.url, w.status)
		}
	}
	if resp.Documents[0].Failed != 1 {
		t.Errorf("partial document failures = %d", resp.Documents[0].Failed)
	}
	if !strings.Contains(resp.Documents[1].Error, "invalid vector length") {
		t.Errorf("failed document error = %q", resp.Documents[1].Error)
	}
}

func TestIngestEmbedded_MalformedIs400(t *testing.T) {
	ing := &mockIngester{documentFn: func(context.Context, dompage.Document) (ingestuc.Result, error) {
		t.Fatal("ingest must not run")
		return ingestuc.Result{}, nil
	}}
	rr := do(t, newTestServer(ing, nil, nil), "POST", "/documents/embedded", `{"predictions":[]}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestDocumentStatus(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	ing := &mockIngester{statusFn: func(_ context.Context, url string) (domingest.Status, error) {
		if url != "https://example.com/a.pdf" {
			return domingest.Status{}, fmt.Errorf("status %s: %w", url, domain.ErrNotFound)
		}
		return domingest.Finished(url, 3, 2, 1, at), nil
	}}
	h := newTestServer(ing, nil, nil)

	rr := do(t, h, "GET", "/documents/status?url=https://example.com/a.pdf", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp StatusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.State != string(domingest.StatePartial) || resp.Pages != 3 || !resp.UpdatedAt.Equal(at) {
		t.Errorf("resp = %+v", resp)
	}

	if rr := do(t, h, "GET", "/documents/status?url=other", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown url: status = %d, want 404", rr.Code)
	}
	if rr := do(t, h, "GET", "/documents/status", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("missing url: status = %d, want 400", rr.Code)
	}
}

func TestSearch_OK(t *testing.T) {
	srch := &mockSearcher{resp: searchuc.Response{
		Mode:   mode.RetrievalAndRerank,
		Hits:   []hit.Hit{hit.New("id-0", "a.pdf", "https://example.com/a.pdf", 4, 12.5, "aW1n")},
		Answer: "42",
	}}
	body := `{"query":"revenue","mode":"retrieval-and-rerank","hits":5,"target_hits_per_vector":50,"answer":true}`
	rr := do(t, newTestServer(nil, srch, nil), "POST", "/search", body)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	req := srch.lastReq
	if req.Query() != "revenue" || req.Mode() != mode.RetrievalAndRerank ||
		req.Hits() != 5 || req.TargetHits() != 50 || !req.Answer() {
		t.Errorf("request = %+v", req)
	}
	var resp SearchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Mode != "retrieval-and-rerank" || len(resp.Hits) != 1 || resp.Answer != "42" {
		t.Errorf("resp = %+v", resp)
	}
	if h := resp.Hits[0]; h.PageNumber != 4 || h.Relevance != 12.5 || h.Image != "aW1n" {
		t.Errorf("hit = %+v", h)
	}
}

func TestSearch_PassesEmbedding(t *testing.T) {
	srch := &mockSearcher{resp: searchuc.Response{Mode: mode.Default}}
	rr := do(t, newTestServer(nil, srch, nil), "POST", "/search", `{"query":"q","embedding":[[0.5,-0.5]]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if emb := srch.lastReq.Embedding(); len(emb) != 1 || emb[0][1] != -0.5 {
		t.Errorf("embedding = %v", emb)
	}
	var resp SearchResponse
	_ = json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Hits == nil {
		t.Error("hits must encode as an empty list")
	}
}

func TestSearch_EmbeddingHeaders(t *testing.T) {
	tests := []struct {
		name      string
		record    func(u *domain.EmbeddingUsage)
		wantCache string
		wantCalls string
	}{
		{"miss", func(u *domain.EmbeddingUsage) { u.RecordCall() }, "miss", "1"},
		{"hit", func(u *domain.EmbeddingUsage) { u.RecordCacheHit() }, "hit", "0"},
		{"supplied embedding", func(*domain.EmbeddingUsage) {}, "", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srch := &mockSearcher{
				resp:  searchuc.Response{Mode: mode.Default},
				onCtx: func(ctx context.Context) { tt.record(domain.UsageFromContext(ctx)) },
			}
			rr := do(t, newTestServer(nil, srch, nil), "POST", "/search", `{"query":"q"}`)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d", rr.Code)
			}
			if got := rr.Header().Get("X-Embedding-Cache"); got != tt.wantCache {
				t.Errorf("X-Embedding-Cache = %q, want %q", got, tt.wantCache)
			}
			if got := rr.Header().Get("X-Embedding-Calls"); got != tt.wantCalls {
				t.Errorf("X-Embedding-Calls = %q, want %q", got, tt.wantCalls)
			}
		})
	}
}

func TestSearch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"empty query", domain.ErrEmptyQuery, http.StatusBadRequest},
		{"bad embedding", fmt.Errorf("plan: %w", domain.ErrInvalidQueryEmbedding), http.StatusBadRequest},
		{"vector length", domain.ErrInvalidVectorLength, http.StatusBadRequest},
		{"query execution", &domain.QueryExecutionError{StatusCode: 500, Message: "boom"}, http.StatusBadGateway},
		{"answer provider", domain.ErrAnswerProviderError, http.StatusBadGateway},
		{"timeout", domain.NewSessionTimeout("query", context.DeadlineExceeded), http.StatusAccepted},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, newTestServer(nil, &mockSearcher{err: tc.err}, nil), "POST", "/search", `{"query":"q"}`)
			if rr.Code != tc.want {
				t.Errorf("status = %d, want %d", rr.Code, tc.want)
			}
			if tc.want == http.StatusInternalServerError {
				if e := decodeError(t, rr); e.Message != "internal error" {
					t.Errorf("message = %q", e.Message)
				}
			}
		})
	}
}

func TestSearch_InvalidParams(t *testing.T) {
	srch := &mockSearcher{}
	h := newTestServer(nil, srch, nil)
	for name, body := range map[string]string{
		"mode":      `{"query":"q","mode":"hybrid"}`,
		"hits":      `{"query":"q","hits":1000}`,
		"malformed": `not json`,
	} {
		if rr := do(t, h, "POST", "/search", body); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, rr.Code)
		}
	}
	if srch.lastReq != nil {
		t.Error("search must not run for invalid params")
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		status healthuc.Status
		want   int
	}{
		{healthuc.Healthy, http.StatusOK},
		{healthuc.Degraded, http.StatusOK},
		{healthuc.Unhealthy, http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		h := &mockHealth{report: healthuc.Report{
			Status: tc.status,
			Checks: map[string]healthuc.CheckResult{healthuc.ComponentIndex: healthuc.CheckOK},
		}}
		rr := do(t, newTestServer(nil, nil, h), "GET", "/health", "")
		if rr.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.status, rr.Code, tc.want)
		}
		var resp HealthResponse
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Status != string(tc.status) || resp.Checks["index"] != "ok" {
			t.Errorf("resp = %+v", resp)
		}
	}
}

func TestMetricsRoute(t *testing.T) {
	rr := do(t, newTestServer(nil, nil, nil), "GET", "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d", rr.Code)
	}
}
