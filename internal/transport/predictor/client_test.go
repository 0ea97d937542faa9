package predictor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kefio/ColPali-Workbench/internal/domain"
	"github.com/kefio/ColPali-Workbench/internal/domain/page"
	"github.com/kefio/ColPali-Workbench/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

const documentResponse = `{"predictions":[[{
	"url":"https://example.com/a.pdf",
	"title":"a.pdf",
	"images":["aW1nMA==","not base64!"],
	"texts":["Intro","Body","Appendix"],
	"embeddings":[[[1,-1,1,-1,1,-1,1,-1]],[[1,1,1,1,1,1,1,1],[-1,-1,-1,-1,-1,-1,-1,-1]]]
}]]}`

func newPredictServer(t *testing.T, status int, body string, check func(r *http.Request, instance map[string]string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Instances []map[string]string `json:"instances"`
		}
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &req); err != nil || len(req.Instances) != 1 {
			t.Errorf("bad predict body: %s", data)
		}
		if check != nil && len(req.Instances) == 1 {
			check(r, req.Instances[0])
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	h, err := NewHTTP(Config{Endpoint: endpoint, Token: "tok", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	return New(h, zap.NewNop())
}

func TestEmbedDocument(t *testing.T) {
	srv := newPredictServer(t, http.StatusOK, documentResponse, func(r *http.Request, inst map[string]string) {
		if inst[FieldPDFURL] != "https://example.com/a.pdf" {
			t.Errorf("instance = %v", inst)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
	})

	ctx, usage := domain.NewContextWithUsage(context.Background())
	doc, err := newTestClient(t, srv.URL).EmbedDocument(ctx, "https://example.com/a.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "a.pdf" || len(doc.Pages) != 3 {
		t.Fatalf("doc = %q with %d pages", doc.Title, len(doc.Pages))
	}
	if doc.Pages[0].Image.Kind() != page.ImageRaw || string(doc.Pages[0].Image.Raw()) != "img0" {
		t.Errorf("page 0 image kind = %v", doc.Pages[0].Image.Kind())
	}
	if doc.Pages[1].Image.Kind() != page.ImagePreEncoded {
		t.Errorf("undecodable image should stay pre-encoded, got kind %v", doc.Pages[1].Image.Kind())
	}
	if doc.Pages[2].Image.Kind() != page.ImageNone || doc.Pages[2].Patches != nil {
		t.Errorf("page 2 should be padded: %+v", doc.Pages[2])
	}
	if len(doc.Pages[1].Patches) != 2 || doc.PatchCount() != 3 {
		t.Errorf("patch counts = %d total", doc.PatchCount())
	}
	if usage.Calls != 1 {
		t.Errorf("usage calls = %d", usage.Calls)
	}
}

func TestEmbedDocument_KeepsRequestURL(t *testing.T) {
	srv := newPredictServer(t, http.StatusOK, `{"predictions":[{"texts":["x"]}]}`, nil)
	doc, err := newTestClient(t, srv.URL).EmbedDocument(context.Background(), "https://example.com/b.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.URL != "https://example.com/b.pdf" || len(doc.Pages) != 1 {
		t.Errorf("doc = %+v", doc)
	}
}

func TestEmbedDocument_EmptyURL(t *testing.T) {
	_, err := New(nil, nil).EmbedDocument(context.Background(), "")
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("err = %v", err)
	}
}

func TestEmbedDocument_ProviderStatus(t *testing.T) {
	srv := newPredictServer(t, http.StatusInternalServerError, `{"error":"model crashed"}`, nil)
	_, err := newTestClient(t, srv.URL).EmbedDocument(context.Background(), "u")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("err = %v, want ErrEmbeddingProviderError", err)
	}
}

func TestEmbedDocument_BadResponseIsProviderError(t *testing.T) {
	srv := newPredictServer(t, http.StatusOK, `{"predictions":[]}`, nil)
	_, err := newTestClient(t, srv.URL).EmbedDocument(context.Background(), "u")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("err = %v", err)
	}
	if errors.Is(err, domain.ErrInvalidRequest) {
		t.Error("a bad collaborator response must not look like a bad request")
	}
}

func TestEmbedQuery(t *testing.T) {
	body := `{"predictions":[{"query":"q","embeddings":[[[0.5,-0.5],[1,2]]]}]}`
	srv := newPredictServer(t, http.StatusOK, body, func(_ *http.Request, inst map[string]string) {
		if inst[FieldQueryText] != "what is colpali" {
			t.Errorf("instance = %v", inst)
		}
	})

	emb, err := newTestClient(t, srv.URL).EmbedQuery(context.Background(), "what is colpali")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emb.Len() != 2 || emb.Vectors[0][1] != -0.5 || emb.Vectors[1][1] != 2 {
		t.Errorf("tensor = %v", emb.Vectors)
	}
}

func TestEmbedQuery_NoEmbeddings(t *testing.T) {
	srv := newPredictServer(t, http.StatusOK, `{"predictions":[{"query":"q","embeddings":[]}]}`, nil)
	_, err := newTestClient(t, srv.URL).EmbedQuery(context.Background(), "q")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("err = %v", err)
	}
}

func TestPredict_DeadlineIsSessionTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	// Cleanups run last-in first-out: unblock the handler before Close waits on it.
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newTestClient(t, srv.URL).EmbedQuery(ctx, "q")
	if !errors.Is(err, domain.ErrSessionTimeout) {
		t.Fatalf("err = %v, want ErrSessionTimeout", err)
	}
}

func TestParseDocuments_Malformed(t *testing.T) {
	for _, body := range []string{`not json`, `{"predictions":[]}`, `{"predictions":["x"]}`} {
		if _, err := ParseDocuments([]byte(body)); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("%s: err = %v, want ErrInvalidRequest", body, err)
		}
	}
}

func TestParseDocuments_MultipleDocuments(t *testing.T) {
	img := base64.StdEncoding.EncodeToString([]byte("png"))
	body := `{"predictions":[[{"url":"a","images":["` + img + `"]},{"url":"b"}]]}`
	docs, err := ParseDocuments([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 || docs[0].URL != "a" || docs[1].URL != "b" {
		t.Fatalf("docs = %+v", docs)
	}
	if string(docs[0].Pages[0].Image.Raw()) != "png" {
		t.Errorf("image not decoded")
	}
}

func TestHealthCheck(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(up.Close)
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(down.Close)

	h, _ := NewHTTP(Config{Endpoint: up.URL, HealthURL: up.URL})
	if err := h.HealthCheck(context.Background()); err != nil {
		t.Errorf("up: %v", err)
	}
	h, _ = NewHTTP(Config{Endpoint: up.URL, HealthURL: down.URL})
	if err := h.HealthCheck(context.Background()); err == nil {
		t.Error("down: expected error")
	}
	h, _ = NewHTTP(Config{Endpoint: up.URL})
	if err := h.HealthCheck(context.Background()); err != nil {
		t.Errorf("no health url: %v", err)
	}
}

func TestNewHTTP_RequiresEndpoint(t *testing.T) {
	if _, err := NewHTTP(Config{}); err == nil {
		t.Fatal("expected error")
	}
}
