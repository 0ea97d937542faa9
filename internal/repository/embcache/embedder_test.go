package embcache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kefio/ColPali-Workbench/internal/db"
	"github.com/kefio/ColPali-Workbench/internal/domain"
)

func TestEmbedQuery_CacheMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.QueryEmbedding{Vectors: [][]float32{{0.1, 0.2}, {0.3, 0.4}}}}
	ce, ms := newTestCachedEmbedder(t, inner)

	var setKey string
	var setTTL time.Duration
	var setData []byte
	ms.setFn = func(_ context.Context, key string, value []byte, ttl time.Duration) error {
		setKey, setData, setTTL = key, value, ttl
		return nil
	}

	ctx, usage := domain.NewContextWithUsage(context.Background())
	emb, err := ce.EmbedQuery(ctx, "what is colpali")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emb.Len() != 2 || emb.Vectors[1][0] != 0.3 {
		t.Fatalf("unexpected tensor: %v", emb.Vectors)
	}
	if !strings.HasPrefix(setKey, "colpali:query_emb:") {
		t.Errorf("key = %q", setKey)
	}
	if setTTL != time.Minute {
		t.Errorf("ttl = %v", setTTL)
	}
	if len(setData) != headerSize+2*2*4 {
		t.Errorf("blob len = %d", len(setData))
	}
	if usage.CacheHit {
		t.Error("miss must not be recorded as a cache hit")
	}
}

func TestEmbedQuery_CacheHit(t *testing.T) {
	inner := &mockEmbedder{}
	ce, ms := newTestCachedEmbedder(t, inner)

	cached, ok := matrixToCacheBytes([][]float32{{0.5, -0.5, 1}})
	if !ok {
		t.Fatal("expected matrix to encode")
	}
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return cached, nil
	}

	ctx, usage := domain.NewContextWithUsage(context.Background())
	emb, err := ce.EmbedQuery(ctx, "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emb.Len() != 1 || emb.Vectors[0][1] != -0.5 {
		t.Fatalf("expected cached tensor, got %v", emb.Vectors)
	}
	if inner.calls != 0 {
		t.Errorf("inner called %d times on hit", inner.calls)
	}
	if !usage.CacheHit {
		t.Error("expected usage to record cache hit")
	}
}

func TestEmbedQuery_StoreErrorDegradesToMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.QueryEmbedding{Vectors: [][]float32{{1}}}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, &db.Error{Op: db.OpGet, Err: errors.New("conn reset")}
	}
	ms.setFn = func(_ context.Context, _ string, _ []byte, _ time.Duration) error {
		return errors.New("conn reset")
	}

	emb, err := ce.EmbedQuery(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emb.Len() != 1 || inner.calls != 1 {
		t.Errorf("len = %d, calls = %d", emb.Len(), inner.calls)
	}
}

func TestEmbedQuery_CorruptBlobIsMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.QueryEmbedding{Vectors: [][]float32{{1}}}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return []byte{1, 0, 0, 0, 4, 0, 0, 0, 9}, nil
	}

	if _, err := ce.EmbedQuery(context.Background(), "q"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}

func TestEmbedQuery_InnerError(t *testing.T) {
	inner := &mockEmbedder{err: domain.ErrEmbeddingProviderError}
	ce, _ := newTestCachedEmbedder(t, inner)

	_, err := ce.EmbedQuery(context.Background(), "q")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("err = %v", err)
	}
}

func TestEmbedQuery_CountsHitsAndMisses(t *testing.T) {
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cache_total"}, []string{"result"})
	inner := &mockEmbedder{result: domain.QueryEmbedding{Vectors: [][]float32{{1, 2}}}}
	blobs := map[string][]byte{}
	ms := &mockKVStore{
		getFn: func(_ context.Context, key string) ([]byte, error) {
			if b, ok := blobs[key]; ok {
				return b, nil
			}
			return nil, db.ErrKeyNotFound
		},
		setFn: func(_ context.Context, key string, value []byte, _ time.Duration) error {
			blobs[key] = value
			return nil
		},
	}
	ce := New(inner, ms, 0, cache, zap.NewNop())

	for range 3 {
		if _, err := ce.EmbedQuery(context.Background(), "same"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := testutil.ToFloat64(cache.WithLabelValues("miss")); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(cache.WithLabelValues("hit")); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
	if ce.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want default", ce.ttl)
	}
}

func TestMatrixToCacheBytes_RejectsRaggedAndEmpty(t *testing.T) {
	if _, ok := matrixToCacheBytes(nil); ok {
		t.Error("empty matrix must not encode")
	}
	if _, ok := matrixToCacheBytes([][]float32{{1, 2}, {3}}); ok {
		t.Error("ragged matrix must not encode")
	}
}
