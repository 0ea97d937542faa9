package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kefio/ColPali-Workbench/internal/db"
	"github.com/kefio/ColPali-Workbench/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "query_emb:"

// DefaultTTL is used when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// headerSize is the rows/dim prefix of a cached blob.
const headerSize = 8

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedEmbedder caches query embeddings in a key-value store.
type CachedEmbedder struct {
	inner      domain.QueryEmbedder
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.QueryEmbedder,
	s store,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedEmbedder{
		inner:      inner,
		store:      s,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// EmbedQuery returns a cached per-token tensor or calls the inner embedder.
// Store failures degrade to a miss; they never fail the query.
func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) (domain.QueryEmbedding, error) {
	key := c.cacheKey(text)

	if vecs, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		domain.UsageFromContext(ctx).RecordCacheHit()
		return domain.QueryEmbedding{Vectors: vecs}, nil
	}

	c.incCache("miss")

	emb, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return domain.QueryEmbedding{}, fmt.Errorf("embed query: %w", err)
	}

	c.putToCache(ctx, key, emb.Vectors)
	return emb, nil
}

func (c *CachedEmbedder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) getFromCache(ctx context.Context, key string) ([][]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached query embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vecs, err := bytesToMatrix(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached query embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	return vecs, true
}

func (c *CachedEmbedder) putToCache(ctx context.Context, key string, vecs [][]float32) {
	data, ok := matrixToCacheBytes(vecs)
	if !ok {
		return
	}
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache query embedding", zap.String("key", key), zap.Error(err))
	}
}

// matrixToCacheBytes packs rows of equal width as
// rows:uint32 | dim:uint32 | rows*dim float32, all little-endian.
// Empty or ragged matrices are not cached.
func matrixToCacheBytes(m [][]float32) ([]byte, bool) {
	if len(m) == 0 || len(m[0]) == 0 {
		return nil, false
	}
	dim := len(m[0])
	buf := make([]byte, headerSize+len(m)*dim*4)
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(m)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(dim))
	off := headerSize
	for _, row := range m {
		if len(row) != dim {
			return nil, false
		}
		for _, f := range row {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f))
			off += 4
		}
	}
	return buf, true
}

func bytesToMatrix(data []byte) ([][]float32, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("invalid query embedding cache data: len=%d", len(data))
	}
	rows := int(binary.LittleEndian.Uint32(data[0:]))
	dim := int(binary.LittleEndian.Uint32(data[4:]))
	if rows == 0 || dim == 0 || len(data)-headerSize != rows*dim*4 {
		return nil, fmt.Errorf("invalid query embedding cache data: len=%d rows=%d dim=%d", len(data), rows, dim)
	}
	m := make([][]float32, rows)
	off := headerSize
	for i := range m {
		row := make([]float32, dim)
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		m[i] = row
	}
	return m, nil
}
