package respcache

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var bucketResponses = []byte("predictions")

// predictor is the consumer interface for the wrapped collaborator (ISP).
type predictor interface {
	Predict(ctx context.Context, field, value string) ([]byte, error)
}

// Cache replays predictor responses from a local bolt file. A miss calls the
// inner predictor and stores the successful response.
type Cache struct {
	inner  predictor
	db     *bbolt.DB
	logger *zap.Logger
}

// Open opens (or creates) the cache file at path in front of inner.
func Open(path string, inner predictor, logger *zap.Logger) (*Cache, error) {
	if path == "" {
		return nil, errors.New("response cache path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create response cache dir: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open response cache %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketResponses)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create response cache bucket: %w", err)
	}

	return &Cache{inner: inner, db: db, logger: logger}, nil
}

// Predict returns the stored response for (field, value) or fetches and stores it.
// Cache failures never fail the prediction.
func (c *Cache) Predict(ctx context.Context, field, value string) ([]byte, error) {
	key := cacheKey(field, value)

	if data, ok := c.get(key); ok {
		c.logger.Debug("Prediction replayed from cache", zap.String("field", field))
		return data, nil
	}

	data, err := c.inner.Predict(ctx, field, value)
	if err != nil {
		return nil, err //nolint:wrapcheck // transparent decorator
	}

	if err := c.put(key, data); err != nil {
		c.logger.Warn("Failed to cache prediction", zap.String("field", field), zap.Error(err))
	}
	return data, nil
}

// Len returns the number of cached responses.
func (c *Cache) Len() int {
	n := 0
	_ = c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketResponses).Stats().KeyN
		return nil
	})
	return n
}

// Close closes the cache file.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) get(key []byte) ([]byte, bool) {
	var out []byte
	_ = c.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketResponses).Get(key); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, out != nil
}

func (c *Cache) put(key, data []byte) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketResponses).Put(key, data)
	})
}

// cacheKey separates field and value with a NUL so no two pairs collide.
func cacheKey(field, value string) []byte {
	h := sha256.Sum256([]byte(field + "\x00" + value))
	return h[:]
}
