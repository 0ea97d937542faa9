package feedstatus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/kefio/ColPali-Workbench/internal/domain"
	"github.com/kefio/ColPali-Workbench/internal/domain/ingest"
)

var keyPrefix = domain.KeyPrefix + "ingest:"

// DefaultTTL bounds how long a finished job stays queryable.
const DefaultTTL = 24 * time.Hour

const (
	fieldURL       = "url"
	fieldState     = "state"
	fieldPages     = "pages"
	fieldSucceeded = "succeeded"
	fieldFailed    = "failed"
	fieldMessage   = "message"
	fieldUpdatedAt = "updated_at"
)

// store is the consumer interface for ingest status (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Store persists ingest job status as one hash per document URL (HSET + EXPIRE).
type Store struct {
	store store
	ttl   time.Duration
}

// New creates a status store. A non-positive ttl selects DefaultTTL.
func New(s store, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{store: s, ttl: ttl}
}

// Save overwrites the status for its URL and refreshes the TTL.
func (s *Store) Save(ctx context.Context, st ingest.Status) error {
	key := Key(st.URL())
	if err := s.store.HSet(ctx, key, encode(&st)); err != nil {
		return fmt.Errorf("ingest status HSET %s: %w", key, err)
	}
	if err := s.store.Expire(ctx, key, s.ttl); err != nil {
		return fmt.Errorf("ingest status EXPIRE %s: %w", key, err)
	}
	return nil
}

// Get returns the last saved status for url, or domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, url string) (ingest.Status, error) {
	key := Key(url)
	m, err := s.store.HGetAll(ctx, key)
	if err != nil {
		return ingest.Status{}, fmt.Errorf("ingest status HGETALL %s: %w", key, err)
	}
	if len(m) == 0 {
		return ingest.Status{}, fmt.Errorf("ingest status %s: %w", url, domain.ErrNotFound)
	}
	return decode(m)
}

// Key maps a document URL to its hash key. URLs are hashed so arbitrary
// characters never reach the key space.
func Key(url string) string {
	h := sha256.Sum256([]byte(url))
	return keyPrefix + hex.EncodeToString(h[:])
}

func encode(st *ingest.Status) map[string]string {
	return map[string]string{
		fieldURL:       st.URL(),
		fieldState:     string(st.State()),
		fieldPages:     strconv.Itoa(st.Pages()),
		fieldSucceeded: strconv.Itoa(st.Succeeded()),
		fieldFailed:    strconv.Itoa(st.Failed()),
		fieldMessage:   st.Message(),
		fieldUpdatedAt: strconv.FormatInt(st.UpdatedAt().UnixMilli(), 10),
	}
}

func decode(m map[string]string) (ingest.Status, error) {
	ints := make(map[string]int, 3)
	for _, f := range []string{fieldPages, fieldSucceeded, fieldFailed} {
		v, err := strconv.Atoi(m[f])
		if err != nil {
			return ingest.Status{}, fmt.Errorf("ingest status field %s: %w", f, err)
		}
		ints[f] = v
	}
	ms, err := strconv.ParseInt(m[fieldUpdatedAt], 10, 64)
	if err != nil {
		return ingest.Status{}, fmt.Errorf("ingest status field %s: %w", fieldUpdatedAt, err)
	}
	return ingest.Reconstruct(
		m[fieldURL],
		ingest.State(m[fieldState]),
		ints[fieldPages], ints[fieldSucceeded], ints[fieldFailed],
		m[fieldMessage],
		time.UnixMilli(ms).UTC(),
	)
}
