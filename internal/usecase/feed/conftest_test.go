package feed

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/kefio/ColPali-Workbench/internal/domain"
	dompage "github.com/kefio/ColPali-Workbench/internal/domain/page"
)

type mockWriter struct {
	batch   *mockBatch
	openErr error
	opened  []domain.SessionConfig
}

func (m *mockWriter) Open(_ context.Context, cfg domain.SessionConfig) (dompage.Batch, error) {
	m.opened = append(m.opened, cfg)
	if m.openErr != nil {
		return nil, m.openErr
	}
	return m.batch, nil
}

type mockBatch struct {
	upsertFn func(ctx context.Context, rec *dompage.Record) error

	mu       sync.Mutex
	upserted []string
	inFlight atomic.Int32
	peak     atomic.Int32
	closed   int
}

func (m *mockBatch) Upsert(ctx context.Context, rec *dompage.Record) error {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	m.mu.Lock()
	m.upserted = append(m.upserted, rec.ID())
	m.mu.Unlock()

	if m.upsertFn != nil {
		return m.upsertFn(ctx, rec)
	}
	return nil
}

func (m *mockBatch) Close() error {
	m.closed++
	return nil
}

func records(n int) []dompage.Record {
	out := make([]dompage.Record, n)
	for i := range out {
		out[i] = dompage.NewRecord("https://example.com/a.pdf", "a.pdf", i, "", "", nil)
	}
	return out
}
