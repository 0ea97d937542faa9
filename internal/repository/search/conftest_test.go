package search

import (
	"context"

	"github.com/kefio/ColPali-Workbench/internal/db"
)

// mockIndex implements the consumer interface for tests.
type mockIndex struct {
	queryFn func(ctx context.Context, q *db.Query) (*db.QueryResult, error)
	opts    db.SessionOptions
	closed  bool
}

func (m *mockIndex) OpenSession(_ context.Context, opts db.SessionOptions) (db.Session, error) {
	m.opts = opts
	return &mockSession{m: m}, nil
}

type mockSession struct {
	m *mockIndex
}

func (s *mockSession) Put(context.Context, *db.DocumentPut) error { return nil }

func (s *mockSession) Query(ctx context.Context, q *db.Query) (*db.QueryResult, error) {
	if s.m.queryFn != nil {
		return s.m.queryFn(ctx, q)
	}
	return &db.QueryResult{StatusCode: 200}, nil
}

func (s *mockSession) Close() error {
	s.m.closed = true
	return nil
}
