package page

import (
	"context"
	"sync"

	"github.com/kefio/ColPali-Workbench/internal/db"
)

// fakeIndex is an in-memory index keyed by document id.
type fakeIndex struct {
	mu      sync.Mutex
	docs    map[string]map[string]any
	puts    map[string]int
	opened  []db.SessionOptions
	closed  int
	putFn   func(doc *db.DocumentPut) error
	openErr error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: map[string]map[string]any{}, puts: map[string]int{}}
}

func (f *fakeIndex) OpenSession(_ context.Context, opts db.SessionOptions) (db.Session, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.mu.Lock()
	f.opened = append(f.opened, opts)
	f.mu.Unlock()
	return &fakeSession{idx: f}, nil
}

type fakeSession struct {
	idx *fakeIndex
}

func (s *fakeSession) Put(_ context.Context, doc *db.DocumentPut) error {
	if s.idx.putFn != nil {
		if err := s.idx.putFn(doc); err != nil {
			return err
		}
	}
	s.idx.mu.Lock()
	defer s.idx.mu.Unlock()
	s.idx.docs[doc.ID] = doc.Fields
	s.idx.puts[doc.ID]++
	return nil
}

func (s *fakeSession) Query(context.Context, *db.Query) (*db.QueryResult, error) {
	return &db.QueryResult{}, nil
}

func (s *fakeSession) Close() error {
	s.idx.mu.Lock()
	s.idx.closed++
	s.idx.mu.Unlock()
	return nil
}
