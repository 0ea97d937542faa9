package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/kefio/ColPali-Workbench/internal/domain"
	domfeed "github.com/kefio/ColPali-Workbench/internal/domain/feed"
	domingest "github.com/kefio/ColPali-Workbench/internal/domain/ingest"
	dompage "github.com/kefio/ColPali-Workbench/internal/domain/page"
)

type mockEmbedder struct {
	doc     dompage.Document
	err     error
	release chan struct{} // when set, EmbedDocument blocks until closed
	calls   int
}

func (m *mockEmbedder) EmbedDocument(ctx context.Context, url string) (dompage.Document, error) {
	m.calls++
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return dompage.Document{}, ctx.Err()
		}
	}
	if m.err != nil {
		return dompage.Document{}, m.err
	}
	doc := m.doc
	doc.URL = url
	return doc, nil
}

type mockFeeder struct {
	failPages map[int]bool
	err       error
	fed       [][]dompage.Record
}

func (m *mockFeeder) Feed(_ context.Context, records []dompage.Record) (domfeed.Report, error) {
	m.fed = append(m.fed, records)
	if m.err != nil {
		return domfeed.Report{}, m.err
	}
	results := make([]domfeed.Result, len(records))
	for i := range records {
		if m.failPages[records[i].PageNumber()] {
			results[i] = domfeed.NewError(records[i].ID(), &domain.FeedSubmissionError{ID: records[i].ID(), StatusCode: 400})
			continue
		}
		results[i] = domfeed.NewOK(records[i].ID())
	}
	return domfeed.NewReport(results), nil
}

type memStatusStore struct {
	mu       sync.Mutex
	statuses map[string]domingest.Status
	history  []domingest.State
}

func newMemStatusStore() *memStatusStore {
	return &memStatusStore{statuses: make(map[string]domingest.Status)}
}

func (m *memStatusStore) Save(_ context.Context, st domingest.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[st.URL()] = st
	m.history = append(m.history, st.State())
	return nil
}

func (m *memStatusStore) Get(_ context.Context, url string) (domingest.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.statuses[url]
	if !ok {
		return domingest.Status{}, fmt.Errorf("status %s: %w", url, domain.ErrNotFound)
	}
	return st, nil
}

func threePageDoc() dompage.Document {
	patch := [][]float32{{1, -1, 1, -1, 1, -1, 1, -1}}
	return dompage.Document{
		Title: "a.pdf",
		Pages: []dompage.Page{
			{Text: "one", Patches: patch},
			{Text: "two", Patches: patch},
			{Text: "three", Patches: patch},
		},
	}
}
