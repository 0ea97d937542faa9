package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kefio/ColPali-Workbench/internal/db"
	"github.com/kefio/ColPali-Workbench/internal/domain"
	"github.com/kefio/ColPali-Workbench/internal/domain/search/hit"
	"github.com/kefio/ColPali-Workbench/internal/domain/search/plan"
)

// sessioner is the consumer interface for the index (ISP).
type sessioner interface {
	OpenSession(ctx context.Context, opts db.SessionOptions) (db.Session, error)
}

// Executor runs query plans against the index, one session per query.
type Executor struct {
	index       sessioner
	connections int
}

// NewExecutor creates an executor. connections bounds each query session.
func NewExecutor(idx sessioner, connections int) *Executor {
	if connections <= 0 {
		connections = domain.DefaultQuerySession().Connections
	}
	return &Executor{index: idx, connections: connections}
}

// Execute runs p under a session of the given timeout (0 = 120s) and returns
// hits in index order. A failed query returns no hits.
func (e *Executor) Execute(ctx context.Context, p *plan.Plan, timeout time.Duration) ([]hit.Hit, error) {
	if timeout <= 0 {
		timeout = domain.DefaultQuerySession().Timeout
	}

	s, err := e.index.OpenSession(ctx, db.SessionOptions{Connections: e.connections, Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open query session: %w", err)
	}
	defer s.Close()

	res, err := s.Query(ctx, &db.Query{
		YQL:       p.YQL(),
		Ranking:   p.Ranking(),
		UserQuery: p.UserQuery(),
		Hits:      p.Hits(),
		Timeout:   p.Timeout(),
		Inputs:    p.Inputs(),
		Timing:    true,
	})
	if err != nil {
		return nil, classify(err)
	}

	hits := make([]hit.Hit, 0, len(res.Hits))
	for i := range res.Hits {
		hits = append(hits, toHit(&res.Hits[i]))
	}
	return hits, nil
}

func classify(err error) error {
	if domain.IsTimeout(err) {
		return domain.NewSessionTimeout("query", err)
	}
	if code := db.StatusCode(err); code != 0 {
		msg := ""
		var dbErr *db.Error
		if errors.As(err, &dbErr) {
			msg = dbErr.Err.Error()
		}
		return &domain.QueryExecutionError{StatusCode: code, Message: msg}
	}
	return fmt.Errorf("query: %w", err)
}

func toHit(h *db.QueryHit) hit.Hit {
	return hit.New(
		h.ID,
		stringField(h.Fields, "title"),
		stringField(h.Fields, "url"),
		intField(h.Fields, "page_number"),
		h.Relevance,
		stringField(h.Fields, "image"),
	)
}

func stringField(fields map[string]any, name string) string {
	s, _ := fields[name].(string)
	return s
}

// intField reads JSON numbers (float64) and numeric strings alike.
func intField(fields map[string]any, name string) int {
	switch v := fields[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}
