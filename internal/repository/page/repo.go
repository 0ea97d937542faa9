package page

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/kefio/ColPali-Workbench/internal/db"
	"github.com/kefio/ColPali-Workbench/internal/domain"
	dompage "github.com/kefio/ColPali-Workbench/internal/domain/page"
)

// sessioner is the consumer interface for the index (ISP).
type sessioner interface {
	OpenSession(ctx context.Context, opts db.SessionOptions) (db.Session, error)
}

// Repo writes page records to the index.
type Repo struct {
	index     sessioner
	schema    string
	codeBytes int
}

// New creates a page repository for the schema described by cfg.
func New(idx sessioner, cfg domain.SchemaConfig) *Repo {
	return &Repo{index: idx, schema: cfg.Schema, codeBytes: cfg.CodeBytes()}
}

// Open starts a feed session. The caller must Close it on every exit path.
func (r *Repo) Open(ctx context.Context, cfg domain.SessionConfig) (dompage.Batch, error) {
	cfg = cfg.Normalize(domain.DefaultFeedSession())
	s, err := r.index.OpenSession(ctx, db.SessionOptions{Connections: cfg.Connections, Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("open feed session: %w", err)
	}
	return &Session{repo: r, session: s}, nil
}

// Session submits records one upsert at a time.
type Session struct {
	repo    *Repo
	session db.Session
}

// Upsert sanitizes rec and submits it keyed by its id. Re-submitting a record
// with the same id overwrites the stored page.
func (s *Session) Upsert(ctx context.Context, rec *dompage.Record) error {
	fields, err := s.repo.sanitize(rec)
	if err != nil {
		return &domain.FeedSubmissionError{ID: rec.ID(), Err: err}
	}

	err = s.session.Put(ctx, &db.DocumentPut{Schema: s.repo.schema, ID: rec.ID(), Fields: fields})
	if err == nil {
		return nil
	}
	if domain.IsTimeout(err) {
		return domain.NewSessionTimeout("feed "+rec.ID(), err)
	}
	return &domain.FeedSubmissionError{ID: rec.ID(), StatusCode: db.StatusCode(err), Err: err}
}

// Close releases the session.
func (s *Session) Close() error { return s.session.Close() }

var errInvalidField = errors.New("invalid field")

// sanitize coerces the record into the field set declared by the schema.
func (r *Repo) sanitize(rec *dompage.Record) (map[string]any, error) {
	if rec.ID() == "" {
		return nil, fmt.Errorf("%w: id is empty", errInvalidField)
	}
	if rec.PageNumber() < 0 {
		return nil, fmt.Errorf("%w: page_number %d is negative", errInvalidField, rec.PageNumber())
	}

	embedding := rec.Embedding()
	for k, code := range embedding {
		if len(code) != 2*r.codeBytes {
			return nil, fmt.Errorf("%w: embedding patch %s has %d hex chars, want %d",
				errInvalidField, k, len(code), 2*r.codeBytes)
		}
	}

	return map[string]any{
		"id":          cleanString(rec.ID()),
		"url":         cleanString(rec.URL()),
		"title":       cleanString(rec.Title()),
		"page_number": rec.PageNumber(),
		"image":       rec.Image(),
		"text":        cleanString(rec.Text()),
		"embedding":   embedding,
	}, nil
}

// cleanString replaces invalid UTF-8 and drops control characters the index
// rejects in string fields. Tabs and line breaks are kept.
func cleanString(s string) string {
	s = strings.ToValidUTF8(s, "�")
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
