package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kefio/ColPali-Workbench/internal/domain"
	domfeed "github.com/kefio/ColPali-Workbench/internal/domain/feed"
	domingest "github.com/kefio/ColPali-Workbench/internal/domain/ingest"
	dompage "github.com/kefio/ColPali-Workbench/internal/domain/page"
)

// Default job bounds.
const (
	DefaultWaitTimeout = 120 * time.Second
	DefaultJobTimeout  = 300 * time.Second
)

// ErrClosed is returned for ingests started after Close.
var ErrClosed = errors.New("ingest service closed")

// Result is the outcome of a finished ingest job.
type Result struct {
	URL    string
	Title  string
	Pages  int
	Report domfeed.Report
}

// Service runs ingest jobs: embed, build records, feed. Jobs are detached from
// the caller and bounded by the job timeout; the caller waits at most the wait
// timeout for the outcome.
type Service struct {
	embedder DocumentEmbedder
	builder  RecordBuilder
	feeder   Feeder
	status   StatusStore
	logger   *zap.Logger

	waitTimeout time.Duration
	jobTimeout  time.Duration
	now         func() time.Time

	mu     sync.Mutex
	closed bool
	jobs   sync.WaitGroup
}

// New creates an ingest service.
func New(
	embedder DocumentEmbedder, builder RecordBuilder, feeder Feeder,
	status StatusStore, logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		embedder:    embedder,
		builder:     builder,
		feeder:      feeder,
		status:      status,
		logger:      logger,
		waitTimeout: DefaultWaitTimeout,
		jobTimeout:  DefaultJobTimeout,
		now:         time.Now,
	}
}

// WithTimeouts overrides the wait and job timeouts; non-positive values keep the current ones.
func (s *Service) WithTimeouts(wait, job time.Duration) *Service {
	if wait > 0 {
		s.waitTimeout = wait
	}
	if job > 0 {
		s.jobTimeout = job
	}
	return s
}

// Ingest embeds the PDF at url through the embedding collaborator and feeds
// its pages. If the job outlives the wait timeout, the returned error matches
// domain.ErrSessionTimeout and the job keeps running; its progress is visible
// through Status.
func (s *Service) Ingest(ctx context.Context, url string) (Result, error) {
	if url == "" {
		return Result{}, fmt.Errorf("url is required: %w", domain.ErrInvalidRequest)
	}
	return s.start(ctx, url, func(jobCtx context.Context) (dompage.Document, error) {
		doc, err := s.embedder.EmbedDocument(jobCtx, url)
		if err != nil {
			return dompage.Document{}, fmt.Errorf("embed document: %w", err)
		}
		return doc, nil
	})
}

// IngestDocument feeds a document whose embeddings the caller already holds.
func (s *Service) IngestDocument(ctx context.Context, doc dompage.Document) (Result, error) {
	if doc.URL == "" {
		return Result{}, fmt.Errorf("document url is required: %w", domain.ErrInvalidRequest)
	}
	return s.start(ctx, doc.URL, func(context.Context) (dompage.Document, error) {
		return doc, nil
	})
}

// Status returns the last recorded progress of the job for url.
func (s *Service) Status(ctx context.Context, url string) (domingest.Status, error) {
	if url == "" {
		return domingest.Status{}, fmt.Errorf("url is required: %w", domain.ErrInvalidRequest)
	}
	if s.status == nil {
		return domingest.Status{}, fmt.Errorf("ingest status %s: %w", url, domain.ErrNotFound)
	}
	st, err := s.status.Get(ctx, url)
	if err != nil {
		return domingest.Status{}, fmt.Errorf("ingest status: %w", err)
	}
	return st, nil
}

// Close rejects new jobs and waits for in-flight ones, or for ctx.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for ingest jobs: %w", ctx.Err())
	}
}

type outcome struct {
	result Result
	err    error
}

func (s *Service) start(
	ctx context.Context, url string, fetch func(context.Context) (dompage.Document, error),
) (Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Result{}, ErrClosed
	}
	s.jobs.Add(1)
	s.mu.Unlock()

	s.saveStatus(ctx, domingest.Processing(url, s.now()))

	done := make(chan outcome, 1)
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.jobTimeout)
	go func() {
		defer s.jobs.Done()
		defer cancel()
		res, err := s.run(jobCtx, url, fetch)
		done <- outcome{result: res, err: err}
	}()

	wait := time.NewTimer(s.waitTimeout)
	defer wait.Stop()

	select {
	case o := <-done:
		return o.result, o.err
	case <-wait.C:
		s.logger.Info("Ingest still processing", zap.String("url", url), zap.Duration("waited", s.waitTimeout))
		return Result{URL: url}, domain.NewSessionTimeout("ingest "+url, context.DeadlineExceeded)
	case <-ctx.Done():
		return Result{URL: url}, fmt.Errorf("ingest %s: %w", url, ctx.Err())
	}
}

func (s *Service) run(
	ctx context.Context, url string, fetch func(context.Context) (dompage.Document, error),
) (Result, error) {
	log := s.logger.With(zap.String("url", url))
	start := s.now()

	doc, err := fetch(ctx)
	if err != nil {
		log.Warn("Ingest failed before feed", zap.Error(err))
		s.saveStatus(ctx, domingest.Failed(url, err, s.now()))
		return Result{URL: url}, err
	}

	records, err := s.builder.Build(doc)
	if err != nil {
		log.Warn("Record build failed", zap.Error(err))
		s.saveStatus(ctx, domingest.Failed(url, err, s.now()))
		return Result{URL: url, Title: doc.Title}, fmt.Errorf("build records: %w", err)
	}

	report, err := s.feeder.Feed(ctx, records)
	res := Result{URL: url, Title: doc.Title, Pages: len(records), Report: report}

	st := domingest.Finished(url, len(records), report.Succeeded(), report.Failed(), s.now())
	if err != nil {
		st = st.WithMessage(err.Error())
		if report.Len() == 0 {
			st = domingest.Failed(url, err, s.now())
		}
	}
	s.saveStatus(ctx, st)

	log.Info("Ingest finished",
		zap.String("state", string(st.State())),
		zap.Int("pages", len(records)),
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("failed", report.Failed()),
		zap.Duration("duration", s.now().Sub(start)),
	)
	if err != nil {
		return res, fmt.Errorf("feed: %w", err)
	}
	return res, nil
}

// saveStatus records progress; status is advisory and never fails the job.
func (s *Service) saveStatus(ctx context.Context, st domingest.Status) {
	if s.status == nil {
		return
	}
	// The job may have hit its deadline; the final status must still land.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.status.Save(ctx, st); err != nil {
		s.logger.Warn("Failed to save ingest status",
			zap.String("url", st.URL()),
			zap.String("state", string(st.State())),
			zap.Error(err),
		)
	}
}
