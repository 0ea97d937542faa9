package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kefio/ColPali-Workbench/internal/domain"
	domfeed "github.com/kefio/ColPali-Workbench/internal/domain/feed"
	dompage "github.com/kefio/ColPali-Workbench/internal/domain/page"
	"github.com/kefio/ColPali-Workbench/internal/metrics"
)

// Service submits page records to the index, one session per call.
type Service struct {
	writer  Writer
	session domain.SessionConfig
	logger  *zap.Logger
}

// New creates a feed service with the default session bounds (1 connection, 180s).
func New(w Writer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{writer: w, session: domain.DefaultFeedSession(), logger: logger}
}

// WithSession overrides the session bounds; zero fields keep the defaults.
func (s *Service) WithSession(cfg domain.SessionConfig) *Service {
	s.session = cfg.Normalize(domain.DefaultFeedSession())
	return s
}

// Feed submits every record as an individual upsert and reports one result per
// record in input order. A rejected record never affects the others and nothing
// is retried. When the session deadline elapses, records not yet attempted are
// reported as timed out and the returned error matches domain.ErrSessionTimeout;
// the report is valid either way.
func (s *Service) Feed(ctx context.Context, records []dompage.Record) (domfeed.Report, error) {
	if len(records) == 0 {
		return domfeed.NewReport(nil), nil
	}

	start := time.Now()
	defer func() { metrics.FeedSessionDuration.Observe(time.Since(start).Seconds()) }()

	batch, err := s.writer.Open(ctx, s.session)
	if err != nil {
		return domfeed.Report{}, fmt.Errorf("feed: %w", err)
	}
	defer func() {
		if cerr := batch.Close(); cerr != nil {
			s.logger.Warn("Failed to close feed session", zap.Error(cerr))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.session.Timeout)
	defer cancel()

	results := make([]domfeed.Result, len(records))
	attempted := make([]bool, len(records))
	work := make(chan int)
	var wg sync.WaitGroup

	for range min(s.session.Connections, len(records)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				if ctx.Err() != nil {
					continue
				}
				attempted[i] = true
				results[i] = s.submit(ctx, batch, &records[i])
			}
		}()
	}

dispatch:
	for i := range records {
		if ctx.Err() != nil {
			break
		}
		select {
		case work <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(work)
	wg.Wait()

	abortErr := sessionError(ctx.Err())
	notAttempted := 0
	for i := range records {
		if attempted[i] {
			continue
		}
		notAttempted++
		id := records[i].ID()
		results[i] = domfeed.NewError(id, fmt.Errorf("record %s not attempted: %w", id, abortErr))
		metrics.FeedRecordsTotal.WithLabelValues(string(domfeed.StatusError)).Inc()
	}

	report := domfeed.NewReport(results)
	s.logger.Info("Feed session finished",
		zap.Int("records", report.Len()),
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("failed", report.Failed()),
		zap.Int("not_attempted", notAttempted),
		zap.Duration("duration", time.Since(start)),
	)

	return report, abortErr
}

// sessionError classifies why a session stopped early. Only an elapsed
// deadline is a session timeout; cancellation by the caller is not.
func sessionError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewSessionTimeout("feed session", err)
	default:
		return fmt.Errorf("feed session: %w", err)
	}
}

func (s *Service) submit(ctx context.Context, batch dompage.Batch, rec *dompage.Record) domfeed.Result {
	if err := batch.Upsert(ctx, rec); err != nil {
		metrics.FeedRecordsTotal.WithLabelValues(string(domfeed.StatusError)).Inc()
		s.logger.Warn("Record rejected",
			zap.String("id", rec.ID()),
			zap.String("url", rec.URL()),
			zap.Int("page_number", rec.PageNumber()),
			zap.Int("status_code", statusCode(err)),
			zap.Error(err),
		)
		return domfeed.NewError(rec.ID(), err)
	}

	metrics.FeedRecordsTotal.WithLabelValues(string(domfeed.StatusOK)).Inc()
	s.logger.Debug("Record fed",
		zap.String("id", rec.ID()),
		zap.Int("page_number", rec.PageNumber()),
	)
	return domfeed.NewOK(rec.ID())
}

func statusCode(err error) int {
	var fe *domain.FeedSubmissionError
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}
