package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kefio/ColPali-Workbench/internal/domain"
	"github.com/kefio/ColPali-Workbench/internal/domain/search/hit"
	"github.com/kefio/ColPali-Workbench/internal/domain/search/mode"
	"github.com/kefio/ColPali-Workbench/internal/domain/search/plan"
	"github.com/kefio/ColPali-Workbench/internal/domain/search/request"
	"github.com/kefio/ColPali-Workbench/internal/metrics"
)

// errAnswerDisabled is reported when an answer is requested but no answerer is configured.
var errAnswerDisabled = errors.New("answer generation is disabled")

// Response is the outcome of one search.
type Response struct {
	Mode   mode.Mode
	Hits   []hit.Hit
	Answer string
	// AnswerError is set when an answer was requested but could not be
	// generated; the hits are still valid.
	AnswerError string
}

// Service embeds queries, plans them and runs them against the index.
type Service struct {
	embed   Embedder
	exec    Executor
	answer  Answerer
	schema  domain.SchemaConfig
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a search service for the schema described by cfg.
func New(embed Embedder, exec Executor, cfg domain.SchemaConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		embed:   embed,
		exec:    exec,
		schema:  cfg,
		timeout: domain.DefaultQuerySession().Timeout,
		logger:  logger,
	}
}

// WithAnswerer enables answer generation.
func (s *Service) WithAnswerer(a Answerer) *Service {
	s.answer = a
	return s
}

// WithTimeout overrides the query session timeout.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Search runs req. The query tensor comes from the request when supplied,
// otherwise from the embedder. Hits keep the index order.
func (s *Service) Search(ctx context.Context, req *request.Request) (Response, error) {
	vectors := req.Embedding()
	if vectors == nil {
		if strings.TrimSpace(req.Query()) == "" {
			return Response{}, domain.ErrEmptyQuery
		}
		emb, err := s.embed.EmbedQuery(ctx, req.Query())
		if err != nil {
			return Response{}, fmt.Errorf("vectorize query: %w", err)
		}
		vectors = emb.Vectors
	}

	p, err := plan.Build(req.Query(), vectors, req.Mode(), s.planOptions(req))
	if err != nil {
		return Response{}, fmt.Errorf("build query plan: %w", err)
	}

	hits, err := s.execute(ctx, &p)
	if err != nil {
		return Response{}, err
	}

	resp := Response{Mode: p.Mode(), Hits: hits}
	if req.Answer() {
		resp.Answer, resp.AnswerError = s.generateAnswer(ctx, req.Query(), hits)
	}
	return resp, nil
}

func (s *Service) planOptions(req *request.Request) plan.Options {
	hits := req.Hits()
	if hits == 0 {
		hits = s.schema.DefaultHits
	}
	target := req.TargetHits()
	if target == 0 {
		target = s.schema.TargetHitsPerVector
	}
	return plan.Options{
		Hits:                hits,
		TargetHitsPerVector: target,
		MaxQueryPatches:     s.schema.MaxQueryPatches,
		Dim:                 s.schema.PatchDim,
		Timeout:             s.timeout,
		Schema:              s.schema.Schema,
	}
}

func (s *Service) execute(ctx context.Context, p *plan.Plan) ([]hit.Hit, error) {
	m := string(p.Mode())
	start := time.Now()
	hits, err := s.exec.Execute(ctx, p, s.timeout)
	duration := time.Since(start)
	metrics.QueryDuration.WithLabelValues(m).Observe(duration.Seconds())

	if err != nil {
		status := "error"
		if domain.IsTimeout(err) {
			status = "timeout"
		}
		metrics.QueryRequestsTotal.WithLabelValues(m, status).Inc()

		var qe *domain.QueryExecutionError
		code := 0
		if errors.As(err, &qe) {
			code = qe.StatusCode
		}
		s.logger.Warn("Query failed",
			zap.String("mode", m),
			zap.Int("status_code", code),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, fmt.Errorf("execute query: %w", err)
	}

	metrics.QueryRequestsTotal.WithLabelValues(m, "ok").Inc()
	s.logger.Info("Query executed",
		zap.String("mode", m),
		zap.Int("status_code", 200),
		zap.Int("hits", len(hits)),
		zap.Int("predicates", p.Predicates()),
		zap.Duration("duration", duration),
	)
	return hits, nil
}

// generateAnswer asks the answerer about the top hit image. Failures are
// reported in the second return value and never fail the search.
func (s *Service) generateAnswer(ctx context.Context, query string, hits []hit.Hit) (string, string) {
	if s.answer == nil {
		return "", errAnswerDisabled.Error()
	}
	if len(hits) == 0 || hits[0].Image() == "" {
		return "", ""
	}
	ans, err := s.answer.Answer(ctx, query, hits[0].Image())
	if err != nil {
		s.logger.Warn("Answer generation failed", zap.Error(err))
		return "", err.Error()
	}
	return ans, ""
}
