package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kefio/ColPali-Workbench/internal/domain"
	domingest "github.com/kefio/ColPali-Workbench/internal/domain/ingest"
	dompage "github.com/kefio/ColPali-Workbench/internal/domain/page"
	"github.com/kefio/ColPali-Workbench/internal/domain/search/mode"
	"github.com/kefio/ColPali-Workbench/internal/domain/search/request"
	logpkg "github.com/kefio/ColPali-Workbench/internal/logger"
	"github.com/kefio/ColPali-Workbench/internal/transport/predictor"
	healthuc "github.com/kefio/ColPali-Workbench/internal/usecase/health"
	ingestuc "github.com/kefio/ColPali-Workbench/internal/usecase/ingest"
	searchuc "github.com/kefio/ColPali-Workbench/internal/usecase/search"
)

// Request body limits.
const (
	maxJSONBody     = 1 << 20
	maxEmbeddedBody = 256 << 20
)

// Ingester runs document ingest jobs and reports their status.
type Ingester interface {
	Ingest(ctx context.Context, url string) (ingestuc.Result, error)
	IngestDocument(ctx context.Context, doc dompage.Document) (ingestuc.Result, error)
	Status(ctx context.Context, url string) (domingest.Status, error)
}

// Searcher answers search requests.
type Searcher interface {
	Search(ctx context.Context, req *request.Request) (searchuc.Response, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the document ingest and search HTTP API.
type Server struct {
	ingest        Ingester
	search        Searcher
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(ingest Ingester, search Searcher, health HealthChecker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		ingest: ingest,
		search: search,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEmptyQuery, http.StatusBadRequest, CodeBadRequest),
		sentinelHandler(domain.ErrInvalidVectorLength, http.StatusBadRequest, CodeBadRequest),
		sentinelHandler(domain.ErrInvalidQueryEmbedding, http.StatusBadRequest, CodeBadRequest),
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, CodeBadRequest),
		sentinelHandler(domain.ErrRecordBuild, http.StatusBadRequest, CodeBadRequest),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		processingHandler,
		sentinelHandler(domain.ErrQueryExecution, http.StatusBadGateway, CodeUpstreamError),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeUpstreamError),
		sentinelHandler(domain.ErrAnswerProviderError, http.StatusBadGateway, CodeUpstreamError),
	}
	return s
}

// Routes registers the API handlers on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/documents", s.IngestDocument)
	r.Post("/documents/embedded", s.IngestEmbedded)
	r.Get("/documents/status", s.DocumentStatus)
	r.Post("/search", s.Search)
	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

// Handler returns a router serving the API without outer middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Routes(r)
	return r
}

// IngestDocument handles POST /documents.
func (s *Server) IngestDocument(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if !s.decodeJSON(w, r, maxJSONBody, &req) {
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "url is required")
		return
	}

	res, err := s.ingest.Ingest(r.Context(), req.URL)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, documentToResponse(&res))
}

// IngestEmbedded handles POST /documents/embedded. The body carries
// precomputed embeddings in the predictor response layout.
func (s *Server) IngestEmbedded(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEmbeddedBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	docs, err := predictor.ParseDocuments(body)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	// Documents run concurrently so the request waits at most one ingest
	// wait timeout; each one reports its own outcome.
	out := EmbeddedResponse{Documents: make([]EmbeddedOutcome, len(docs))}
	var wg sync.WaitGroup
	for i := range docs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.ingest.IngestDocument(r.Context(), docs[i])
			out.Documents[i] = s.embeddedOutcome(r, docs[i].URL, &res, err)
		}(i)
	}
	wg.Wait()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) embeddedOutcome(r *http.Request, url string, res *ingestuc.Result, err error) EmbeddedOutcome {
	switch {
	case err == nil:
		state := domingest.StateCompleted
		if !res.Report.OK() {
			state = domingest.StatePartial
		}
		return EmbeddedOutcome{DocumentResponse: documentToResponse(res), Status: string(state)}
	case domain.IsTimeout(err):
		return EmbeddedOutcome{DocumentResponse: DocumentResponse{URL: url}, Status: string(domingest.StateProcessing)}
	default:
		s.log(r).Warn("embedded document failed", zap.String("url", url), zap.Error(err))
		return EmbeddedOutcome{
			DocumentResponse: DocumentResponse{URL: url},
			Status:           string(domingest.StateFailed),
			Error:            safeDomainMessage(err),
		}
	}
}

// DocumentStatus handles GET /documents/status?url=.
func (s *Server) DocumentStatus(w http.ResponseWriter, r *http.Request) {
	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if url == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "url query parameter is required")
		return
	}

	st, err := s.ingest.Status(r.Context(), url)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statusToResponse(&st))
}

// Search handles POST /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var body SearchRequest
	if !s.decodeJSON(w, r, maxEmbeddedBody, &body) {
		return
	}

	req, err := request.New(body.Query, mode.Mode(body.Mode), body.Hits, body.TargetHitsPerVector, body.Answer)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if len(body.Embedding) > 0 {
		req = req.WithEmbedding(body.Embedding)
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	resp, err := s.search.Search(ctx, &req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, searchToResponse(&resp))
}

// HealthCheck handles GET /health. Degraded still serves 200; only an
// unreachable index is reported as 503.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthToResponse(report))
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage == nil {
		return
	}
	if usage.CacheHit {
		w.Header().Set("X-Embedding-Cache", "hit")
	} else if usage.Calls > 0 {
		w.Header().Set("X-Embedding-Cache", "miss")
	}
	w.Header().Set("X-Embedding-Calls", strconv.Itoa(usage.Calls))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// clientSentinels are caller mistakes; their full message is safe to return.
var clientSentinels = []error{
	domain.ErrEmptyQuery,
	domain.ErrInvalidVectorLength,
	domain.ErrInvalidQueryEmbedding,
	domain.ErrInvalidRequest,
	domain.ErrRecordBuild,
	domain.ErrNotFound,
}

// upstreamSentinels are collaborator failures; only the sentinel text is returned.
var upstreamSentinels = []error{
	domain.ErrQueryExecution,
	domain.ErrEmbeddingProviderError,
	domain.ErrAnswerProviderError,
	domain.ErrSessionTimeout,
}

// safeDomainMessage returns a client-facing message without exposing internals.
func safeDomainMessage(err error) string {
	for _, s := range clientSentinels {
		if errors.Is(err, s) {
			return err.Error()
		}
	}
	for _, s := range upstreamSentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// processingHandler reports work that continues past the request as 202.
func processingHandler(w http.ResponseWriter, err error, _ string) bool {
	if !domain.IsTimeout(err) {
		return false
	}
	writeJSON(w, http.StatusAccepted, ProcessingResponse{Status: CodeProcessing})
	return true
}

// log returns the request-scoped logger, falling back to the server logger.
func (s *Server) log(r *http.Request) *zap.Logger {
	return logpkg.FromContextOr(r.Context(), s.logger)
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logger := s.log(r)
	logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
