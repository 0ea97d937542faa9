package chi

import (
	"time"

	domfeed "github.com/kefio/ColPali-Workbench/internal/domain/feed"
	domingest "github.com/kefio/ColPali-Workbench/internal/domain/ingest"
	"github.com/kefio/ColPali-Workbench/internal/domain/search/hit"
	healthuc "github.com/kefio/ColPali-Workbench/internal/usecase/health"
	ingestuc "github.com/kefio/ColPali-Workbench/internal/usecase/ingest"
	searchuc "github.com/kefio/ColPali-Workbench/internal/usecase/search"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest    = "bad_request"
	CodeUnauthorized  = "unauthorized"
	CodeNotFound      = "not_found"
	CodeProcessing    = "processing"
	CodeUpstreamError = "upstream_error"
	CodeInternalError = "internal_error"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ProcessingResponse is returned with 202 when a job outlives the request.
type ProcessingResponse struct {
	Status string `json:"status"`
	URL    string `json:"url,omitempty"`
}

// IngestRequest is the body of POST /documents.
type IngestRequest struct {
	URL string `json:"url"`
}

// RecordFailure describes one rejected page record.
type RecordFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// DocumentResponse is the feed outcome of one ingested document.
type DocumentResponse struct {
	URL       string          `json:"url"`
	Title     string          `json:"title,omitempty"`
	Pages     int             `json:"pages"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Failures  []RecordFailure `json:"failures,omitempty"`
}

// EmbeddedOutcome is the result of one document in POST /documents/embedded.
// Status is completed, partial, processing (still running past the wait
// timeout) or failed.
type EmbeddedOutcome struct {
	DocumentResponse
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// EmbeddedResponse is the body of POST /documents/embedded, in payload order.
type EmbeddedResponse struct {
	Documents []EmbeddedOutcome `json:"documents"`
}

// StatusResponse is the body of GET /documents/status.
type StatusResponse struct {
	URL       string    `json:"url"`
	State     string    `json:"state"`
	Pages     int       `json:"pages"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query               string      `json:"query"`
	Mode                string      `json:"mode,omitempty"`
	Hits                int         `json:"hits,omitempty"`
	TargetHitsPerVector int         `json:"target_hits_per_vector,omitempty"`
	Answer              bool        `json:"answer,omitempty"`
	Embedding           [][]float32 `json:"embedding,omitempty"`
}

// SearchHit is one ranked page.
type SearchHit struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	PageNumber int     `json:"page_number"`
	Relevance  float64 `json:"relevance"`
	Image      string  `json:"image,omitempty"`
}

// SearchResponse is the body of a successful POST /search.
type SearchResponse struct {
	Mode        string      `json:"mode"`
	Hits        []SearchHit `json:"hits"`
	Answer      string      `json:"answer,omitempty"`
	AnswerError string      `json:"answer_error,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func documentToResponse(res *ingestuc.Result) DocumentResponse {
	return DocumentResponse{
		URL:       res.URL,
		Title:     res.Title,
		Pages:     res.Pages,
		Succeeded: res.Report.Succeeded(),
		Failed:    res.Report.Failed(),
		Failures:  failuresToResponse(res.Report.Failures()),
	}
}

func failuresToResponse(results []domfeed.Result) []RecordFailure {
	if len(results) == 0 {
		return nil
	}
	out := make([]RecordFailure, len(results))
	for i, r := range results {
		msg := "rejected"
		if r.Err() != nil {
			msg = r.Err().Error()
		}
		out[i] = RecordFailure{ID: r.ID(), Error: msg}
	}
	return out
}

func statusToResponse(st *domingest.Status) StatusResponse {
	return StatusResponse{
		URL:       st.URL(),
		State:     string(st.State()),
		Pages:     st.Pages(),
		Succeeded: st.Succeeded(),
		Failed:    st.Failed(),
		Message:   st.Message(),
		UpdatedAt: st.UpdatedAt().UTC(),
	}
}

func searchToResponse(resp *searchuc.Response) SearchResponse {
	hits := make([]SearchHit, len(resp.Hits))
	for i := range resp.Hits {
		hits[i] = hitToResponse(&resp.Hits[i])
	}
	return SearchResponse{
		Mode:        string(resp.Mode),
		Hits:        hits,
		Answer:      resp.Answer,
		AnswerError: resp.AnswerError,
	}
}

func hitToResponse(h *hit.Hit) SearchHit {
	return SearchHit{
		ID:         h.ID(),
		Title:      h.Title(),
		URL:        h.URL(),
		PageNumber: h.PageNumber(),
		Relevance:  h.Relevance(),
		Image:      h.Image(),
	}
}

func healthToResponse(report healthuc.Report) HealthResponse {
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthResponse{Status: string(report.Status), Checks: checks}
}
