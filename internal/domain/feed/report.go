package feed

// Status is the submission outcome of a single record.
type Status string

// Record status values.
const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Result is the outcome of submitting one record.
type Result struct {
	id     string
	status Status
	err    error
}

// NewOK creates a successful record result.
func NewOK(id string) Result { return Result{id: id, status: StatusOK} }

// NewError creates a failed record result.
func NewError(id string, err error) Result { return Result{id: id, status: StatusError, err: err} }

// ID returns the record identifier.
func (r Result) ID() string { return r.id }

// Status returns the submission outcome.
func (r Result) Status() Status { return r.status }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// Report aggregates per-record results in submission order.
type Report struct {
	results []Result
}

// NewReport wraps results; the slice is owned by the report afterwards.
func NewReport(results []Result) Report { return Report{results: results} }

// Results returns all per-record outcomes.
func (r Report) Results() []Result { return r.results }

// Len returns the number of records in the report.
func (r Report) Len() int { return len(r.results) }

// Succeeded counts successful records.
func (r Report) Succeeded() int {
	n := 0
	for _, res := range r.results {
		if res.status == StatusOK {
			n++
		}
	}
	return n
}

// Failed counts failed records.
func (r Report) Failed() int { return len(r.results) - r.Succeeded() }

// OK reports whether every record was accepted.
func (r Report) OK() bool { return r.Failed() == 0 }

// Failures returns only the failed results.
func (r Report) Failures() []Result {
	var out []Result
	for _, res := range r.results {
		if res.status == StatusError {
			out = append(out, res)
		}
	}
	return out
}
