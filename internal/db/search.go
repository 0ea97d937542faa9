package db

import "time"

// DocumentPut is one upsert keyed by ID.
type DocumentPut struct {
	Schema string
	ID     string
	Fields map[string]any
}

// Query is the input for one ranked query. Inputs are keyed by tensor name
// and sent as input.query(<name>).
type Query struct {
	YQL       string
	Ranking   string
	UserQuery string
	Hits      int
	Timeout   time.Duration
	Inputs    map[string]any
	Timing    bool
}

// QueryResult is the output of a successful query.
type QueryResult struct {
	StatusCode int
	TotalCount int
	Hits       []QueryHit
}

// QueryHit is a single ranked document, in index order.
type QueryHit struct {
	ID        string
	Relevance float64
	Fields    map[string]any
}
