package mode

import "fmt"

// Mode is the retrieval strategy of a query plan.
type Mode string

// Search mode constants.
const (
	// Default matches query text lexically (BM25) and reranks with float MaxSim.
	Default Mode = "default"
	// RetrievalAndRerank drives candidate generation with binary nearest-neighbor
	// search per query token, then reranks with float MaxSim.
	RetrievalAndRerank Mode = "retrieval-and-rerank"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Default || m == RetrievalAndRerank
}

// Profile returns the rank profile name evaluated by the index.
func (m Mode) Profile() string { return string(m) }

// Parse maps a request value to a Mode; the empty string selects Default.
func Parse(s string) (Mode, error) {
	if s == "" {
		return Default, nil
	}
	m := Mode(s)
	if !m.IsValid() {
		return "", fmt.Errorf("unknown search mode %q", s)
	}
	return m, nil
}
