package domain

import "time"

// SchemaConfig holds the index layout and the ranking knobs shared by feed and query.
type SchemaConfig struct {
	Schema              string
	Namespace           string
	PatchDim            int
	MaxLinksPerNode     int
	ExploreAtInsert     int
	RerankCount         int
	TargetHitsPerVector int
	MaxQueryPatches     int
	DefaultHits         int
	ImageMaxHeight      int
	ImageMaxWidth       int
}

// DefaultSchemaConfig returns the configuration tuned for ColQwen2 (128-dim patches).
func DefaultSchemaConfig() SchemaConfig {
	return SchemaConfig{
		Schema:              "pdf_page",
		Namespace:           "pdf_page",
		PatchDim:            128,
		MaxLinksPerNode:     32,
		ExploreAtInsert:     400,
		RerankCount:         100,
		TargetHitsPerVector: 20,
		MaxQueryPatches:     64,
		DefaultHits:         3,
		ImageMaxHeight:      640,
	}
}

// CodeBytes is the packed binary code length for one patch.
func (c SchemaConfig) CodeBytes() int { return (c.PatchDim + 7) / 8 }

// SessionConfig bounds one index session.
type SessionConfig struct {
	Connections int
	Timeout     time.Duration
}

// DefaultFeedSession returns the feed session defaults (1 connection, 180s).
func DefaultFeedSession() SessionConfig {
	return SessionConfig{Connections: 1, Timeout: 180 * time.Second}
}

// DefaultQuerySession returns the query session defaults (1 connection, 120s).
func DefaultQuerySession() SessionConfig {
	return SessionConfig{Connections: 1, Timeout: 120 * time.Second}
}

// Normalize fills zero fields from def.
func (s SessionConfig) Normalize(def SessionConfig) SessionConfig {
	if s.Connections <= 0 {
		s.Connections = def.Connections
	}
	if s.Timeout <= 0 {
		s.Timeout = def.Timeout
	}
	return s
}
