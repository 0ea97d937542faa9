package db

import (
	"fmt"
	"strings"
)

// Field type names understood by the index.
const (
	FieldString = "string"
	FieldInt    = "int"
	FieldRaw    = "raw"
)

// Indexing is one step of a field's indexing pipeline.
type Indexing string

const (
	// IndexingSummary returns the field in hits.
	IndexingSummary Indexing = "summary"
	// IndexingIndex makes the field searchable (or ANN-indexed for tensors).
	IndexingIndex Indexing = "index"
	// IndexingAttribute keeps the field in memory for ranking and sorting.
	IndexingAttribute Indexing = "attribute"
)

// MatchMode selects how string fields are tokenized.
type MatchMode string

const (
	// MatchWord matches the whole value as one token.
	MatchWord MatchMode = "word"
	// MatchText matches linguistically processed tokens.
	MatchText MatchMode = "text"
)

// DistanceMetric used by nearest-neighbor search over tensor fields.
type DistanceMetric string

const (
	// DistanceHamming counts differing bits of int8 cells.
	DistanceHamming DistanceMetric = "hamming"
	// DistanceAngular is angular distance.
	DistanceAngular DistanceMetric = "angular"
	// DistanceEuclidean is Euclidean distance.
	DistanceEuclidean DistanceMetric = "euclidean"
)

// ANNIndex configures the HNSW graph of a tensor field.
type ANNIndex struct {
	Distance                   DistanceMetric
	MaxLinksPerNode            int // graph degree
	NeighborsToExploreAtInsert int // insert-time exploration breadth
}

// SchemaField describes a single document field.
type SchemaField struct {
	Name     string
	Type     string
	Indexing []Indexing
	Match    MatchMode
	BM25     bool
	ANN      *ANNIndex
}

// FieldSet groups fields searched together by userInput.
type FieldSet struct {
	Name   string
	Fields []string
}

// RankInput declares a named query tensor.
type RankInput struct {
	Name string // e.g. query(qt)
	Type string
}

// RankFunction is a named ranking expression.
type RankFunction struct {
	Name       string
	Expression string
}

// RankProfile is a two-phase ranking configuration.
type RankProfile struct {
	Name        string
	Inherits    string
	Inputs      []RankInput
	Functions   []RankFunction
	FirstPhase  string
	SecondPhase string
	RerankCount int
}

// SchemaDefinition is a complete document schema with its rank profiles.
type SchemaDefinition struct {
	Name         string
	Fields       []SchemaField
	FieldSets    []FieldSet
	RankProfiles []RankProfile
}

// Validate checks that the schema definition is well-formed.
func (s *SchemaDefinition) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: schema name is required", ErrInvalidSchema)
	}
	if !IsValidIdentifier(s.Name) {
		return fmt.Errorf("%w: schema name contains invalid characters", ErrInvalidSchema)
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("%w: at least one field is required", ErrInvalidSchema)
	}

	seen := make(map[string]bool, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name == "" || !IsValidIdentifier(f.Name) {
			return fmt.Errorf("%w: invalid field name at index %d", ErrInvalidSchema, i)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate field name: %s", ErrInvalidSchema, f.Name)
		}
		seen[f.Name] = true

		if f.Type == "" {
			return fmt.Errorf("%w: field %s has no type", ErrInvalidSchema, f.Name)
		}
		if f.ANN != nil {
			if !strings.HasPrefix(f.Type, "tensor") {
				return fmt.Errorf("%w: ANN index on non-tensor field %s", ErrInvalidSchema, f.Name)
			}
			if f.ANN.MaxLinksPerNode <= 0 || f.ANN.NeighborsToExploreAtInsert <= 0 {
				return fmt.Errorf("%w: field %s requires positive HNSW parameters", ErrInvalidSchema, f.Name)
			}
		}
	}

	for _, fs := range s.FieldSets {
		for _, name := range fs.Fields {
			if !seen[name] {
				return fmt.Errorf("%w: fieldset %s references unknown field %s", ErrInvalidSchema, fs.Name, name)
			}
		}
	}

	profiles := make(map[string]bool, len(s.RankProfiles))
	for i := range s.RankProfiles {
		p := &s.RankProfiles[i]
		if p.Name == "" || !IsValidIdentifier(p.Name) {
			return fmt.Errorf("%w: invalid rank profile name at index %d", ErrInvalidSchema, i)
		}
		if profiles[p.Name] {
			return fmt.Errorf("%w: duplicate rank profile: %s", ErrInvalidSchema, p.Name)
		}
		if p.Inherits != "" && !profiles[p.Inherits] {
			return fmt.Errorf("%w: rank profile %s inherits undefined %s", ErrInvalidSchema, p.Name, p.Inherits)
		}
		if p.RerankCount < 0 {
			return fmt.Errorf("%w: rank profile %s has negative rerank count", ErrInvalidSchema, p.Name)
		}
		profiles[p.Name] = true
	}

	return nil
}

// Field looks up a field by name.
func (s *SchemaDefinition) Field(name string) (*SchemaField, bool) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// Profile looks up a rank profile by name.
func (s *SchemaDefinition) Profile(name string) (*RankProfile, bool) {
	for i := range s.RankProfiles {
		if s.RankProfiles[i].Name == name {
			return &s.RankProfiles[i], true
		}
	}
	return nil, false
}

// IsValidIdentifier returns true if s matches [a-zA-Z0-9_-]+ and starts with a letter.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		isSpecial := r == '_' || r == '-'
		if i == 0 && !isAlpha {
			return false
		}
		if !isAlpha && !isDigit && !isSpecial {
			return false
		}
	}
	return true
}
