package db

import "strings"

// SchemaBuilder is a fluent builder for schema definitions.
type SchemaBuilder struct {
	def SchemaDefinition
}

// NewSchema starts building a schema definition.
func NewSchema(name string) *SchemaBuilder {
	return &SchemaBuilder{def: SchemaDefinition{Name: name}}
}

func (b *SchemaBuilder) add(f SchemaField) *SchemaBuilder {
	b.def.Fields = append(b.def.Fields, f)
	return b
}

// String adds a plain string field.
func (b *SchemaBuilder) String(name string, indexing ...Indexing) *SchemaBuilder {
	return b.add(SchemaField{Name: name, Type: FieldString, Indexing: indexing})
}

// Word adds a string field matched as a single token.
func (b *SchemaBuilder) Word(name string, indexing ...Indexing) *SchemaBuilder {
	return b.add(SchemaField{Name: name, Type: FieldString, Indexing: indexing, Match: MatchWord})
}

// Text adds a tokenized string field scored with BM25.
func (b *SchemaBuilder) Text(name string, indexing ...Indexing) *SchemaBuilder {
	return b.add(SchemaField{Name: name, Type: FieldString, Indexing: indexing, Match: MatchText, BM25: true})
}

// Int adds an integer field.
func (b *SchemaBuilder) Int(name string, indexing ...Indexing) *SchemaBuilder {
	return b.add(SchemaField{Name: name, Type: FieldInt, Indexing: indexing})
}

// Raw adds an opaque bytes field.
func (b *SchemaBuilder) Raw(name string, indexing ...Indexing) *SchemaBuilder {
	return b.add(SchemaField{Name: name, Type: FieldRaw, Indexing: indexing})
}

// TensorHNSW adds an attribute tensor field with an HNSW index.
func (b *SchemaBuilder) TensorHNSW(
	name, tensorType string, distance DistanceMetric, maxLinks, exploreAtInsert int,
) *SchemaBuilder {
	return b.add(SchemaField{
		Name:     name,
		Type:     tensorType,
		Indexing: []Indexing{IndexingAttribute, IndexingIndex},
		ANN: &ANNIndex{
			Distance:                   distance,
			MaxLinksPerNode:            maxLinks,
			NeighborsToExploreAtInsert: exploreAtInsert,
		},
	})
}

// FieldSet adds a named fieldset.
func (b *SchemaBuilder) FieldSet(name string, fields ...string) *SchemaBuilder {
	b.def.FieldSets = append(b.def.FieldSets, FieldSet{Name: name, Fields: fields})
	return b
}

// RankProfile adds a rank profile. Inherited profiles must be added first.
func (b *SchemaBuilder) RankProfile(p RankProfile) *SchemaBuilder {
	b.def.RankProfiles = append(b.def.RankProfiles, p)
	return b
}

// Build validates and returns the schema definition.
func (b *SchemaBuilder) Build() (*SchemaDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	return &b.def, nil
}

// MustBuild calls Build and panics on error.
func (b *SchemaBuilder) MustBuild() *SchemaDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

// String returns a compact debug representation: fields with types, then profiles.
func (s *SchemaDefinition) String() string {
	parts := []string{"schema", s.Name}
	for i := range s.Fields {
		f := &s.Fields[i]
		part := f.Name + ":" + f.Type
		if f.ANN != nil {
			part += "[hnsw," + string(f.ANN.Distance) + "]"
		}
		parts = append(parts, part)
	}
	for i := range s.RankProfiles {
		parts = append(parts, "rank-profile:"+s.RankProfiles[i].Name)
	}
	return strings.Join(parts, " ")
}
