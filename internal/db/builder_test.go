package db

import (
	"errors"
	"strings"
	"testing"
)

func TestSchemaBuilder_Simple(t *testing.T) {
	s := NewSchema("docs").
		Word("id", IndexingSummary, IndexingIndex).
		Text("title", IndexingSummary, IndexingIndex).
		Int("page_number", IndexingSummary, IndexingAttribute).
		MustBuild()

	if s.Name != "docs" {
		t.Errorf("name = %q, want docs", s.Name)
	}
	if len(s.Fields) != 3 {
		t.Fatalf("fields count = %d, want 3", len(s.Fields))
	}
	if s.Fields[0].Match != MatchWord || s.Fields[0].Type != FieldString {
		t.Errorf("field[0] = %+v, want word string", s.Fields[0])
	}
	if !s.Fields[1].BM25 || s.Fields[1].Match != MatchText {
		t.Errorf("field[1] = %+v, want bm25 text", s.Fields[1])
	}
	if s.Fields[2].Type != FieldInt {
		t.Errorf("field[2].Type = %q, want int", s.Fields[2].Type)
	}
}

func TestSchemaBuilder_TensorHNSW(t *testing.T) {
	s := NewSchema("pages").
		TensorHNSW("embedding", "tensor<int8>(patch{}, v[16])", DistanceHamming, 32, 400).
		MustBuild()

	f, ok := s.Field("embedding")
	if !ok {
		t.Fatal("embedding field missing")
	}
	if f.ANN == nil {
		t.Fatal("expected ANN index")
	}
	if f.ANN.Distance != DistanceHamming {
		t.Errorf("distance = %q, want hamming", f.ANN.Distance)
	}
	if f.ANN.MaxLinksPerNode != 32 || f.ANN.NeighborsToExploreAtInsert != 400 {
		t.Errorf("hnsw = %+v, want 32/400", f.ANN)
	}
	if len(f.Indexing) != 2 || f.Indexing[0] != IndexingAttribute || f.Indexing[1] != IndexingIndex {
		t.Errorf("indexing = %v", f.Indexing)
	}
}

func TestSchemaBuilder_RankProfiles(t *testing.T) {
	s := NewSchema("pages").
		Text("title", IndexingIndex).
		RankProfile(RankProfile{Name: "default", FirstPhase: "bm25(title)"}).
		RankProfile(RankProfile{Name: "rerank", Inherits: "default", SecondPhase: "x", RerankCount: 10}).
		MustBuild()

	p, ok := s.Profile("rerank")
	if !ok || p.Inherits != "default" || p.RerankCount != 10 {
		t.Errorf("Profile(rerank) = %+v, %v", p, ok)
	}
	if _, ok := s.Profile("missing"); ok {
		t.Error("unexpected profile")
	}
}

func TestSchemaDefinition_Validate(t *testing.T) {
	tests := []struct {
		name string
		b    *SchemaBuilder
	}{
		{"empty name", NewSchema("").String("a")},
		{"bad name", NewSchema("my schema").String("a")},
		{"no fields", NewSchema("s")},
		{"duplicate field", NewSchema("s").String("a").Int("a")},
		{"ann on scalar", &SchemaBuilder{def: SchemaDefinition{Name: "s", Fields: []SchemaField{
			{Name: "v", Type: FieldString, ANN: &ANNIndex{MaxLinksPerNode: 1, NeighborsToExploreAtInsert: 1}},
		}}}},
		{"zero hnsw", NewSchema("s").TensorHNSW("v", "tensor<int8>(x[2])", DistanceHamming, 0, 400)},
		{"fieldset unknown field", NewSchema("s").String("a").FieldSet("default", "b")},
		{"inherits undefined", NewSchema("s").String("a").RankProfile(RankProfile{Name: "p", Inherits: "q"})},
		{"duplicate profile", NewSchema("s").String("a").
			RankProfile(RankProfile{Name: "p"}).RankProfile(RankProfile{Name: "p"})},
		{"negative rerank", NewSchema("s").String("a").RankProfile(RankProfile{Name: "p", RerankCount: -1})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.b.Build()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidSchema) {
				t.Errorf("err = %v, want ErrInvalidSchema", err)
			}
		})
	}
}

func TestSchemaBuilder_MustBuildPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic")
		}
	}()
	NewSchema("").MustBuild()
}

func TestSchemaDefinition_String(t *testing.T) {
	s := NewSchema("pages").
		Word("id", IndexingSummary).
		TensorHNSW("embedding", "tensor<int8>(patch{}, v[16])", DistanceHamming, 32, 400).
		RankProfile(RankProfile{Name: "default"}).
		MustBuild()

	str := s.String()
	for _, want := range []string{"schema pages", "id:string", "embedding:tensor<int8>(patch{}, v[16])[hnsw,hamming]", "rank-profile:default"} {
		if !strings.Contains(str, want) {
			t.Errorf("String() = %q, missing %q", str, want)
		}
	}
}

func TestIsValidIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"pdf_page", true},
		{"retrieval-and-rerank", true},
		{"", false},
		{"1abc", false},
		{"a b", false},
		{"a.b", false},
	}
	for _, tt := range tests {
		if got := IsValidIdentifier(tt.in); got != tt.want {
			t.Errorf("IsValidIdentifier(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestError_StatusCode(t *testing.T) {
	err := &Error{Op: OpPut, StatusCode: 400, Err: ErrUnexpectedStatus}
	if err.Error() != "document.put: status 400: db: unexpected status" {
		t.Errorf("Error() = %q", err.Error())
	}
	if StatusCode(err) != 400 {
		t.Errorf("StatusCode() = %d", StatusCode(err))
	}
	if StatusCode(errors.New("x")) != 0 {
		t.Error("StatusCode of plain error should be 0")
	}
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Error("Unwrap chain broken")
	}
}
