package page

import (
	"fmt"
	"strconv"

	"github.com/kefio/ColPali-Workbench/internal/db"
	"github.com/kefio/ColPali-Workbench/internal/domain"
)

// Rank profile names; they match the search modes.
const (
	ProfileDefault            = "default"
	ProfileRetrievalAndRerank = "retrieval-and-rerank"
)

const maxSimExpr = `sum(
    reduce(
        sum(
            query(qt) * unpack_bits(attribute(embedding)), v
        ),
        max, patch
    ),
    querytoken
)`

const maxSimBinaryExpr = `sum(
    reduce(
        1 / (1 + sum(
            hamming(query(qtb), attribute(embedding)), v
        )),
        max, patch
    ),
    querytoken
)`

// Schema builds the page schema: per-page fields, a binary patch tensor under
// a hamming HNSW index, and the two rank profiles used by the search modes.
func Schema(cfg domain.SchemaConfig) (*db.SchemaDefinition, error) {
	if cfg.PatchDim <= 0 || cfg.PatchDim%8 != 0 {
		return nil, fmt.Errorf("patch dim %d is not a positive multiple of 8", cfg.PatchDim)
	}
	codeBytes := strconv.Itoa(cfg.CodeBytes())
	floatType := "tensor<float>(querytoken{}, v[" + strconv.Itoa(cfg.PatchDim) + "])"
	binaryType := "tensor<int8>(querytoken{}, v[" + codeBytes + "])"

	ann := make([]db.RankInput, 0, cfg.MaxQueryPatches+2)
	for i := 0; i < cfg.MaxQueryPatches; i++ {
		ann = append(ann, db.RankInput{Name: "query(rq" + strconv.Itoa(i) + ")", Type: "tensor<int8>(v[" + codeBytes + "])"})
	}
	ann = append(ann,
		db.RankInput{Name: "query(qtb)", Type: binaryType},
		db.RankInput{Name: "query(qt)", Type: floatType},
	)

	return db.NewSchema(cfg.Schema).
		Word("id", db.IndexingSummary, db.IndexingIndex).
		String("url", db.IndexingSummary, db.IndexingIndex).
		Text("title", db.IndexingSummary, db.IndexingIndex).
		Int("page_number", db.IndexingSummary, db.IndexingAttribute).
		Raw("image", db.IndexingSummary).
		Text("text", db.IndexingIndex).
		TensorHNSW("embedding", "tensor<int8>(patch{}, v["+codeBytes+"])",
			db.DistanceHamming, cfg.MaxLinksPerNode, cfg.ExploreAtInsert).
		FieldSet("default", "title", "text").
		RankProfile(db.RankProfile{
			Name:   ProfileDefault,
			Inputs: []db.RankInput{{Name: "query(qt)", Type: floatType}},
			Functions: []db.RankFunction{
				{Name: "max_sim", Expression: maxSimExpr},
				{Name: "bm25_score", Expression: "bm25(title) + bm25(text)"},
			},
			FirstPhase:  "bm25_score",
			SecondPhase: "max_sim",
			RerankCount: cfg.RerankCount,
		}).
		RankProfile(db.RankProfile{
			Name:        ProfileRetrievalAndRerank,
			Inherits:    ProfileDefault,
			Inputs:      ann,
			Functions:   []db.RankFunction{{Name: "max_sim_binary", Expression: maxSimBinaryExpr}},
			FirstPhase:  "max_sim_binary",
			SecondPhase: "max_sim",
			RerankCount: cfg.RerankCount,
		}).
		Build()
}
