package plan

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kefio/ColPali-Workbench/internal/domain"
	"github.com/kefio/ColPali-Workbench/internal/domain/quantize"
	"github.com/kefio/ColPali-Workbench/internal/domain/search/mode"
)

// Query parameter defaults and limits.
const (
	DefaultHits                = 3
	DefaultTargetHitsPerVector = 20
	DefaultMaxQueryPatches     = 64
	DefaultTimeout             = 120 * time.Second
	MaxQueryLength             = 4096
)

// Tensor input names declared by the rank profiles.
const (
	InputFloat  = "qt"
	InputBinary = "qtb"
	inputANN    = "rq"
)

// DefaultFields is the summary projection of every plan.
var DefaultFields = []string{"title", "url", "image", "page_number"}

// Options tune plan construction. Zero values select defaults.
type Options struct {
	Hits                int
	TargetHitsPerVector int
	MaxQueryPatches     int
	Dim                 int // when positive, every query vector must have this length
	Timeout             time.Duration
	Schema              string
	Fields              []string
}

func (o Options) normalize() Options {
	if o.Hits <= 0 {
		o.Hits = DefaultHits
	}
	if o.TargetHitsPerVector <= 0 {
		o.TargetHitsPerVector = DefaultTargetHitsPerVector
	}
	if o.MaxQueryPatches <= 0 {
		o.MaxQueryPatches = DefaultMaxQueryPatches
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Schema == "" {
		o.Schema = "pdf_page"
	}
	if len(o.Fields) == 0 {
		o.Fields = DefaultFields
	}
	return o
}

// Plan is a self-contained query: it owns copies of every input it carries.
type Plan struct {
	mode       mode.Mode
	yql        string
	userQuery  string
	inputs     map[string]any
	hits       int
	timeout    time.Duration
	predicates int
}

// Build constructs a plan for text and its per-token embedding.
func Build(text string, embedding [][]float32, m mode.Mode, opts Options) (Plan, error) {
	opts = opts.normalize()

	if !m.IsValid() {
		return Plan{}, fmt.Errorf("%w: unknown search mode %q", domain.ErrInvalidRequest, m)
	}
	if len(text) > MaxQueryLength {
		return Plan{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrInvalidRequest, MaxQueryLength)
	}
	if m == mode.Default && strings.TrimSpace(text) == "" {
		return Plan{}, domain.ErrEmptyQuery
	}
	if err := checkEmbedding(embedding, opts.Dim); err != nil {
		return Plan{}, err
	}

	p := Plan{
		mode:    m,
		hits:    opts.Hits,
		timeout: opts.Timeout,
		inputs:  map[string]any{InputFloat: floatTensor(embedding)},
	}
	selectClause := "select " + strings.Join(opts.Fields, ",") + " from " + opts.Schema + " where "

	switch m {
	case mode.Default:
		p.userQuery = text
		p.yql = selectClause + "userInput(@userQuery)"

	case mode.RetrievalAndRerank:
		if len(embedding) > opts.MaxQueryPatches {
			return Plan{}, fmt.Errorf("%w: %d query vectors exceed the profile limit of %d",
				domain.ErrInvalidQueryEmbedding, len(embedding), opts.MaxQueryPatches)
		}
		codes, err := quantize.QuantizeAll(embedding)
		if err != nil {
			return Plan{}, fmt.Errorf("quantize query: %w", err)
		}

		binary := make(map[string][]int8, len(codes))
		terms := make([]string, len(codes))
		for i, c := range codes {
			name := inputANN + strconv.Itoa(i)
			binary[strconv.Itoa(i)] = c.Int8s()
			p.inputs[name] = c.Int8s()
			terms[i] = "({targetHits:" + strconv.Itoa(opts.TargetHitsPerVector) + "}nearestNeighbor(embedding," + name + "))"
		}
		p.inputs[InputBinary] = binary
		p.predicates = len(terms)
		p.yql = selectClause + strings.Join(terms, " OR ")
	}

	return p, nil
}

func checkEmbedding(embedding [][]float32, dim int) error {
	if len(embedding) == 0 {
		return fmt.Errorf("%w: no query vectors", domain.ErrInvalidQueryEmbedding)
	}
	if dim <= 0 {
		return nil
	}
	return domain.QueryEmbedding{Vectors: embedding}.Validate(dim)
}

func floatTensor(embedding [][]float32) map[string][]float32 {
	t := make(map[string][]float32, len(embedding))
	for i, v := range embedding {
		t[strconv.Itoa(i)] = append([]float32(nil), v...)
	}
	return t
}

// Mode returns the retrieval strategy.
func (p *Plan) Mode() mode.Mode { return p.mode }

// YQL returns the query statement.
func (p *Plan) YQL() string { return p.yql }

// Ranking returns the rank profile name.
func (p *Plan) Ranking() string { return p.mode.Profile() }

// UserQuery returns the free-text query bound to @userQuery (Default mode only).
func (p *Plan) UserQuery() string { return p.userQuery }

// Inputs returns the named query tensors, keyed by tensor name.
func (p *Plan) Inputs() map[string]any { return p.inputs }

// Hits returns the result cap enforced by the index.
func (p *Plan) Hits() int { return p.hits }

// Timeout returns the server-side query timeout.
func (p *Plan) Timeout() time.Duration { return p.timeout }

// Predicates returns the number of nearest-neighbor terms in the statement.
func (p *Plan) Predicates() int { return p.predicates }
