package vespa

import (
	"fmt"
	"strings"

	"github.com/kefio/ColPali-Workbench/internal/db"
)

// RenderSchema renders a schema definition as a .sd file.
func RenderSchema(def *db.SchemaDefinition) (string, error) {
	if err := def.Validate(); err != nil {
		return "", err
	}

	w := &sdWriter{}
	w.open("schema %s", def.Name)
	w.open("document %s", def.Name)
	for i := range def.Fields {
		writeField(w, &def.Fields[i])
	}
	w.close()

	for _, fs := range def.FieldSets {
		w.open("fieldset %s", fs.Name)
		w.line("fields: %s", strings.Join(fs.Fields, ", "))
		w.close()
	}

	for i := range def.RankProfiles {
		writeProfile(w, &def.RankProfiles[i])
	}
	w.close()

	return w.String(), nil
}

func writeField(w *sdWriter, f *db.SchemaField) {
	w.open("field %s type %s", f.Name, f.Type)
	if len(f.Indexing) > 0 {
		steps := make([]string, len(f.Indexing))
		for i, s := range f.Indexing {
			steps[i] = string(s)
		}
		w.line("indexing: %s", strings.Join(steps, " | "))
	}
	if f.Match != "" {
		w.open("match")
		w.line("%s", f.Match)
		w.close()
	}
	if f.BM25 {
		w.line("index: enable-bm25")
	}
	if f.ANN != nil {
		w.open("attribute")
		w.line("distance-metric: %s", f.ANN.Distance)
		w.close()
		w.open("index")
		w.open("hnsw")
		w.line("max-links-per-node: %d", f.ANN.MaxLinksPerNode)
		w.line("neighbors-to-explore-at-insert: %d", f.ANN.NeighborsToExploreAtInsert)
		w.close()
		w.close()
	}
	w.close()
}

func writeProfile(w *sdWriter, p *db.RankProfile) {
	if p.Inherits != "" {
		w.open("rank-profile %s inherits %s", p.Name, p.Inherits)
	} else {
		w.open("rank-profile %s", p.Name)
	}
	if len(p.Inputs) > 0 {
		w.open("inputs")
		for _, in := range p.Inputs {
			w.line("%s %s", in.Name, in.Type)
		}
		w.close()
	}
	for _, fn := range p.Functions {
		w.open("function %s()", fn.Name)
		w.open("expression")
		for _, l := range strings.Split(strings.TrimSpace(fn.Expression), "\n") {
			w.line("%s", strings.TrimSpace(l))
		}
		w.close()
		w.close()
	}
	if p.FirstPhase != "" {
		w.open("first-phase")
		w.line("expression: %s", p.FirstPhase)
		w.close()
	}
	if p.SecondPhase != "" {
		w.open("second-phase")
		if p.RerankCount > 0 {
			w.line("rerank-count: %d", p.RerankCount)
		}
		w.line("expression: %s", p.SecondPhase)
		w.close()
	}
	w.close()
}

// sdWriter emits brace-delimited blocks with four-space indentation.
type sdWriter struct {
	b     strings.Builder
	depth int
}

func (w *sdWriter) line(format string, args ...any) {
	w.b.WriteString(strings.Repeat("    ", w.depth))
	fmt.Fprintf(&w.b, format, args...)
	w.b.WriteByte('\n')
}

func (w *sdWriter) open(format string, args ...any) {
	w.line(format+" {", args...)
	w.depth++
}

func (w *sdWriter) close() {
	w.depth--
	w.line("}")
}

func (w *sdWriter) String() string { return w.b.String() }
