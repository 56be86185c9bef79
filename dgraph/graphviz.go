package dgraph

import (
	"fmt"

	"github.com/spf13/afero"
)

// Graphviz renders the graph in DOT format. Vertex labels are the raw
// integer id; callers that want human-meaningful labels (eg system
// dependency keys) should post-process the output or use Labeled below.
func (g *Graph) Graphviz(name string) string {
	return g.Labeled(name, nil)
}

// Labeled renders the graph in DOT format, using label(v) for each vertex's
// display text when label is non-nil, falling back to the raw id otherwise.
func (g *Graph) Labeled(name string, label func(VertexID) string) string {
	if label == nil {
		label = func(v VertexID) string { return fmt.Sprintf("%d", v) }
	}
	out := fmt.Sprintf("digraph %s {\n", name)
	for _, v := range g.Vertices() {
		out += fmt.Sprintf("\t%d [label=%q];\n", v, label(v))
	}
	for _, e := range g.Edges() {
		out += fmt.Sprintf("\t%d -> %d;\n", e.From, e.To)
	}
	out += "}\n"
	return out
}

// WriteGraphviz renders the graph and writes it to path on fs. Using an
// afero.Fs instead of the os package directly keeps this testable against an
// in-memory filesystem while still working unmodified against the real one
// (afero.NewOsFs()) from a CLI.
func (g *Graph) WriteGraphviz(fs afero.Fs, path, name string) error {
	return afero.WriteFile(fs, path, []byte(g.Graphviz(name)), 0o644)
}
