package depgraph

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
)

// DefaultVisualizeDepth bounds the tree levels included in a rendered
// diagram. Deep closures produce unreadable diagrams well before they
// produce slow ones.
const DefaultVisualizeDepth = 3

// VisualizeOptions configures DOT emission.
type VisualizeOptions struct {
	// MaxDepth limits the node depth included in the diagram.
	// Zero means DefaultVisualizeDepth.
	MaxDepth int
	// Annotate appends cycle and conflict summaries as trailing comments.
	Annotate bool
}

// ToDOT converts the dependency tree to Graphviz DOT format. Nodes are
// labeled name@version; circular occurrences get a dashed grey outline.
// The resulting string can be rendered with [RenderSVG].
func (g *Graph) ToDOT(opts VisualizeOptions) string {
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultVisualizeDepth
	}

	var buf bytes.Buffer
	buf.WriteString("digraph dependencies {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	type edge struct{ from, to string }
	var edges []edge
	emitted := make(map[string]bool)
	g.Walk(func(n *Node, path []*Node) {
		if n.Depth > maxDepth {
			return
		}
		id := n.ID()
		if !emitted[id] {
			emitted[id] = true
			attrs := fmt.Sprintf("label=%q", id)
			if n.Circular {
				attrs += `, style="rounded,filled,dashed", fillcolor=lightgrey`
			}
			fmt.Fprintf(&buf, "  %q [%s];\n", id, attrs)
		}
		if len(path) >= 2 {
			edges = append(edges, edge{from: path[len(path)-2].ID(), to: id})
		}
	})

	buf.WriteString("\n")
	seen := make(map[edge]bool)
	for _, e := range edges {
		if seen[e] {
			continue
		}
		seen[e] = true
		fmt.Fprintf(&buf, "  %q -> %q;\n", e.from, e.to)
	}

	if opts.Annotate {
		buf.WriteString("\n")
		for _, c := range g.DetectCycles() {
			fmt.Fprintf(&buf, "  // cycle: %s\n", joinArrow(c.Cycle))
		}
		for _, c := range g.DetectConflicts() {
			fmt.Fprintf(&buf, "  // conflict: %s\n", c.Description)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

// RenderSVG renders a DOT graph to SVG bytes using Graphviz.
func RenderSVG(dot string) ([]byte, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	parsed, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer parsed.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, parsed, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
