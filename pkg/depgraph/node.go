// Package depgraph builds and characterizes the typed dependency tree
// produced from resolver output: cycle detection, version conflicts,
// vulnerability impact paths, JSON document emission, and Graphviz
// visualization.
//
// The conceptual dependency graph may contain cycles and diamonds; the
// materialized tree never does. The first occurrence of a name@version is
// fully expanded, every further occurrence is a shallow node flagged
// Circular with no children. This keeps ownership strictly parental and
// serialization finite.
package depgraph

import "fmt"

// Node is one package occurrence in the dependency tree, exclusively owned
// by its parent (the root by the graph).
type Node struct {
	Name      string
	Version   string
	Ecosystem string
	Depth     int
	Circular  bool
	Children  map[string]*Node
}

// ID returns the name@version identity of the node.
func (n *Node) ID() string { return n.Name + "@" + n.Version }

// Graph is a built dependency tree plus its provenance.
type Graph struct {
	Root         *Node
	Ecosystem    string
	ManifestPath string
}

// Walk visits every node in depth-first order, parents before children.
// The path argument holds the ancestor chain including the visited node.
func (g *Graph) Walk(visit func(n *Node, path []*Node)) {
	if g.Root == nil {
		return
	}
	var walk func(n *Node, path []*Node)
	walk = func(n *Node, path []*Node) {
		path = append(path, n)
		visit(n, path)
		for _, name := range sortedKeys(n.Children) {
			walk(n.Children[name], path)
		}
	}
	walk(g.Root, nil)
}

// TotalPackages counts the distinct fully-expanded packages in the tree,
// excluding the synthetic root.
func (g *Graph) TotalPackages() int {
	seen := make(map[string]bool)
	g.Walk(func(n *Node, _ []*Node) {
		if n != g.Root && !n.Circular {
			seen[n.ID()] = true
		}
	})
	return len(seen)
}

func pathIDs(path []*Node) []string {
	out := make([]string, len(path))
	for i, n := range path {
		out[i] = n.ID()
	}
	return out
}

func describeCycle(cycle []string) string {
	return fmt.Sprintf("circular dependency chain: %s", joinArrow(cycle))
}
