package depgraph

// TraceImpact returns every root-to-occurrence path for the named package,
// each path a chain of name@version identifiers starting at the root.
// A package reachable through several parents yields one path per route.
func (g *Graph) TraceImpact(name string) [][]string {
	var paths [][]string
	g.Walk(func(n *Node, path []*Node) {
		if n.Name == name && n != g.Root {
			paths = append(paths, pathIDs(path))
		}
	})
	return paths
}
