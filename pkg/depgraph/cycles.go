package depgraph

import (
	"sort"
	"strings"

	"github.com/depsentry/depsentry/pkg/findings"
)

// CircularDependency is one detected cycle, reported as the chain of
// package names with the starting name repeated at the end.
type CircularDependency struct {
	Cycle       []string          `json:"cycle"`
	Severity    findings.Severity `json:"severity"`
	Description string            `json:"description"`
}

// DetectCycles finds name-level cycles by depth-first search with an
// explicit recursion stack. Cycles reached from multiple entry points are
// reported once, keyed by their participating name set.
func (g *Graph) DetectCycles() []CircularDependency {
	if g.Root == nil {
		return nil
	}
	var (
		out  []CircularDependency
		seen = make(map[string]bool)
	)
	var stack []string
	onStack := make(map[string]int)

	var walk func(n *Node)
	walk = func(n *Node) {
		if i, ok := onStack[n.Name]; ok {
			cycle := append(append([]string(nil), stack[i:]...), n.Name)
			key := cycleKey(cycle)
			if !seen[key] {
				seen[key] = true
				out = append(out, CircularDependency{
					Cycle:       cycle,
					Severity:    findings.SeverityMedium,
					Description: describeCycle(cycle),
				})
			}
			return
		}
		onStack[n.Name] = len(stack)
		stack = append(stack, n.Name)
		for _, name := range sortedKeys(n.Children) {
			walk(n.Children[name])
		}
		stack = stack[:len(stack)-1]
		delete(onStack, n.Name)
	}
	for _, name := range sortedKeys(g.Root.Children) {
		walk(g.Root.Children[name])
	}
	return out
}

// Findings converts detected cycles into report findings.
func CycleFindings(cycles []CircularDependency) []findings.Finding {
	out := make([]findings.Finding, 0, len(cycles))
	for _, c := range cycles {
		pkg := ""
		if len(c.Cycle) > 0 {
			pkg = c.Cycle[0]
		}
		out = append(out, findings.Finding{
			Package:    pkg,
			Version:    "*",
			Type:       findings.TypeCircularDependency,
			Severity:   c.Severity,
			Confidence: 1.0,
			Evidence:   []string{c.Description},
			Recommendations: []string{
				"break the cycle by extracting the shared interface into a separate package",
			},
			Source: "graph_analyzer",
		})
	}
	return out
}

// cycleKey identifies a cycle by its sorted set of distinct names so the
// same loop entered at different points deduplicates.
func cycleKey(cycle []string) string {
	names := append([]string(nil), cycle...)
	if len(names) > 1 {
		names = names[:len(names)-1]
	}
	sort.Strings(names)
	return strings.Join(names, "\x00")
}

func joinArrow(parts []string) string {
	return strings.Join(parts, " -> ")
}
