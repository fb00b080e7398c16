package depgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/depsentry/depsentry/pkg/findings"
)

// VersionConflict records a package name required at two or more distinct
// concrete versions, with the root-to-occurrence path of each requirement.
type VersionConflict struct {
	Package             string            `json:"package"`
	ConflictingVersions []string          `json:"conflicting_versions"`
	DependencyPaths     [][]string        `json:"dependency_paths"`
	Severity            findings.Severity `json:"severity"`
	Description         string            `json:"description"`
}

// DetectConflicts walks the tree collecting every version each name is
// required at. A name appearing at two or more distinct versions is a
// conflict; its paths cover every occurrence, conflicting or not.
func (g *Graph) DetectConflicts() []VersionConflict {
	type occurrence struct {
		version string
		path    []string
	}
	byName := make(map[string][]occurrence)
	g.Walk(func(n *Node, path []*Node) {
		if n == g.Root {
			return
		}
		byName[n.Name] = append(byName[n.Name], occurrence{version: n.Version, path: pathIDs(path)})
	})

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []VersionConflict
	for _, name := range names {
		occs := byName[name]
		versions := make(map[string]bool)
		for _, o := range occs {
			versions[o.version] = true
		}
		if len(versions) < 2 {
			continue
		}
		vs := make([]string, 0, len(versions))
		for v := range versions {
			vs = append(vs, v)
		}
		sort.Strings(vs)
		paths := make([][]string, 0, len(occs))
		for _, o := range occs {
			paths = append(paths, o.path)
		}
		out = append(out, VersionConflict{
			Package:             name,
			ConflictingVersions: vs,
			DependencyPaths:     paths,
			Severity:            findings.SeverityMedium,
			Description:         fmt.Sprintf("%s required at %d distinct versions: %s", name, len(vs), strings.Join(vs, ", ")),
		})
	}
	return out
}

// ConflictFindings converts detected conflicts into report findings.
func ConflictFindings(conflicts []VersionConflict) []findings.Finding {
	out := make([]findings.Finding, 0, len(conflicts))
	for _, c := range conflicts {
		evidence := []string{c.Description}
		for _, p := range c.DependencyPaths {
			evidence = append(evidence, "path: "+joinArrow(p))
		}
		out = append(out, findings.Finding{
			Package:    c.Package,
			Version:    strings.Join(c.ConflictingVersions, ", "),
			Type:       findings.TypeVersionConflict,
			Severity:   c.Severity,
			Confidence: 1.0,
			Evidence:   evidence,
			Recommendations: []string{
				fmt.Sprintf("align all requirements of %s on a single version", c.Package),
			},
			Source: "graph_analyzer",
		})
	}
	return out
}
