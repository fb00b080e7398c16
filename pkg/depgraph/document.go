package depgraph

import (
	"encoding/json"
	"time"
)

// DocNode is the serialized form of a tree node. Repeats of an already
// serialized name@version become shallow circular references so the
// document stays finite for any graph shape.
type DocNode struct {
	Name              string              `json:"name"`
	Version           string              `json:"version"`
	Ecosystem         string              `json:"ecosystem,omitempty"`
	Depth             int                 `json:"depth"`
	Dependencies      map[string]*DocNode `json:"dependencies,omitempty"`
	CircularReference bool                `json:"circular_reference,omitempty"`
}

// DocMetadata carries document provenance and summary counts.
type DocMetadata struct {
	Ecosystem                 string    `json:"ecosystem"`
	ManifestPath              string    `json:"manifest_path,omitempty"`
	TotalPackages             int       `json:"total_packages"`
	CircularDependenciesCount int       `json:"circular_dependencies_count"`
	VersionConflictsCount     int       `json:"version_conflicts_count"`
	GeneratedAt               time.Time `json:"generated_at"`
}

// Document is the full serialized dependency graph with analysis annexes.
type Document struct {
	Name                 string               `json:"name"`
	Version              string               `json:"version"`
	Ecosystem            string               `json:"ecosystem,omitempty"`
	Depth                int                  `json:"depth"`
	Dependencies         map[string]*DocNode  `json:"dependencies"`
	Metadata             DocMetadata          `json:"metadata"`
	CircularDependencies []CircularDependency `json:"circular_dependencies"`
	VersionConflicts     []VersionConflict    `json:"version_conflicts"`
}

// Document serializes the graph. Serialization tracks visited
// name@version identities on its own descent, independent of the flags
// set at build time.
func (g *Graph) Document() *Document {
	doc := &Document{
		Dependencies: make(map[string]*DocNode),
		Metadata: DocMetadata{
			Ecosystem:     g.Ecosystem,
			ManifestPath:  g.ManifestPath,
			TotalPackages: g.TotalPackages(),
			GeneratedAt:   time.Now().UTC(),
		},
		CircularDependencies: g.DetectCycles(),
		VersionConflicts:     g.DetectConflicts(),
	}
	if doc.CircularDependencies == nil {
		doc.CircularDependencies = []CircularDependency{}
	}
	if doc.VersionConflicts == nil {
		doc.VersionConflicts = []VersionConflict{}
	}
	doc.Metadata.CircularDependenciesCount = len(doc.CircularDependencies)
	doc.Metadata.VersionConflictsCount = len(doc.VersionConflicts)
	if g.Root == nil {
		return doc
	}
	doc.Name = g.Root.Name
	doc.Version = g.Root.Version
	doc.Ecosystem = g.Ecosystem
	doc.Depth = 0

	visited := make(map[string]bool)
	for _, name := range sortedKeys(g.Root.Children) {
		doc.Dependencies[name] = docNode(g.Root.Children[name], visited)
	}
	return doc
}

func docNode(n *Node, visited map[string]bool) *DocNode {
	d := &DocNode{
		Name:      n.Name,
		Version:   n.Version,
		Ecosystem: n.Ecosystem,
		Depth:     n.Depth,
	}
	if visited[n.ID()] || n.Circular {
		d.CircularReference = true
		return d
	}
	visited[n.ID()] = true
	if len(n.Children) > 0 {
		d.Dependencies = make(map[string]*DocNode, len(n.Children))
		for _, name := range sortedKeys(n.Children) {
			d.Dependencies[name] = docNode(n.Children[name], visited)
		}
	}
	return d
}

// MarshalJSON is implemented on Graph for convenience so callers can hand
// the graph straight to an encoder.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Document())
}
