package depgraph

import (
	"context"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/depsentry/depsentry/pkg/ecosystem"
	"github.com/depsentry/depsentry/pkg/resolve"
)

// Builder assembles a Graph from direct dependencies and the resolver's
// flattened closure.
type Builder struct {
	resolver *resolve.Resolver
	maxDepth int
	logger   *log.Logger
}

// NewBuilder returns a Builder. A nil resolver yields graphs containing
// only the direct dependencies.
func NewBuilder(r *resolve.Resolver, maxDepth int, logger *log.Logger) *Builder {
	if maxDepth <= 0 {
		maxDepth = resolve.DefaultMaxDepth
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Builder{resolver: r, maxDepth: maxDepth, logger: logger}
}

// Build resolves every direct dependency transitively and assembles the
// tree. Resolution failures for individual packages degrade that subtree
// to a leaf rather than failing the build; a context cancellation is
// returned alongside the partial graph.
func (b *Builder) Build(ctx context.Context, rootName, manifestPath, eco string, direct []ecosystem.Dependency) (*Graph, error) {
	root := &Node{
		Name:     rootName,
		Version:  "*",
		Depth:    0,
		Children: make(map[string]*Node),
	}
	g := &Graph{Root: root, Ecosystem: eco, ManifestPath: manifestPath}

	flat := make(map[string]resolve.Resolved)
	var buildErr error
	for _, dep := range direct {
		if b.resolver != nil {
			closure, err := b.resolver.Resolve(ctx, dep.Name, dep.Version, eco)
			for k, v := range closure {
				if _, ok := flat[k]; !ok {
					flat[k] = v
				}
			}
			if err != nil {
				if ctx.Err() != nil {
					buildErr = err
					break
				}
				b.logger.Warn("resolution incomplete", "package", dep.Name, "error", err)
			}
		}
	}

	expanded := make(map[string]bool)
	for _, dep := range direct {
		child := b.attach(eco, dep.Name, dep.Version, 1, flat, expanded)
		root.Children[child.Name] = child
	}
	return g, buildErr
}

// attach creates the node for name@spec and recursively expands its
// children from the flattened closure. Any repeat of an already-expanded
// name@version becomes a shallow circular node.
func (b *Builder) attach(eco, name, spec string, depth int, flat map[string]resolve.Resolved, expanded map[string]bool) *Node {
	version, deps := lookupResolved(name, spec, flat)
	node := &Node{
		Name:      name,
		Version:   version,
		Ecosystem: eco,
		Depth:     depth,
		Children:  make(map[string]*Node),
	}
	if expanded[node.ID()] {
		node.Circular = true
		return node
	}
	expanded[node.ID()] = true
	if depth >= b.maxDepth {
		return node
	}
	for _, childName := range sortedDepNames(deps) {
		child := b.attach(eco, childName, deps[childName], depth+1, flat, expanded)
		node.Children[childName] = child
	}
	return node
}

// lookupResolved maps a version spec onto the concrete version the
// resolver fetched. When the spec does not pin an exact version the match
// falls back to any resolved entry for the name, smallest version first
// for determinism.
func lookupResolved(name, spec string, flat map[string]resolve.Resolved) (string, map[string]string) {
	rv := resolve.ResolveVersionSpec(spec)
	if rv != resolve.Latest {
		if r, ok := flat[name+"@"+rv]; ok {
			return r.Metadata.Version, r.Metadata.Dependencies
		}
	}
	var versions []string
	for key := range flat {
		// Scoped npm names contain "@"; split at the last one.
		if i := strings.LastIndex(key, "@"); i > 0 && key[:i] == name {
			versions = append(versions, key[i+1:])
		}
	}
	if len(versions) == 0 {
		if rv == resolve.Latest {
			return spec, nil
		}
		return rv, nil
	}
	sort.Strings(versions)
	r := flat[name+"@"+versions[0]]
	return r.Metadata.Version, r.Metadata.Dependencies
}

func sortedDepNames(deps map[string]string) []string {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeys(m map[string]*Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
