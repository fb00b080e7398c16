// Package resolve builds the complete transitive dependency closure of a
// package by parallel breadth-first traversal over registry metadata. Each
// BFS level fans out through a bounded worker pool; fetched metadata is
// cached in-process and as JSON sidecar files on disk.
package resolve

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/depsentry/depsentry/pkg/ecosystem"
	"github.com/depsentry/depsentry/pkg/integrations"
	"github.com/depsentry/depsentry/pkg/integrations/npm"
	"github.com/depsentry/depsentry/pkg/integrations/pypi"
)

// Defaults for traversal shape and metadata caching.
const (
	DefaultMaxDepth = 10
	DefaultWorkers  = 10
	DefaultCacheTTL = 5 * time.Hour
)

// Resolved pairs fetched metadata with the shallowest depth at which the
// package was reached.
type Resolved struct {
	Metadata integrations.PackageMetadata `json:"metadata"`
	Depth    int                          `json:"depth"`
}

// Options configures a Resolver.
type Options struct {
	MaxDepth int
	Workers  int
	// CacheDir holds the JSON sidecar files; empty disables disk caching.
	CacheDir string
	CacheTTL time.Duration
	Logger   *log.Logger
	// NPM and PyPI override the registry clients (tests use httptest-backed
	// clients); nil selects the public registries.
	NPM  *npm.Client
	PyPI *pypi.Client
}

// Resolver fetches transitive dependency closures. Safe for concurrent use.
type Resolver struct {
	npm      *npm.Client
	pypi     *pypi.Client
	disk     *diskCache
	logger   *log.Logger
	maxDepth int
	workers  int

	mu   sync.Mutex
	memo map[string]*integrations.PackageMetadata
}

// New creates a Resolver. Disk cache initialization failure disables the
// sidecar layer with a warning rather than failing construction.
func New(opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	r := &Resolver{
		npm:      opts.NPM,
		pypi:     opts.PyPI,
		logger:   logger,
		maxDepth: opts.MaxDepth,
		workers:  opts.Workers,
		memo:     make(map[string]*integrations.PackageMetadata),
	}
	if r.npm == nil {
		r.npm = npm.NewClient()
	}
	if r.pypi == nil {
		r.pypi = pypi.NewClient()
	}
	if r.maxDepth <= 0 {
		r.maxDepth = DefaultMaxDepth
	}
	if r.workers <= 0 {
		r.workers = DefaultWorkers
	}
	if opts.CacheDir != "" {
		ttl := opts.CacheTTL
		if ttl <= 0 {
			ttl = DefaultCacheTTL
		}
		disk, err := newDiskCache(opts.CacheDir, ttl)
		if err != nil {
			logger.Warn("metadata disk cache disabled", "dir", opts.CacheDir, "err", err)
		} else {
			r.disk = disk
		}
	}
	return r
}

type workItem struct {
	name    string
	version string
	depth   int
}

// Resolve returns every package reachable from (name, version) keyed
// "name@version" with concrete versions, each at its shallowest depth.
// Failures on individual packages are logged and their subtrees skipped;
// only cancellation aborts the traversal, returning the partial closure
// alongside the context error.
func (r *Resolver) Resolve(ctx context.Context, name, version, eco string) (map[string]Resolved, error) {
	if eco != ecosystem.NPM && eco != ecosystem.PyPI {
		return nil, fmt.Errorf("%w: %s", ecosystem.ErrUnknownEcosystem, eco)
	}

	visited := make(map[string]bool)
	tree := make(map[string]Resolved)
	level := []workItem{{name: name, version: ResolveVersionSpec(version), depth: 0}}
	var mu sync.Mutex

	for len(level) > 0 {
		var next []workItem

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.workers)
		for _, it := range level {
			if it.depth > r.maxDepth || visited[it.name+"@"+it.version] {
				continue
			}
			visited[it.name+"@"+it.version] = true

			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				m, err := r.fetchMetadata(gctx, it.name, it.version, eco)
				if err != nil {
					r.logger.Warn("skipping unresolvable package", "package", it.name, "version", it.version, "err", err)
					return nil
				}

				mu.Lock()
				defer mu.Unlock()
				key := m.Name + "@" + m.Version
				if _, dup := tree[key]; dup {
					return nil
				}
				tree[key] = Resolved{Metadata: *m, Depth: it.depth}
				for dep, spec := range m.Dependencies {
					next = append(next, workItem{name: dep, version: ResolveVersionSpec(spec), depth: it.depth + 1})
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return tree, err
		}
		level = next
	}
	return tree, nil
}

// fetchMetadata consults the in-process memo, the disk sidecar, and finally
// the registry.
func (r *Resolver) fetchMetadata(ctx context.Context, name, version, eco string) (*integrations.PackageMetadata, error) {
	memoKey := eco + ":" + name + "@" + version
	r.mu.Lock()
	if m, ok := r.memo[memoKey]; ok {
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()

	if r.disk != nil {
		var m integrations.PackageMetadata
		if r.disk.get(eco, name, version, &m) {
			r.remember(memoKey, &m)
			return &m, nil
		}
	}

	m, err := r.fetchRemote(ctx, name, version, eco)
	if err != nil {
		return nil, err
	}
	if r.disk != nil {
		r.disk.put(eco, name, version, m)
	}
	r.remember(memoKey, m)
	return m, nil
}

func (r *Resolver) fetchRemote(ctx context.Context, name, version, eco string) (*integrations.PackageMetadata, error) {
	switch eco {
	case ecosystem.NPM:
		if version == Latest {
			return r.npm.FetchLatest(ctx, name)
		}
		return r.npm.FetchVersion(ctx, name, version)
	default:
		if version == Latest {
			return r.pypi.FetchLatest(ctx, name)
		}
		return r.pypi.FetchVersion(ctx, name, version)
	}
}

func (r *Resolver) remember(key string, m *integrations.PackageMetadata) {
	r.mu.Lock()
	r.memo[key] = m
	r.mu.Unlock()
}
