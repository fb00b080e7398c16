// Package ecosystem abstracts per-registry knowledge (manifest detection,
// dependency extraction, install-script analysis, malicious-package lookup)
// behind a uniform Analyzer interface, so the resolver and orchestrator stay
// ecosystem-free. Implementations register themselves at startup; the
// registry is read-mostly afterwards.
package ecosystem

import (
	"context"
	"errors"
	"regexp"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/depsentry/depsentry/pkg/findings"
)

// Supported ecosystem names.
const (
	NPM  = "npm"
	PyPI = "pypi"
)

var (
	// ErrManifestNotFound is returned when a directory holds no manifest any
	// registered analyzer recognizes.
	ErrManifestNotFound = errors.New("no supported manifest found")

	// ErrManifestMalformed is returned when a manifest exists but cannot be
	// parsed. Fatal to the caller that passed the manifest.
	ErrManifestMalformed = errors.New("manifest malformed")

	// ErrUnknownEcosystem is returned for lookups of unregistered ecosystems.
	ErrUnknownEcosystem = errors.New("unknown ecosystem")
)

// Dependency is a direct dependency extracted from a manifest.
type Dependency struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Type       string `json:"dependency_type"` // runtime, dev, peer
	SourceFile string `json:"source_file"`
}

// Analyzer is the per-ecosystem capability set.
type Analyzer interface {
	// Name returns the ecosystem identifier ("npm", "pypi").
	Name() string
	// DetectManifests returns the manifest files recognized in dir.
	DetectManifests(dir string) []string
	// ExtractDependencies parses a single manifest into direct dependencies.
	ExtractDependencies(path string) ([]Dependency, error)
	// AnalyzeInstallScripts inspects install-time hooks under dir.
	AnalyzeInstallScripts(ctx context.Context, dir string) []findings.Finding
	// RegistryURL returns the canonical metadata URL for a package name.
	RegistryURL(name string) string
	// MaliciousPatterns returns the severity-partitioned regex bank used for
	// install-script screening. May be empty.
	MaliciousPatterns() map[findings.Severity][]*regexp.Regexp
}

var registry = struct {
	mu    sync.RWMutex
	order []string
	byName map[string]Analyzer
}{byName: make(map[string]Analyzer)}

// Register adds an analyzer to the process-wide registry. Registering the
// same name twice replaces the earlier entry with a warning.
func Register(a Analyzer, logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, exists := registry.byName[a.Name()]; exists {
		logger.Warn("replacing registered ecosystem analyzer", "ecosystem", a.Name())
	} else {
		registry.order = append(registry.order, a.Name())
	}
	registry.byName[a.Name()] = a
}

// Get returns the analyzer registered under name.
func Get(name string) (Analyzer, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	a, ok := registry.byName[name]
	return a, ok
}

// Names returns the registered ecosystem names in registration order.
func Names() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	out := make([]string, len(registry.order))
	copy(out, registry.order)
	return out
}

// Detect probes each registered analyzer in registration order and returns
// the first that finds a manifest in dir, along with the manifests found.
func Detect(dir string) (Analyzer, []string, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	for _, name := range registry.order {
		a := registry.byName[name]
		if manifests := a.DetectManifests(dir); len(manifests) > 0 {
			return a, manifests, nil
		}
	}
	return nil, nil, ErrManifestNotFound
}

// Reset clears the registry. Test helper.
func Reset() {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.order = nil
	registry.byName = make(map[string]Analyzer)
}
