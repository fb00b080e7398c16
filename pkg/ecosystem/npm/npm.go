// Package npm implements the npm ecosystem analyzer: package.json manifest
// parsing, lifecycle install-script screening, and registry URL composition.
package npm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/depsentry/depsentry/pkg/ecosystem"
	"github.com/depsentry/depsentry/pkg/integrations/npm"
)

// Analyzer implements ecosystem.Analyzer for npm.
type Analyzer struct {
	logger *log.Logger
}

// New creates the npm analyzer.
func New(logger *log.Logger) *Analyzer {
	if logger == nil {
		logger = log.Default()
	}
	return &Analyzer{logger: logger}
}

func (a *Analyzer) Name() string { return ecosystem.NPM }

// DetectManifests returns the package.json in dir, if present.
func (a *Analyzer) DetectManifests(dir string) []string {
	path := filepath.Join(dir, "package.json")
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return []string{path}
	}
	return nil
}

// RegistryURL returns the canonical npm metadata URL; the leading @ of
// scoped names is percent-encoded.
func (a *Analyzer) RegistryURL(name string) string {
	return npm.DefaultBaseURL + "/" + npm.EscapeName(name)
}

// ProjectName returns the name declared in package.json, or "" when the
// manifest is unreadable or unnamed.
func (a *Analyzer) ProjectName(path string) string {
	pkg, err := readPackageFile(path)
	if err != nil {
		return ""
	}
	return pkg.Name
}

type packageFile struct {
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	Dependencies     map[string]string `json:"dependencies"`
	DevDependencies  map[string]string `json:"devDependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
	Scripts          map[string]string `json:"scripts"`
}

// ExtractDependencies parses package.json into direct dependencies, tagged
// with their dependency type (runtime, dev, peer).
func (a *Analyzer) ExtractDependencies(path string) ([]ecosystem.Dependency, error) {
	pkg, err := readPackageFile(path)
	if err != nil {
		return nil, err
	}

	var deps []ecosystem.Dependency
	add := func(m map[string]string, depType string) {
		for name, spec := range m {
			deps = append(deps, ecosystem.Dependency{
				Name:       name,
				Version:    spec,
				Type:       depType,
				SourceFile: path,
			})
		}
	}
	add(pkg.Dependencies, "runtime")
	add(pkg.DevDependencies, "dev")
	add(pkg.PeerDependencies, "peer")
	return deps, nil
}

func readPackageFile(path string) (*packageFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ecosystem.ErrManifestNotFound, path)
		}
		return nil, err
	}
	var pkg packageFile
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ecosystem.ErrManifestMalformed, path, err)
	}
	return &pkg, nil
}
