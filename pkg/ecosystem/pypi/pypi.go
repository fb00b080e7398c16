// Package pypi implements the PyPI ecosystem analyzer: requirements.txt,
// setup.py, and pyproject.toml manifest parsing, install-script screening
// with an optional LLM verdict layer, and registry URL composition.
//
// setup.py handling is strictly syntactic: the file is scanned as text and
// never executed; any file that cannot be parsed yields a logged warning
// and an empty dependency list.
package pypi

import (
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/depsentry/depsentry/pkg/cache"
	"github.com/depsentry/depsentry/pkg/ecosystem"
	"github.com/depsentry/depsentry/pkg/integrations"
	"github.com/depsentry/depsentry/pkg/llm"
)

// manifestNames are the files this analyzer recognizes, in probe order.
var manifestNames = []string{"requirements.txt", "setup.py", "pyproject.toml"}

// Analyzer implements ecosystem.Analyzer for PyPI.
type Analyzer struct {
	logger  *log.Logger
	cache   *cache.Cache
	verdict llm.Analyzer // nil disables the LLM layer
}

// Options configures the PyPI analyzer.
type Options struct {
	// Cache holds LLM verdicts; nil disables verdict caching (and with it
	// the cache-first discipline, so only tests should pass nil).
	Cache *cache.Cache
	// LLM produces script verdicts. nil degrades analysis to pattern-only.
	LLM llm.Analyzer
	// Logger defaults to log.Default().
	Logger *log.Logger
}

// New creates the PyPI analyzer.
func New(opts Options) *Analyzer {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Analyzer{logger: logger, cache: opts.Cache, verdict: opts.LLM}
}

func (a *Analyzer) Name() string { return ecosystem.PyPI }

// DetectManifests returns the recognized manifest files present in dir.
func (a *Analyzer) DetectManifests(dir string) []string {
	var found []string
	for _, name := range manifestNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			found = append(found, path)
		}
	}
	return found
}

// RegistryURL returns the canonical PyPI JSON metadata URL for name.
func (a *Analyzer) RegistryURL(name string) string {
	return "https://pypi.org/pypi/" + integrations.NormalizePkgName(name) + "/json"
}

// ProjectName returns the project's declared name: the [project] table of
// pyproject.toml or the name= argument of setup(). requirements.txt
// carries no name, so it yields "".
func (a *Analyzer) ProjectName(path string) string {
	switch filepath.Base(path) {
	case "setup.py":
		src, err := os.ReadFile(path)
		if err != nil {
			return ""
		}
		return setupPackageName(src, "")
	case "pyproject.toml":
		return pyprojectName(path)
	default:
		return ""
	}
}

// ExtractDependencies parses a single manifest into direct dependencies,
// dispatching on the file name.
func (a *Analyzer) ExtractDependencies(path string) ([]ecosystem.Dependency, error) {
	switch filepath.Base(path) {
	case "requirements.txt":
		return a.parseRequirements(path)
	case "setup.py":
		return a.parseSetupPy(path), nil
	case "pyproject.toml":
		return a.parsePyproject(path)
	default:
		return a.parseRequirements(path)
	}
}
