package pypi

import (
	"os"
	"regexp"
	"strings"

	"github.com/depsentry/depsentry/pkg/ecosystem"
	"github.com/depsentry/depsentry/pkg/integrations"
)

var (
	installRequiresRE = regexp.MustCompile(`(?s)install_requires\s*=\s*\[(.*?)\]`)
	setupRequiresRE   = regexp.MustCompile(`setup_requires\s*=`)
	cmdclassRE        = regexp.MustCompile(`cmdclass\s*=`)
	setupNameRE       = regexp.MustCompile(`(?m)\bname\s*=\s*['"]([^'"]+)['"]`)
	quotedStringRE    = regexp.MustCompile(`['"]([^'"]+)['"]`)
)

// parseSetupPy extracts install_requires entries from a setup.py by lexical
// scan. The file is never executed. Any read failure or unrecognized layout
// yields a logged warning and an empty list, never an error: third-party
// setup.py files are arbitrarily creative and must not abort an audit.
func (a *Analyzer) parseSetupPy(path string) []ecosystem.Dependency {
	src, err := os.ReadFile(path)
	if err != nil {
		a.logger.Warn("cannot read setup.py", "path", path, "err", err)
		return nil
	}

	m := installRequiresRE.FindSubmatch(src)
	if m == nil {
		a.logger.Debug("no install_requires list found", "path", path)
		return nil
	}

	seen := make(map[string]bool)
	var deps []ecosystem.Dependency
	for _, q := range quotedStringRE.FindAllSubmatch(m[1], -1) {
		req := strings.TrimSpace(string(q[1]))
		rm := requirementRE.FindStringSubmatch(req)
		if rm == nil {
			continue
		}
		name := integrations.NormalizePkgName(rm[1])
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		deps = append(deps, ecosystem.Dependency{
			Name:       name,
			Version:    requirementVersion(strings.TrimSpace(rm[3])),
			Type:       "runtime",
			SourceFile: path,
		})
	}
	return deps
}

// setupPackageName pulls the declared package name out of a setup() call,
// falling back to fallback when none is found.
func setupPackageName(src []byte, fallback string) string {
	if m := setupNameRE.FindSubmatch(src); m != nil {
		return string(m[1])
	}
	return fallback
}

// hasInstallHooks reports whether the setup.py declares custom command
// classes or build-time requirements, both of which run arbitrary code at
// install time. install_requires alone is not a hook.
func hasInstallHooks(src []byte) (cmdclass, setupRequires bool) {
	return cmdclassRE.Match(src), setupRequiresRE.Match(src)
}
