package pypi

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/depsentry/depsentry/pkg/ecosystem"
	"github.com/depsentry/depsentry/pkg/integrations"
)

var requirementRE = regexp.MustCompile(`^([a-zA-Z0-9][-a-zA-Z0-9._]*)\s*(\[[^\]]*\])?\s*(.*)$`)

// parseRequirements reads a requirements.txt-style file. Comment lines,
// pip directives, and URL requirements are skipped. An exact "==X" pin is
// recorded as the concrete version X; any other constraint is kept verbatim
// as the spec for the resolver to interpret.
func (a *Analyzer) parseRequirements(path string) ([]ecosystem.Dependency, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ecosystem.ErrManifestNotFound, path)
		}
		return nil, err
	}
	defer f.Close()

	seen := make(map[string]bool)
	var deps []ecosystem.Dependency

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' || line[0] == '-' {
			continue
		}
		if strings.Contains(line, "://") || strings.HasPrefix(line, "git+") {
			continue
		}
		if i := strings.Index(line, "#"); i > 0 {
			line = strings.TrimSpace(line[:i])
		}
		if i := strings.Index(line, ";"); i > 0 {
			line = strings.TrimSpace(line[:i])
		}

		m := requirementRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := integrations.NormalizePkgName(m[1])
		if seen[name] {
			continue
		}
		seen[name] = true

		deps = append(deps, ecosystem.Dependency{
			Name:       name,
			Version:    requirementVersion(strings.TrimSpace(m[3])),
			Type:       "runtime",
			SourceFile: path,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ecosystem.ErrManifestMalformed, path, err)
	}
	return deps, nil
}

func requirementVersion(constraint string) string {
	if constraint == "" {
		return "*"
	}
	if v, ok := strings.CutPrefix(constraint, "=="); ok && !strings.ContainsAny(v, "<>!,*") {
		return strings.TrimSpace(v)
	}
	return constraint
}

type pyprojectFile struct {
	Project struct {
		Name         string   `toml:"name"`
		Dependencies []string `toml:"dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies map[string]any `toml:"dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// pyprojectName returns the PEP 621 project name, normalized, or "".
func pyprojectName(path string) string {
	var file pyprojectFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return ""
	}
	return integrations.NormalizePkgName(file.Project.Name)
}

// parsePyproject reads PEP 621 [project] dependencies and, when present,
// the poetry dependency table.
func (a *Analyzer) parsePyproject(path string) ([]ecosystem.Dependency, error) {
	var file pyprojectFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ecosystem.ErrManifestNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ecosystem.ErrManifestMalformed, path, err)
	}

	seen := make(map[string]bool)
	var deps []ecosystem.Dependency
	add := func(name, version string) {
		name = integrations.NormalizePkgName(name)
		if name == "" || name == "python" || seen[name] {
			return
		}
		seen[name] = true
		deps = append(deps, ecosystem.Dependency{
			Name:       name,
			Version:    version,
			Type:       "runtime",
			SourceFile: path,
		})
	}

	for _, req := range file.Project.Dependencies {
		if m := requirementRE.FindStringSubmatch(strings.TrimSpace(req)); m != nil {
			add(m[1], requirementVersion(strings.TrimSpace(m[3])))
		}
	}
	for name, spec := range file.Tool.Poetry.Dependencies {
		switch v := spec.(type) {
		case string:
			add(name, v)
		default:
			add(name, "*")
		}
	}
	return deps, nil
}
