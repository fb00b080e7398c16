package ecosystem

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/depsentry/depsentry/pkg/findings"
)

type fakeAnalyzer struct {
	name     string
	manifest string
}

func (f fakeAnalyzer) Name() string { return f.name }
func (f fakeAnalyzer) DetectManifests(dir string) []string {
	if f.manifest == "" {
		return nil
	}
	path := filepath.Join(dir, f.manifest)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return []string{path}
}
func (f fakeAnalyzer) ExtractDependencies(string) ([]Dependency, error) { return nil, nil }
func (f fakeAnalyzer) AnalyzeInstallScripts(context.Context, string) []findings.Finding {
	return nil
}
func (f fakeAnalyzer) RegistryURL(name string) string { return "https://example.test/" + name }
func (f fakeAnalyzer) MaliciousPatterns() map[findings.Severity][]*regexp.Regexp {
	return nil
}

func TestRegistryOrderAndReplace(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	logger := log.New(os.Stderr)

	Register(fakeAnalyzer{name: "npm"}, logger)
	Register(fakeAnalyzer{name: "pypi"}, logger)
	if got := Names(); len(got) != 2 || got[0] != "npm" || got[1] != "pypi" {
		t.Fatalf("Names() = %v", got)
	}

	// Re-registering replaces without duplicating the order slot.
	Register(fakeAnalyzer{name: "npm", manifest: "package.json"}, logger)
	if got := Names(); len(got) != 2 {
		t.Fatalf("Names() after replace = %v", got)
	}
	a, ok := Get("npm")
	if !ok {
		t.Fatal("npm missing after replace")
	}
	if a.(fakeAnalyzer).manifest != "package.json" {
		t.Error("replacement analyzer not stored")
	}
}

func TestDetect(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	logger := log.New(os.Stderr)
	Register(fakeAnalyzer{name: "npm", manifest: "package.json"}, logger)
	Register(fakeAnalyzer{name: "pypi", manifest: "requirements.txt"}, logger)

	dir := t.TempDir()
	if _, _, err := Detect(dir); err == nil {
		t.Fatal("empty dir must not detect")
	}

	if err := os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("requests\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	a, manifests, err := Detect(dir)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if a.Name() != "pypi" || len(manifests) != 1 {
		t.Errorf("Detect = %s %v", a.Name(), manifests)
	}
}

func TestLookupMalicious(t *testing.T) {
	tests := []struct {
		eco, name, version string
		hit                bool
	}{
		{PyPI, "ctx", "0.1.2", true},         // exact
		{PyPI, "ctx", "0.2.5", true},         // >=0.2.0
		{PyPI, "ctx", "0.1.1", false},        // clean release
		{PyPI, "colourama", "9.9.9", true},   // wildcard entry
		{PyPI, "colorama", "0.4.6", false},   // the real package
		{NPM, "event-stream", "3.3.6", true}, // exact
		{NPM, "event-stream", "3.3.5", false},
		{NPM, "ua-parser-js", "0.7.29", true}, // >= lower bound inclusive
		{NPM, "ua-parser-js", "0.7.28", false},
		{NPM, "node-ipc", "11.0.0", true},
		{PyPI, "event-stream", "3.3.6", false}, // wrong ecosystem
		{NPM, "CTX", "0.1.2", false},           // npm table has no ctx
		{PyPI, " CTX ", "0.1.2", true},         // name normalization
		{NPM, "left-pad", "*", false},
	}
	for _, tt := range tests {
		got := LookupMalicious(tt.eco, tt.name, tt.version)
		if (got != nil) != tt.hit {
			t.Errorf("LookupMalicious(%s, %q, %q) hit = %v, want %v", tt.eco, tt.name, tt.version, got != nil, tt.hit)
		}
	}
}

func TestLookupMaliciousWildcardQuery(t *testing.T) {
	// A "*" query version matches any table entry for the name.
	if LookupMalicious(NPM, "event-stream", "*") == nil {
		t.Error("wildcard query must match versioned entry")
	}
}

func TestVersionAtLeast(t *testing.T) {
	tests := []struct {
		v, min string
		want   bool
	}{
		{"0.7.29", "0.7.29", true},
		{"0.7.30", "0.7.29", true},
		{"0.7.28", "0.7.29", false},
		{"10.1.1", "10.1.1", true},
		{"9.9.9", "10.1.1", false},
		{"v1.2.3", "1.2.2", true},
		{"not-a-version", "also-not", true}, // string fallback
	}
	for _, tt := range tests {
		if got := versionAtLeast(tt.v, tt.min); got != tt.want {
			t.Errorf("versionAtLeast(%q, %q) = %v, want %v", tt.v, tt.min, got, tt.want)
		}
	}
}
