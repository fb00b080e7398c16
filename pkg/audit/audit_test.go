package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/depsentry/depsentry/pkg/cache"
	"github.com/depsentry/depsentry/pkg/depgraph"
	"github.com/depsentry/depsentry/pkg/ecosystem"
	npmeco "github.com/depsentry/depsentry/pkg/ecosystem/npm"
	pypieco "github.com/depsentry/depsentry/pkg/ecosystem/pypi"
	"github.com/depsentry/depsentry/pkg/findings"
	npmreg "github.com/depsentry/depsentry/pkg/integrations/npm"
	"github.com/depsentry/depsentry/pkg/reputation"
	"github.com/depsentry/depsentry/pkg/resolve"
)

func testAuditor(t *testing.T, r *resolve.Resolver) *Auditor {
	t.Helper()
	logger := log.New(os.Stderr)
	c := cache.NewWithBackend(cache.NewMemoryBackend(), 0, logger)
	cfg := DefaultConfig()
	cfg.Reputation.Enabled = false
	return &Auditor{cfg: cfg, cache: c, resolver: r, logger: logger}
}

func registerAnalyzers(t *testing.T) {
	t.Helper()
	ecosystem.Reset()
	logger := log.New(os.Stderr)
	ecosystem.Register(npmeco.New(logger), logger)
	ecosystem.Register(pypieco.New(pypieco.Options{Logger: logger}), logger)
	t.Cleanup(ecosystem.Reset)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunNoManifest(t *testing.T) {
	registerAnalyzers(t)
	a := testAuditor(t, nil)
	if _, err := a.Run(context.Background(), t.TempDir()); err == nil {
		t.Fatal("expected error for empty directory")
	}
}

func TestRunNPMDirect(t *testing.T) {
	registerAnalyzers(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/left-pad/1.3.0" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"name":"left-pad","version":"1.3.0","dependencies":{}}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"name":"a","dependencies":{"left-pad":"^1.3.0"}}`)

	r := resolve.New(resolve.Options{NPM: npmreg.NewClientWithBaseURL(srv.URL)})
	a := testAuditor(t, r)

	report, err := a.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.RunID == "" {
		t.Error("missing run_id")
	}
	if len(report.Ecosystems) != 1 || report.Ecosystems[0] != "npm" {
		t.Errorf("ecosystems = %v", report.Ecosystems)
	}
	if report.TotalPackages != 1 {
		t.Errorf("total_packages = %d, want 1", report.TotalPackages)
	}
	if len(report.Findings) != 0 {
		t.Errorf("findings = %v, want none", report.Findings)
	}
	if report.CacheStatistics["backend"] != "memory" {
		t.Errorf("cache backend = %v", report.CacheStatistics["backend"])
	}

	g, err := a.BuildGraph(context.Background(), dir)
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	if doc := g.Document(); doc.Name != "a" {
		t.Errorf("root name = %q, want manifest-declared \"a\"", doc.Name)
	}
}

func TestRootNamePrefersManifest(t *testing.T) {
	registerAnalyzers(t)
	npmAnalyzer, ok := ecosystem.Get(ecosystem.NPM)
	if !ok {
		t.Fatal("npm analyzer not registered")
	}

	dir := t.TempDir()
	manifest := writeFile(t, dir, "package.json", `{"name":"declared-app","dependencies":{}}`)
	d := detection{analyzer: npmAnalyzer, manifests: []string{manifest}}
	if got := rootName(d, dir); got != "declared-app" {
		t.Errorf("root name = %q, want declared-app", got)
	}

	unnamed := t.TempDir()
	manifest = writeFile(t, unnamed, "package.json", `{"dependencies":{}}`)
	d = detection{analyzer: npmAnalyzer, manifests: []string{manifest}}
	if got := rootName(d, unnamed); got != filepath.Base(unnamed) {
		t.Errorf("root name = %q, want directory basename %q", got, filepath.Base(unnamed))
	}
}

func TestScreenGraphScoresTransitiveDeps(t *testing.T) {
	registerAnalyzers(t)
	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No dates, no author: neutral age/maintenance plus penalized
		// downloads and author land below the reputation floor.
		w.Write([]byte(`{}`))
	}))
	defer registry.Close()
	downloads := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"downloads": 10}`))
	}))
	defer downloads.Close()

	a := testAuditor(t, nil)
	a.scorer = reputation.NewScorer(reputation.Options{
		RegistryURL:         func(eco, name string) (string, error) { return registry.URL + "/" + name, nil },
		NPMDownloadsBaseURL: downloads.URL,
	})

	trans := &depgraph.Node{Name: "transitive", Version: "2.0.0", Depth: 2, Children: map[string]*depgraph.Node{}}
	direct := &depgraph.Node{Name: "direct", Version: "1.0.0", Depth: 1, Children: map[string]*depgraph.Node{"transitive": trans}}
	root := &depgraph.Node{Name: "app", Version: "*", Children: map[string]*depgraph.Node{"direct": direct}}
	g := &depgraph.Graph{Root: root, Ecosystem: ecosystem.NPM}

	report := newReport()
	a.screenGraph(context.Background(), ecosystem.NPM, g, report)

	scored := map[string]bool{}
	for _, f := range report.Findings {
		if f.Type == findings.TypeLowReputation {
			scored[f.Package] = true
		}
	}
	for _, pkg := range []string{"direct", "transitive"} {
		if !scored[pkg] {
			t.Errorf("no low_reputation finding for %s; got %v", pkg, report.Findings)
		}
	}
}

func TestRunMaliciousRequirement(t *testing.T) {
	registerAnalyzers(t)
	dir := t.TempDir()
	writeFile(t, dir, "requirements.txt", "ctx==0.1.2\n")

	a := testAuditor(t, nil)
	report, err := a.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var hits []findings.Finding
	for _, f := range report.Findings {
		if f.Type == findings.TypeMaliciousPackage {
			hits = append(hits, f)
		}
	}
	if len(hits) != 1 {
		t.Fatalf("malicious findings = %d, want 1", len(hits))
	}
	f := hits[0]
	if f.Package != "ctx" || f.Severity != findings.SeverityCritical {
		t.Errorf("finding = %s/%s", f.Package, f.Severity)
	}
	if f.Confidence < 0.9 {
		t.Errorf("confidence = %v, want >= 0.9", f.Confidence)
	}
	found := false
	for _, e := range f.Evidence {
		if strings.Contains(e, "ctx") {
			found = true
		}
	}
	if !found {
		t.Error("evidence does not mention ctx")
	}
	if report.Summary[findings.TypeMaliciousPackage] != 1 {
		t.Errorf("summary = %v", report.Summary)
	}
}

func TestRunMalformedManifest(t *testing.T) {
	registerAnalyzers(t)
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"dependencies":`)

	a := testAuditor(t, nil)
	if _, err := a.Run(context.Background(), dir); err == nil {
		t.Fatal("malformed manifest must fail the run")
	}
}

func TestRunCancelled(t *testing.T) {
	registerAnalyzers(t)
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"dependencies":{"left-pad":"1.3.0"}}`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := resolve.New(resolve.Options{NPM: npmreg.NewClientWithBaseURL(srv.URL)})
	a := testAuditor(t, r)
	report, err := a.Run(ctx, dir)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if report == nil || !report.Partial {
		t.Fatalf("cancelled run must return a partial report, got %+v", report)
	}
}

func TestParseSBOM(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bom.json", `{
	  "bomFormat": "CycloneDX",
	  "components": [
	    {"name": "left-pad", "version": "1.3.0", "purl": "pkg:npm/left-pad@1.3.0"},
	    {"name": "requests", "version": "2.31.0", "purl": "pkg:pypi/requests@2.31.0"},
	    {"name": "openssl", "version": "3.0.0", "purl": "pkg:generic/openssl@3.0.0"},
	    {"name": "%40scope/pkg", "purl": "pkg:npm/%40scope/pkg@2.0.0"}
	  ]
	}`)

	byEco, err := ParseSBOM(path)
	if err != nil {
		t.Fatalf("ParseSBOM: %v", err)
	}
	if got := len(byEco[ecosystem.NPM]); got != 2 {
		t.Errorf("npm components = %d, want 2", got)
	}
	if got := len(byEco[ecosystem.PyPI]); got != 1 {
		t.Errorf("pypi components = %d, want 1", got)
	}
	scoped := byEco[ecosystem.NPM][1]
	if scoped.Name != "@scope/pkg" || scoped.Version != "2.0.0" {
		t.Errorf("scoped component = %s@%s", scoped.Name, scoped.Version)
	}
}

func TestRunSBOMMalicious(t *testing.T) {
	registerAnalyzers(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "bom.json", `{
	  "bomFormat": "CycloneDX",
	  "components": [
	    {"name": "event-stream", "version": "3.3.6", "purl": "pkg:npm/event-stream@3.3.6"}
	  ]
	}`)

	a := testAuditor(t, nil)
	report, err := a.RunSBOM(context.Background(), path)
	if err != nil {
		t.Fatalf("RunSBOM: %v", err)
	}
	if report.Summary[findings.TypeMaliciousPackage] != 1 {
		t.Fatalf("summary = %v, want one malicious_package", report.Summary)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("CACHE_ENABLED", "false")
	t.Setenv("OUTPUT_DIRECTORY", "/tmp/out")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil {
		t.Fatal("explicit missing config path must error")
	}

	cfg, err = LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Cache.Enabled {
		t.Error("CACHE_ENABLED=false not applied")
	}
	if cfg.Output.Directory != "/tmp/out" {
		t.Errorf("output dir = %q", cfg.Output.Directory)
	}
	if cfg.LLM.Enabled {
		t.Error("LLM must be disabled without OPENAI_API_KEY")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "depsentry.toml", `
[cache]
enabled = true
backend = "memory"
max_size_mb = 5

[resolver]
max_depth = 4
workers = 2
`)
	os.Unsetenv("CACHE_ENABLED")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Cache.Backend != "memory" || cfg.Cache.MaxSizeMB != 5 {
		t.Errorf("cache config = %+v", cfg.Cache)
	}
	if cfg.Resolver.MaxDepth != 4 || cfg.Resolver.Workers != 2 {
		t.Errorf("resolver config = %+v", cfg.Resolver)
	}
	if !cfg.LLM.Enabled {
		t.Error("LLM should stay enabled with OPENAI_API_KEY set")
	}
}
