// Package audit wires manifests through the full pipeline: ecosystem
// detection, dependency extraction, transitive resolution, graph analysis,
// malicious screening, install-script inspection, and reputation scoring,
// aggregated into a single report.
package audit

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/depsentry/depsentry/pkg/cache"
	"github.com/depsentry/depsentry/pkg/depgraph"
	"github.com/depsentry/depsentry/pkg/ecosystem"
	"github.com/depsentry/depsentry/pkg/ecosystem/npm"
	"github.com/depsentry/depsentry/pkg/ecosystem/pypi"
	"github.com/depsentry/depsentry/pkg/findings"
	"github.com/depsentry/depsentry/pkg/llm"
	"github.com/depsentry/depsentry/pkg/reputation"
	"github.com/depsentry/depsentry/pkg/resolve"
)

// reputationFloor is the composite score below which a package earns a
// low_reputation finding.
const reputationFloor = 0.5

// Auditor runs the audit pipeline. Construct once, reuse across runs.
type Auditor struct {
	cfg      Config
	cache    *cache.Cache
	resolver *resolve.Resolver
	scorer   *reputation.Scorer
	logger   *log.Logger
}

// New builds an Auditor from configuration: cache, LLM layer, ecosystem
// analyzers (registered process-wide), resolver, and reputation scorer.
// Degraded subsystems warn and disable rather than failing construction.
func New(cfg Config, logger *log.Logger) *Auditor {
	if logger == nil {
		logger = log.Default()
	}

	backend := cfg.Cache.Backend
	if !cfg.Cache.Enabled {
		backend = "null"
	}
	c := cache.New(cache.Options{
		Backend:      backend,
		Dir:          cfg.Cache.Directory,
		RedisAddr:    cfg.Cache.RedisAddr,
		MaxSizeBytes: cfg.Cache.MaxSizeMB << 20,
		Logger:       logger,
	})

	var verdict llm.Analyzer
	if cfg.LLM.Enabled {
		analyzer, err := llm.NewOpenAI()
		if err != nil {
			logger.Warn("llm layer disabled", "err", err)
		} else {
			verdict = analyzer
		}
	}

	ecosystem.Register(npm.New(logger), logger)
	ecosystem.Register(pypi.New(pypi.Options{Cache: c, LLM: verdict, Logger: logger}), logger)

	var metadataDir string
	if cfg.Cache.Enabled {
		metadataDir = filepath.Join(cfg.Cache.Directory, "metadata")
	}
	resolver := resolve.New(resolve.Options{
		MaxDepth: cfg.Resolver.MaxDepth,
		Workers:  cfg.Resolver.Workers,
		CacheDir: metadataDir,
		Logger:   logger,
	})

	var scorer *reputation.Scorer
	if cfg.Reputation.Enabled {
		scorer = reputation.NewScorer(reputation.Options{
			Cache:             c,
			RequestsPerSecond: cfg.Reputation.RequestsPerSecond,
			Logger:            logger,
		})
	}

	return &Auditor{cfg: cfg, cache: c, resolver: resolver, scorer: scorer, logger: logger}
}

// Cache exposes the shared cache for CLI statistics and maintenance.
func (a *Auditor) Cache() *cache.Cache { return a.cache }

// Run audits the project at dir. Per-package failures are logged and
// skipped; caller-input failures (no manifest, malformed manifest) are
// returned. On cancellation the partial report carries partial=true and
// the context error is returned alongside it.
func (a *Auditor) Run(ctx context.Context, dir string) (*findings.Report, error) {
	report := newReport()

	detected := detectAll(dir)
	if len(detected) == 0 {
		return nil, fmt.Errorf("%w in %s", ecosystem.ErrManifestNotFound, dir)
	}

	for _, d := range detected {
		report.Ecosystems = append(report.Ecosystems, d.analyzer.Name())
		g, err := a.auditEcosystem(ctx, dir, d, report)
		if err != nil {
			if ctx.Err() != nil {
				report.Partial = true
				a.finish(ctx, report)
				return report, err
			}
			return nil, err
		}
		report.TotalPackages += g.TotalPackages()
	}

	a.finish(ctx, report)
	return report, nil
}

// BuildGraph builds the dependency graph for the first ecosystem detected
// in dir without running findings collection. Used by graph visualization.
func (a *Auditor) BuildGraph(ctx context.Context, dir string) (*depgraph.Graph, error) {
	detected := detectAll(dir)
	if len(detected) == 0 {
		return nil, fmt.Errorf("%w in %s", ecosystem.ErrManifestNotFound, dir)
	}
	d := detected[0]

	var direct []ecosystem.Dependency
	for _, manifest := range d.manifests {
		deps, err := d.analyzer.ExtractDependencies(manifest)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", manifest, err)
		}
		direct = append(direct, deps...)
	}

	builder := depgraph.NewBuilder(a.resolver, a.cfg.Resolver.MaxDepth, a.logger)
	return builder.Build(ctx, rootName(d, dir), d.manifests[0], d.analyzer.Name(), direct)
}

type detection struct {
	analyzer  ecosystem.Analyzer
	manifests []string
}

// projectNamer is the optional analyzer capability of reading the
// project's declared name from a manifest file.
type projectNamer interface {
	ProjectName(manifestPath string) string
}

// rootName prefers the manifest-declared project name over the directory
// basename.
func rootName(d detection, dir string) string {
	if pn, ok := d.analyzer.(projectNamer); ok {
		for _, m := range d.manifests {
			if name := pn.ProjectName(m); name != "" {
				return name
			}
		}
	}
	return filepath.Base(absDir(dir))
}

// detectAll probes every registered analyzer so mixed projects (both a
// package.json and a requirements.txt) are audited per ecosystem.
func detectAll(dir string) []detection {
	var out []detection
	for _, name := range ecosystem.Names() {
		a, ok := ecosystem.Get(name)
		if !ok {
			continue
		}
		if manifests := a.DetectManifests(dir); len(manifests) > 0 {
			out = append(out, detection{analyzer: a, manifests: manifests})
		}
	}
	return out
}

func (a *Auditor) auditEcosystem(ctx context.Context, dir string, d detection, report *findings.Report) (*depgraph.Graph, error) {
	eco := d.analyzer.Name()

	var direct []ecosystem.Dependency
	for _, manifest := range d.manifests {
		deps, err := d.analyzer.ExtractDependencies(manifest)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", manifest, err)
		}
		direct = append(direct, deps...)
	}

	builder := depgraph.NewBuilder(a.resolver, a.cfg.Resolver.MaxDepth, a.logger)
	g, err := builder.Build(ctx, rootName(d, dir), d.manifests[0], eco, direct)
	if err != nil && ctx.Err() != nil {
		a.collectFindings(ctx, dir, d, g, report)
		return g, err
	}

	a.collectFindings(ctx, dir, d, g, report)
	report.CircularCount += countCycles(g)
	report.VersionConflictCnt += countConflicts(g)
	return g, nil
}

func (a *Auditor) collectFindings(ctx context.Context, dir string, d detection, g *depgraph.Graph, report *findings.Report) {
	report.Findings = append(report.Findings, d.analyzer.AnalyzeInstallScripts(ctx, dir)...)
	a.screenGraph(ctx, d.analyzer.Name(), g, report)
}

func maliciousFinding(n *depgraph.Node, entry *ecosystem.MaliciousEntry, g *depgraph.Graph) findings.Finding {
	evidence := []string{
		fmt.Sprintf("%s@%s matches known-malicious advisory: %s", n.Name, n.Version, entry.Reason),
	}
	for _, p := range g.TraceImpact(n.Name) {
		evidence = append(evidence, "reachable via: "+joinPath(p))
	}
	return findings.Finding{
		Package:    n.Name,
		Version:    n.Version,
		Type:       findings.TypeMaliciousPackage,
		Severity:   entry.Severity,
		Confidence: 0.95,
		Evidence:   evidence,
		Recommendations: []string{
			fmt.Sprintf("remove %s immediately and audit systems that installed it", n.Name),
		},
		Source: "malicious_db",
	}
}

func reputationFinding(n *depgraph.Node, res *reputation.Result) findings.Finding {
	evidence := []string{fmt.Sprintf("composite reputation score %.2f", res.Score)}
	for _, flag := range res.Flags {
		evidence = append(evidence, "flag: "+flag)
	}
	return findings.Finding{
		Package:    n.Name,
		Version:    n.Version,
		Type:       findings.TypeLowReputation,
		Severity:   findings.SeverityMedium,
		Confidence: 0.7,
		Evidence:   evidence,
		Recommendations: []string{
			fmt.Sprintf("review %s before trusting it in production builds", n.Name),
		},
		Source: "reputation_scorer",
	}
}

func (a *Auditor) finish(ctx context.Context, report *findings.Report) {
	findings.SortFindings(report.Findings)
	report.Summarize()
	stats := a.cache.Stats(ctx)
	report.CacheStatistics = map[string]any{
		"backend":         stats.Backend,
		"entries":         stats.Entries,
		"expired_entries": stats.ExpiredEntries,
		"total_hits":      stats.TotalHits,
		"total_size_mb":   float64(stats.TotalSizeBytes) / (1 << 20),
		"max_size_bytes":  stats.MaxSizeBytes,
	}
}

func newReport() *findings.Report {
	return &findings.Report{
		RunID:    uuid.NewString(),
		Findings: []findings.Finding{},
		Summary:  map[string]int{},
	}
}

func countCycles(g *depgraph.Graph) int    { return len(g.DetectCycles()) }
func countConflicts(g *depgraph.Graph) int { return len(g.DetectConflicts()) }

// scoreTargets lists every expanded package in the graph, direct and
// transitive, sorted by ID so scoring order is deterministic.
func scoreTargets(g *depgraph.Graph) []*depgraph.Node {
	if g == nil || g.Root == nil {
		return nil
	}
	byID := make(map[string]*depgraph.Node)
	g.Walk(func(n *depgraph.Node, _ []*depgraph.Node) {
		if n == g.Root || n.Circular {
			return
		}
		byID[n.ID()] = n
	})
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	nodes := make([]*depgraph.Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, byID[id])
	}
	return nodes
}

func absDir(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	return abs
}

func joinPath(parts []string) string {
	return strings.Join(parts, " -> ")
}
