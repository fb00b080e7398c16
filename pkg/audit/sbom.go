package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/depsentry/depsentry/pkg/depgraph"
	"github.com/depsentry/depsentry/pkg/ecosystem"
	"github.com/depsentry/depsentry/pkg/findings"
)

// sbomDocument is the subset of a CycloneDX JSON BOM the auditor consumes.
type sbomDocument struct {
	BOMFormat  string `json:"bomFormat"`
	Components []struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		PURL    string `json:"purl"`
	} `json:"components"`
}

// ParseSBOM reads a CycloneDX JSON file and returns its components grouped
// by ecosystem. Components whose package URL names an unsupported
// ecosystem are skipped.
func ParseSBOM(path string) (map[string][]ecosystem.Dependency, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sbom: %w", err)
	}
	var doc sbomDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ecosystem.ErrManifestMalformed, path, err)
	}
	if doc.BOMFormat != "" && doc.BOMFormat != "CycloneDX" {
		return nil, fmt.Errorf("%w: unsupported bomFormat %q", ecosystem.ErrManifestMalformed, doc.BOMFormat)
	}

	byEco := make(map[string][]ecosystem.Dependency)
	for _, c := range doc.Components {
		eco, name, version := componentIdentity(c.PURL, c.Name, c.Version)
		if eco == "" {
			continue
		}
		byEco[eco] = append(byEco[eco], ecosystem.Dependency{
			Name:       name,
			Version:    version,
			Type:       "runtime",
			SourceFile: path,
		})
	}
	if len(byEco) == 0 {
		return nil, fmt.Errorf("%w: no npm or pypi components in %s", ecosystem.ErrManifestNotFound, path)
	}
	return byEco, nil
}

// componentIdentity derives (ecosystem, name, version) from a package URL,
// falling back to the bare name/version fields when no purl is present.
func componentIdentity(purl, name, version string) (string, string, string) {
	if purl == "" {
		return "", name, version
	}
	rest, ok := strings.CutPrefix(purl, "pkg:")
	if !ok {
		return "", name, version
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	ecoPart, pkgPart, ok := strings.Cut(rest, "/")
	if !ok {
		return "", name, version
	}
	var eco string
	switch ecoPart {
	case "npm":
		eco = ecosystem.NPM
	case "pypi":
		eco = ecosystem.PyPI
	default:
		return "", name, version
	}
	if i := strings.LastIndex(pkgPart, "@"); i > 0 {
		version = pkgPart[i+1:]
		pkgPart = pkgPart[:i]
	}
	if decoded, err := url.PathUnescape(pkgPart); err == nil {
		pkgPart = decoded
	}
	return eco, pkgPart, version
}

// RunSBOM audits the components of a CycloneDX SBOM. Install-script
// analysis is skipped; there is no project tree to inspect.
func (a *Auditor) RunSBOM(ctx context.Context, path string) (*findings.Report, error) {
	byEco, err := ParseSBOM(path)
	if err != nil {
		return nil, err
	}

	report := newReport()
	root := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	for _, eco := range []string{ecosystem.NPM, ecosystem.PyPI} {
		direct, ok := byEco[eco]
		if !ok {
			continue
		}
		report.Ecosystems = append(report.Ecosystems, eco)

		builder := depgraph.NewBuilder(a.resolver, a.cfg.Resolver.MaxDepth, a.logger)
		g, err := builder.Build(ctx, root, path, eco, direct)
		if err != nil && ctx.Err() != nil {
			report.Partial = true
			a.screenGraph(ctx, eco, g, report)
			a.finish(ctx, report)
			return report, err
		}
		a.screenGraph(ctx, eco, g, report)
		report.TotalPackages += g.TotalPackages()
		report.CircularCount += countCycles(g)
		report.VersionConflictCnt += countConflicts(g)
	}

	a.finish(ctx, report)
	return report, nil
}

// screenGraph applies malicious screening, structural findings, and
// reputation scoring to a built graph.
func (a *Auditor) screenGraph(ctx context.Context, eco string, g *depgraph.Graph, report *findings.Report) {
	g.Walk(func(n *depgraph.Node, _ []*depgraph.Node) {
		if n == g.Root || n.Circular {
			return
		}
		if entry := ecosystem.LookupMalicious(eco, n.Name, n.Version); entry != nil {
			report.Findings = append(report.Findings, maliciousFinding(n, entry, g))
		}
	})
	report.Findings = append(report.Findings, depgraph.CycleFindings(g.DetectCycles())...)
	report.Findings = append(report.Findings, depgraph.ConflictFindings(g.DetectConflicts())...)

	if a.scorer == nil {
		return
	}
	for _, n := range scoreTargets(g) {
		if ctx.Err() != nil {
			report.Partial = true
			return
		}
		res, err := a.scorer.Calculate(ctx, n.Name, n.Version, eco)
		if err != nil {
			a.logger.Warn("reputation unavailable", "package", n.Name, "err", err)
			continue
		}
		if res.Score < reputationFloor {
			report.Findings = append(report.Findings, reputationFinding(n, res))
		}
	}
}
