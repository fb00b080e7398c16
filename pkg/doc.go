// Package pkg provides the core libraries for depsentry supply-chain auditing.
//
// # Overview
//
// depsentry inspects npm and PyPI dependency trees for known-malicious
// packages, suspicious install scripts, low-reputation publishers, and
// structural problems. The pkg directory is organized into five main areas:
//
//  1. [ecosystem] - Manifest parsing, malicious-package screening, install
//     script analysis per ecosystem (npm, PyPI)
//  2. [resolve] - Transitive dependency resolution against the registries
//  3. [depgraph] - Graph structure, cycle and conflict detection, DOT/SVG
//     and JSON serialization
//  4. [reputation] - Package trust scoring from registry metadata
//  5. [audit] - Orchestration (detect → resolve → screen → report)
//
// Supporting layers: [cache] (sqlite/redis/memory result cache),
// [integrations] (registry HTTP clients), [llm] (install script verdicts),
// [findings] (the shared finding model), [httputil] (retry helpers), and
// [buildinfo].
//
// # Architecture
//
// The typical data flow through an audit:
//
//	Project Manifest / SBOM
//	         ↓
//	    [ecosystem] package (extract declared dependencies)
//	         ↓
//	    [resolve] package (transitive closure from the registry)
//	         ↓
//	    [depgraph] package (tree + cycles + conflicts)
//	         ↓
//	    [ecosystem] + [reputation] screening (findings)
//	         ↓
//	    JSON report / DOT / SVG output
//
// # Quick Start
//
// Audit a project directory and print the report:
//
//	import (
//	    "context"
//	    "github.com/depsentry/depsentry/pkg/audit"
//	)
//
//	auditor := audit.New(audit.DefaultConfig(), nil)
//	report, err := auditor.Run(context.Background(), "./my-project")
//	if err != nil {
//	    // A cancelled run still returns the partial report.
//	}
//	for _, f := range report.Findings {
//	    fmt.Println(f.Severity, f.Package, f.Type)
//	}
//
// [ecosystem]: https://pkg.go.dev/github.com/depsentry/depsentry/pkg/ecosystem
// [resolve]: https://pkg.go.dev/github.com/depsentry/depsentry/pkg/resolve
// [depgraph]: https://pkg.go.dev/github.com/depsentry/depsentry/pkg/depgraph
// [reputation]: https://pkg.go.dev/github.com/depsentry/depsentry/pkg/reputation
// [audit]: https://pkg.go.dev/github.com/depsentry/depsentry/pkg/audit
// [cache]: https://pkg.go.dev/github.com/depsentry/depsentry/pkg/cache
// [integrations]: https://pkg.go.dev/github.com/depsentry/depsentry/pkg/integrations
// [llm]: https://pkg.go.dev/github.com/depsentry/depsentry/pkg/llm
// [findings]: https://pkg.go.dev/github.com/depsentry/depsentry/pkg/findings
// [httputil]: https://pkg.go.dev/github.com/depsentry/depsentry/pkg/httputil
// [buildinfo]: https://pkg.go.dev/github.com/depsentry/depsentry/pkg/buildinfo
package pkg
