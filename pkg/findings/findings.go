// Package findings defines the security observation types shared by every
// analysis component: the Finding record itself, its severity scale, and the
// aggregated audit report.
package findings

import (
	"encoding/json"
	"slices"
	"strings"
)

// Severity classifies how urgent a finding is.
type Severity string

// Severity levels, ordered from most to least urgent.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

var severityRank = map[Severity]int{
	SeverityCritical: 3,
	SeverityHigh:     2,
	SeverityMedium:   1,
	SeverityLow:      0,
}

// Rank returns a comparable ordering value (critical highest).
// Unknown severities rank below low.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool { return s.Rank() >= other.Rank() }

// ParseSeverity normalizes a severity string, defaulting to medium for
// anything unrecognized (LLM responses occasionally invent levels).
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	case SeverityLow:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// Finding type tags emitted by the analysis components.
const (
	TypeMaliciousPackage   = "malicious_package"
	TypeMaliciousScript    = "malicious_script"
	TypeLowReputation      = "low_reputation"
	TypeInstallationHooks  = "installation_hooks"
	TypeVersionConflict    = "version_conflict"
	TypeCircularDependency = "circular_dependency"
)

// Finding is a single typed security observation attached to a package.
// Findings are immutable after emission.
type Finding struct {
	Package         string   `json:"package"`
	Version         string   `json:"version"`
	Type            string   `json:"finding_type"`
	Severity        Severity `json:"severity"`
	Confidence      float64  `json:"confidence"`
	Evidence        []string `json:"evidence"`
	Recommendations []string `json:"recommendations"`
	Source          string   `json:"source"`
}

// Report aggregates the output of a full audit run.
type Report struct {
	RunID              string         `json:"run_id"`
	Ecosystems         []string       `json:"ecosystems_analyzed"`
	Findings           []Finding      `json:"findings"`
	Summary            map[string]int `json:"summary"`
	CacheStatistics    map[string]any `json:"cache_statistics"`
	Partial            bool           `json:"partial,omitempty"`
	TotalPackages      int            `json:"total_packages"`
	CircularCount      int            `json:"circular_dependencies_count"`
	VersionConflictCnt int            `json:"version_conflicts_count"`
}

// Summarize recomputes the per-type counts from the finding list.
func (r *Report) Summarize() {
	r.Summary = make(map[string]int, 8)
	for _, f := range r.Findings {
		r.Summary[f.Type]++
	}
}

// SortFindings orders findings by descending severity, then package name,
// so report output is deterministic regardless of worker scheduling.
func SortFindings(fs []Finding) {
	slices.SortStableFunc(fs, func(a, b Finding) int {
		if d := b.Severity.Rank() - a.Severity.Rank(); d != 0 {
			return d
		}
		return strings.Compare(a.Package, b.Package)
	})
}

// MarshalIndent renders the report as indented JSON.
func (r *Report) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
