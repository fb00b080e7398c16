package findings

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSeverityRank(t *testing.T) {
	order := []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("%s must rank above %s", order[i], order[i-1])
		}
	}
	if !SeverityCritical.AtLeast(SeverityHigh) {
		t.Error("critical must be at least high")
	}
	if SeverityLow.AtLeast(SeverityMedium) {
		t.Error("low must not be at least medium")
	}
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want Severity
	}{
		{"critical", SeverityCritical},
		{"HIGH", SeverityHigh},
		{" medium ", SeverityMedium},
		{"low", SeverityLow},
		{"bogus", SeverityMedium},
		{"", SeverityMedium},
	}
	for _, tt := range tests {
		if got := ParseSeverity(tt.in); got != tt.want {
			t.Errorf("ParseSeverity(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestSortFindings(t *testing.T) {
	fs := []Finding{
		{Package: "b", Severity: SeverityLow},
		{Package: "z", Severity: SeverityCritical},
		{Package: "a", Severity: SeverityLow},
		{Package: "m", Severity: SeverityHigh},
	}
	SortFindings(fs)
	var got []string
	for _, f := range fs {
		got = append(got, f.Package)
	}
	if diff := cmp.Diff([]string{"z", "m", "a", "b"}, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestSummarize(t *testing.T) {
	r := Report{Findings: []Finding{
		{Type: TypeMaliciousPackage},
		{Type: TypeMaliciousPackage},
		{Type: TypeVersionConflict},
	}}
	r.Summarize()
	if r.Summary[TypeMaliciousPackage] != 2 || r.Summary[TypeVersionConflict] != 1 {
		t.Errorf("summary = %v", r.Summary)
	}
}

func TestFindingJSONKeys(t *testing.T) {
	raw, err := json.Marshal(Finding{Package: "p", Type: TypeMaliciousScript})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	if m["finding_type"] != TypeMaliciousScript {
		t.Errorf("finding_type key missing: %v", m)
	}
}
