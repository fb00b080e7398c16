package llm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseVerdict(t *testing.T) {
	raw := `{"is_suspicious": true, "confidence": 0.95, "severity": "critical",
	"threats": ["obfuscated payload"], "reasoning": "decodes and executes base64"}`

	v, err := ParseVerdict(raw)
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	want := &Verdict{
		IsSuspicious: true,
		Confidence:   0.95,
		Severity:     "critical",
		Threats:      []string{"obfuscated payload"},
		Reasoning:    "decodes and executes base64",
	}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Errorf("verdict mismatch (-want +got):\n%s", diff)
	}
}

func TestParseVerdictFenced(t *testing.T) {
	raw := "Here is my analysis:\n```json\n{\"is_suspicious\": false, \"confidence\": 0.2}\n```\nLet me know if you need more."
	v, err := ParseVerdict(raw)
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if v.IsSuspicious || v.Confidence != 0.2 {
		t.Errorf("verdict = %+v", v)
	}
}

func TestParseVerdictClampsConfidence(t *testing.T) {
	v, err := ParseVerdict(`{"confidence": 3.5}`)
	if err != nil {
		t.Fatal(err)
	}
	if v.Confidence != 1 {
		t.Errorf("confidence = %v, want 1", v.Confidence)
	}
	v, err = ParseVerdict(`{"confidence": -0.5}`)
	if err != nil {
		t.Fatal(err)
	}
	if v.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", v.Confidence)
	}
}

func TestParseVerdictErrors(t *testing.T) {
	for _, raw := range []string{"", "no json here", "{not valid", `{"confidence": "high"}`} {
		if _, err := ParseVerdict(raw); err == nil {
			t.Errorf("ParseVerdict(%q) expected error", raw)
		}
	}
}
