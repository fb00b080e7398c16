// Package llm defines the script-verdict contract used by install-script
// analysis and provides an OpenAI-backed implementation. The core only
// depends on the Analyzer interface; when no provider is configured,
// analysis degrades to pattern-only results.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable is returned when no provider is configured or the provider
// cannot be reached. Callers degrade to pattern-only analysis.
var ErrUnavailable = errors.New("llm unavailable")

// Verdict is the strict JSON schema a provider must return for a script.
type Verdict struct {
	IsSuspicious bool     `json:"is_suspicious"`
	Confidence   float64  `json:"confidence"`
	Severity     string   `json:"severity"`
	Threats      []string `json:"threats"`
	Reasoning    string   `json:"reasoning"`
}

// Analyzer produces a verdict for an install-time script.
type Analyzer interface {
	// AnalyzeScript inspects script (from package pkg) and returns a verdict.
	// Implementations return ErrUnavailable (possibly wrapped) when the
	// provider cannot serve the request.
	AnalyzeScript(ctx context.Context, pkg, script string) (*Verdict, error)
}

// ParseVerdict decodes a provider response into a Verdict. Providers often
// wrap JSON in markdown fences or prose; the decoder extracts the outermost
// JSON object before unmarshaling. Confidence is clamped to [0, 1].
func ParseVerdict(raw string) (*Verdict, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var v Verdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &v); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}
	return &v, nil
}
