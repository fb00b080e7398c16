package pypi

import (
	"regexp"
	"strings"
)

// The LLM layer runs when a script looks complex enough to hide intent or
// when several bank patterns fired.
const (
	llmComplexityThreshold = 0.5
	llmPatternThreshold    = 2
)

// Weighted occurrence classes for the complexity score. Each class counts
// matches across the script; contributions are capped so a single repeated
// construct cannot saturate the score alone.
var complexityClasses = []struct {
	weight float64
	res    []*regexp.Regexp
}{
	{0.20, []*regexp.Regexp{ // obfuscation
		regexp.MustCompile(`base64\.b(16|32|64)decode`),
		regexp.MustCompile(`codecs\.decode`),
		regexp.MustCompile(`\\x[0-9a-fA-F]{2}`),
		regexp.MustCompile(`chr\s*\(\s*\d+\s*\)`),
		regexp.MustCompile(`\[::-1\]`),
	}},
	{0.25, []*regexp.Regexp{ // dynamic execution
		regexp.MustCompile(`\bexec\s*\(`),
		regexp.MustCompile(`\beval\s*\(`),
		regexp.MustCompile(`\bcompile\s*\(`),
		regexp.MustCompile(`__import__\s*\(`),
		regexp.MustCompile(`getattr\s*\(\s*__builtins__`),
	}},
	{0.15, []*regexp.Regexp{ // network
		regexp.MustCompile(`urllib`),
		regexp.MustCompile(`requests\.`),
		regexp.MustCompile(`socket\.`),
		regexp.MustCompile(`http\.client`),
	}},
	{0.20, []*regexp.Regexp{ // sensitive paths
		regexp.MustCompile(`/etc/`),
		regexp.MustCompile(`\.ssh`),
		regexp.MustCompile(`\.aws`),
		regexp.MustCompile(`(?i)(password|credential|token|secret)`),
	}},
}

const longLineChars = 200

// ComplexityScore estimates how much a Python script resembles obfuscated
// or multi-stage malicious code, in [0, 1]. It sums capped per-class
// occurrence weights and adds pressure for very long lines (a common
// payload-packing artifact) and overall script size.
func ComplexityScore(script string) float64 {
	var score float64
	for _, class := range complexityClasses {
		var hits int
		for _, re := range class.res {
			hits += len(re.FindAllStringIndex(script, -1))
		}
		score += min(float64(hits)*class.weight/2, class.weight)
	}

	var longLines int
	for _, line := range strings.Split(script, "\n") {
		if len(line) > longLineChars {
			longLines++
		}
	}
	score += min(float64(longLines)*0.1, 0.2)

	if len(script) > 10_000 {
		score += 0.1
	}
	return min(score, 1.0)
}
