package pypi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/depsentry/depsentry/pkg/cache"
	"github.com/depsentry/depsentry/pkg/findings"
	"github.com/depsentry/depsentry/pkg/llm"
)

const (
	patternConfidence = 0.8
	// overruledConfidence applies when patterns fired but the LLM judged the
	// script benign.
	overruledConfidence = 0.6
	hooksConfidence     = 0.6
)

var scriptPatterns = map[findings.Severity][]*regexp.Regexp{
	findings.SeverityCritical: {
		regexp.MustCompile(`\bexec\s*\(`),
		regexp.MustCompile(`base64\.b64decode`),
		regexp.MustCompile(`__import__\s*\(\s*['"](os|subprocess)['"]`),
		regexp.MustCompile(`pickle\.loads`),
		regexp.MustCompile(`(/etc/(passwd|shadow)|\.ssh/|\.aws/credentials)`),
	},
	findings.SeverityHigh: {
		regexp.MustCompile(`os\.system\s*\(`),
		regexp.MustCompile(`subprocess\.(run|call|check_call|check_output|Popen)`),
		regexp.MustCompile(`\beval\s*\(`),
		regexp.MustCompile(`urllib\.request\.urlopen|urllib2?\.urlopen`),
		regexp.MustCompile(`socket\.socket`),
	},
	findings.SeverityMedium: {
		regexp.MustCompile(`requests\.(get|post)\s*\(`),
		regexp.MustCompile(`marshal\.loads`),
		regexp.MustCompile(`\bctypes\b`),
		regexp.MustCompile(`codecs\.decode`),
	},
}

// MaliciousPatterns returns the PyPI install-script regex bank.
func (a *Analyzer) MaliciousPatterns() map[findings.Severity][]*regexp.Regexp {
	return scriptPatterns
}

// AnalyzeInstallScripts inspects the setup.py under dir: install hooks
// (cmdclass, setup_requires) and the script body itself, screened by the
// pattern bank and, when warranted, the LLM verdict layer.
func (a *Analyzer) AnalyzeInstallScripts(ctx context.Context, dir string) []findings.Finding {
	path := filepath.Join(dir, "setup.py")
	src, err := readIfPresent(path)
	if err != nil {
		a.logger.Warn("skipping install-script analysis", "path", path, "err", err)
		return nil
	}
	if src == nil {
		return nil
	}

	pkg := setupPackageName(src, filepath.Base(dir))
	var out []findings.Finding

	if f := a.hooksFinding(pkg, src, path); f != nil {
		out = append(out, *f)
	}
	if f := a.screenScript(ctx, pkg, string(src)); f != nil {
		out = append(out, *f)
	}
	return out
}

func (a *Analyzer) hooksFinding(pkg string, src []byte, path string) *findings.Finding {
	cmdclass, setupRequires := hasInstallHooks(src)
	if !cmdclass && !setupRequires {
		return nil
	}

	var evidence []string
	if cmdclass {
		evidence = append(evidence, fmt.Sprintf("%s declares cmdclass= (custom install-time command classes)", path))
	}
	if setupRequires {
		evidence = append(evidence, fmt.Sprintf("%s declares setup_requires= (build-time package fetch)", path))
	}
	return &findings.Finding{
		Package:    pkg,
		Version:    "*",
		Type:       findings.TypeInstallationHooks,
		Severity:   findings.SeverityMedium,
		Confidence: hooksConfidence,
		Evidence:   evidence,
		Recommendations: []string{
			"review the custom setup commands before installing",
		},
		Source: "pypi_script_analyzer",
	}
}

// screenScript combines the pattern layer with the opt-in LLM layer.
func (a *Analyzer) screenScript(ctx context.Context, pkg, script string) *findings.Finding {
	patternSev, evidence := a.matchPatterns(script)
	fired := len(evidence)

	complexity := ComplexityScore(script)
	verdict := a.llmVerdict(ctx, pkg, script, complexity, fired)

	switch {
	case verdict != nil && verdict.IsSuspicious:
		sev := findings.ParseSeverity(verdict.Severity)
		conf := verdict.Confidence
		if patternSev != "" && !sev.AtLeast(patternSev) {
			sev, conf = patternSev, patternConfidence
		}
		evidence = append(evidence, llmEvidence(verdict)...)
		return a.scriptFinding(pkg, sev, conf, evidence, "llm")

	case verdict != nil && fired > 0:
		// LLM judged benign; keep pattern result at reduced confidence.
		evidence = append(evidence, llmEvidence(verdict)...)
		return a.scriptFinding(pkg, patternSev, overruledConfidence, evidence, "llm")

	case fired > 0:
		return a.scriptFinding(pkg, patternSev, patternConfidence, evidence, "pattern_only")
	}
	return nil
}

func (a *Analyzer) matchPatterns(script string) (findings.Severity, []string) {
	var worst findings.Severity
	var evidence []string
	for _, sev := range []findings.Severity{findings.SeverityCritical, findings.SeverityHigh, findings.SeverityMedium} {
		for _, re := range scriptPatterns[sev] {
			if m := re.FindString(script); m != "" {
				evidence = append(evidence, fmt.Sprintf("setup.py matched %s pattern: %q", sev, m))
				if worst == "" {
					worst = sev
				}
			}
		}
	}
	return worst, evidence
}

// llmVerdict consults the cache first and only then the configured
// provider. nil means the layer did not run (disabled, below thresholds, or
// unavailable) and the caller should fall back to pattern-only results.
func (a *Analyzer) llmVerdict(ctx context.Context, pkg, script string, complexity float64, fired int) *llm.Verdict {
	if a.verdict == nil {
		return nil
	}
	if complexity < llmComplexityThreshold && fired < llmPatternThreshold {
		return nil
	}

	key := cache.Key(fmt.Sprintf("python:%s:%s", pkg, script), "llm_python")
	var v llm.Verdict
	if a.cache != nil && a.cache.Get(ctx, key, &v) {
		return &v
	}

	got, err := a.verdict.AnalyzeScript(ctx, pkg, script)
	if err != nil {
		a.logger.Warn("llm verdict unavailable, using pattern-only result", "package", pkg, "err", err)
		return nil
	}
	if a.cache != nil {
		a.cache.Store(ctx, key, got, cache.DefaultLLMVerdictTTL)
	}
	return got
}

func llmEvidence(v *llm.Verdict) []string {
	out := []string{fmt.Sprintf("llm verdict: suspicious=%t confidence=%.2f", v.IsSuspicious, v.Confidence)}
	if len(v.Threats) > 0 {
		out = append(out, "llm threats: "+strings.Join(v.Threats, ", "))
	}
	if v.Reasoning != "" {
		out = append(out, "llm reasoning: "+v.Reasoning)
	}
	return out
}

func (a *Analyzer) scriptFinding(pkg string, sev findings.Severity, conf float64, evidence []string, source string) *findings.Finding {
	return &findings.Finding{
		Package:    pkg,
		Version:    "*",
		Type:       findings.TypeMaliciousScript,
		Severity:   sev,
		Confidence: conf,
		Evidence:   append(evidence, "analysis_source: "+source),
		Recommendations: []string{
			"do not install until the setup.py has been reviewed",
			"prefer a wheel distribution that skips setup.py execution",
		},
		Source: "pypi_script_analyzer/" + source,
	}
}

func readIfPresent(path string) ([]byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return src, nil
}
