package npm

import (
	"context"
	"fmt"
	"regexp"
	"slices"

	"github.com/depsentry/depsentry/pkg/findings"
)

// lifecycleHooks are the script names npm executes during installation.
var lifecycleHooks = []string{"preinstall", "install", "postinstall", "prepare", "prepublish"}

// patternConfidence applies to findings produced by the regex bank alone.
const patternConfidence = 0.8

var shellPatterns = map[findings.Severity][]*regexp.Regexp{
	findings.SeverityCritical: {
		regexp.MustCompile(`(?i)(curl|wget)\b[^|;&]*\|\s*(ba|z|da)?sh\b`),
		regexp.MustCompile(`(?i)base64\s+(-d|--decode)\b[^|]*\|\s*(sh|bash|node|python)`),
		regexp.MustCompile(`(?i)echo\s+[A-Za-z0-9+/=]{40,}\s*\|\s*base64`),
		regexp.MustCompile(`rm\s+-rf\s+[~/]`),
		regexp.MustCompile(`(?i)/etc/(passwd|shadow)`),
	},
	findings.SeverityHigh: {
		regexp.MustCompile(`(?i)\bsudo\b`),
		regexp.MustCompile(`(?i)\beval\s*\(`),
		regexp.MustCompile(`(?i)child_process`),
		regexp.MustCompile(`(?i)https?://[^\s"']+\.(tk|ml|ga|cf|gq|top)(/|\s|"|'|$)`),
		regexp.MustCompile(`(?i)\bnode\s+-e\b`),
	},
	findings.SeverityMedium: {
		regexp.MustCompile(`(?i)\b(curl|wget)\s+https?://`),
		regexp.MustCompile(`(?i)\bchmod\s+\+x\b`),
		regexp.MustCompile(`\$\(\s*(curl|wget)`),
	},
}

// MaliciousPatterns returns the npm install-script regex bank.
func (a *Analyzer) MaliciousPatterns() map[findings.Severity][]*regexp.Regexp {
	return shellPatterns
}

// AnalyzeInstallScripts screens the package.json lifecycle scripts in dir
// against the shell pattern bank. One finding is emitted per hook whose
// command matches; its severity is the maximum severity of any matched
// pattern.
func (a *Analyzer) AnalyzeInstallScripts(ctx context.Context, dir string) []findings.Finding {
	manifests := a.DetectManifests(dir)
	if len(manifests) == 0 {
		return nil
	}
	pkg, err := readPackageFile(manifests[0])
	if err != nil {
		a.logger.Warn("skipping install-script analysis", "path", manifests[0], "err", err)
		return nil
	}

	var out []findings.Finding
	for _, hook := range lifecycleHooks {
		if ctx.Err() != nil {
			return out
		}
		cmd, ok := pkg.Scripts[hook]
		if !ok || cmd == "" {
			continue
		}
		if f := a.screenScript(pkg.Name, pkg.Version, hook, cmd); f != nil {
			out = append(out, *f)
		}
	}
	return out
}

func (a *Analyzer) screenScript(name, version, hook, cmd string) *findings.Finding {
	var evidence []string
	worst := findings.Severity("")
	for _, sev := range []findings.Severity{findings.SeverityCritical, findings.SeverityHigh, findings.SeverityMedium} {
		for _, re := range shellPatterns[sev] {
			if m := re.FindString(cmd); m != "" {
				evidence = append(evidence, fmt.Sprintf("%s script matched %s pattern: %q", hook, sev, m))
				if worst == "" || sev.AtLeast(worst) {
					worst = sev
				}
			}
		}
	}
	if len(evidence) == 0 {
		return nil
	}

	return &findings.Finding{
		Package:    name,
		Version:    version,
		Type:       findings.TypeMaliciousScript,
		Severity:   worst,
		Confidence: patternConfidence,
		Evidence:   slices.Clip(evidence),
		Recommendations: []string{
			fmt.Sprintf("review the %q lifecycle script before installing", hook),
			"install with --ignore-scripts until the script is vetted",
		},
		Source: "npm_script_analyzer",
	}
}
