package ecosystem

import (
	"strings"

	"github.com/Masterminds/semver"

	"github.com/depsentry/depsentry/pkg/findings"
)

// MaliciousEntry describes one row of the known-malicious table.
// Version "*" matches every published version; ">=X" matches any version
// that sorts not below X under the ecosystem's ordering.
type MaliciousEntry struct {
	Ecosystem string
	Name      string
	Version   string
	Severity  findings.Severity
	Reason    string
}

// knownMalicious is the built-in table of packages with published security
// advisories. Loaded once at startup and immutable thereafter.
var knownMalicious = []MaliciousEntry{
	// PyPI
	{PyPI, "ctx", "0.1.2", findings.SeverityCritical, "hijacked release exfiltrating environment variables (CVE-2022-30877)"},
	{PyPI, "ctx", ">=0.2.0", findings.SeverityCritical, "attacker-published follow-up releases of hijacked package"},
	{PyPI, "colourama", "*", findings.SeverityCritical, "typosquat of colorama installing a clipboard hijacker"},
	{PyPI, "jeilyfish", "*", findings.SeverityCritical, "typosquat of jellyfish stealing SSH and GPG keys"},
	{PyPI, "python3-dateutil", "*", findings.SeverityCritical, "typosquat of python-dateutil with credential theft payload"},
	{PyPI, "fastapi-toolkit", "*", findings.SeverityHigh, "embedded remote-access backdoor in FastAPI helper package"},

	// npm
	{NPM, "event-stream", "3.3.6", findings.SeverityCritical, "flatmap-stream injection targeting cryptocurrency wallets"},
	{NPM, "flatmap-stream", "*", findings.SeverityCritical, "malicious payload injected into event-stream"},
	{NPM, "eslint-scope", "3.7.2", findings.SeverityCritical, "compromised release stealing npm credentials"},
	{NPM, "ua-parser-js", ">=0.7.29", findings.SeverityHigh, "compromised releases dropping cryptominers and password stealers"},
	{NPM, "coa", "2.0.3", findings.SeverityCritical, "compromised release executing a credential-stealing preinstall script"},
	{NPM, "rc", "1.2.9", findings.SeverityCritical, "compromised release executing a credential-stealing preinstall script"},
	{NPM, "node-ipc", ">=10.1.1", findings.SeverityHigh, "protestware releases overwriting files based on geolocation"},
}

// LookupMalicious checks (ecosystem, name, version) against the known-
// malicious table. Returns nil when no entry matches. Matching rules:
// wildcard "*" on either side matches; otherwise exact string match; as a
// fallback, ">=X" table entries match when the queried version sorts not
// below X.
func LookupMalicious(eco, name, version string) *MaliciousEntry {
	name = strings.ToLower(strings.TrimSpace(name))
	for i := range knownMalicious {
		e := &knownMalicious[i]
		if e.Ecosystem != eco || e.Name != name {
			continue
		}
		if e.Version == "*" || version == "*" || e.Version == version {
			return e
		}
		if min, ok := strings.CutPrefix(e.Version, ">="); ok && versionAtLeast(version, min) {
			return e
		}
	}
	return nil
}

// versionAtLeast reports whether v sorts not below min. Both sides are
// parsed leniently (missing segments coerced); unparseable versions fall
// back to string comparison so a malformed query never panics.
func versionAtLeast(v, min string) bool {
	ver, err1 := semver.NewVersion(strings.TrimPrefix(v, "v"))
	floor, err2 := semver.NewVersion(strings.TrimPrefix(min, "v"))
	if err1 != nil || err2 != nil {
		return v >= min
	}
	return !ver.LessThan(floor)
}
