// Package integrations provides the shared HTTP surface for registry
// access: a single client type with retries and typed failures, plus the
// package-name and repository-URL normalization helpers the per-registry
// clients build on. The npm and pypi subpackages wrap it with
// registry-specific metadata parsing.
package integrations

import (
	"errors"
	"strings"
	"time"
)

// UserAgent identifies outbound registry requests.
const UserAgent = "depsentry/1.0 (+https://github.com/depsentry/depsentry)"

// Per-registry request timeouts. PyPI's JSON API is fast and flaky requests
// should fail early; the npm registry serves much larger documents.
const (
	NPMTimeout  = 10 * time.Second
	PyPITimeout = 3 * time.Second
)

var (
	// ErrNotFound is returned when a package or resource doesn't exist (404).
	ErrNotFound = errors.New("resource not found")

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors,
	// 5xx responses).
	ErrNetwork = errors.New("network error")

	// ErrRateLimited is returned on 429 responses after retries are spent.
	ErrRateLimited = errors.New("rate limited")
)

// NormalizePkgName converts a package name to its canonical form: lowercase
// with underscores replaced by hyphens, following PEP 503. npm names are
// already published lowercase so the transform is safe for both registries.
func NormalizePkgName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
}

var repoURLReplacer = strings.NewReplacer(
	"git@github.com:", "https://github.com/",
	"git://github.com/", "https://github.com/",
	"git://", "https://",
)

// NormalizeRepoURL converts repository URL formats to canonical HTTPS form.
// Handles git@, git://, and git+ prefixes, and removes .git suffixes.
// Returns empty string if raw is empty.
func NormalizeRepoURL(raw string) string {
	if raw == "" {
		return ""
	}
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "git+")
	s = repoURLReplacer.Replace(s)
	return strings.TrimSuffix(s, ".git")
}

// PackageMetadata is a registry's description of one concrete package
// version, normalized across ecosystems. Immutable once constructed.
type PackageMetadata struct {
	Name          string            `json:"name"`
	Version       string            `json:"version"`
	Ecosystem     string            `json:"ecosystem"`
	Dependencies  map[string]string `json:"dependencies"`
	RepositoryURL string            `json:"repository_url,omitempty"`
}
