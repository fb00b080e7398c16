// Package pypi fetches package metadata from the PyPI JSON API.
package pypi

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/depsentry/depsentry/pkg/integrations"
)

// DefaultBaseURL is the public PyPI JSON API endpoint.
const DefaultBaseURL = "https://pypi.org/pypi"

// Client fetches package metadata from PyPI. Safe for concurrent use.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates a PyPI client against the public JSON API.
func NewClient() *Client {
	return NewClientWithBaseURL(DefaultBaseURL)
}

// NewClientWithBaseURL creates a client against a custom endpoint;
// tests point this at an httptest server.
func NewClientWithBaseURL(baseURL string) *Client {
	return &Client{
		Client:  integrations.NewClient(integrations.PyPITimeout, nil),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// PackageURL returns the canonical no-version metadata URL for name.
func (c *Client) PackageURL(name string) string {
	return fmt.Sprintf("%s/%s/json", c.baseURL, integrations.NormalizePkgName(name))
}

// FetchVersion retrieves the metadata for an exact release.
func (c *Client) FetchVersion(ctx context.Context, name, version string) (*integrations.PackageMetadata, error) {
	url := fmt.Sprintf("%s/%s/%s/json", c.baseURL, integrations.NormalizePkgName(name), version)
	return c.fetch(ctx, name, url)
}

// FetchLatest queries the no-version endpoint; PyPI reports the latest
// release in info.version.
func (c *Client) FetchLatest(ctx context.Context, name string) (*integrations.PackageMetadata, error) {
	return c.fetch(ctx, name, c.PackageURL(name))
}

// FetchRaw retrieves the full JSON document as a generic map for the
// reputation scorer (upload times, author, project URLs).
func (c *Client) FetchRaw(ctx context.Context, name string) (map[string]any, error) {
	var raw map[string]any
	if err := c.GetJSON(ctx, c.PackageURL(name), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) fetch(ctx context.Context, name, url string) (*integrations.PackageMetadata, error) {
	var doc apiResponse
	if err := c.GetJSON(ctx, url, &doc); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return nil, fmt.Errorf("%w: pypi package %s", err, name)
		}
		return nil, err
	}

	return &integrations.PackageMetadata{
		Name:          integrations.NormalizePkgName(doc.Info.Name),
		Version:       doc.Info.Version,
		Ecosystem:     "pypi",
		Dependencies:  ParseRequiresDist(doc.Info.RequiresDist),
		RepositoryURL: repositoryURL(doc.Info),
	}, nil
}

// ParseRequiresDist extracts runtime dependencies from requires_dist lines.
// Requirements guarded by an extra marker are optional and excluded;
// remaining environment markers (after ";") are stripped. Each line splits
// on whitespace into a name and the rest of the version spec.
func ParseRequiresDist(requires []string) map[string]string {
	deps := make(map[string]string, len(requires))
	for _, req := range requires {
		if strings.Contains(req, "extra ==") || strings.Contains(req, "extra==") {
			continue
		}
		if i := strings.Index(req, ";"); i >= 0 {
			req = req[:i]
		}
		req = strings.TrimSpace(req)
		if req == "" {
			continue
		}

		name, spec := req, ""
		if fields := strings.Fields(req); len(fields) > 1 {
			name = fields[0]
			spec = strings.Join(fields[1:], "")
		} else if i := strings.IndexAny(req, "><=!~("); i > 0 {
			name = req[:i]
			spec = req[i:]
		}
		name = strings.TrimSpace(name)
		// Inline extras like "requests[socks]" refer to the base package.
		if i := strings.Index(name, "["); i > 0 {
			name = name[:i]
		}
		spec = strings.Trim(spec, "()")

		if name == "" {
			continue
		}
		deps[integrations.NormalizePkgName(name)] = spec
	}
	return deps
}

func repositoryURL(info apiInfo) string {
	if s, ok := info.ProjectURLs["Source"].(string); ok && s != "" {
		return s
	}
	return info.HomePage
}

type apiResponse struct {
	Info apiInfo `json:"info"`
}

type apiInfo struct {
	Name         string         `json:"name"`
	Version      string         `json:"version"`
	RequiresDist []string       `json:"requires_dist"`
	ProjectURLs  map[string]any `json:"project_urls"`
	HomePage     string         `json:"home_page"`
	Author       string         `json:"author"`
}
