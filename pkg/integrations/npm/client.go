// Package npm fetches package metadata from the npm registry.
package npm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/depsentry/depsentry/pkg/integrations"
)

// DefaultBaseURL is the public npm registry endpoint.
const DefaultBaseURL = "https://registry.npmjs.org"

// Client fetches package metadata from an npm-compatible registry.
// Safe for concurrent use.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates an npm registry client against the public registry.
func NewClient() *Client {
	return NewClientWithBaseURL(DefaultBaseURL)
}

// NewClientWithBaseURL creates a client against a custom registry endpoint;
// tests point this at an httptest server.
func NewClientWithBaseURL(baseURL string) *Client {
	return &Client{
		Client:  integrations.NewClient(integrations.NPMTimeout, nil),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// EscapeName encodes a package name for use in a registry URL path.
// Scoped names keep their @ percent-encoded and the scope slash intact
// ("@babel/core" → "%40babel/core").
func EscapeName(name string) string {
	return strings.Replace(name, "@", "%40", 1)
}

// PackageURL returns the canonical package-level metadata URL for name.
func (c *Client) PackageURL(name string) string {
	return c.baseURL + "/" + EscapeName(name)
}

// FetchVersion retrieves the metadata for an exact published version.
func (c *Client) FetchVersion(ctx context.Context, name, version string) (*integrations.PackageMetadata, error) {
	var v versionDoc
	url := c.PackageURL(name) + "/" + version
	if err := c.GetJSON(ctx, url, &v); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return nil, fmt.Errorf("%w: npm package %s@%s", err, name, version)
		}
		return nil, err
	}
	return v.metadata(name), nil
}

// FetchLatest resolves the registry's latest version for name and returns
// its metadata. It prefers dist-tags.latest and falls back to the last key
// of the versions map when the tag is absent.
func (c *Client) FetchLatest(ctx context.Context, name string) (*integrations.PackageMetadata, error) {
	var doc packageDoc
	if err := c.GetJSON(ctx, c.PackageURL(name), &doc); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return nil, fmt.Errorf("%w: npm package %s", err, name)
		}
		return nil, err
	}

	latest := doc.DistTags.Latest
	if latest == "" {
		keys := slices.Sorted(maps.Keys(doc.Versions))
		if len(keys) == 0 {
			return nil, fmt.Errorf("npm package %s has no versions", name)
		}
		latest = keys[len(keys)-1]
	}
	v, ok := doc.Versions[latest]
	if !ok {
		return nil, fmt.Errorf("npm package %s: version %s not in document", name, latest)
	}
	v.Version = latest
	return v.metadata(name), nil
}

// FetchRaw retrieves the full package-level registry document as a generic
// map. The reputation scorer reads creation/modification times and
// maintainer lists from it.
func (c *Client) FetchRaw(ctx context.Context, name string) (map[string]any, error) {
	var raw map[string]any
	if err := c.GetJSON(ctx, c.PackageURL(name), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

type packageDoc struct {
	Name     string                `json:"name"`
	DistTags distTags              `json:"dist-tags"`
	Versions map[string]versionDoc `json:"versions"`
}

type distTags struct {
	Latest string `json:"latest"`
}

type versionDoc struct {
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	Dependencies     map[string]string `json:"dependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
	Repository       any               `json:"repository"`
}

// metadata converts a version document into the shared metadata form.
// Dependencies are the union of runtime and peer dependencies; peer entries
// do not override runtime specs for the same name.
func (v versionDoc) metadata(fallbackName string) *integrations.PackageMetadata {
	name := v.Name
	if name == "" {
		name = fallbackName
	}
	deps := make(map[string]string, len(v.Dependencies)+len(v.PeerDependencies))
	maps.Copy(deps, v.PeerDependencies)
	maps.Copy(deps, v.Dependencies)

	return &integrations.PackageMetadata{
		Name:          name,
		Version:       v.Version,
		Ecosystem:     "npm",
		Dependencies:  deps,
		RepositoryURL: integrations.NormalizeRepoURL(repositoryURL(v.Repository)),
	}
}

// repositoryURL handles the two published shapes of the repository field:
// a bare string or an object with a url key.
func repositoryURL(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if s, ok := val["url"].(string); ok {
			return s
		}
	}
	return ""
}
