package pypi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/depsentry/depsentry/pkg/integrations"
)

func TestParseRequiresDist(t *testing.T) {
	requires := []string{
		"urllib3 (<3,>=1.21.1)",
		"charset-normalizer<4,>=2",
		"PySocks!=1.5.7,>=1.5.6 ; extra == 'socks'",
		"idna (<4,>=2.5) ; python_version >= \"3\"",
		"win-inet-pton ; sys_platform == \"win32\" and extra == 'socks'",
		"certifi>=2017.4.17",
		"requests[security] >= 2.0",
		"",
	}

	got := ParseRequiresDist(requires)
	want := map[string]string{
		"urllib3":            "<3,>=1.21.1",
		"charset-normalizer": "<4,>=2",
		"idna":               "<4,>=2.5",
		"certifi":            ">=2017.4.17",
		"requests":           ">=2.0",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("requires_dist mismatch (-want +got):\n%s", diff)
	}
}

func api(t *testing.T, routes map[string]string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClientWithBaseURL(srv.URL)
}

func TestFetchVersion(t *testing.T) {
	c := api(t, map[string]string{
		"/requests/2.31.0/json": `{
		  "info": {
		    "name": "Requests",
		    "version": "2.31.0",
		    "requires_dist": ["urllib3 (<3,>=1.21.1)", "certifi>=2017.4.17"],
		    "project_urls": {"Source": "https://github.com/psf/requests"},
		    "home_page": "https://requests.readthedocs.io"
		  }
		}`,
	})

	m, err := c.FetchVersion(context.Background(), "Requests", "2.31.0")
	if err != nil {
		t.Fatalf("FetchVersion: %v", err)
	}
	want := &integrations.PackageMetadata{
		Name:      "requests",
		Version:   "2.31.0",
		Ecosystem: "pypi",
		Dependencies: map[string]string{
			"urllib3": "<3,>=1.21.1",
			"certifi": ">=2017.4.17",
		},
		RepositoryURL: "https://github.com/psf/requests",
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchLatest(t *testing.T) {
	c := api(t, map[string]string{
		"/flask/json": `{
		  "info": {
		    "name": "Flask",
		    "version": "3.0.3",
		    "requires_dist": null,
		    "home_page": "https://flask.palletsprojects.com"
		  }
		}`,
	})

	m, err := c.FetchLatest(context.Background(), "Flask")
	if err != nil {
		t.Fatalf("FetchLatest: %v", err)
	}
	if m.Name != "flask" || m.Version != "3.0.3" {
		t.Errorf("latest = %s@%s", m.Name, m.Version)
	}
	// home_page fallback when no Source project URL exists.
	if m.RepositoryURL != "https://flask.palletsprojects.com" {
		t.Errorf("repository = %q", m.RepositoryURL)
	}
}

func TestFetchVersionNotFound(t *testing.T) {
	c := api(t, nil)
	_, err := c.FetchVersion(context.Background(), "ghost", "1.0.0")
	if !errors.Is(err, integrations.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestPackageURLNormalizesName(t *testing.T) {
	c := NewClientWithBaseURL("https://pypi.example")
	if got := c.PackageURL("My_Package"); got != "https://pypi.example/my-package/json" {
		t.Errorf("PackageURL = %q", got)
	}
}
