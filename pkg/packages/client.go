// Package packages talks to the Cloudsmith package-management REST API:
// querying package records by version, listing them by name and deleting
// them by slug.
package packages

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/cloudsmith-io/support-engineering/pkg/jsonscan"
)

// DefaultBase is the API root used when BaseEnv is not set.
const DefaultBase = "https://api.cloudsmith.io"

// BaseEnv overrides the API root, mainly for tests and self-hosted
// installations.
const BaseEnv = "CLOUDSMITH_API_URL"

// Package is one record of the package catalog.
type Package struct {
	Slug        string `json:"slug"`
	Status      string `json:"status_str"`
	Downloads   int64  `json:"downloads"`
	Version     string `json:"version"`
	TypeDisplay string `json:"type_display"`
	Tags        Tags   `json:"tags"`
}

// Tags holds the tag associations of a package. Cloudsmith groups them
// by kind; the version tags are the ones the audit cares about.
type Tags struct {
	Version []string `json:"version"`
}

// Tagged reports whether the package has at least one version tag.
func (p Package) Tagged() bool {
	return len(p.Tags.Version) > 0
}

// QueryResult is a decoded query response together with its raw body.
// Status and download figures are collected from the raw document in
// order: a digest query may match a package together with a related
// variant, and the positional layout carries that relationship.
type QueryResult struct {
	Packages []Package
	Raw      []byte
}

// Statuses returns every status_str in the response, in document order.
func (r *QueryResult) Statuses() []string {
	return jsonscan.Strings(r.Raw, "status_str")
}

// Downloads returns every downloads figure in the response, in document
// order.
func (r *QueryResult) Downloads() []int64 {
	return jsonscan.Numbers(r.Raw, "downloads")
}

// Client issues requests against the package API of one repository.
type Client struct {
	http      *http.Client
	base      string
	workspace string
	repo      string
}

// New returns a client for the given workspace and repository. The API
// root is taken from BaseEnv, falling back to DefaultBase.
func New(client *http.Client, workspace, repo string) *Client {
	base := os.Getenv(BaseEnv)
	if base == "" {
		base = DefaultBase
	}

	return &Client{
		http:      client,
		base:      strings.TrimRight(base, "/"),
		workspace: workspace,
		repo:      repo,
	}
}

// Query runs a package search, e.g. "version:<hex>" or "name:<image>".
func (c *Client) Query(ctx context.Context, query string) (*QueryResult, error) {
	u := fmt.Sprintf("%s?%s", c.endpoint(), url.Values{"query": {query}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("error building request for %s: %v", u, err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error requesting %s: %v", u, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s failed with %s", u, res.Status)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response from %s: %v", u, err)
	}

	result := &QueryResult{Raw: body}

	// responses are normally an array of records, but tolerate a single
	// object as well
	if err := json.Unmarshal(body, &result.Packages); err != nil {
		var one Package
		if err := json.Unmarshal(body, &one); err == nil && (one.Slug != "" || one.Version != "") {
			result.Packages = []Package{one}
		}
	}

	return result, nil
}

// List returns the packages whose name matches the given image.
func (c *Client) List(ctx context.Context, image string) ([]Package, error) {
	result, err := c.Query(ctx, "name:"+image)
	if err != nil {
		return nil, err
	}
	return result.Packages, nil
}

// Delete removes a package by its slug. Irreversible.
func (c *Client) Delete(ctx context.Context, slug string) error {
	u := c.endpoint(slug)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("error building request for %s: %v", u, err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("error requesting %s: %v", u, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("DELETE %s failed with %s", u, res.Status)
	}

	return nil
}

// endpoint returns the packages endpoint, with an optional slug
// segment. The API requires the trailing slash.
func (c *Client) endpoint(segments ...string) string {
	parts := append([]string{c.base, "v1", "packages", c.workspace, c.repo}, segments...)
	return strings.Join(parts, "/") + "/"
}
