// Package registry reads manifests, tag lists and the catalog of a
// repository through the Docker Registry v2 API.
package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cloudsmith-io/support-engineering/pkg/jsonscan"
)

// Client issues read requests against one repository.
type Client struct {
	http *http.Client
	path Path
}

// New returns a client for the given repository using the given http
// client for transport and authentication.
func New(client *http.Client, path Path) *Client {
	return &Client{http: client, path: path}
}

// Path returns the repository the client is bound to.
func (c *Client) Path() Path {
	return c.path
}

// Manifest fetches the raw manifest document for a tag or digest. The
// OCI manifest media type is requested; registries answer with a
// manifest list for multi-arch references regardless.
func (c *Client) Manifest(ctx context.Context, image, ref string) ([]byte, error) {
	return c.get(ctx, ocispec.MediaTypeImageManifest, image, "manifests", ref)
}

// Tags returns the tag names of an image, deduplicated and sorted. The
// tags document is treated as loosely shaped: every string under a
// "tags" key counts, however deeply it is nested.
func (c *Client) Tags(ctx context.Context, image string) ([]string, error) {
	body, err := c.get(ctx, "application/json", image, "tags", "list")
	if err != nil {
		return nil, err
	}
	return dedupe(jsonscan.Strings(body, "tags")), nil
}

// Catalog returns the image names hosted in the repository.
func (c *Client) Catalog(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, "application/json", "_catalog")
	if err != nil {
		return nil, err
	}
	return dedupe(jsonscan.Strings(body, "repositories")), nil
}

func (c *Client) get(ctx context.Context, accept string, segments ...string) ([]byte, error) {
	url := c.path.Endpoint(segments...)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error building request for %s: %v", url, err)
	}
	req.Header.Set("Accept", accept)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error requesting %s: %v", url, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s failed with %s", url, res.Status)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response from %s: %v", url, err)
	}

	return body, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(values))

	for _, v := range values {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	sort.Strings(out)
	return out
}
