package registry

import (
	"fmt"
	"regexp"
	"strings"
)

var localbase = regexp.MustCompile(`(?i)^http://(127\.[\d.]+|\[?[0:]+1\]?|localhost)`)

// Path addresses one repository of a v2 registry.
type Path struct {
	Base      string
	Workspace string
	Repo      string
}

// String returns the workspace/repo form used in messages.
func (p Path) String() string {
	return fmt.Sprintf("%s/%s", p.Workspace, p.Repo)
}

// Endpoint returns a v2 API endpoint below the repository, e.g.
// Endpoint("app", "manifests", "v1") or Endpoint("_catalog").
func (p Path) Endpoint(segments ...string) string {
	return fmt.Sprintf("%s/v2/%s/%s/%s",
		p.host(),
		p.Workspace,
		p.Repo,
		strings.Join(segments, "/"))
}

// host normalizes the base URL. A base without a scheme gets https;
// plain http is only kept for local addresses.
func (p Path) host() string {
	base := strings.TrimRight(p.Base, "/")

	if !strings.Contains(base, "://") {
		return "https://" + base
	}

	if strings.HasPrefix(base, "http://") && !localbase.MatchString(base) {
		return "https://" + strings.TrimPrefix(base, "http://")
	}

	return base
}
