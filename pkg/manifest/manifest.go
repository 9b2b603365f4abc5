// Package manifest extracts child digests and platforms from manifest
// responses. A response is either a structured manifest list or an
// opaque document that still may carry digest and architecture fields
// at unknown depth; the two shapes are handled as explicit strategies
// tried in order.
package manifest

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cloudsmith-io/support-engineering/pkg/jsonscan"
)

// Document is one parsed manifest response.
type Document struct {
	index *ocispec.Index
	raw   []byte
}

// Parse reads a manifest response. It never fails: a document that does
// not look like a usable manifest list keeps only its opaque form and
// is queried by recursive scan instead.
func Parse(raw []byte) Document {
	doc := Document{raw: raw}

	var idx ocispec.Index
	if err := json.Unmarshal(raw, &idx); err != nil {
		return doc
	}

	// a list is only usable if at least one entry names an architecture
	for _, m := range idx.Manifests {
		if m.Platform != nil && m.Platform.Architecture != "" {
			doc.index = &idx
			break
		}
	}

	return doc
}

// Structured reports whether the document parsed as a manifest list.
func (d Document) Structured() bool {
	return d.index != nil
}

// Digests returns the child digests of the document, normalized,
// deduplicated and lexically sorted. Entries with an unknown
// architecture describe attestation blobs rather than image variants
// and are skipped. An empty result means the document references no
// resolvable children, which callers treat as a skip, not an error.
func (d Document) Digests() []digest.Digest {
	seen := make(map[digest.Digest]bool)
	var out []digest.Digest

	add := func(s string) {
		if s == "" {
			return
		}
		dg := Normalize(s)
		if !seen[dg] {
			seen[dg] = true
			out = append(out, dg)
		}
	}

	if d.index != nil {
		for _, m := range d.index.Manifests {
			if !unknownArch(m) {
				add(string(m.Digest))
			}
		}
	} else {
		for _, s := range jsonscan.Strings(d.raw, "digest") {
			add(s)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Platforms returns the sorted "os/architecture" strings of the list
// entries matching the given digest. When no entry matches, the whole
// document is scanned for architecture values instead. The result is
// never empty: a document that reveals nothing yields {"unknown"}, as
// the report renders a platform cell for every row.
func (d Document) Platforms(dg digest.Digest) []string {
	set := make(map[string]bool)

	if d.index != nil {
		for _, m := range d.index.Manifests {
			if m.Platform != nil && Normalize(string(m.Digest)) == dg {
				set[platformString(m.Platform)] = true
			}
		}
	}

	if len(set) == 0 {
		for _, arch := range jsonscan.Strings(d.raw, "architecture") {
			if arch != "" {
				set[arch] = true
			}
		}
	}

	if len(set) == 0 {
		return []string{"unknown"}
	}

	return sorted(set)
}

// AllPlatforms returns the platform set across every list entry,
// including unknown-architecture ones. It feeds the list-level summary
// cell, where attestation entries are still worth showing.
func (d Document) AllPlatforms() []string {
	if d.index == nil {
		return []string{"unknown"}
	}

	set := make(map[string]bool)
	for _, m := range d.index.Manifests {
		set[platformString(m.Platform)] = true
	}

	return sorted(set)
}

// Normalize returns the sha256-prefixed form of a digest string. Bare
// hex input gains the prefix, qualified input passes through unchanged,
// so the function is idempotent. The package catalog stores the bare
// form while manifests store the qualified one; this is the join key
// between the two.
func Normalize(s string) digest.Digest {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, ":") {
		return digest.NewDigestFromEncoded(digest.SHA256, s)
	}
	return digest.Digest(s)
}

func unknownArch(m ocispec.Descriptor) bool {
	if m.Platform == nil || m.Platform.Architecture == "" {
		return true
	}
	return strings.EqualFold(m.Platform.Architecture, "unknown")
}

// platformString renders a platform as "os/architecture", defaulting
// the blanks the way registries commonly leave them.
func platformString(p *ocispec.Platform) string {
	os, arch := "linux", "unknown"
	if p != nil {
		if p.OS != "" {
			os = p.OS
		}
		if p.Architecture != "" {
			arch = p.Architecture
		}
	}
	return os + "/" + arch
}

func sorted(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
