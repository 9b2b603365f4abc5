package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/opencontainers/go-digest"

	"github.com/cloudsmith-io/support-engineering/pkg/manifest"
	"github.com/cloudsmith-io/support-engineering/pkg/packages"
)

// manifestListType is the package type of a multi-arch index in the
// catalog.
const manifestListType = "manifest/list"

// UntaggedList is one untagged manifest-list package together with its
// resolved children.
type UntaggedList struct {
	Digest    digest.Digest
	Platforms []string
	Status    string
	Downloads int64
	Slug      string
	Rows      []DigestRow
}

// FindUntagged returns the manifest-list packages of an image that
// carry no version tags, in catalog order. With detailed set, each
// list's children are resolved like tag children; without it the
// per-child metadata queries are skipped.
func (a *Auditor) FindUntagged(ctx context.Context, image string, detailed bool) ([]UntaggedList, error) {
	records, err := a.Packages.List(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("listing packages for %s: %v", image, err)
	}

	var untagged []packages.Package
	for _, p := range records {
		if p.TypeDisplay == manifestListType && !p.Tagged() {
			untagged = append(untagged, p)
		}
	}

	results := make([]UntaggedList, len(untagged))

	var wg sync.WaitGroup
	sem := make(chan struct{}, poolSize)

	for i, p := range untagged {
		wg.Add(1)
		go func(i int, p packages.Package) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = a.resolveUntagged(ctx, image, p, detailed)
		}(i, p)
	}

	wg.Wait()
	return results, nil
}

// resolveUntagged fills in the manifest-derived parts of one untagged
// record. A manifest fetch failure degrades the platform cell to
// unknown; the record itself still reports.
func (a *Auditor) resolveUntagged(ctx context.Context, image string, p packages.Package, detailed bool) UntaggedList {
	lst := UntaggedList{
		Digest:    manifest.Normalize(p.Version),
		Platforms: []string{"unknown"},
		Status:    p.Status,
		Downloads: p.Downloads,
		Slug:      p.Slug,
	}

	raw, err := a.Registry.Manifest(ctx, image, string(lst.Digest))
	if err != nil {
		return lst
	}

	doc := manifest.Parse(raw)
	lst.Platforms = doc.AllPlatforms()

	if detailed {
		for _, dg := range doc.Digests() {
			lst.Rows = append(lst.Rows, a.resolveDigest(ctx, doc, dg))
		}
	}

	return lst
}

// DeleteFailure records one failed package deletion.
type DeleteFailure struct {
	Slug string
	Err  error
}

// DeleteUntagged deletes the given untagged packages by slug. Deletion
// is best effort and irreversible: a failure is recorded and the
// remaining records are still processed.
func (a *Auditor) DeleteUntagged(ctx context.Context, lists []UntaggedList) []DeleteFailure {
	var failures []DeleteFailure

	for _, l := range lists {
		if l.Slug == "" {
			continue
		}
		if err := a.Packages.Delete(ctx, l.Slug); err != nil {
			failures = append(failures, DeleteFailure{Slug: l.Slug, Err: err})
		}
	}

	return failures
}
