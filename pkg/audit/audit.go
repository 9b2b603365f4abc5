// Package audit joins registry manifests with package metadata into the
// per-tag hierarchy the report renders: one row per child digest with
// platform, sync status and download count, plus a per-tag download
// rollup that neither API exposes on its own.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/opencontainers/go-digest"

	"github.com/cloudsmith-io/support-engineering/pkg/manifest"
	"github.com/cloudsmith-io/support-engineering/pkg/packages"
)

// Registry is the slice of the registry client the auditor needs.
type Registry interface {
	Manifest(ctx context.Context, image, ref string) ([]byte, error)
	Tags(ctx context.Context, image string) ([]string, error)
	Catalog(ctx context.Context) ([]string, error)
}

// PackageAPI is the slice of the package client the auditor needs.
type PackageAPI interface {
	Query(ctx context.Context, query string) (*packages.QueryResult, error)
	List(ctx context.Context, image string) ([]packages.Package, error)
	Delete(ctx context.Context, slug string) error
}

// ErrNoDigests marks a tag whose manifest references no resolvable
// children. The tag is skipped; the run continues.
var ErrNoDigests = errors.New("no digests found")

// poolSize bounds the number of tags or untagged lists resolved at
// once. Lookups within one tag stay sequential, so row order and the
// per-tag total need no synchronization.
const poolSize = 10

// DigestRow is one child digest of a manifest list, resolved against
// the package catalog. Statuses and Downloads degrade to empty and zero
// when the catalog has nothing for the digest.
type DigestRow struct {
	Digest    digest.Digest
	Platforms []string
	Statuses  []string
	Downloads int64
}

// TagReport is the resolved hierarchy of one tag: index-level metadata,
// one row per child digest in digest order, and the download rollup.
type TagReport struct {
	Tag            string
	Status         string
	IndexDigest    digest.Digest
	Rows           []DigestRow
	TotalDownloads int64
}

// Auditor correlates the two APIs for one repository.
type Auditor struct {
	Registry Registry
	Packages PackageAPI
}

// ResolveTag fetches the manifest for a tag and resolves every child
// digest to its platform, status and download figures. The returned
// total is the sum of the per-row chosen values. A manifest fetch
// failure is fatal to this tag only; a metadata failure degrades the
// affected row instead of aborting.
func (a *Auditor) ResolveTag(ctx context.Context, image, tag string) (*TagReport, error) {
	raw, err := a.Registry.Manifest(ctx, image, tag)
	if err != nil {
		return nil, fmt.Errorf("fetching manifest for %s:%s: %v", image, tag, err)
	}

	doc := manifest.Parse(raw)
	digests := doc.Digests()
	if len(digests) == 0 {
		return nil, fmt.Errorf("%s:%s: %w", image, tag, ErrNoDigests)
	}

	report := &TagReport{Tag: tag, Status: "Unknown"}
	for _, dg := range digests {
		row := a.resolveDigest(ctx, doc, dg)
		report.Rows = append(report.Rows, row)
		report.TotalDownloads += row.Downloads
	}

	// index-level metadata comes from a package lookup by tag name,
	// which the catalog resolves like any other version
	if res, err := a.Packages.Query(ctx, "version:"+tag); err == nil && len(res.Packages) > 0 {
		first := res.Packages[0]
		if first.Status != "" {
			report.Status = first.Status
		}
		if first.Version != "" {
			report.IndexDigest = manifest.Normalize(first.Version)
		}
	}

	return report, nil
}

// resolveDigest builds the row for one child digest. The version key
// is the bare hex, which is how the package catalog stores digests.
func (a *Auditor) resolveDigest(ctx context.Context, doc manifest.Document, dg digest.Digest) DigestRow {
	row := DigestRow{Digest: dg, Platforms: doc.Platforms(dg)}

	res, err := a.Packages.Query(ctx, "version:"+dg.Encoded())
	if err != nil {
		// missing metadata degrades the row, it never aborts the tag
		return row
	}

	row.Statuses = digestStatuses(res.Statuses())
	row.Downloads = representativeDownloads(res.Downloads())
	return row
}

// TagResult pairs a tag with its resolution outcome.
type TagResult struct {
	Tag    string
	Report *TagReport
	Err    error
}

// ResolveTags resolves a set of tags on a bounded worker pool. Results
// come back in input order regardless of completion order, as the
// report layout is order-significant.
func (a *Auditor) ResolveTags(ctx context.Context, image string, tags []string) []TagResult {
	results := make([]TagResult, len(tags))

	var wg sync.WaitGroup
	sem := make(chan struct{}, poolSize)

	for i, tag := range tags {
		wg.Add(1)
		go func(i int, tag string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			report, err := a.ResolveTag(ctx, image, tag)
			results[i] = TagResult{Tag: tag, Report: report, Err: err}
		}(i, tag)
	}

	wg.Wait()
	return results
}

// digestStatuses picks the statuses to report for a digest. A two-entry
// response pairs a related record's status with the queried digest's
// own, in that order, so the second entry wins. Larger responses are
// reported in full.
func digestStatuses(statuses []string) []string {
	if len(statuses) == 2 {
		return statuses[1:]
	}
	return statuses
}

// representativeDownloads picks the download count belonging to the
// queried digest. A three-value response is a package-plus-variant
// match with the package's own figure in the middle; anything else uses
// the first value. This mirrors the observed response layout of the
// package API, which does not document the schema. Should the schema
// get confirmed, this function is the only place to correct.
func representativeDownloads(values []int64) int64 {
	switch {
	case len(values) == 3:
		return values[1]
	case len(values) > 0:
		return values[0]
	default:
		return 0
	}
}
