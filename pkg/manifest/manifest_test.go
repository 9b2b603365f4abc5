package manifest

import (
	"fmt"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
)

func entry(dg, os, arch string) string {
	return fmt.Sprintf(`{
		"mediaType": "application/vnd.oci.image.manifest.v1+json",
		"size": 123,
		"digest": %q,
		"platform": {"os": %q, "architecture": %q}
	}`, dg, os, arch)
}

func list(entries ...string) []byte {
	doc := `{"schemaVersion": 2, "manifests": [`
	for i, e := range entries {
		if i > 0 {
			doc += ","
		}
		doc += e
	}
	return []byte(doc + `]}`)
}

func TestDigestsSortedUnique(t *testing.T) {
	doc := Parse(list(
		entry("sha256:ccc", "linux", "arm64"),
		entry("sha256:aaa", "linux", "amd64"),
		entry("sha256:ccc", "linux", "arm64"),
		entry("sha256:bbb", "windows", "amd64"),
	))

	assert.True(t, doc.Structured())
	assert.Equal(t,
		[]digest.Digest{"sha256:aaa", "sha256:bbb", "sha256:ccc"},
		doc.Digests())
}

func TestDigestsExcludeUnknownArchitectures(t *testing.T) {
	doc := Parse(list(
		entry("sha256:aaa", "linux", "amd64"),
		entry("sha256:att", "unknown", "unknown"),
		entry("sha256:att2", "unknown", "UNKNOWN"),
	))

	assert.Equal(t, []digest.Digest{"sha256:aaa"}, doc.Digests())
}

func TestDigestsAllUnknownIsEmpty(t *testing.T) {
	doc := Parse(list(
		entry("sha256:att", "unknown", "unknown"),
		entry("sha256:att2", "unknown", "unknown"),
	))

	// the list is structured (the entries do name an architecture) but
	// every entry is an attestation, so there are no children to report
	assert.True(t, doc.Structured())
	assert.Empty(t, doc.Digests())

	doc = Parse(list())
	assert.Empty(t, doc.Digests())
}

func TestDigestsFallbackScan(t *testing.T) {
	doc := Parse([]byte(`{
		"schemaVersion": 2,
		"config": {"digest": "sha256:bbb"},
		"layers": [{"digest": "sha256:aaa"}, {"digest": "sha256:aaa"}]
	}`))

	assert.False(t, doc.Structured())
	assert.Equal(t, []digest.Digest{"sha256:aaa", "sha256:bbb"}, doc.Digests())
}

func TestDigestsNeverFailOnMalformedInput(t *testing.T) {
	assert.Empty(t, Parse(nil).Digests())
	assert.Empty(t, Parse([]byte("not json")).Digests())
	assert.Empty(t, Parse([]byte(`{"manifests": "nope"}`)).Digests())
}

func TestPlatformsForDigest(t *testing.T) {
	doc := Parse(list(
		entry("sha256:aaa", "linux", "amd64"),
		entry("sha256:aaa", "windows", "amd64"),
		entry("sha256:bbb", "linux", "arm64"),
	))

	assert.Equal(t, []string{"linux/amd64", "windows/amd64"}, doc.Platforms("sha256:aaa"))
	assert.Equal(t, []string{"linux/arm64"}, doc.Platforms("sha256:bbb"))
}

func TestPlatformsNeverEmpty(t *testing.T) {
	doc := Parse([]byte(`{"layers": [{"digest": "sha256:aaa"}]}`))
	assert.Equal(t, []string{"unknown"}, doc.Platforms("sha256:aaa"))

	doc = Parse([]byte(`{"architecture": "amd64", "os": "linux"}`))
	assert.Equal(t, []string{"amd64"}, doc.Platforms("sha256:missing"))

	assert.Equal(t, []string{"unknown"}, Parse(nil).Platforms("sha256:aaa"))
}

func TestPlatformsDefaultsMissingOS(t *testing.T) {
	doc := Parse([]byte(`{"manifests": [{
		"digest": "sha256:aaa",
		"platform": {"architecture": "amd64"}
	}]}`))

	assert.Equal(t, []string{"linux/amd64"}, doc.Platforms("sha256:aaa"))
}

func TestAllPlatforms(t *testing.T) {
	doc := Parse(list(
		entry("sha256:aaa", "linux", "amd64"),
		entry("sha256:bbb", "linux", "arm64"),
		entry("sha256:att", "unknown", "unknown"),
	))

	assert.Equal(t,
		[]string{"linux/amd64", "linux/arm64", "unknown/unknown"},
		doc.AllPlatforms())

	assert.Equal(t, []string{"unknown"}, Parse([]byte(`{}`)).AllPlatforms())
}

func TestNormalizeIdempotent(t *testing.T) {
	hex := "4bcdc1b2378b4a96f6b2d1b9b1c0a7d6e8a3b1a0f2e9d8c7b6a5f4e3d2c1b0a9"

	assert.Equal(t, Normalize("sha256:"+hex), Normalize(hex))
	assert.Equal(t, Normalize(hex), Normalize(string(Normalize(hex))))
	assert.Equal(t, digest.Digest("sha256:abc"), Normalize("abc"))
	assert.Equal(t, digest.Digest(""), Normalize("  "))
}
