package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func restore(t *testing.T) {
	t.Helper()
	v, r, d := Version, Revision, BuildDate
	t.Cleanup(func() {
		Version, Revision, BuildDate = v, r, d
	})
}

func TestStrings(t *testing.T) {
	restore(t)
	Version, Revision, BuildDate = "1.0.0", "abcdef1234567890", "2025-01-02T03:04:05Z"

	assert.Equal(t, "1.0.0 (abcdef123456)", Short())
	assert.Contains(t, Detailed(), "1.0.0 (abcdef123456; go")
	assert.Contains(t, Detailed(), "2025-01-02T03:04:05Z")

	info := Current()
	assert.Equal(t, "stsync", info.App)
	assert.Contains(t, info.Platform, "/")
}

func TestApplyBuildInfo_FillsDefaults(t *testing.T) {
	restore(t)
	Version, Revision, BuildDate = devVersion, "HEAD", ""

	applyBuildInfo("v9.9.9", map[string]string{
		"vcs.revision": "abcdef1234567890",
		"vcs.modified": "true",
		"vcs.time":     "2025-12-12T01:00:00Z",
	})

	assert.Equal(t, "9.9.9", Version)
	assert.Equal(t, "abcdef1234567890-dirty", Revision)
	assert.Equal(t, "2025-12-12T01:00:00Z", BuildDate)
	assert.Equal(t, "9.9.9 (abcdef1234567890-dirty)", Short())
}

func TestApplyBuildInfo_KeepsLdflags(t *testing.T) {
	restore(t)
	Version, Revision, BuildDate = "1.2.3", "deadbeef", "from-ldflags"

	applyBuildInfo("(devel)", map[string]string{
		"vcs.revision": "abcdef",
		"vcs.time":     "2025-12-12T01:00:00Z",
	})

	assert.Equal(t, "1.2.3", Version)
	assert.Equal(t, "deadbeef", Revision)
	assert.Equal(t, "from-ldflags", BuildDate)
}
