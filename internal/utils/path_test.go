package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	_, err := ResolvePath("")
	assert.Error(t, err)

	got, err := ResolvePath("/tmp/a/../b")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("/tmp/b"), got)

	got, err = ResolvePath("rel/dir")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	got, err = ResolvePath("~/stsync")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "stsync"), got)
}

func TestEnsureParent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "file.db")

	require.NoError(t, EnsureParent(path))
	assert.DirExists(t, filepath.Join(dir, "a", "b"))
	require.NoError(t, EnsureParent(path))

	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	assert.Error(t, EnsureDir(blocker))
}
