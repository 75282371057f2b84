package snapshot

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/imazen/repositext-sub003/internal/syncerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func history() *Memory {
	m := NewMemory()
	m.Commit("aaaaaa0001", base, map[string][]byte{"content/a.at": []byte("@one"), "content/b.at": []byte("@b")})
	m.Commit("bbbbbb0002", base.Add(time.Hour), map[string][]byte{"content/a.at": []byte("@one @two")})
	m.Commit("cccccc0003", base.Add(2*time.Hour), map[string][]byte{"content/b.at": nil})
	return m
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := history()

	data, ok, err := m.ContentsAsOf(ctx, "content/a.at", "aaaaaa")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "@one", string(data))

	data, ok, err = m.ContentsAsOf(ctx, "content/a.at", "cccccc0003")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "@one @two", string(data))

	_, ok, err = m.ContentsAsOf(ctx, "content/b.at", "cccccc")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = m.ContentsAsOf(ctx, "content/a.at", "ffffff")
	assert.ErrorIs(t, err, syncerr.ErrNotFound)

	head, err := m.ResolveCommit(ctx, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, "cccccc0003", head)
	assert.Equal(t, head, m.Head())

	commit, err := m.LatestCommitAffecting(ctx, "content/a.at", base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "bbbbbb0002", commit)

	commit, err = m.LatestCommitAffecting(ctx, "", base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "bbbbbb0002", commit)

	_, err = m.LatestCommitAffecting(ctx, "", base.Add(-time.Minute))
	assert.ErrorIs(t, err, syncerr.ErrNotFound)

	ts, err := m.CommitTime(ctx, "bbbbbb")
	require.NoError(t, err)
	assert.True(t, ts.Equal(base.Add(time.Hour)))
}

// flaky fails the first n reads with a transient error and counts every call.
type flaky struct {
	Accessor
	failures int32
	calls    atomic.Int32
}

func (f *flaky) ContentsAsOf(ctx context.Context, path, commit string) ([]byte, bool, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, false, syncerr.TransientIO(errors.New("index.lock exists"), "read %s", path)
	}
	return f.Accessor.ContentsAsOf(ctx, path, commit)
}

func noWait() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
}

func TestCached_RetriesAndMemoizes(t *testing.T) {
	ctx := context.Background()
	inner := &flaky{Accessor: history(), failures: 2}
	c := NewCached(inner, WithBackOff(noWait))

	data, ok, err := c.ContentsAsOf(ctx, "content/a.at", "bbbbbb0002")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "@one @two", string(data))
	assert.Equal(t, int32(3), inner.calls.Load())

	// same truncated commit hits the cache
	_, _, err = c.ContentsAsOf(ctx, "content/a.at", "bbbbbb")
	require.NoError(t, err)
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestCached_GivesUp(t *testing.T) {
	inner := &flaky{Accessor: history(), failures: 100}
	c := NewCached(inner, WithBackOff(noWait))

	_, _, err := c.ContentsAsOf(context.Background(), "content/a.at", "bbbbbb")
	assert.ErrorIs(t, err, syncerr.ErrTransientIO)
	assert.Equal(t, int32(4), inner.calls.Load())
}

func TestCached_DoesNotRetryLogicalErrors(t *testing.T) {
	inner := &flaky{Accessor: history()}
	c := NewCached(inner, WithBackOff(noWait))

	_, _, err := c.ContentsAsOf(context.Background(), "content/a.at", "ffffff")
	assert.ErrorIs(t, err, syncerr.ErrNotFound)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func git(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func TestGit(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	ctx := context.Background()
	dir := t.TempDir()

	git(t, dir, "init", "-q")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "content"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "content", "a.at"), []byte("@one"), 0o644))
	git(t, dir, "add", ".")
	git(t, dir, "commit", "-q", "-m", "first")

	g := NewGit(dir)
	head, err := g.ResolveCommit(ctx, "HEAD")
	require.NoError(t, err)
	assert.Len(t, head, 40)

	data, ok, err := g.ContentsAsOf(ctx, "content/a.at", head)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "@one", string(data))

	_, ok, err = g.ContentsAsOf(ctx, "content/missing.at", head)
	require.NoError(t, err)
	assert.False(t, ok)

	ts, err := g.CommitTime(ctx, head)
	require.NoError(t, err)

	commit, err := g.LatestCommitAffecting(ctx, "content/a.at", ts)
	require.NoError(t, err)
	assert.Equal(t, head, commit)

	_, err = g.ResolveCommit(ctx, "0000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, syncerr.ErrNotFound)
}
