package syncmeta

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_GetMissing(t *testing.T) {
	j := openJournal(t)
	m, err := j.Get("content/spa/spa01_1234.at")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestJournal_RecordMergesReview(t *testing.T) {
	j := openJournal(t)
	path := "content/spa/spa01_1234.at"
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	_, err := j.Record(path, Update{
		LastSyncedCommit: "aaaaaa",
		Review:           map[string]string{"s1": "split", "s2": "inserted"},
		SubtitlesHash:    "h1",
		At:               at,
	})
	require.NoError(t, err)

	m, err := j.Record(path, Update{
		LastSyncedCommit: "bbbbbb",
		Review:           map[string]string{"s3": "merged", "s1": "moved"},
		Dropped:          []string{"s2"},
		SubtitlesHash:    "h2",
		At:               at.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"s1": "moved", "s3": "merged"}, m.SubtitlesToReview)

	got, err := j.Get(path)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "bbbbbb", got.LastSyncedCommit)
	assert.Equal(t, "h2", got.SubtitlesHash)
	assert.Equal(t, m.SubtitlesToReview, got.SubtitlesToReview)
	assert.True(t, got.UpdatedAt.Equal(at.Add(time.Minute)))
	assert.True(t, got.NeedsReview())
}

func TestJournal_RecordRequiresCommit(t *testing.T) {
	j := openJournal(t)
	_, err := j.Record("a.at", Update{})
	assert.Error(t, err)
}

func TestJournal_ClearReviewAllAndDelete(t *testing.T) {
	j := openJournal(t)
	for _, p := range []string{"b.at", "a.at"} {
		_, err := j.Record(p, Update{LastSyncedCommit: "aaaaaa", Review: map[string]string{"x": "split", "y": "merged"}})
		require.NoError(t, err)
	}

	require.NoError(t, j.ClearReview("a.at", "x"))
	require.NoError(t, j.ClearReview("b.at"))
	require.NoError(t, j.ClearReview("missing.at"))

	all, err := j.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a.at", all[0].Path)
	assert.Equal(t, map[string]string{"y": "merged"}, all[0].SubtitlesToReview)
	assert.False(t, all[1].NeedsReview())

	require.NoError(t, j.Delete("a.at"))
	m, err := j.Get("a.at")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestJournal_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.db")
	j, err := Open(path)
	require.NoError(t, err)
	_, err = j.Record("a.at", Update{LastSyncedCommit: "cccccc"})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()
	m, err := j.Get("a.at")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "cccccc", m.LastSyncedCommit)
	assert.Empty(t, m.SubtitlesToReview)
}
