package subtitle

import (
	"strings"
	"testing"

	"github.com/imazen/repositext-sub003/internal/syncerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMarks(t *testing.T) {
	head, fragments := SplitMarks("# Title\n\n@one two @three\n@four")
	assert.Equal(t, "# Title\n\n", head)
	assert.Equal(t, []string{"@one two ", "@three\n", "@four"}, fragments)

	head, fragments = SplitMarks("no marks here")
	assert.Equal(t, "no marks here", head)
	assert.Empty(t, fragments)
}

func TestNewDocument(t *testing.T) {
	markers := []Subtitle{{PersistentID: "a"}, {PersistentID: "b"}}

	doc, err := NewDocument("intro @first @second", markers)
	require.NoError(t, err)
	assert.Equal(t, "intro ", doc.Head)
	assert.Equal(t, "@first ", doc.Subtitles[0].Content)
	assert.Equal(t, "second", doc.Subtitles[1].Body())
	assert.Equal(t, "intro @first @second", doc.Content())

	for _, m := range doc.Markers() {
		assert.False(t, m.HasContent())
	}

	_, err = NewDocument("@only one", markers)
	assert.ErrorIs(t, err, syncerr.ErrValidation)
}

func TestMarkers(t *testing.T) {
	subs := []Subtitle{
		{RelativeMS: 0, Samples: 10, CharLength: 12, PersistentID: "1234567", RecordID: "rid1"},
		{RelativeMS: 1500, Samples: 20, CharLength: 8, PersistentID: "", RecordID: "rid1"},
	}

	data, err := FormatMarkers(subs)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "relativeMS\tsamples\tcharLength\tpersistentId\trecordId\n"))

	parsed, err := ParseMarkers(data)
	require.NoError(t, err)
	assert.Equal(t, subs, parsed)

	empty, err := ParseMarkers(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseMarkers([]byte("bogus\theader\n"))
	assert.ErrorIs(t, err, syncerr.ErrValidation)
}

func TestFingerprint(t *testing.T) {
	a := []Subtitle{{PersistentID: "a"}, {PersistentID: "b"}}
	b := []Subtitle{{PersistentID: "a", Content: "@x"}, {PersistentID: "b", RelativeMS: 5}}
	c := []Subtitle{{PersistentID: "b"}, {PersistentID: "a"}}

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
	assert.Equal(t, 1, IndexOf(a, "b"))
	assert.Equal(t, -1, IndexOf(a, "z"))
	assert.Equal(t, []string{"a", "b"}, PersistentIDs(a))
}

func TestSplitContent(t *testing.T) {
	t.Run("sentence boundary", func(t *testing.T) {
		parts := SplitContent("@Hello there. How are you?", 2)
		assert.Equal(t, []string{"@Hello there. ", "@How are you?"}, parts)
	})

	t.Run("word boundary", func(t *testing.T) {
		parts := SplitContent("@one two three four", 2)
		assert.Equal(t, []string{"@one two ", "@three four"}, parts)
	})

	t.Run("three parts", func(t *testing.T) {
		parts := SplitContent("@one two three four", 3)
		assert.Equal(t, []string{"@one two ", "@three ", "@four"}, parts)
	})

	t.Run("nothing to split", func(t *testing.T) {
		parts := SplitContent("@word", 2)
		assert.Equal(t, []string{"@word", "@"}, parts)
	})

	t.Run("text is preserved", func(t *testing.T) {
		content := "@It was late. Everyone had gone home, and the hall was quiet."
		parts := SplitContent(content, 3)
		joined := strings.ReplaceAll(strings.Join(parts, ""), Mark, "")
		assert.Equal(t, strings.TrimPrefix(content, Mark), joined)
		assert.Len(t, parts, 3)
	})
}

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument([]byte("# Title\n@one @two"), nil, false)
	require.NoError(t, err)
	require.Len(t, doc.Subtitles, 2)
	assert.Empty(t, doc.Subtitles[0].PersistentID)
	assert.Equal(t, "# Title\n", doc.Head)

	markers, err := FormatMarkers([]Subtitle{{PersistentID: "a"}, {PersistentID: "b"}})
	require.NoError(t, err)
	doc, err = ParseDocument([]byte("@one @two"), markers, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, PersistentIDs(doc.Subtitles))

	_, err = ParseDocument([]byte("@one"), markers, true)
	assert.ErrorIs(t, err, syncerr.ErrValidation)
}
