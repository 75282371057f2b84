package idgen

import (
	"path/filepath"
	"slices"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequence returns a random source that yields values in order, repeating the last.
func sequence(values ...string) RandomFunc {
	i := 0
	return func(string, int) (string, error) {
		v := values[min(i, len(values)-1)]
		i++
		return v, nil
	}
}

func TestGenerate_SkipsInventory(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/ids.txt", []byte("abcd\nefgh\n"), 0o644))

	g, err := New(fs, "/ids.txt", WithLength(4), WithRandom(sequence("abcd", "efgh", "bcde")))
	require.NoError(t, err)

	ids, err := g.Generate(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"bcde"}, ids)

	inventory, err := g.Inventory()
	require.NoError(t, err)
	assert.Equal(t, []string{"abcd", "bcde", "efgh"}, inventory)

	data, err := afero.ReadFile(fs, "/ids.txt")
	require.NoError(t, err)
	assert.Equal(t, "abcd\nbcde\nefgh\n", string(data))
}

func TestGenerate_RandomIDsAreUniqueAndRecorded(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/ids.txt", []byte("abcd\nefgh\n"), 0o644))

	g, err := New(fs, "/ids.txt", WithLength(4), WithAlphabet("abcdefgh"))
	require.NoError(t, err)

	ids, err := g.Generate(50)
	require.NoError(t, err)
	require.Len(t, ids, 50)
	assert.NotContains(t, ids, "abcd")
	assert.NotContains(t, ids, "efgh")

	inventory, err := g.Inventory()
	require.NoError(t, err)
	assert.True(t, slices.IsSorted(inventory))
	assert.Len(t, inventory, 52)
	for _, id := range ids {
		assert.Len(t, id, 4)
		_, found := slices.BinarySearch(inventory, id)
		assert.True(t, found, id)
	}
}

func TestGenerate_BatchIsUnique(t *testing.T) {
	g, err := New(afero.NewMemMapFs(), "/ids.txt", WithRandom(sequence("x1", "x1", "x2")))
	require.NoError(t, err)

	ids, err := g.Generate(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"x1", "x2"}, ids)
}

func TestGenerate_Exhausted(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/ids.txt", []byte("a\nb\n"), 0o644))

	g, err := New(fs, "/ids.txt", WithLength(1), WithAlphabet("ab"), WithMaxAttempts(20))
	require.NoError(t, err)

	_, err = g.Generate(1)
	assert.ErrorIs(t, err, ErrIDSpaceExhausted)

	data, err := afero.ReadFile(fs, "/ids.txt")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(data))
}

func TestGenerate_UnsortedInventoryIsRepaired(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/ids.txt", []byte("zz\naa\naa\n"), 0o644))

	g, err := New(fs, "/ids.txt", WithRandom(sequence("mm")))
	require.NoError(t, err)
	_, err = g.Generate(1)
	require.NoError(t, err)

	inventory, err := g.Inventory()
	require.NoError(t, err)
	assert.Equal(t, []string{"aa", "mm", "zz"}, inventory)
}

func TestGenerate_WithLockFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ids.txt")

	g, err := New(afero.NewOsFs(), path, WithLockFile(filepath.Join(dir, ".lock", "ids.lock")))
	require.NoError(t, err)

	ids, err := g.Generate(3)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	inventory, err := g.Inventory()
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, inventory)
}

func TestNew_Validates(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := New(fs, "")
	assert.Error(t, err)
	_, err = New(fs, "/ids.txt", WithLength(0))
	assert.Error(t, err)
	_, err = New(fs, "/ids.txt", WithAlphabet("a"))
	assert.Error(t, err)
	_, err = New(fs, "/ids.txt", WithMaxAttempts(0))
	assert.Error(t, err)
}
