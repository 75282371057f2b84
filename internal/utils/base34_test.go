package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandBase34(t *testing.T) {
	s, err := RandBase34(12)
	require.NoError(t, err)
	assert.Len(t, s, 12)
	for _, r := range s {
		assert.True(t, strings.ContainsRune(Base34, r), "unexpected rune %q", r)
	}

	_, err = RandBase34(0)
	assert.Error(t, err)
}

func TestRandString(t *testing.T) {
	s, err := RandString("ab", 64)
	require.NoError(t, err)
	assert.Empty(t, strings.Trim(s, "ab"))

	_, err = RandString("", 4)
	assert.Error(t, err)
}
