package syncerr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKinds(t *testing.T) {
	assert.ErrorIs(t, Validation("count %d != %d", 1, 2), ErrValidation)
	assert.ErrorIs(t, Consistency("bad signature"), ErrConsistency)
	assert.ErrorIs(t, NotFound("commit %s", "abc"), ErrNotFound)

	err := TransientIO(io.ErrUnexpectedEOF, "read %s", "file.at")
	assert.ErrorIs(t, err, ErrTransientIO)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), "read file.at")
}

func TestKind_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("sync file: %w", Consistency("split signature"))
	assert.Equal(t, ErrConsistency, Kind(err))
	assert.Nil(t, Kind(errors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(TransientIO(io.EOF, "x")))
	assert.False(t, IsRetryable(NotFound("x")))
}

func TestRetry(t *testing.T) {
	ctx := context.Background()
	policy := func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2) }

	calls := 0
	v, err := Retry(ctx, policy(), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, TransientIO(io.ErrUnexpectedEOF, "read")
		}
		return 5, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	assert.Equal(t, 3, calls)

	calls = 0
	err = RetryErr(ctx, policy(), func() error {
		calls++
		return Validation("bad input")
	})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 1, calls)

	calls = 0
	err = RetryErr(ctx, policy(), func() error {
		calls++
		return TransientIO(io.EOF, "write")
	})
	assert.ErrorIs(t, err, ErrTransientIO)
	assert.Equal(t, 3, calls)
}

func TestRetry_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryErr(ctx, DefaultBackOff(), func() error {
		return TransientIO(io.EOF, "write")
	})
	assert.Error(t, err)
}
