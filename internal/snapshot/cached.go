package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/imazen/repositext-sub003/internal/memo"
	"github.com/imazen/repositext-sub003/internal/oplog"
	"github.com/imazen/repositext-sub003/internal/syncerr"
)

const defaultCacheSize = 4096

type contents struct {
	data []byte
	ok   bool
}

// CachedOption configures a Cached accessor.
type CachedOption func(*Cached)

// WithBackOff sets the retry policy factory. Each call gets a fresh policy.
func WithBackOff(policy func() backoff.BackOff) CachedOption {
	return func(c *Cached) {
		c.policy = policy
	}
}

// WithCacheSize bounds the number of memoized reads per kind.
func WithCacheSize(size int) CachedOption {
	return func(c *Cached) {
		c.size = size
	}
}

// Cached memoizes reads of an inner accessor for the lifetime of a run and retries
// transient failures. Keys use truncated commit ids.
type Cached struct {
	inner  Accessor
	policy func() backoff.BackOff
	size   int

	contents *memo.Cache[contents]
	commits  *memo.Cache[string]
	times    *memo.Cache[time.Time]
}

var _ Accessor = (*Cached)(nil)

// NewCached wraps inner.
func NewCached(inner Accessor, opts ...CachedOption) *Cached {
	c := &Cached{
		inner:  inner,
		size:   defaultCacheSize,
		policy: syncerr.DefaultBackOff,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.contents = memo.New[contents](c.size, 0)
	c.commits = memo.New[string](c.size, 0)
	c.times = memo.New[time.Time](c.size, 0)
	return c
}

func (c *Cached) ContentsAsOf(ctx context.Context, path, commit string) ([]byte, bool, error) {
	key := oplog.TruncateCommit(commit) + ":" + path
	res, err := c.contents.Get(key, func() (contents, error) {
		return syncerr.Retry(ctx, c.policy(), func() (contents, error) {
			data, ok, err := c.inner.ContentsAsOf(ctx, path, commit)
			return contents{data: data, ok: ok}, err
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("read %s at %s: %w", path, oplog.TruncateCommit(commit), err)
	}
	return res.data, res.ok, nil
}

func (c *Cached) LatestCommitAffecting(ctx context.Context, path string, at time.Time) (string, error) {
	key := fmt.Sprintf("%s@%d", path, at.Unix())
	return c.commits.Get(key, func() (string, error) {
		return syncerr.Retry(ctx, c.policy(), func() (string, error) {
			return c.inner.LatestCommitAffecting(ctx, path, at)
		})
	})
}

func (c *Cached) CommitTime(ctx context.Context, commit string) (time.Time, error) {
	return c.times.Get(oplog.TruncateCommit(commit), func() (time.Time, error) {
		return syncerr.Retry(ctx, c.policy(), func() (time.Time, error) {
			return c.inner.CommitTime(ctx, commit)
		})
	})
}

// ResolveCommit is not memoized: symbolic revisions move.
func (c *Cached) ResolveCommit(ctx context.Context, rev string) (string, error) {
	return syncerr.Retry(ctx, c.policy(), func() (string, error) {
		return c.inner.ResolveCommit(ctx, rev)
	})
}
