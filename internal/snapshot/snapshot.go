// Package snapshot reads files as of past commits of a repository.
package snapshot

import (
	"context"
	"time"
)

// Accessor gives read-only access to the history of one repository. Paths are relative
// to the repository root and use forward slashes.
type Accessor interface {
	// ContentsAsOf returns the contents of path at commit. ok is false when the file did
	// not exist at that commit.
	ContentsAsOf(ctx context.Context, path, commit string) (data []byte, ok bool, err error)

	// LatestCommitAffecting returns the most recent commit at or before at that changed
	// path. An empty path matches any commit.
	LatestCommitAffecting(ctx context.Context, path string, at time.Time) (string, error)

	// CommitTime returns the committer time of commit.
	CommitTime(ctx context.Context, commit string) (time.Time, error)

	// ResolveCommit turns a revision (HEAD, a branch, a commit prefix) into a full commit id.
	ResolveCommit(ctx context.Context, rev string) (string, error)
}
