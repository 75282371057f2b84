package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/imazen/repositext-sub003/internal/syncerr"
)

var commandContext = exec.CommandContext

// GitOption configures a Git accessor.
type GitOption func(*Git)

// WithGitBinary overrides the git executable.
func WithGitBinary(binary string) GitOption {
	return func(g *Git) {
		if binary != "" {
			g.binary = binary
		}
	}
}

// Git reads history through the git command line.
type Git struct {
	root   string
	binary string
}

var _ Accessor = (*Git)(nil)

// NewGit returns an accessor for the work tree at root.
func NewGit(root string, opts ...GitOption) *Git {
	g := &Git{root: root, binary: "git"}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Git) ContentsAsOf(ctx context.Context, path, commit string) ([]byte, bool, error) {
	listed, err := g.run(ctx, "ls-tree", "--name-only", commit, "--", path)
	if err != nil {
		return nil, false, err
	}
	if len(bytes.TrimSpace(listed)) == 0 {
		return nil, false, nil
	}

	data, err := g.run(ctx, "show", commit+":"+path)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (g *Git) LatestCommitAffecting(ctx context.Context, path string, at time.Time) (string, error) {
	args := []string{"log", "-1", "--format=%H", "--before=" + at.UTC().Format(time.RFC3339), "HEAD"}
	if path != "" {
		args = append(args, "--", path)
	}
	out, err := g.run(ctx, args...)
	if err != nil {
		return "", err
	}
	commit := strings.TrimSpace(string(out))
	if commit == "" {
		return "", syncerr.NotFound("no commit affecting %q at or before %s", path, at.Format(time.RFC3339))
	}
	return commit, nil
}

func (g *Git) CommitTime(ctx context.Context, commit string) (time.Time, error) {
	out, err := g.run(ctx, "show", "-s", "--format=%cI", commit)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(string(out)))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse commit time of %s: %w", commit, err)
	}
	return ts, nil
}

func (g *Git) ResolveCommit(ctx context.Context, rev string) (string, error) {
	out, err := g.run(ctx, "rev-parse", "--verify", "--quiet", rev+"^{commit}")
	if err != nil {
		return "", err
	}
	commit := strings.TrimSpace(string(out))
	if commit == "" {
		return "", syncerr.NotFound("unknown revision %s", rev)
	}
	return commit, nil
}

// run executes git in the work tree. Unknown revisions are NotFound; any other failure
// is treated as transient.
func (g *Git) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := commandContext(ctx, g.binary, append([]string{"-C", g.root}, args...)...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if isUnknownRevision(msg) || (args[0] == "rev-parse" && msg == "") {
			return nil, syncerr.NotFound("git %s: %s", args[0], firstNonEmpty(msg, "unknown revision"))
		}
		return nil, syncerr.TransientIO(err, "git %s: %s", args[0], msg)
	}
	return stdout.Bytes(), nil
}

func isUnknownRevision(msg string) bool {
	for _, s := range []string{"unknown revision", "Not a valid object name", "bad revision", "invalid object name", "not a tree object"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
