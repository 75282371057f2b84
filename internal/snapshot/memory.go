package snapshot

import (
	"context"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/imazen/repositext-sub003/internal/syncerr"
)

type memoryCommit struct {
	id      string
	at      time.Time
	files   map[string][]byte
	changed map[string]bool
}

// Memory is an in-memory linear history. It backs tests and dry runs against
// synthetic repositories.
type Memory struct {
	mu      sync.RWMutex
	commits []memoryCommit
}

var _ Accessor = (*Memory)(nil)

// NewMemory returns an empty history.
func NewMemory() *Memory {
	return &Memory{}
}

// Commit records a new commit on top of the previous one. changes maps paths to their
// new contents; a nil value removes the file.
func (m *Memory) Commit(id string, at time.Time, changes map[string][]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	files := make(map[string][]byte)
	if n := len(m.commits); n > 0 {
		maps.Copy(files, m.commits[n-1].files)
	}
	changed := make(map[string]bool, len(changes))
	for path, data := range changes {
		changed[path] = true
		if data == nil {
			delete(files, path)
			continue
		}
		files[path] = data
	}
	m.commits = append(m.commits, memoryCommit{id: id, at: at, files: files, changed: changed})
}

// Head returns the id of the latest commit, or "" for an empty history.
func (m *Memory) Head() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.commits) == 0 {
		return ""
	}
	return m.commits[len(m.commits)-1].id
}

func (m *Memory) ContentsAsOf(_ context.Context, path, commit string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.find(commit)
	if err != nil {
		return nil, false, err
	}
	data, ok := c.files[path]
	return data, ok, nil
}

func (m *Memory) LatestCommitAffecting(_ context.Context, path string, at time.Time) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.commits) - 1; i >= 0; i-- {
		c := m.commits[i]
		if c.at.After(at) {
			continue
		}
		if path == "" || c.changed[path] {
			return c.id, nil
		}
	}
	return "", syncerr.NotFound("no commit affecting %q at or before %s", path, at.Format(time.RFC3339))
}

func (m *Memory) CommitTime(_ context.Context, commit string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.find(commit)
	if err != nil {
		return time.Time{}, err
	}
	return c.at, nil
}

func (m *Memory) ResolveCommit(_ context.Context, rev string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rev == "HEAD" {
		if len(m.commits) == 0 {
			return "", syncerr.NotFound("empty history has no HEAD")
		}
		return m.commits[len(m.commits)-1].id, nil
	}
	c, err := m.find(rev)
	if err != nil {
		return "", err
	}
	return c.id, nil
}

// find matches commit ids by prefix, so truncated ids resolve too.
func (m *Memory) find(commit string) (*memoryCommit, error) {
	if commit != "" {
		for i := len(m.commits) - 1; i >= 0; i-- {
			if strings.HasPrefix(m.commits[i].id, commit) {
				return &m.commits[i], nil
			}
		}
	}
	return nil, syncerr.NotFound("unknown commit %q", commit)
}
