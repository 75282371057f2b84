package oplog

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/imazen/repositext-sub003/internal/syncerr"
	"github.com/imazen/repositext-sub003/internal/utils"
	"github.com/spf13/afero"
)

const (
	fileNamePrefix  = "st-ops-"
	timestampFormat = "2006_01_02-15_04_05"
)

var fileNameRe = regexp.MustCompile(`^st-ops-(\d{4}_\d{2}_\d{2}-\d{2}_\d{2}_\d{2})-([0-9A-Za-z]+)-to-([0-9A-Za-z]+)\.json$`)

// FileName returns the name a log covering from..to and created at ts is stored under.
// Names sort by creation time.
func FileName(ts time.Time, from, to string) string {
	return fmt.Sprintf("%s%s-%s-to-%s.json", fileNamePrefix, ts.UTC().Format(timestampFormat), TruncateCommit(from), TruncateCommit(to))
}

// LogRef identifies one persisted log by its file name.
type LogRef struct {
	Name      string
	Path      string
	CreatedAt time.Time
	From      string
	To        string
}

// ParseFileName extracts the log reference encoded in a file name.
func ParseFileName(name string) (LogRef, bool) {
	m := fileNameRe.FindStringSubmatch(name)
	if m == nil {
		return LogRef{}, false
	}
	ts, err := time.Parse(timestampFormat, m[1])
	if err != nil {
		return LogRef{}, false
	}
	return LogRef{Name: name, CreatedAt: ts, From: m[2], To: m[3]}, true
}

// Store discovers, loads and saves persisted repository logs in one directory.
type Store struct {
	fs       afero.Fs
	dir      string
	lockPath string
	mu       sync.Mutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLockFile serializes Save across processes with a file lock at path.
// Only meaningful on the OS filesystem.
func WithLockFile(path string) StoreOption {
	return func(s *Store) {
		s.lockPath = path
	}
}

// NewStore returns a store for the logs in dir.
func NewStore(fs afero.Fs, dir string, opts ...StoreOption) *Store {
	s := &Store{fs: fs, dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the log directory.
func (s *Store) Dir() string {
	return s.dir
}

// List returns all logs sorted by creation time. A missing directory holds no logs.
func (s *Store) List() ([]LogRef, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, syncerr.TransientIO(err, "list operation logs in %s", s.dir)
	}

	var refs []LogRef
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ref, ok := ParseFileName(entry.Name())
		if !ok {
			continue
		}
		ref.Path = filepath.Join(s.dir, entry.Name())
		refs = append(refs, ref)
	}
	slices.SortFunc(refs, func(a, b LogRef) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return refs, nil
}

// Latest returns the most recently created log, or nil when there is none.
func (s *Store) Latest() (*LogRef, error) {
	refs, err := s.List()
	if err != nil || len(refs) == 0 {
		return nil, err
	}
	return &refs[len(refs)-1], nil
}

// Earliest returns the first created log, or nil when there is none.
func (s *Store) Earliest() (*LogRef, error) {
	refs, err := s.List()
	if err != nil || len(refs) == 0 {
		return nil, err
	}
	return &refs[0], nil
}

// IsBoundary reports whether commit is the from or to commit of any log.
func (s *Store) IsBoundary(commit string) (bool, error) {
	refs, err := s.List()
	if err != nil {
		return false, err
	}
	for _, ref := range refs {
		if SameCommit(ref.From, commit) || SameCommit(ref.To, commit) {
			return true, nil
		}
	}
	return false, nil
}

// BoundaryChain returns the truncated sync commits from from up to the end of the chain
// of logs starting there: [from, c1, ..., latest]. from must be the from commit of a log
// unless it is already the last boundary.
func (s *Store) BoundaryChain(from string) ([]string, error) {
	refs, err := s.List()
	if err != nil {
		return nil, err
	}

	next := make(map[string]string)
	known := make(map[string]bool)
	for _, ref := range refs {
		// later logs win when two share a from commit
		next[ref.From] = ref.To
		known[ref.From] = true
		known[ref.To] = true
	}

	cur := TruncateCommit(from)
	if !known[cur] {
		return nil, syncerr.NotFound("commit %s is not an operation log boundary", cur)
	}

	chain := []string{cur}
	visited := map[string]bool{cur: true}
	for {
		to, ok := next[cur]
		if !ok {
			break
		}
		if visited[to] {
			return nil, syncerr.Validation("operation logs form a cycle at %s", to)
		}
		visited[to] = true
		chain = append(chain, to)
		cur = to
	}
	return chain, nil
}

// Find returns the log covering exactly from..to.
func (s *Store) Find(from, to string) (*LogRef, error) {
	refs, err := s.List()
	if err != nil {
		return nil, err
	}
	for i := len(refs) - 1; i >= 0; i-- {
		if SameCommit(refs[i].From, from) && SameCommit(refs[i].To, to) {
			return &refs[i], nil
		}
	}
	return nil, syncerr.NotFound("no operation log for %s..%s", TruncateCommit(from), TruncateCommit(to))
}

// Load reads the repository log covering from..to.
func (s *Store) Load(from, to string) (*OperationsForRepository, error) {
	ref, err := s.Find(from, to)
	if err != nil {
		return nil, err
	}
	return s.LoadRef(*ref)
}

// LoadRef reads the log behind ref.
func (s *Store) LoadRef(ref LogRef) (*OperationsForRepository, error) {
	data, err := afero.ReadFile(s.fs, ref.Path)
	if err != nil {
		return nil, syncerr.TransientIO(err, "read operation log %s", ref.Name)
	}
	ops, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("operation log %s: %w", ref.Name, err)
	}
	if !SameCommit(ops.FromCommit, ref.From) || !SameCommit(ops.ToCommit, ref.To) {
		return nil, syncerr.Validation("operation log %s covers %s..%s", ref.Name, short(ops.FromCommit), short(ops.ToCommit))
	}
	return ops, nil
}

// LoadFile reads the log of one document for from..to. Documents without changes in the
// range get an empty log.
func (s *Store) LoadFile(from, to, productIdentityID string) (*OperationsForFile, error) {
	ops, err := s.Load(from, to)
	if err != nil {
		return nil, err
	}
	f, _ := ops.File(productIdentityID)
	return f, nil
}

// Save persists a new repository log created at ts. Logs are immutable: saving a second
// log for the same range fails.
func (s *Store) Save(ops *OperationsForRepository, ts time.Time) (LogRef, error) {
	if err := ops.Validate(); err != nil {
		return LogRef{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lockPath != "" {
		if err := utils.EnsureParent(s.lockPath); err != nil {
			return LogRef{}, fmt.Errorf("create lock directory: %w", err)
		}
		lock := flock.New(s.lockPath)
		if err := lock.Lock(); err != nil {
			return LogRef{}, fmt.Errorf("lock operation logs: %w", err)
		}
		defer lock.Unlock()
	}

	if _, err := s.Find(ops.FromCommit, ops.ToCommit); err == nil {
		return LogRef{}, syncerr.Validation("operation log for %s..%s already exists", short(ops.FromCommit), short(ops.ToCommit))
	} else if !errors.Is(err, syncerr.ErrNotFound) {
		return LogRef{}, err
	}

	data, err := Marshal(ops)
	if err != nil {
		return LogRef{}, err
	}

	name := FileName(ts, ops.FromCommit, ops.ToCommit)
	path := filepath.Join(s.dir, name)
	if err := utils.WriteFileAtomic(s.fs, path, data, 0o644); err != nil {
		return LogRef{}, syncerr.TransientIO(err, "save operation log %s", name)
	}

	ref, _ := ParseFileName(name)
	ref.Path = path
	slog.Info("operation log saved", "name", name, "files", len(ops.Files), "operations", ops.OperationCount())
	return ref, nil
}
