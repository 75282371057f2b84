package oplog

import (
	"maps"
	"slices"
	"strings"
)

// CommitPrefixLen is the length commit ids are truncated to in log names and cache keys.
const CommitPrefixLen = 6

// TruncateCommit returns the fixed-length prefix of a commit id.
func TruncateCommit(commit string) string {
	commit = strings.TrimSpace(commit)
	if len(commit) > CommitPrefixLen {
		return commit[:CommitPrefixLen]
	}
	return commit
}

// SameCommit compares two commit ids on their truncated prefix.
func SameCommit(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return TruncateCommit(a) == TruncateCommit(b)
}

// OperationsForRepository holds the operation logs of every document in a repository for
// one commit range. It is persisted once and never modified afterwards.
type OperationsForRepository struct {
	FromCommit string
	ToCommit   string
	Files      map[string]*OperationsForFile
}

// NewOperationsForRepository returns an empty log for the range from..to.
func NewOperationsForRepository(from, to string) *OperationsForRepository {
	return &OperationsForRepository{
		FromCommit: from,
		ToCommit:   to,
		Files:      make(map[string]*OperationsForFile),
	}
}

// Add stores the log of one file, stamping it with the repository's commit range.
func (r *OperationsForRepository) Add(f *OperationsForFile) {
	f.FromCommit = r.FromCommit
	f.ToCommit = r.ToCommit
	r.Files[f.ProductIdentityID] = f
}

// File returns the log of one document. Documents that did not change have no entry; for
// them an empty log for the same range is returned.
func (r *OperationsForRepository) File(productIdentityID string) (*OperationsForFile, bool) {
	if f, ok := r.Files[productIdentityID]; ok {
		return f, true
	}
	return &OperationsForFile{
		ProductIdentityID: productIdentityID,
		FromCommit:        r.FromCommit,
		ToCommit:          r.ToCommit,
	}, false
}

// ProductIdentityIDs returns the ids of all documents with a log, sorted.
func (r *OperationsForRepository) ProductIdentityIDs() []string {
	return slices.Sorted(maps.Keys(r.Files))
}

// OperationCount returns the number of operations across all files.
func (r *OperationsForRepository) OperationCount() int {
	n := 0
	for _, f := range r.Files {
		n += len(f.Operations)
	}
	return n
}

// Validate checks every file log.
func (r *OperationsForRepository) Validate() error {
	for _, pid := range r.ProductIdentityIDs() {
		if err := r.Files[pid].Validate(); err != nil {
			return err
		}
	}
	return nil
}
