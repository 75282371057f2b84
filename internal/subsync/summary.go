package subsync

import (
	"slices"
	"strings"
	"sync"
)

// Outcome is the final state of one foreign file in a run.
type Outcome int

const (
	OutcomeSynced Outcome = iota + 1
	OutcomeSkipped
	OutcomeFailed
	// OutcomeAutosplit is a new file without subtitles. Nothing was replayed; it is
	// recorded at the target and left for the autosplit of its content.
	OutcomeAutosplit
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSynced:
		return "synced"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	case OutcomeAutosplit:
		return "autosplit"
	}
	return "unknown"
}

// FileResult is the outcome of syncing one foreign file.
type FileResult struct {
	Repository string
	Path       string
	Outcome    Outcome
	Reason     string

	StartCommit string
	LogsApplied int
	NeedsReview bool
	// Autosplit marks a new file without subtitles; it starts at the target commit.
	Autosplit bool
}

// Unprocessable is a file that could not be synced, with the reason.
type Unprocessable struct {
	Repository string
	Path       string
	Reason     string
}

// Summary reports a sync run.
type Summary struct {
	RunID        string
	TargetCommit string
	// PrimaryLog names the operation log created by this run, if any.
	PrimaryLog string

	FilesSynced        int
	FilesAutosplit     int
	FilesSkipped       int
	FilesNeedingReview int
	FilesFailed        int
	Unprocessable      []Unprocessable

	Results []FileResult

	mu sync.Mutex
}

func (s *Summary) add(r FileResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Results = append(s.Results, r)
	switch r.Outcome {
	case OutcomeSynced:
		s.FilesSynced++
		if r.NeedsReview {
			s.FilesNeedingReview++
		}
	case OutcomeAutosplit:
		s.FilesAutosplit++
	case OutcomeSkipped:
		s.FilesSkipped++
	case OutcomeFailed:
		s.FilesFailed++
		s.Unprocessable = append(s.Unprocessable, Unprocessable{Repository: r.Repository, Path: r.Path, Reason: r.Reason})
	}
}

// unprocessable records a primary file left out of the primary log.
func (s *Summary) unprocessable(repo, path, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Unprocessable = append(s.Unprocessable, Unprocessable{Repository: repo, Path: path, Reason: reason})
}

// sort orders results and unprocessable files by repository and path, so output does not
// depend on worker scheduling.
func (s *Summary) sort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	slices.SortFunc(s.Results, func(a, b FileResult) int {
		if c := strings.Compare(a.Repository, b.Repository); c != 0 {
			return c
		}
		return strings.Compare(a.Path, b.Path)
	})
	slices.SortFunc(s.Unprocessable, func(a, b Unprocessable) int {
		if c := strings.Compare(a.Repository, b.Repository); c != 0 {
			return c
		}
		return strings.Compare(a.Path, b.Path)
	})
}
