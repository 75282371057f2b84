package oplog

import (
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/imazen/repositext-sub003/internal/subtitle"
	"github.com/imazen/repositext-sub003/internal/syncerr"
)

// Review reasons recorded for subtitles touched by a content replay.
const (
	ReviewInserted = "inserted: needs translation"
	ReviewSplit    = "split: check boundary placement"
	ReviewMerged   = "merged: check joined text"
	ReviewDeleted  = "following subtitle deleted: check text"
	ReviewMoved    = "text moved across boundary"
)

// OperationsForFile is the ordered, immutable operation log of one document between two
// commits.
type OperationsForFile struct {
	ProductIdentityID string
	Language          string
	FromCommit        string
	ToCommit          string
	Operations        []Operation
}

// ContentResult is the outcome of replaying a log onto a content-bearing subtitle sequence.
type ContentResult struct {
	Subtitles []subtitle.Subtitle

	// Review maps persistent ids to the reason they need a translator's attention.
	Review map[string]string

	Inserted int
	Removed  int
	Moved    int
}

// IsEmpty reports whether the log has no operations.
func (f *OperationsForFile) IsEmpty() bool {
	return len(f.Operations) == 0
}

// Validate checks every operation's shape.
func (f *OperationsForFile) Validate() error {
	for i := range f.Operations {
		if err := f.Operations[i].Validate(); err != nil {
			return fmt.Errorf("file %s: %w", f.ProductIdentityID, err)
		}
	}
	return nil
}

// ApplyToSubtitles replays the log onto a subtitle sequence as of FromCommit and returns
// the sequence as of ToCommit. existing is not modified.
func (f *OperationsForFile) ApplyToSubtitles(existing []subtitle.Subtitle) ([]subtitle.Subtitle, error) {
	r := newReplayer(existing, nil, false)
	if err := r.run(f.Operations); err != nil {
		return nil, fmt.Errorf("apply %s (%s..%s): %w", f.ProductIdentityID, short(f.FromCommit), short(f.ToCommit), err)
	}
	return r.subs, nil
}

// ApplyToContent replays the log onto foreign subtitles that carry content. to is the
// primary sequence as of ToCommit; newly inserted subtitles take their record id and
// timing from it when present.
func (f *OperationsForFile) ApplyToContent(foreign []subtitle.Subtitle, to []subtitle.Subtitle) (*ContentResult, error) {
	for _, s := range foreign {
		if !s.HasContent() {
			return nil, syncerr.Validation("subtitle %s has no content", s.PersistentID)
		}
	}

	r := newReplayer(foreign, to, true)
	if err := r.run(f.Operations); err != nil {
		return nil, fmt.Errorf("apply content %s (%s..%s): %w", f.ProductIdentityID, short(f.FromCommit), short(f.ToCommit), err)
	}
	return &ContentResult{
		Subtitles: r.subs,
		Review:    r.review,
		Inserted:  r.inserted,
		Removed:   r.removed,
		Moved:     r.moved,
	}, nil
}

type replayer struct {
	subs        []subtitle.Subtitle
	to          map[string]subtitle.Subtitle
	withContent bool
	review      map[string]string

	inserted int
	removed  int
	moved    int
}

func newReplayer(existing, to []subtitle.Subtitle, withContent bool) *replayer {
	r := &replayer{
		subs:        slices.Clone(existing),
		to:          make(map[string]subtitle.Subtitle, len(to)),
		withContent: withContent,
		review:      make(map[string]string),
	}
	if r.subs == nil {
		r.subs = []subtitle.Subtitle{}
	}
	for _, s := range to {
		r.to[s.PersistentID] = s
	}
	return r
}

// run applies insertions before deletions. An insertion's anchor may be removed by a
// later operation of the same log, so it has to exist when the insertion runs.
func (r *replayer) run(ops []Operation) error {
	for i := range ops {
		op := &ops[i]
		switch op.Type {
		case OpInsert, OpSplit:
			if err := r.insert(op); err != nil {
				return err
			}
		case OpDelete, OpMerge, OpMoveLeft, OpMoveRight:
		default:
			return syncerr.Consistency("operation %s: unhandled type %s", op.OperationID, op.Type)
		}
	}

	for i := range ops {
		op := &ops[i]
		switch op.Type {
		case OpDelete, OpMerge:
			if err := r.remove(op); err != nil {
				return err
			}
		case OpMoveLeft, OpMoveRight:
			if err := r.move(op); err != nil {
				return err
			}
		case OpInsert, OpSplit:
		}
	}
	return nil
}

func (r *replayer) insert(op *Operation) error {
	var anchor *string
	var added []AffectedStid

	switch op.Type {
	case OpInsert:
		if len(op.AffectedStids) != 1 || op.AffectedStids[0].State() != ContentNew {
			return syncerr.Consistency("operation %s: unexpected insert signature %v", op.OperationID, op.signature())
		}
		anchor = op.AfterStid
		added = op.AffectedStids
	case OpSplit:
		if !isSplitSignature(op.signature()) {
			return syncerr.Consistency("operation %s: unexpected split signature %v", op.OperationID, op.signature())
		}
		anchor = &op.AffectedStids[0].PersistentID
		added = op.AffectedStids[1:]
	}

	// already replayed
	added = slices.DeleteFunc(slices.Clone(added), func(a AffectedStid) bool {
		return subtitle.IndexOf(r.subs, a.PersistentID) >= 0
	})
	if len(added) == 0 {
		return nil
	}

	idx := 0
	anchorIdx := -1
	if anchor != nil {
		anchorIdx = subtitle.IndexOf(r.subs, *anchor)
		if anchorIdx < 0 {
			return syncerr.Consistency("operation %s: anchor %s not found", op.OperationID, *anchor)
		}
		idx = anchorIdx + 1
	}

	news := make([]subtitle.Subtitle, len(added))
	for i, a := range added {
		news[i] = r.newSubtitle(a)
	}

	if r.withContent {
		reason := ReviewInserted
		if op.Type == OpSplit && anchorIdx >= 0 {
			reason = ReviewSplit
			parts := subtitle.SplitContent(r.subs[anchorIdx].Content, len(news)+1)
			r.setContent(anchorIdx, parts[0])
			for i := range news {
				news[i].Content = parts[i+1]
				news[i].CharLength = charLength(parts[i+1])
			}
		} else {
			for i := range news {
				news[i].Content = subtitle.Mark
			}
		}
		for _, n := range news {
			r.review[n.PersistentID] = reason
		}
	}

	// all new stids of one operation go in at the same index, keeping their order
	r.subs = slices.Insert(r.subs, idx, news...)
	r.inserted += len(news)
	return nil
}

func (r *replayer) remove(op *Operation) error {
	switch op.Type {
	case OpDelete:
		if len(op.AffectedStids) != 1 || op.AffectedStids[0].State() != ContentRemoved {
			return syncerr.Consistency("operation %s: unexpected delete signature %v", op.OperationID, op.signature())
		}
		idx := subtitle.IndexOf(r.subs, op.AffectedStids[0].PersistentID)
		if idx < 0 {
			return nil
		}
		if r.withContent && idx > 0 {
			r.review[r.subs[idx-1].PersistentID] = ReviewDeleted
		}
		delete(r.review, r.subs[idx].PersistentID)
		r.subs = slices.Delete(r.subs, idx, idx+1)
		r.removed++

	case OpMerge:
		if !isMergeSignature(op.signature()) {
			return syncerr.Consistency("operation %s: unexpected merge signature %v", op.OperationID, op.signature())
		}
		survivor := op.AffectedStids[0].PersistentID
		for _, a := range op.AffectedStids[1:] {
			idx := subtitle.IndexOf(r.subs, a.PersistentID)
			if idx < 0 {
				continue
			}
			if r.withContent {
				si := subtitle.IndexOf(r.subs, survivor)
				if si < 0 {
					return syncerr.Consistency("operation %s: merge target %s not found", op.OperationID, survivor)
				}
				r.setContent(si, r.subs[si].Content+r.subs[idx].Body())
				r.review[survivor] = ReviewMerged
			}
			delete(r.review, a.PersistentID)
			r.subs = slices.Delete(r.subs, idx, idx+1)
			r.removed++
		}
	}
	return nil
}

// move never changes the subtitle set. Translated text cannot be moved mechanically, so
// both sides are flagged.
func (r *replayer) move(op *Operation) error {
	if len(op.AffectedStids) != 2 ||
		op.AffectedStids[0].State() != ContentChanged ||
		op.AffectedStids[1].State() != ContentChanged {
		return syncerr.Consistency("operation %s: unexpected %s signature %v", op.OperationID, op.Type, op.signature())
	}
	if !r.withContent {
		return nil
	}
	for _, a := range op.AffectedStids {
		if subtitle.IndexOf(r.subs, a.PersistentID) >= 0 {
			r.review[a.PersistentID] = fmt.Sprintf("%s (%s)", ReviewMoved, op.Type)
		}
	}
	r.moved++
	return nil
}

func (r *replayer) newSubtitle(a AffectedStid) subtitle.Subtitle {
	if s, ok := r.to[a.PersistentID]; ok {
		s.Content = ""
		return s
	}
	return subtitle.Subtitle{PersistentID: a.PersistentID, RecordID: a.RecordID}
}

func (r *replayer) setContent(idx int, content string) {
	r.subs[idx].Content = content
	r.subs[idx].CharLength = charLength(content)
}

// isSplitSignature accepts [present, new, ...] and the double insert [new, new].
func isSplitSignature(sig []ContentState) bool {
	if len(sig) < 2 {
		return false
	}
	if len(sig) == 2 && sig[0] == ContentNew && sig[1] == ContentNew {
		return true
	}
	if sig[0] == ContentNew {
		return false
	}
	for _, s := range sig[1:] {
		if s != ContentNew {
			return false
		}
	}
	return true
}

// isMergeSignature accepts [changed, removed, ...].
func isMergeSignature(sig []ContentState) bool {
	if len(sig) < 2 || sig[0] != ContentChanged {
		return false
	}
	for _, s := range sig[1:] {
		if s != ContentRemoved {
			return false
		}
	}
	return true
}

func charLength(content string) int {
	return utf8.RuneCountInString(subtitle.Subtitle{Content: content}.Body())
}

// short truncates a commit id for log and error messages.
func short(commit string) string {
	return TruncateCommit(commit)
}
