package oplog

import (
	"fmt"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/imazen/repositext-sub003/internal/subtitle"
	"github.com/imazen/repositext-sub003/internal/syncerr"
)

// Differ computes the operation log that turns one subtitle sequence into another.
// Implementations must be deterministic: the same inputs always yield the same log.
type Differ interface {
	Compute(before, after []subtitle.Subtitle) (*OperationsForFile, error)
}

// StidDiffer derives operations from persistent ids, which survive every edit except the
// removal of the subtitle itself. Content decides between split and insert, and between
// merge and delete.
type StidDiffer struct{}

var _ Differ = StidDiffer{}

// Compute implements Differ. The result is verified by replaying it onto before.
// Reordered subtitles cannot be expressed as operations and are rejected.
func (StidDiffer) Compute(before, after []subtitle.Subtitle) (*OperationsForFile, error) {
	for _, seq := range [][]subtitle.Subtitle{before, after} {
		for i, s := range seq {
			if s.PersistentID == "" {
				return nil, syncerr.Validation("subtitle at index %d has no persistent id", i)
			}
		}
	}

	d := &diff{
		before:    before,
		after:     after,
		beforeIDs: mapset.NewThreadUnsafeSet(subtitle.PersistentIDs(before)...),
		afterIDs:  mapset.NewThreadUnsafeSet(subtitle.PersistentIDs(after)...),
		touched:   mapset.NewThreadUnsafeSet[string](),
	}
	if d.beforeIDs.Cardinality() != len(before) || d.afterIDs.Cardinality() != len(after) {
		return nil, syncerr.Validation("duplicate persistent ids in subtitle sequence")
	}

	d.insertions()
	d.deletions()
	d.moves()

	f := &OperationsForFile{Operations: d.ops}
	got, err := f.ApplyToSubtitles(before)
	if err != nil {
		return nil, err
	}
	if !slices.Equal(subtitle.PersistentIDs(got), subtitle.PersistentIDs(after)) {
		return nil, syncerr.Validation("subtitles were reordered, which no operation can express")
	}
	return f, nil
}

type diff struct {
	before, after       []subtitle.Subtitle
	beforeIDs, afterIDs mapset.Set[string]
	touched             mapset.Set[string]
	ops                 []Operation
}

func (d *diff) add(op Operation) int {
	op.OperationID = fmt.Sprintf("%06d", len(d.ops)+1)
	d.ops = append(d.ops, op)
	for _, id := range op.PersistentIDs() {
		d.touched.Add(id)
	}
	return len(d.ops) - 1
}

func (d *diff) insertions() {
	// new stid -> index of the split operation that created it
	splitOf := make(map[string]int)
	beforeByID := indexByID(d.before)

	for i, s := range d.after {
		if d.beforeIDs.Contains(s.PersistentID) {
			continue
		}
		added := AffectedStid{PersistentID: s.PersistentID, RecordID: s.RecordID, After: text(s)}

		if i == 0 {
			d.add(Operation{Type: OpInsert, AffectedStids: []AffectedStid{added}})
			continue
		}

		prev := d.after[i-1]
		if orig, ok := beforeByID[prev.PersistentID]; ok && containsText(orig, s) {
			splitOf[s.PersistentID] = d.add(Operation{
				Type: OpSplit,
				AffectedStids: []AffectedStid{
					{PersistentID: prev.PersistentID, RecordID: prev.RecordID, Before: text(orig), After: text(prev)},
					added,
				},
			})
			continue
		}

		if opIdx, ok := splitOf[prev.PersistentID]; ok {
			anchor := d.ops[opIdx].AffectedStids[0].PersistentID
			if containsText(beforeByID[anchor], s) {
				d.ops[opIdx].AffectedStids = append(d.ops[opIdx].AffectedStids, added)
				d.touched.Add(s.PersistentID)
				splitOf[s.PersistentID] = opIdx
				continue
			}
		}

		anchor := prev.PersistentID
		d.add(Operation{Type: OpInsert, AfterStid: &anchor, AffectedStids: []AffectedStid{added}})
	}
}

func (d *diff) deletions() {
	afterByID := indexByID(d.after)
	// survivor stid -> index of its merge operation
	mergeOf := make(map[string]int)

	survivor := ""
	for _, s := range d.before {
		if d.afterIDs.Contains(s.PersistentID) {
			survivor = s.PersistentID
			continue
		}
		removed := AffectedStid{PersistentID: s.PersistentID, RecordID: s.RecordID, Before: text(s)}

		if survivor != "" {
			target := afterByID[survivor]
			if containsText(target, s) {
				if opIdx, ok := mergeOf[survivor]; ok {
					d.ops[opIdx].AffectedStids = append(d.ops[opIdx].AffectedStids, removed)
					d.touched.Add(s.PersistentID)
					continue
				}
				orig := d.before[subtitle.IndexOf(d.before, survivor)]
				mergeOf[survivor] = d.add(Operation{
					Type: OpMerge,
					AffectedStids: []AffectedStid{
						{PersistentID: survivor, RecordID: target.RecordID, Before: text(orig), After: text(target)},
						removed,
					},
				})
				continue
			}
		}
		d.add(Operation{Type: OpDelete, AffectedStids: []AffectedStid{removed}})
	}
}

// moves detects words that crossed the boundary between two subtitles that were adjacent
// before and after and are otherwise untouched.
func (d *diff) moves() {
	beforeByID := indexByID(d.before)
	for i := 0; i+1 < len(d.after); i++ {
		a, b := d.after[i], d.after[i+1]
		if d.touched.Contains(a.PersistentID) || d.touched.Contains(b.PersistentID) {
			continue
		}
		oa, okA := beforeByID[a.PersistentID]
		ob, okB := beforeByID[b.PersistentID]
		if !okA || !okB {
			continue
		}
		if subtitle.IndexOf(d.before, b.PersistentID) != subtitle.IndexOf(d.before, a.PersistentID)+1 {
			continue
		}
		if normalize(oa.Body()) == normalize(a.Body()) ||
			normalize(oa.Body()+" "+ob.Body()) != normalize(a.Body()+" "+b.Body()) {
			continue
		}

		opType := OpMoveLeft
		if len(normalize(a.Body())) < len(normalize(oa.Body())) {
			opType = OpMoveRight
		}
		d.add(Operation{
			Type: opType,
			AffectedStids: []AffectedStid{
				{PersistentID: a.PersistentID, RecordID: a.RecordID, Before: text(oa), After: text(a)},
				{PersistentID: b.PersistentID, RecordID: b.RecordID, Before: text(ob), After: text(b)},
			},
		})
	}
}

func indexByID(subs []subtitle.Subtitle) map[string]subtitle.Subtitle {
	m := make(map[string]subtitle.Subtitle, len(subs))
	for _, s := range subs {
		m[s.PersistentID] = s
	}
	return m
}

// text is the operation text of a subtitle. It is never empty for an existing subtitle,
// so an empty before/after unambiguously means new/removed.
func text(s subtitle.Subtitle) string {
	if s.Content == "" {
		return subtitle.Mark
	}
	return s.Content
}

// containsText reports whether the body of part appears within the body of whole.
func containsText(whole, part subtitle.Subtitle) bool {
	p := normalize(part.Body())
	if p == "" {
		return false
	}
	return strings.Contains(normalize(whole.Body()), p)
}

// normalize collapses whitespace so that boundary moves compare equal.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
