package oplog

import (
	"testing"

	"github.com/imazen/repositext-sub003/internal/subtitle"
	"github.com/imazen/repositext-sub003/internal/syncerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subs(ids ...string) []subtitle.Subtitle {
	out := make([]subtitle.Subtitle, len(ids))
	for i, id := range ids {
		out[i] = subtitle.Subtitle{PersistentID: id, RecordID: "r1"}
	}
	return out
}

func withContent(pairs ...string) []subtitle.Subtitle {
	var out []subtitle.Subtitle
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, subtitle.Subtitle{PersistentID: pairs[i], RecordID: "r1", Content: pairs[i+1]})
	}
	return out
}

func anchor(id string) *string {
	return &id
}

func insertOp(id, after string) Operation {
	op := Operation{OperationID: "op-" + id, Type: OpInsert, AffectedStids: []AffectedStid{{PersistentID: id, After: "@new"}}}
	if after != "" {
		op.AfterStid = anchor(after)
	}
	return op
}

func splitOp(anchorID string, newIDs ...string) Operation {
	op := Operation{
		OperationID:   "split-" + anchorID,
		Type:          OpSplit,
		AffectedStids: []AffectedStid{{PersistentID: anchorID, Before: "@a b", After: "@a "}},
	}
	for _, id := range newIDs {
		op.AffectedStids = append(op.AffectedStids, AffectedStid{PersistentID: id, After: "@b"})
	}
	return op
}

func deleteOp(id string) Operation {
	return Operation{OperationID: "del-" + id, Type: OpDelete, AffectedStids: []AffectedStid{{PersistentID: id, Before: "@gone"}}}
}

func mergeOp(survivor string, removed ...string) Operation {
	op := Operation{
		OperationID:   "merge-" + survivor,
		Type:          OpMerge,
		AffectedStids: []AffectedStid{{PersistentID: survivor, Before: "@a ", After: "@a b"}},
	}
	for _, id := range removed {
		op.AffectedStids = append(op.AffectedStids, AffectedStid{PersistentID: id, Before: "@b"})
	}
	return op
}

func apply(t *testing.T, existing []subtitle.Subtitle, ops ...Operation) []string {
	t.Helper()
	f := &OperationsForFile{ProductIdentityID: "1234", Operations: ops}
	got, err := f.ApplyToSubtitles(existing)
	require.NoError(t, err)
	return subtitle.PersistentIDs(got)
}

func TestApplyToSubtitles_Delete(t *testing.T) {
	assert.Equal(t, []string{"A", "C"}, apply(t, subs("A", "B", "C"), deleteOp("B")))
}

func TestApplyToSubtitles_InsertIntoEmpty(t *testing.T) {
	assert.Equal(t, []string{"D"}, apply(t, subs(), insertOp("D", "")))
}

func TestApplyToSubtitles_InsertAfterAnchor(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "D", "C"}, apply(t, subs("A", "B", "C"), insertOp("D", "B")))
	assert.Equal(t, []string{"A", "B", "C", "D"}, apply(t, subs("A", "B", "C"), insertOp("D", "C")))
	assert.Equal(t, []string{"D", "A", "B", "C"}, apply(t, subs("A", "B", "C"), insertOp("D", "")))
}

func TestApplyToSubtitles_InsertOnlyGrowsByInsertedCount(t *testing.T) {
	existing := subs("A", "B", "C")
	ops := []Operation{
		insertOp("D", "A"),
		splitOp("B", "E", "F"),
		insertOp("G", "F"),
		insertOp("H", ""),
	}

	inserted := 0
	for _, op := range ops {
		require.True(t, op.IsInsertOrSplit())
		for _, a := range op.AffectedStids {
			if a.State() == ContentNew {
				inserted++
			}
		}
	}

	got := apply(t, existing, ops...)
	assert.Len(t, got, len(existing)+inserted)
	assert.Equal(t, []string{"H", "A", "D", "B", "E", "F", "G", "C"}, got)
}

func TestApplyToSubtitles_SplitKeepsNewStidOrder(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "X", "Y", "C"}, apply(t, subs("A", "B", "C"), splitOp("B", "X", "Y")))
}

func TestApplyToSubtitles_DoubleInsertSplit(t *testing.T) {
	double := Operation{
		OperationID: "2",
		Type:        OpSplit,
		AffectedStids: []AffectedStid{
			{PersistentID: "D", After: "@d "},
			{PersistentID: "E", After: "@e"},
		},
	}
	assert.Equal(t, []string{"A", "D", "E", "B"}, apply(t, subs("A", "B"), insertOp("D", "A"), double))
}

func TestApplyToSubtitles_SplitWithNewElementFirstIsConsistencyError(t *testing.T) {
	bad := Operation{
		OperationID: "1",
		Type:        OpSplit,
		AffectedStids: []AffectedStid{
			{PersistentID: "N", After: "@new"},
			{PersistentID: "B", Before: "@b c", After: "@c"},
		},
	}
	f := &OperationsForFile{Operations: []Operation{bad}}
	_, err := f.ApplyToSubtitles(subs("A", "B"))
	assert.ErrorIs(t, err, syncerr.ErrConsistency)
}

func TestApplyToSubtitles_AnchorNotFound(t *testing.T) {
	f := &OperationsForFile{Operations: []Operation{insertOp("D", "Z")}}
	_, err := f.ApplyToSubtitles(subs("A"))
	assert.ErrorIs(t, err, syncerr.ErrConsistency)
}

func TestApplyToSubtitles_UnknownTypeIsConsistencyError(t *testing.T) {
	f := &OperationsForFile{Operations: []Operation{{OperationID: "1", Type: OperationType(42)}}}
	_, err := f.ApplyToSubtitles(subs("A"))
	assert.ErrorIs(t, err, syncerr.ErrConsistency)
}

func TestApplyToSubtitles_InsertsRunBeforeDeletes(t *testing.T) {
	// B is the anchor of an insert and is deleted by an earlier operation of the same log.
	got := apply(t, subs("A", "B", "C"), deleteOp("B"), insertOp("D", "B"))
	assert.Equal(t, []string{"A", "D", "C"}, got)
}

func TestApplyToSubtitles_Merge(t *testing.T) {
	assert.Equal(t, []string{"A", "D"}, apply(t, subs("A", "B", "C", "D"), mergeOp("A", "B", "C")))

	bad := Operation{
		OperationID: "1",
		Type:        OpMerge,
		AffectedStids: []AffectedStid{
			{PersistentID: "A", Before: "@a"},
			{PersistentID: "B", Before: "@b", After: "@a b"},
		},
	}
	f := &OperationsForFile{Operations: []Operation{bad}}
	_, err := f.ApplyToSubtitles(subs("A", "B"))
	assert.ErrorIs(t, err, syncerr.ErrConsistency)
}

func TestApplyToSubtitles_MovesKeepSubtitleSet(t *testing.T) {
	move := Operation{
		OperationID: "1",
		Type:        OpMoveRight,
		AffectedStids: []AffectedStid{
			{PersistentID: "A", Before: "@one two ", After: "@one "},
			{PersistentID: "B", Before: "@three", After: "@two three"},
		},
	}
	assert.Equal(t, []string{"A", "B"}, apply(t, subs("A", "B"), move))
}

func TestApplyToSubtitles_Idempotent(t *testing.T) {
	ops := []Operation{insertOp("D", "B"), deleteOp("C"), splitOp("A", "E")}
	once := apply(t, subs("A", "B", "C"), ops...)
	twice := apply(t, subs(once...), ops...)
	assert.Equal(t, once, twice)
}

func TestApplyToSubtitles_Composable(t *testing.T) {
	s0 := subs("A", "B", "C")
	l1 := []Operation{splitOp("B", "D"), deleteOp("A")}
	l2 := []Operation{mergeOp("D", "C"), insertOp("E", "")}

	stepwise := apply(t, subs(apply(t, s0, l1...)...), l2...)

	// the log covering both ranges, as the differ computes it from the end states
	s2 := subs(stepwise...)
	combined, err := StidDiffer{}.Compute(s0, s2)
	require.NoError(t, err)
	got, err := combined.ApplyToSubtitles(s0)
	require.NoError(t, err)

	assert.Equal(t, []string{"E", "B", "D"}, stepwise)
	assert.Equal(t, stepwise, subtitle.PersistentIDs(got))
}

func TestApplyToSubtitles_DoesNotModifyInput(t *testing.T) {
	existing := subs("A", "B")
	apply(t, existing, deleteOp("A"))
	assert.Equal(t, []string{"A", "B"}, subtitle.PersistentIDs(existing))
}

func TestApplyToContent(t *testing.T) {
	foreign := withContent(
		"A", "@Uno dos. ",
		"B", "@Tres cuatro. Cinco seis. ",
		"C", "@Siete ",
		"D", "@ocho.",
	)
	to := []subtitle.Subtitle{{PersistentID: "X", RecordID: "r9", RelativeMS: 1200}}

	f := &OperationsForFile{
		ProductIdentityID: "1234",
		Operations: []Operation{
			splitOp("B", "X"),
			mergeOp("C", "D"),
			deleteOp("A"),
		},
	}
	res, err := f.ApplyToContent(foreign, to)
	require.NoError(t, err)

	var contents []string
	for _, s := range res.Subtitles {
		contents = append(contents, s.Content)
	}
	assert.Equal(t, []string{"B", "X", "C"}, subtitle.PersistentIDs(res.Subtitles))
	assert.Equal(t, []string{"@Tres cuatro. ", "@Cinco seis. ", "@Siete ocho."}, contents)

	x := res.Subtitles[1]
	assert.Equal(t, "r9", x.RecordID)
	assert.Equal(t, 1200, x.RelativeMS)

	assert.Equal(t, ReviewSplit, res.Review["X"])
	assert.Equal(t, ReviewMerged, res.Review["C"])
	assert.NotContains(t, res.Review, "A")
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 2, res.Removed)
}

func TestApplyToContent_InsertAndMoveFlagForReview(t *testing.T) {
	foreign := withContent("A", "@uno dos ", "B", "@tres")
	move := Operation{
		OperationID: "2",
		Type:        OpMoveLeft,
		AffectedStids: []AffectedStid{
			{PersistentID: "A", Before: "@one ", After: "@one two "},
			{PersistentID: "B", Before: "@two three", After: "@three"},
		},
	}
	f := &OperationsForFile{Operations: []Operation{insertOp("N", ""), move}}

	res, err := f.ApplyToContent(foreign, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"N", "A", "B"}, subtitle.PersistentIDs(res.Subtitles))
	assert.Equal(t, subtitle.Mark, res.Subtitles[0].Content)
	assert.Equal(t, ReviewInserted, res.Review["N"])
	assert.Contains(t, res.Review["A"], "move_left")
	assert.Contains(t, res.Review["B"], "move_left")
	assert.Equal(t, 1, res.Moved)
}

func TestApplyToContent_RequiresContent(t *testing.T) {
	f := &OperationsForFile{}
	_, err := f.ApplyToContent(subs("A"), nil)
	assert.ErrorIs(t, err, syncerr.ErrValidation)
}
