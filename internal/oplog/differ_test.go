package oplog

import (
	"testing"

	"github.com/imazen/repositext-sub003/internal/subtitle"
	"github.com/imazen/repositext-sub003/internal/syncerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func opTypes(f *OperationsForFile) []OperationType {
	types := make([]OperationType, len(f.Operations))
	for i, op := range f.Operations {
		types[i] = op.Type
	}
	return types
}

func TestStidDiffer_NoChanges(t *testing.T) {
	before := withContent("A", "@one ", "B", "@two")
	f, err := StidDiffer{}.Compute(before, before)
	require.NoError(t, err)
	assert.True(t, f.IsEmpty())
}

func TestStidDiffer_Split(t *testing.T) {
	before := withContent("A", "@one two three ", "B", "@four")
	after := withContent("A", "@one ", "X", "@two ", "Y", "@three ", "B", "@four")

	f, err := StidDiffer{}.Compute(before, after)
	require.NoError(t, err)
	require.Equal(t, []OperationType{OpSplit}, opTypes(f))
	assert.Equal(t, []string{"A", "X", "Y"}, f.Operations[0].PersistentIDs())
	assert.Equal(t, []ContentState{ContentChanged, ContentNew, ContentNew}, f.Operations[0].signature())
	assert.Equal(t, "000001", f.Operations[0].OperationID)
}

func TestStidDiffer_InsertAndDelete(t *testing.T) {
	before := withContent("A", "@one ", "B", "@two ", "C", "@three")
	after := withContent("N", "@zero ", "A", "@one ", "C", "@three")

	f, err := StidDiffer{}.Compute(before, after)
	require.NoError(t, err)
	require.Equal(t, []OperationType{OpInsert, OpDelete}, opTypes(f))
	assert.Nil(t, f.Operations[0].AfterStid)
	assert.Equal(t, []string{"B"}, f.Operations[1].PersistentIDs())
}

func TestStidDiffer_Merge(t *testing.T) {
	before := withContent("A", "@one ", "B", "@two ", "C", "@three")
	after := withContent("A", "@one two three")

	f, err := StidDiffer{}.Compute(before, after)
	require.NoError(t, err)
	require.Equal(t, []OperationType{OpMerge}, opTypes(f))
	assert.Equal(t, []string{"A", "B", "C"}, f.Operations[0].PersistentIDs())
}

func TestStidDiffer_Move(t *testing.T) {
	before := withContent("A", "@one two ", "B", "@three")
	after := withContent("A", "@one ", "B", "@two three")

	f, err := StidDiffer{}.Compute(before, after)
	require.NoError(t, err)
	require.Equal(t, []OperationType{OpMoveRight}, opTypes(f))

	back, err := StidDiffer{}.Compute(after, before)
	require.NoError(t, err)
	require.Equal(t, []OperationType{OpMoveLeft}, opTypes(back))
}

func TestStidDiffer_ReplayReproducesAfter(t *testing.T) {
	before := withContent("A", "@a b ", "B", "@c ", "C", "@d ", "D", "@e")
	after := withContent("A", "@a ", "X", "@b ", "C", "@d e", "N", "@f")

	f, err := StidDiffer{}.Compute(before, after)
	require.NoError(t, err)

	got, err := f.ApplyToSubtitles(before)
	require.NoError(t, err)
	assert.Equal(t, subtitle.PersistentIDs(after), subtitle.PersistentIDs(got))
}

func TestStidDiffer_RejectsReorder(t *testing.T) {
	before := subs("A", "B", "C")
	after := subs("C", "A", "B")

	_, err := StidDiffer{}.Compute(before, after)
	assert.ErrorIs(t, err, syncerr.ErrValidation)
}

func TestStidDiffer_RejectsMissingAndDuplicateIDs(t *testing.T) {
	_, err := StidDiffer{}.Compute(subs("A", ""), subs("A"))
	assert.ErrorIs(t, err, syncerr.ErrValidation)

	_, err = StidDiffer{}.Compute(subs("A", "A"), subs("A"))
	assert.ErrorIs(t, err, syncerr.ErrValidation)
}
