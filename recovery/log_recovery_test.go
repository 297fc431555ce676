package recovery

import (
	"path/filepath"
	"testing"

	"github.com/coreindex/storageengine/common"
	"github.com/coreindex/storageengine/storage/disk"
	"github.com/stretchr/testify/require"
)

type fakeApplier struct {
	inserted map[common.RID]bool
}

func newFakeApplier() *fakeApplier {
	return &fakeApplier{inserted: make(map[common.RID]bool)}
}

func (f *fakeApplier) PageLSN(common.PageID) (common.LSN, bool) { return common.InvalidLSN, false }

func (f *fakeApplier) ApplyNewPage(common.PageID, common.PageID) error { return nil }

func (f *fakeApplier) ApplyInsert(rid common.RID, tuple []byte) error {
	f.inserted[rid] = true
	return nil
}

func (f *fakeApplier) ApplyMarkDelete(rid common.RID) error { return nil }

func (f *fakeApplier) ApplyDelete(rid common.RID) error {
	delete(f.inserted, rid)
	return nil
}

func (f *fakeApplier) ApplyRollbackDelete(rid common.RID) error { return nil }

func (f *fakeApplier) ApplyUpdate(rid common.RID, newTuple []byte) error {
	f.inserted[rid] = true
	return nil
}

func TestRedoAppliesEffectsAndUndoRollsBackLosers(t *testing.T) {
	dir := t.TempDir()
	fm, err := disk.NewFileManager(filepath.Join(dir, "page.db"), filepath.Join(dir, "wal.log"), 4096)
	require.NoError(t, err)
	defer fm.Shutdown()

	lm := NewLogManager(fm, 4096, 0)

	ridCommitted := common.RID{PageID: 1, SlotID: 0}
	ridLoser := common.RID{PageID: 2, SlotID: 0}

	beginA := NewBeginRecord(1, common.InvalidLSN)
	lsnBeginA := lm.AppendLogRecord(beginA)
	insertA := NewInsertRecord(1, lsnBeginA, ridCommitted, []byte("a-row"))
	lsnInsertA := lm.AppendLogRecord(insertA)
	commitA := NewCommitRecord(1, lsnInsertA)
	lm.AppendLogRecord(commitA)

	beginB := NewBeginRecord(2, common.InvalidLSN)
	lsnBeginB := lm.AppendLogRecord(beginB)
	insertB := NewInsertRecord(2, lsnBeginB, ridLoser, []byte("b-row"))
	lm.AppendLogRecord(insertB)
	// txn 2 never commits: a loser that must be undone.

	lm.Flush()

	applier := newFakeApplier()
	recov := NewLogRecovery(fm, applier, 4096)

	require.NoError(t, recov.Redo())
	require.True(t, applier.inserted[ridCommitted])
	require.True(t, applier.inserted[ridLoser])
	require.Contains(t, recov.activeTxn, common.TxnID(2))
	require.NotContains(t, recov.activeTxn, common.TxnID(1))

	require.NoError(t, recov.Undo())
	require.True(t, applier.inserted[ridCommitted])
	require.False(t, applier.inserted[ridLoser])
}
