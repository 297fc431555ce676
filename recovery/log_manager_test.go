package recovery

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/coreindex/storageengine/common"
	"github.com/coreindex/storageengine/storage/disk"
	"github.com/stretchr/testify/require"
)

func newTestLogManager(t *testing.T) (*LogManager, disk.Manager) {
	t.Helper()
	dir := t.TempDir()
	fm, err := disk.NewFileManager(filepath.Join(dir, "page.db"), filepath.Join(dir, "wal.log"), 4096)
	require.NoError(t, err)
	t.Cleanup(func() { fm.Shutdown() })
	lm := NewLogManager(fm, 4096, 20*time.Millisecond)
	return lm, fm
}

func TestAppendLogRecordAssignsIncreasingLSNs(t *testing.T) {
	lm, _ := newTestLogManager(t)

	r1 := NewBeginRecord(1, common.InvalidLSN)
	lsn1 := lm.AppendLogRecord(r1)
	r2 := NewInsertRecord(1, lsn1, common.RID{PageID: 1, SlotID: 0}, []byte("row"))
	lsn2 := lm.AppendLogRecord(r2)

	require.Equal(t, common.LSN(0), lsn1)
	require.Equal(t, common.LSN(1), lsn2)
}

func TestFlushPersistsBufferAndAdvancesPersistentLSN(t *testing.T) {
	lm, fm := newTestLogManager(t)

	r1 := NewBeginRecord(1, common.InvalidLSN)
	lm.AppendLogRecord(r1)
	r2 := NewCommitRecord(1, r1.LSN)
	lsn2 := lm.AppendLogRecord(r2)

	lm.Flush()
	require.Equal(t, lsn2, lm.PersistentLSN())

	buf := make([]byte, 4096)
	n, err := fm.ReadLog(buf, 0)
	require.NoError(t, err)
	require.Greater(t, n, 0)
}

func TestRunFlushThreadFlushesOnTimeout(t *testing.T) {
	lm, _ := newTestLogManager(t)
	lm.RunFlushThread()
	defer lm.StopFlushThread()

	r := NewBeginRecord(1, common.InvalidLSN)
	lsn := lm.AppendLogRecord(r)

	require.Eventually(t, func() bool {
		return lm.PersistentLSN() >= lsn
	}, time.Second, 5*time.Millisecond)
}

func TestForceFlushUpToWaitsForPersistence(t *testing.T) {
	lm, _ := newTestLogManager(t)

	r := NewInsertRecord(1, common.InvalidLSN, common.RID{PageID: 1}, []byte("x"))
	lsn := lm.AppendLogRecord(r)

	require.NoError(t, lm.ForceFlushUpTo(lsn))
	require.GreaterOrEqual(t, lm.PersistentLSN(), lsn)
}
