package disk

import (
	"path/filepath"
	"testing"

	"github.com/coreindex/storageengine/common"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *FileManager {
	t.Helper()
	dir := t.TempDir()
	fm, err := NewFileManager(filepath.Join(dir, "page.db"), filepath.Join(dir, "wal.log"), 4096)
	require.NoError(t, err)
	t.Cleanup(func() { fm.Shutdown() })
	return fm
}

func TestAllocateAndReadWritePage(t *testing.T) {
	fm := newTestManager(t)

	pid := fm.AllocatePage()
	require.Equal(t, common.PageID(0), pid)

	out := make([]byte, 4096)
	require.NoError(t, fm.ReadPage(pid, out))
	for _, b := range out {
		require.Equal(t, byte(0), b)
	}

	in := make([]byte, 4096)
	copy(in, []byte("hello page"))
	require.NoError(t, fm.WritePage(pid, in))

	require.NoError(t, fm.ReadPage(pid, out))
	require.Equal(t, in, out)
}

func TestAllocatePageMonotonic(t *testing.T) {
	fm := newTestManager(t)
	a := fm.AllocatePage()
	b := fm.AllocatePage()
	require.Equal(t, a+1, b)
}

func TestLogAppendAndRead(t *testing.T) {
	fm := newTestManager(t)

	require.NoError(t, fm.WriteLog([]byte("record-one")))
	require.NoError(t, fm.WriteLog([]byte("record-two")))

	buf := make([]byte, len("record-one"))
	n, err := fm.ReadLog(buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, "record-one", string(buf))

	buf2 := make([]byte, len("record-two"))
	n, err = fm.ReadLog(buf2, int64(len("record-one")))
	require.NoError(t, err)
	require.Equal(t, len(buf2), n)
	require.Equal(t, "record-two", string(buf2))
}

func TestSecondManagerCannotOpenLockedFiles(t *testing.T) {
	dir := t.TempDir()
	pagePath := filepath.Join(dir, "page.db")
	logPath := filepath.Join(dir, "wal.log")

	fm, err := NewFileManager(pagePath, logPath, 4096)
	require.NoError(t, err)
	defer fm.Shutdown()

	_, err = NewFileManager(pagePath, logPath, 4096)
	require.Error(t, err)
}
