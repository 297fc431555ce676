package buffer

import (
	"path/filepath"
	"testing"

	"github.com/coreindex/storageengine/common"
	"github.com/coreindex/storageengine/storage/disk"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, poolSize int) *Manager {
	t.Helper()
	dir := t.TempDir()
	fm, err := disk.NewFileManager(filepath.Join(dir, "page.db"), filepath.Join(dir, "wal.log"), 4096)
	require.NoError(t, err)
	t.Cleanup(func() { fm.Shutdown() })
	return NewManager(fm, poolSize, 4096)
}

func TestNewPageAndFetchPage(t *testing.T) {
	bpm := newTestManager(t, 2)

	f, err := bpm.NewPage()
	require.NoError(t, err)
	require.Equal(t, int32(1), f.PinCount)
	copy(f.Data, []byte("hello"))

	require.NoError(t, bpm.UnpinPage(f.PageID, true))

	f2, err := bpm.FetchPage(f.PageID)
	require.NoError(t, err)
	require.Equal(t, "hello", string(f2.Data[:5]))
	require.Equal(t, uint64(1), bpm.Stats.Hits())
}

func TestNewPageAfterDeletePage(t *testing.T) {
	bpm := newTestManager(t, 2)
	f, err := bpm.NewPage()
	require.NoError(t, err)
	pid := f.PageID
	require.NoError(t, bpm.FlushPage(pid))
	require.NoError(t, bpm.UnpinPage(pid, false))
	require.NoError(t, bpm.DeletePage(pid))

	// After the page is deleted, NewPage still hands out a valid page id.
	f2, err := bpm.NewPage()
	require.NoError(t, err)
	require.NotEqual(t, common.InvalidPageID, f2.PageID)
}

func TestBufferPoolExhaustionWhenAllPinned(t *testing.T) {
	bpm := newTestManager(t, 2)

	f1, err := bpm.NewPage()
	require.NoError(t, err)
	f2, err := bpm.NewPage()
	require.NoError(t, err)
	require.NotNil(t, f1)
	require.NotNil(t, f2)

	_, err = bpm.NewPage()
	require.ErrorIs(t, err, common.ErrBufferPoolExhausted)
}

func TestUnpinAllowsEviction(t *testing.T) {
	bpm := newTestManager(t, 1)

	f1, err := bpm.NewPage()
	require.NoError(t, err)
	// f1 and f2 are the same single frame, so keep the first page's id.
	pid1 := f1.PageID
	require.NoError(t, bpm.UnpinPage(pid1, false))

	f2, err := bpm.NewPage()
	require.NoError(t, err)
	require.NotEqual(t, pid1, f2.PageID)
	require.Equal(t, uint64(1), bpm.Stats.Evictions())
}

func TestDeletePageRefusesWhilePinned(t *testing.T) {
	bpm := newTestManager(t, 2)
	f, err := bpm.NewPage()
	require.NoError(t, err)

	err = bpm.DeletePage(f.PageID)
	require.Error(t, err)
}

func TestFlushAllPages(t *testing.T) {
	bpm := newTestManager(t, 3)
	for i := 0; i < 3; i++ {
		f, err := bpm.NewPage()
		require.NoError(t, err)
		require.NoError(t, bpm.UnpinPage(f.PageID, true))
	}
	require.NoError(t, bpm.FlushAllPages())
	require.Equal(t, uint64(3), bpm.Stats.Flushes())
}
