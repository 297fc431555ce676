package index

import (
	"math/rand"
	"path/filepath"
	"sync"
	"testing"

	"github.com/coreindex/storageengine/buffer"
	"github.com/coreindex/storageengine/common"
	"github.com/coreindex/storageengine/storage/disk"
	"github.com/stretchr/testify/require"
)

func int64Comparator(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func newTestTree(t *testing.T, poolSize int) *BPlusTree {
	t.Helper()
	dir := t.TempDir()
	fm, err := disk.NewFileManager(filepath.Join(dir, "page.db"), filepath.Join(dir, "wal.log"), 4096)
	require.NoError(t, err)
	t.Cleanup(func() { fm.Shutdown() })

	bpm := buffer.NewManager(fm, poolSize, 4096)
	require.NoError(t, EnsureHeaderPage(bpm))

	tree, err := NewBPlusTree(bpm, "test-index", 4096, int64Comparator)
	require.NoError(t, err)
	return tree
}

func ridFor(key int64) common.RID {
	return common.RID{PageID: common.PageID(key), SlotID: uint32(key)}
}

func TestInsertLookupRoundTrip(t *testing.T) {
	tree := newTestTree(t, 64)

	for i := int64(0); i < 200; i++ {
		ok, err := tree.Insert(i, ridFor(i))
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i := int64(0); i < 200; i++ {
		rid, found, err := tree.Lookup(i)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, ridFor(i), rid)
	}

	_, found, err := tree.Lookup(500)
	require.NoError(t, err)
	require.False(t, found)
}

func TestInsertDuplicateKeyReturnsFalse(t *testing.T) {
	tree := newTestTree(t, 64)

	ok, err := tree.Insert(7, ridFor(7))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tree.Insert(7, ridFor(70))
	require.NoError(t, err)
	require.False(t, ok)

	rid, found, err := tree.Lookup(7)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, ridFor(7), rid)
}

func TestDeleteAbsentKeyIsNoOp(t *testing.T) {
	tree := newTestTree(t, 64)
	ok, err := tree.Insert(1, ridFor(1))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, tree.Delete(999))

	rid, found, err := tree.Lookup(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, ridFor(1), rid)
}

func TestInsertThenDeleteAllEmptiesTree(t *testing.T) {
	tree := newTestTree(t, 64)

	const n = 300
	keys := rand.New(rand.NewSource(1)).Perm(n)

	for _, k := range keys {
		ok, err := tree.Insert(int64(k), ridFor(int64(k)))
		require.NoError(t, err)
		require.True(t, ok)
	}

	deleteOrder := rand.New(rand.NewSource(2)).Perm(n)
	for _, k := range deleteOrder {
		require.NoError(t, tree.Delete(int64(k)))
		_, found, err := tree.Lookup(int64(k))
		require.NoError(t, err)
		require.False(t, found)
	}

	require.True(t, tree.IsEmpty())
}

func TestIteratorWalksKeysInOrder(t *testing.T) {
	tree := newTestTree(t, 64)

	const n = 150
	for _, k := range rand.New(rand.NewSource(3)).Perm(n) {
		ok, err := tree.Insert(int64(k), ridFor(int64(k)))
		require.NoError(t, err)
		require.True(t, ok)
	}

	it, err := tree.Begin()
	require.NoError(t, err)

	var got []int64
	for it.Valid() {
		got = append(got, it.Key())
		it.Next()
	}
	require.Len(t, got, n)
	for i, k := range got {
		require.Equal(t, int64(i), k)
	}
}

func TestIteratorBeginAtPositionsAtKey(t *testing.T) {
	tree := newTestTree(t, 64)
	for i := int64(0); i < 50; i += 2 {
		ok, err := tree.Insert(i, ridFor(i))
		require.NoError(t, err)
		require.True(t, ok)
	}

	it, err := tree.BeginAt(15)
	require.NoError(t, err)
	require.True(t, it.Valid())
	require.Equal(t, int64(16), it.Key())
}

func TestDeleteTriggersRedistributeAndCoalesce(t *testing.T) {
	tree := newTestTree(t, 8)

	const n = 500
	for i := int64(0); i < n; i++ {
		ok, err := tree.Insert(i, ridFor(i))
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i := int64(0); i < n; i += 2 {
		require.NoError(t, tree.Delete(i))
	}

	for i := int64(0); i < n; i++ {
		_, found, err := tree.Lookup(i)
		require.NoError(t, err)
		require.Equal(t, i%2 == 1, found)
	}
}

// TestConcurrentInsertsWithConcurrentReader runs 8 writers each inserting
// 1000 disjoint keys against a shared tree while a 9th goroutine
// continuously walks Begin() to completion, exercising the write-latch
// crabbing descent against the read-latch crabbing descent concurrently.
// Neither side should deadlock, and every inserted key must be found once
// all writers finish.
func TestConcurrentInsertsWithConcurrentReader(t *testing.T) {
	tree := newTestTree(t, 64)

	const writers = 8
	const perWriter = 1000

	stopReader := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stopReader:
				return
			default:
			}
			it, err := tree.Begin()
			require.NoError(t, err)
			for it.Valid() {
				it.Next()
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(w int) {
			defer wg.Done()
			base := int64(w * perWriter)
			for i := int64(0); i < perWriter; i++ {
				key := base + i
				ok, err := tree.Insert(key, ridFor(key))
				require.NoError(t, err)
				require.True(t, ok)
			}
		}(w)
	}
	wg.Wait()

	close(stopReader)
	<-readerDone

	for w := 0; w < writers; w++ {
		base := int64(w * perWriter)
		for i := int64(0); i < perWriter; i++ {
			key := base + i
			rid, found, err := tree.Lookup(key)
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, ridFor(key), rid)
		}
	}
}

func TestHeaderPageSurvivesMultipleIndexes(t *testing.T) {
	dir := t.TempDir()
	fm, err := disk.NewFileManager(filepath.Join(dir, "page.db"), filepath.Join(dir, "wal.log"), 4096)
	require.NoError(t, err)
	t.Cleanup(func() { fm.Shutdown() })

	bpm := buffer.NewManager(fm, 32, 4096)
	require.NoError(t, EnsureHeaderPage(bpm))

	treeA, err := NewBPlusTree(bpm, "a", 4096, int64Comparator)
	require.NoError(t, err)
	treeB, err := NewBPlusTree(bpm, "b", 4096, int64Comparator)
	require.NoError(t, err)

	ok, err := treeA.Insert(1, ridFor(1))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = treeB.Insert(2, ridFor(2))
	require.NoError(t, err)
	require.True(t, ok)

	treeA2, err := NewBPlusTree(bpm, "a", 4096, int64Comparator)
	require.NoError(t, err)
	rid, found, err := treeA2.Lookup(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, ridFor(1), rid)

	_, found, err = treeA2.Lookup(2)
	require.NoError(t, err)
	require.False(t, found)
}
