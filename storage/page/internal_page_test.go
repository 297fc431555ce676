package page

import (
	"testing"

	"github.com/coreindex/storageengine/common"
	"github.com/stretchr/testify/require"
)

func newInternal(t *testing.T, pageID, parentID common.PageID, maxSize int32) *Internal {
	t.Helper()
	buf := make([]byte, 4096)
	n := NewInternal(buf)
	n.Init(pageID, parentID, maxSize)
	return n
}

func TestInternalMaxSizeRoundedDownToEven(t *testing.T) {
	m := InternalMaxSize(4096)
	require.Equal(t, int32(0), m%2)
}

func TestInternalPopulateNewRootAndLookup(t *testing.T) {
	n := newInternal(t, 1, common.InvalidPageID, InternalMaxSize(4096))
	n.PopulateNewRoot(10, 100, 20)

	require.Equal(t, int32(2), n.Size())
	require.Equal(t, common.PageID(10), n.ChildAt(0))
	require.Equal(t, common.PageID(20), n.ChildAt(1))
	require.Equal(t, int64(100), n.KeyAt(1))

	require.Equal(t, common.PageID(10), n.Lookup(50, DefaultComparator))
	require.Equal(t, common.PageID(20), n.Lookup(100, DefaultComparator))
	require.Equal(t, common.PageID(20), n.Lookup(150, DefaultComparator))
}

func TestInternalInsertNodeAfterAndRemove(t *testing.T) {
	n := newInternal(t, 1, common.InvalidPageID, InternalMaxSize(4096))
	n.PopulateNewRoot(10, 100, 20)

	n.InsertNodeAfter(20, 200, 30)
	require.Equal(t, int32(3), n.Size())
	require.Equal(t, common.PageID(30), n.ChildAt(2))
	require.Equal(t, int64(200), n.KeyAt(2))

	n.Remove(1)
	require.Equal(t, int32(2), n.Size())
	require.Equal(t, common.PageID(10), n.ChildAt(0))
	require.Equal(t, common.PageID(30), n.ChildAt(1))
}

func TestInternalMoveHalfToSplitsAndReparents(t *testing.T) {
	left := newInternal(t, 1, common.InvalidPageID, 4)
	right := newInternal(t, 2, common.InvalidPageID, 4)

	left.setEntryAt(0, 0, 10)
	left.setEntryAt(1, 100, 20)
	left.setEntryAt(2, 200, 30)
	left.setEntryAt(3, 300, 40)
	left.setSize(4)

	reparented := map[common.PageID]common.PageID{}
	left.MoveHalfTo(right, func(child, newParent common.PageID) {
		reparented[child] = newParent
	})

	require.Equal(t, int32(2), left.Size())
	require.Equal(t, int32(2), right.Size())
	require.Equal(t, common.PageID(30), right.ChildAt(0))
	require.Equal(t, common.PageID(40), right.ChildAt(1))
	require.Equal(t, common.PageID(2), reparented[30])
	require.Equal(t, common.PageID(2), reparented[40])
}

func TestInternalMoveAllToCoalesce(t *testing.T) {
	left := newInternal(t, 1, common.InvalidPageID, 8)
	right := newInternal(t, 2, common.InvalidPageID, 8)

	left.setEntryAt(0, 0, 10)
	left.setEntryAt(1, 100, 20)
	left.setSize(2)

	right.setEntryAt(0, 0, 30)
	right.setEntryAt(1, 200, 40)
	right.setSize(2)

	reparented := map[common.PageID]common.PageID{}
	right.MoveAllTo(left, 150, func(child, newParent common.PageID) {
		reparented[child] = newParent
	})

	require.Equal(t, int32(0), right.Size())
	require.Equal(t, int32(4), left.Size())
	require.Equal(t, int64(150), left.KeyAt(2))
	require.Equal(t, common.PageID(30), left.ChildAt(2))
	require.Equal(t, common.PageID(1), reparented[30])
	require.Equal(t, common.PageID(1), reparented[40])
}

func TestInternalMoveFirstToEndOfAndMoveLastToFrontOf(t *testing.T) {
	left := newInternal(t, 1, common.InvalidPageID, 8)
	right := newInternal(t, 2, common.InvalidPageID, 8)

	left.setEntryAt(0, 0, 10)
	left.setEntryAt(1, 100, 20)
	left.setEntryAt(2, 200, 30)
	left.setSize(3)

	right.setEntryAt(0, 0, 40)
	right.setSize(1)

	newKey := left.MoveFirstToEndOf(right, 50, func(common.PageID, common.PageID) {})
	require.Equal(t, int32(2), left.Size())
	require.Equal(t, int32(2), right.Size())
	require.Equal(t, common.PageID(10), right.ChildAt(1))
	require.Equal(t, int64(100), newKey)

	back := right.MoveLastToFrontOf(left, 300, func(common.PageID, common.PageID) {})
	require.Equal(t, int32(1), right.Size())
	require.Equal(t, int32(3), left.Size())
	require.Equal(t, common.PageID(10), left.ChildAt(0))
	require.Equal(t, int64(100), left.KeyAt(1))
	require.Equal(t, int64(50), back)
}
