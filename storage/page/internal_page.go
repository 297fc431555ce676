package page

import (
	"encoding/binary"

	"github.com/coreindex/storageengine/common"
)

// InternalEntrySize is the fixed width of a (Key, child-page-id) entry.
const InternalEntrySize = 12

// InternalDataStart is the byte offset of the first entry in an internal
// page (right after the common header; internal pages have no extra
// fields, per spec §3).
const InternalDataStart = HeaderSize

// InternalMaxSize returns how many entries fit in a page of the given
// size, rounded down to even per spec §3 ("Max size is rounded down to
// even").
func InternalMaxSize(pageSize uint32) int32 {
	raw := int32((pageSize - InternalDataStart) / InternalEntrySize)
	return raw - (raw % 2)
}

// Internal is a byte-buffer-backed view over an internal page. Entry 0's
// key is an unused sentinel; children at indices [0, size) are valid
// pointers, keys at [1, size) are separators, per spec §3.
type Internal struct {
	buf []byte
}

// NewInternal wraps buf as an internal page view.
func NewInternal(buf []byte) *Internal { return &Internal{buf: buf} }

func (n *Internal) Init(pageID, parentID common.PageID, maxSize int32) {
	h := Header{
		PageType: InternalPageType,
		LSN:      common.InvalidLSN,
		Size:     0,
		MaxSize:  maxSize,
		ParentID: parentID,
		PageID:   pageID,
	}
	h.Encode(n.buf)
}

func (n *Internal) Header() Header { return DecodeHeader(n.buf) }
func (n *Internal) SetLSN(lsn common.LSN) {
	binary.LittleEndian.PutUint32(n.buf[4:8], uint32(lsn))
}
func (n *Internal) LSN() common.LSN            { return n.Header().LSN }
func (n *Internal) Size() int32                { return n.Header().Size }
func (n *Internal) MaxSize() int32             { return n.Header().MaxSize }
func (n *Internal) ParentID() common.PageID    { return n.Header().ParentID }
func (n *Internal) PageID() common.PageID      { return n.Header().PageID }

func (n *Internal) setSize(s int32) {
	binary.LittleEndian.PutUint32(n.buf[8:12], uint32(s))
}

func (n *Internal) SetParentID(pid common.PageID) {
	binary.LittleEndian.PutUint32(n.buf[16:20], uint32(int32(pid)))
}

func (n *Internal) entryOffset(i int) int { return InternalDataStart + i*InternalEntrySize }

// KeyAt returns the separator key at index i. Index 0 is the unused
// sentinel.
func (n *Internal) KeyAt(i int) int64 {
	off := n.entryOffset(i)
	return int64(binary.LittleEndian.Uint64(n.buf[off : off+8]))
}

func (n *Internal) setKeyAt(i int, key int64) {
	off := n.entryOffset(i)
	binary.LittleEndian.PutUint64(n.buf[off:off+8], uint64(key))
}

// SetKeyAt overwrites the separator key at index i, used to rotate a
// separator through the parent during redistribution (spec §4.4.3).
func (n *Internal) SetKeyAt(i int, key int64) { n.setKeyAt(i, key) }

// ChildAt returns the child page id at index i.
func (n *Internal) ChildAt(i int) common.PageID {
	off := n.entryOffset(i) + 8
	return common.PageID(int32(binary.LittleEndian.Uint32(n.buf[off : off+4])))
}

func (n *Internal) setChildAt(i int, child common.PageID) {
	off := n.entryOffset(i) + 8
	binary.LittleEndian.PutUint32(n.buf[off:off+4], uint32(int32(child)))
}

func (n *Internal) setEntryAt(i int, key int64, child common.PageID) {
	n.setKeyAt(i, key)
	n.setChildAt(i, child)
}

// ValueIndex returns the index of child in [0, size), or -1.
func (n *Internal) ValueIndex(child common.PageID) int {
	size := int(n.Size())
	for i := 0; i < size; i++ {
		if n.ChildAt(i) == child {
			return i
		}
	}
	return -1
}

// Lookup returns the child pointer to follow for key, per spec §4.4.1:
// the smallest index i in [1,size) with key < KeyAt(i); follow
// ChildAt(i-1).
func (n *Internal) Lookup(key int64, cmp Comparator) common.PageID {
	size := int(n.Size())
	lo, hi := 1, size
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(key, n.KeyAt(mid)) < 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return n.ChildAt(lo - 1)
}

// PopulateNewRoot sets this (freshly-init'd, empty) page up as a new root
// with two children, per spec §4.4.2.
func (n *Internal) PopulateNewRoot(leftChild common.PageID, key int64, rightChild common.PageID) {
	n.setEntryAt(0, 0, leftChild)
	n.setEntryAt(1, key, rightChild)
	n.setSize(2)
}

// InsertNodeAfter inserts (key, newChild) immediately after oldChild.
// Returns the new size.
func (n *Internal) InsertNodeAfter(oldChild common.PageID, key int64, newChild common.PageID) int32 {
	idx := n.ValueIndex(oldChild)
	size := int(n.Size())
	for i := size; i > idx+1; i-- {
		n.setEntryAt(i, n.KeyAt(i-1), n.ChildAt(i-1))
	}
	n.setEntryAt(idx+1, key, newChild)
	n.setSize(int32(size + 1))
	return int32(size + 1)
}

// Remove deletes the entry at index i, shifting subsequent entries left.
func (n *Internal) Remove(i int) {
	size := int(n.Size())
	for j := i; j < size-1; j++ {
		n.setEntryAt(j, n.KeyAt(j+1), n.ChildAt(j+1))
	}
	n.setSize(int32(size - 1))
}

// MoveHalfTo moves the second half of entries to recipient, per spec
// §4.4.2's internal split.
func (n *Internal) MoveHalfTo(recipient *Internal, reparent func(child, newParent common.PageID)) {
	size := int(n.Size())
	mid := size / 2
	for i := mid; i < size; i++ {
		recipient.setEntryAt(i-mid, n.KeyAt(i), n.ChildAt(i))
		reparent(n.ChildAt(i), recipient.PageID())
	}
	recipient.setSize(int32(size - mid))
	n.setSize(int32(mid))
}

// MoveAllTo appends all of this node's entries onto recipient, using
// middleKey as the hinge separator pulled down from the parent (spec
// §4.4.3's Coalesce), then reparents migrated children.
func (n *Internal) MoveAllTo(recipient *Internal, middleKey int64, reparent func(child, newParent common.PageID)) {
	rSize := int(recipient.Size())
	size := int(n.Size())
	for i := 0; i < size; i++ {
		key := n.KeyAt(i)
		if i == 0 {
			key = middleKey
		}
		recipient.setEntryAt(rSize+i, key, n.ChildAt(i))
		reparent(n.ChildAt(i), recipient.PageID())
	}
	recipient.setSize(int32(rSize + size))
	n.setSize(0)
}

// MoveFirstToEndOf moves this node's first entry to the end of recipient.
// middleKey (the parent separator between recipient and n) becomes the key
// paired with the migrated child; this node's new first entry's key
// becomes the new parent separator, returned to the caller to write back.
func (n *Internal) MoveFirstToEndOf(recipient *Internal, middleKey int64, reparent func(child, newParent common.PageID)) (newParentKey int64) {
	child := n.ChildAt(0)
	size := int(n.Size())
	for i := 0; i < size-1; i++ {
		n.setEntryAt(i, n.KeyAt(i+1), n.ChildAt(i+1))
	}
	n.setSize(int32(size - 1))
	newParentKey = n.KeyAt(0)

	rSize := int(recipient.Size())
	recipient.setEntryAt(rSize, middleKey, child)
	recipient.setSize(int32(rSize + 1))
	reparent(child, recipient.PageID())
	return newParentKey
}

// MoveLastToFrontOf moves this node's last entry to the front of
// recipient, returning the key that should become the new parent
// separator between n and recipient.
func (n *Internal) MoveLastToFrontOf(recipient *Internal, middleKey int64, reparent func(child, newParent common.PageID)) (newParentKey int64) {
	size := int(n.Size())
	child := n.ChildAt(size - 1)
	newParentKey = n.KeyAt(size - 1)
	n.setSize(int32(size - 1))

	rSize := int(recipient.Size())
	for i := rSize; i > 0; i-- {
		recipient.setEntryAt(i, recipient.KeyAt(i-1), recipient.ChildAt(i-1))
	}
	recipient.setEntryAt(0, middleKey, child)
	recipient.setSize(int32(rSize + 1))
	reparent(child, recipient.PageID())
	return newParentKey
}
