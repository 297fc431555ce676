package page

import (
	"encoding/binary"

	"github.com/coreindex/storageengine/common"
)

// leafExtraSize is the leaf-specific header addition: next-page-id and
// prev-page-id (spec §3's "Leaf adds next-page-id and previous-page-id").
const leafExtraSize = 8

// LeafEntrySize is the fixed width of a (Key, RID) entry: an int64 key plus
// a (PageID int32, SlotID uint32) RID.
const LeafEntrySize = 16

// LeafDataStart is the byte offset of the first entry in a leaf page.
const LeafDataStart = HeaderSize + leafExtraSize

// LeafMaxSize returns the leaf max size for a page of the given size: one
// less than the number of (Key, RID) entries that fit after the leaf
// header, so the page can hold the max+1 entries a leaf has after an
// insert and before the split that follows it.
func LeafMaxSize(pageSize uint32) int32 {
	return int32((pageSize-LeafDataStart)/LeafEntrySize) - 1
}

// Leaf is a byte-buffer-backed view over a leaf page's content, in the
// tradition of operating directly on the page's byte array rather than
// decoding to an intermediate struct (mirrors the original page layout's
// "array[0]" entry array).
type Leaf struct {
	buf []byte
}

// NewLeaf wraps buf (a full PAGE_SIZE page body) as a leaf page view.
func NewLeaf(buf []byte) *Leaf { return &Leaf{buf: buf} }

// Init (re)initializes buf as an empty leaf page.
func (l *Leaf) Init(pageID, parentID common.PageID, maxSize int32) {
	h := Header{
		PageType: LeafPageType,
		LSN:      common.InvalidLSN,
		Size:     0,
		MaxSize:  maxSize,
		ParentID: parentID,
		PageID:   pageID,
	}
	h.Encode(l.buf)
	l.SetNextPageID(common.InvalidPageID)
	l.SetPrevPageID(common.InvalidPageID)
}

func (l *Leaf) Header() Header       { return DecodeHeader(l.buf) }
func (l *Leaf) SetLSN(lsn common.LSN) {
	binary.LittleEndian.PutUint32(l.buf[4:8], uint32(lsn))
}
func (l *Leaf) LSN() common.LSN { return l.Header().LSN }

func (l *Leaf) Size() int32    { return l.Header().Size }
func (l *Leaf) MaxSize() int32 { return l.Header().MaxSize }
func (l *Leaf) ParentID() common.PageID { return l.Header().ParentID }
func (l *Leaf) PageID() common.PageID   { return l.Header().PageID }

func (l *Leaf) setSize(n int32) {
	binary.LittleEndian.PutUint32(l.buf[8:12], uint32(n))
}

func (l *Leaf) SetParentID(pid common.PageID) {
	binary.LittleEndian.PutUint32(l.buf[16:20], uint32(int32(pid)))
}

func (l *Leaf) NextPageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(l.buf[HeaderSize : HeaderSize+4])))
}

func (l *Leaf) SetNextPageID(pid common.PageID) {
	binary.LittleEndian.PutUint32(l.buf[HeaderSize:HeaderSize+4], uint32(int32(pid)))
}

func (l *Leaf) PrevPageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(l.buf[HeaderSize+4 : HeaderSize+8])))
}

func (l *Leaf) SetPrevPageID(pid common.PageID) {
	binary.LittleEndian.PutUint32(l.buf[HeaderSize+4:HeaderSize+8], uint32(int32(pid)))
}

func (l *Leaf) entryOffset(i int) int { return LeafDataStart + i*LeafEntrySize }

// KeyAt returns the key at logical index i.
func (l *Leaf) KeyAt(i int) int64 {
	off := l.entryOffset(i)
	return int64(binary.LittleEndian.Uint64(l.buf[off : off+8]))
}

// RIDAt returns the RID at logical index i.
func (l *Leaf) RIDAt(i int) common.RID {
	off := l.entryOffset(i) + 8
	return common.RID{
		PageID: common.PageID(int32(binary.LittleEndian.Uint32(l.buf[off : off+4]))),
		SlotID: binary.LittleEndian.Uint32(l.buf[off+4 : off+8]),
	}
}

func (l *Leaf) setEntryAt(i int, key int64, rid common.RID) {
	off := l.entryOffset(i)
	binary.LittleEndian.PutUint64(l.buf[off:off+8], uint64(key))
	binary.LittleEndian.PutUint32(l.buf[off+8:off+12], uint32(int32(rid.PageID)))
	binary.LittleEndian.PutUint32(l.buf[off+12:off+16], rid.SlotID)
}

// KeyIndex returns the smallest index i such that KeyAt(i) >= key (the
// insertion point / lower bound), via binary search, per spec §4.4.1.
func (l *Leaf) KeyIndex(key int64, cmp Comparator) int {
	size := int(l.Size())
	lo, hi := 0, size
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(l.KeyAt(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Lookup returns the RID for key, if present.
func (l *Leaf) Lookup(key int64, cmp Comparator) (common.RID, bool) {
	i := l.KeyIndex(key, cmp)
	if i < int(l.Size()) && cmp(l.KeyAt(i), key) == 0 {
		return l.RIDAt(i), true
	}
	return common.RID{}, false
}

// Insert inserts (key, rid) in sorted order. Returns the new size, or the
// current size unchanged if key was already present (no-op, per spec §4.4.2
// "unique keys only").
func (l *Leaf) Insert(key int64, rid common.RID, cmp Comparator) int32 {
	size := int(l.Size())
	i := l.KeyIndex(key, cmp)
	if i < size && cmp(l.KeyAt(i), key) == 0 {
		return int32(size)
	}
	l.shiftRight(i, size)
	l.setEntryAt(i, key, rid)
	l.setSize(int32(size + 1))
	return int32(size + 1)
}

// shiftRight moves entries [from, size) one slot to the right, opening a
// hole at `from`.
func (l *Leaf) shiftRight(from, size int) {
	for i := size; i > from; i-- {
		k := l.KeyAt(i - 1)
		r := l.RIDAt(i - 1)
		l.setEntryAt(i, k, r)
	}
}

// shiftLeft moves entries (from, size) one slot to the left, closing the
// hole at `from`.
func (l *Leaf) shiftLeft(from, size int) {
	for i := from; i < size-1; i++ {
		l.setEntryAt(i, l.KeyAt(i+1), l.RIDAt(i+1))
	}
}

// RemoveAndDeleteRecord removes key, returning the new size. No-op (size
// unchanged) if key is absent, per spec §4.4.3 / §7.
func (l *Leaf) RemoveAndDeleteRecord(key int64, cmp Comparator) int32 {
	size := int(l.Size())
	i := l.KeyIndex(key, cmp)
	if i >= size || cmp(l.KeyAt(i), key) != 0 {
		return int32(size)
	}
	l.shiftLeft(i, size)
	l.setSize(int32(size - 1))
	return int32(size - 1)
}

// MoveHalfTo moves the second half of this leaf's entries to recipient,
// per spec §4.4.2's split procedure.
func (l *Leaf) MoveHalfTo(recipient *Leaf) {
	size := int(l.Size())
	mid := size / 2
	for i := mid; i < size; i++ {
		recipient.setEntryAt(i-mid, l.KeyAt(i), l.RIDAt(i))
	}
	recipient.setSize(int32(size - mid))
	l.setSize(int32(mid))
}

// MoveAllTo appends all of this leaf's entries onto the end of recipient
// (used by Coalesce, spec §4.4.3).
func (l *Leaf) MoveAllTo(recipient *Leaf) {
	rSize := int(recipient.Size())
	size := int(l.Size())
	for i := 0; i < size; i++ {
		recipient.setEntryAt(rSize+i, l.KeyAt(i), l.RIDAt(i))
	}
	recipient.setSize(int32(rSize + size))
	l.setSize(0)
}

// MoveFirstToEndOf moves this leaf's first entry to the end of recipient,
// for right-sibling redistribution (spec §4.4.3).
func (l *Leaf) MoveFirstToEndOf(recipient *Leaf) {
	key, rid := l.KeyAt(0), l.RIDAt(0)
	size := int(l.Size())
	l.shiftLeft(0, size)
	l.setSize(int32(size - 1))

	rSize := int(recipient.Size())
	recipient.setEntryAt(rSize, key, rid)
	recipient.setSize(int32(rSize + 1))
}

// MoveLastToFrontOf moves this leaf's last entry to the front of recipient,
// for left-sibling redistribution (spec §4.4.3).
func (l *Leaf) MoveLastToFrontOf(recipient *Leaf) {
	size := int(l.Size())
	key, rid := l.KeyAt(size-1), l.RIDAt(size-1)
	l.setSize(int32(size - 1))

	rSize := int(recipient.Size())
	recipient.shiftRight(0, rSize)
	recipient.setEntryAt(0, key, rid)
	recipient.setSize(int32(rSize + 1))
}
