// Package index implements the concurrent B+Tree: page-level operations
// (lookup, insert+split, delete+coalesce/redistribute, iteration) layered
// over the buffer pool, with latch crabbing per spec §4.4/§5.
package index

import (
	"encoding/binary"

	"github.com/coreindex/storageengine/common"
	"github.com/pkg/errors"
)

// headerNameSize is the fixed width reserved for an index name in the
// header page's directory, per spec §6: "page id 0 stores index-name ->
// root-page-id records".
const headerNameSize = 32

const headerEntrySize = headerNameSize + 4

// HeaderPage is a byte-buffer-backed view over the well-known page 0: a
// count followed by fixed-width (name, root-page-id) entries.
type HeaderPage struct {
	buf []byte
}

// NewHeaderPage wraps buf as a header page view.
func NewHeaderPage(buf []byte) *HeaderPage { return &HeaderPage{buf: buf} }

// Init zeroes the entry count, producing an empty directory.
func (h *HeaderPage) Init() {
	binary.LittleEndian.PutUint32(h.buf[0:4], 0)
}

// Count returns the number of index entries recorded.
func (h *HeaderPage) Count() int {
	return int(binary.LittleEndian.Uint32(h.buf[0:4]))
}

func (h *HeaderPage) entryOffset(i int) int { return 4 + i*headerEntrySize }

func (h *HeaderPage) nameAt(i int) string {
	off := h.entryOffset(i)
	raw := h.buf[off : off+headerNameSize]
	n := 0
	for n < len(raw) && raw[n] != 0 {
		n++
	}
	return string(raw[:n])
}

func (h *HeaderPage) rootAt(i int) common.PageID {
	off := h.entryOffset(i) + headerNameSize
	return common.PageID(int32(binary.LittleEndian.Uint32(h.buf[off : off+4])))
}

func (h *HeaderPage) setEntryAt(i int, name string, root common.PageID) error {
	if len(name) > headerNameSize {
		return errors.Errorf("index name %q exceeds header page limit of %d bytes", name, headerNameSize)
	}
	off := h.entryOffset(i)
	nameBuf := h.buf[off : off+headerNameSize]
	for j := range nameBuf {
		nameBuf[j] = 0
	}
	copy(nameBuf, name)
	binary.LittleEndian.PutUint32(h.buf[off+headerNameSize:off+headerNameSize+4], uint32(root))
	return nil
}

// GetRootID returns the root page id registered for name, if any.
func (h *HeaderPage) GetRootID(name string) (common.PageID, bool) {
	n := h.Count()
	for i := 0; i < n; i++ {
		if h.nameAt(i) == name {
			return h.rootAt(i), true
		}
	}
	return common.InvalidPageID, false
}

// SetRootID records or updates name's root page id.
func (h *HeaderPage) SetRootID(name string, root common.PageID) error {
	n := h.Count()
	for i := 0; i < n; i++ {
		if h.nameAt(i) == name {
			return h.setEntryAt(i, name, root)
		}
	}
	maxEntries := (len(h.buf) - 4) / headerEntrySize
	if n >= maxEntries {
		return errors.Errorf("header page full: cannot register index %q", name)
	}
	if err := h.setEntryAt(n, name, root); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(h.buf[0:4], uint32(n+1))
	return nil
}
