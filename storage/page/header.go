// Package page implements the on-disk layout of B+Tree pages: the common
// 24-byte header (spec §3/§6) plus the leaf and internal page bodies layered
// on top of it.
package page

import (
	"encoding/binary"

	"github.com/coreindex/storageengine/common"
)

// PageType tags a B+Tree page's body interpretation.
type PageType uint32

const (
	InvalidPageType PageType = iota
	LeafPageType
	InternalPageType
)

// HeaderSize is the common B+Tree page header: page_type, lsn, size,
// max_size, parent_id, page_id — 24 bytes, per spec §3/§6.
const HeaderSize = 24

// Header is the common prefix of every B+Tree page.
type Header struct {
	PageType   PageType
	LSN        common.LSN
	Size       int32
	MaxSize    int32
	ParentID   common.PageID
	PageID     common.PageID
}

// Encode writes the header into buf[0:HeaderSize].
func (h Header) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.PageType))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.LSN))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.Size))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(h.MaxSize))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(h.ParentID))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(h.PageID))
}

// DecodeHeader reads the common header from buf[0:HeaderSize].
func DecodeHeader(buf []byte) Header {
	return Header{
		PageType: PageType(binary.LittleEndian.Uint32(buf[0:4])),
		LSN:      common.LSN(binary.LittleEndian.Uint32(buf[4:8])),
		Size:     int32(binary.LittleEndian.Uint32(buf[8:12])),
		MaxSize:  int32(binary.LittleEndian.Uint32(buf[12:16])),
		ParentID: common.PageID(int32(binary.LittleEndian.Uint32(buf[16:20]))),
		PageID:   common.PageID(int32(binary.LittleEndian.Uint32(buf[20:24]))),
	}
}
