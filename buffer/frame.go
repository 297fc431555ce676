// Package buffer implements the buffer pool manager: the fixed set of
// in-memory page frames shared by every page-consuming component, backed
// by an LRU replacer for eviction and an extendible hash table as page
// table, per spec §4.3.
package buffer

import (
	"github.com/coreindex/storageengine/common"
	"github.com/coreindex/storageengine/latch"
)

// Frame is one in-memory slot holding a page's bytes plus its bookkeeping:
// pin count, dirty flag, the page currently resident (if any), and a
// reader-writer latch independent of the pin count, per spec §5.
type Frame struct {
	PageID   common.PageID
	Data     []byte
	PinCount int32
	Dirty    bool
	Latch    *latch.Latch
}

func newFrame(pageSize uint32) *Frame {
	return &Frame{
		PageID: common.InvalidPageID,
		Data:   make([]byte, pageSize),
		Latch:  latch.New(),
	}
}

func (f *Frame) reset(pageID common.PageID) {
	f.PageID = pageID
	f.PinCount = 0
	f.Dirty = false
	for i := range f.Data {
		f.Data[i] = 0
	}
}
