package buffer

import "github.com/coreindex/storageengine/common"

// PageGuard is a scoped fetch+latch handle: pin happens before latch
// acquisition, and Release unlatches before unpinning, enforcing the
// pin-then-latch / unlatch-then-unpin ordering spec §5 requires without
// every caller having to get it right by hand.
type PageGuard struct {
	bpm      *Manager
	frame    *Frame
	write    bool
	dirty    bool
	released bool
}

// FetchPageRead pins pageID and acquires its frame's read latch.
func (m *Manager) FetchPageRead(pageID common.PageID) (*PageGuard, error) {
	f, err := m.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	f.Latch.RLock()
	return &PageGuard{bpm: m, frame: f, write: false}, nil
}

// FetchPageWrite pins pageID and acquires its frame's write latch.
func (m *Manager) FetchPageWrite(pageID common.PageID) (*PageGuard, error) {
	f, err := m.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	f.Latch.Lock()
	return &PageGuard{bpm: m, frame: f, write: true}, nil
}

// NewPageWrite allocates a fresh page, pinned and write-latched.
func (m *Manager) NewPageWrite() (*PageGuard, error) {
	f, err := m.NewPage()
	if err != nil {
		return nil, err
	}
	f.Latch.Lock()
	return &PageGuard{bpm: m, frame: f, write: true}, nil
}

// Frame exposes the underlying frame for page-body access.
func (g *PageGuard) Frame() *Frame { return g.frame }

// PageID returns the guarded page's id.
func (g *PageGuard) PageID() common.PageID { return g.frame.PageID }

// MarkDirty flags the page as modified; the dirty bit is OR'd into the
// frame on Release.
func (g *PageGuard) MarkDirty() { g.dirty = true }

// Release unlatches then unpins, per spec §5's ordering rule. Safe to
// call at most once; a second call is a no-op.
func (g *PageGuard) Release() error {
	if g.released {
		return nil
	}
	g.released = true

	if g.write {
		g.frame.Latch.Unlock()
	} else {
		g.frame.Latch.RUnlock()
	}
	return g.bpm.UnpinPage(g.frame.PageID, g.dirty)
}
