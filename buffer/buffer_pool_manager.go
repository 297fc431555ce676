package buffer

import (
	"sync"

	"github.com/coreindex/storageengine/common"
	"github.com/coreindex/storageengine/hash"
	"github.com/coreindex/storageengine/logger"
	"github.com/coreindex/storageengine/replacer"
	"github.com/coreindex/storageengine/storage/disk"
	"github.com/coreindex/storageengine/storage/page"
	"github.com/pkg/errors"
)

// pageTableSize is the extendible hash table's starting bucket capacity;
// it grows on its own as the resident page count exceeds it.
const pageTableSize = 4

// LogFlusher is the force-write-ahead collaborator: before a dirty page
// with LSN L is evicted, the log up to L must be durable. Satisfied by
// *recovery.LogManager; nil-able so the buffer pool can run standalone
// (e.g. in tests) without a log manager wired in.
type LogFlusher interface {
	ForceFlushUpTo(lsn common.LSN) error
}

// Manager is the buffer pool: a fixed-size set of frames shared by every
// page consumer, backed by disk.Manager for misses and an LRUReplacer for
// eviction, per spec §4.3.
type Manager struct {
	mu sync.Mutex

	disk      disk.Manager
	replacer  *replacer.LRUReplacer
	pageTable *hash.Table[common.PageID, common.FrameID]

	frames   []*Frame
	freeList []common.FrameID

	// Log, if set, is force-flushed up to a dirty victim's LSN before
	// that page is written back, per spec §5's force-write-ahead rule.
	Log LogFlusher

	Stats Stats
}

// NewManager allocates poolSize frames of pageSize bytes each.
func NewManager(d disk.Manager, poolSize int, pageSize uint32) *Manager {
	frames := make([]*Frame, poolSize)
	free := make([]common.FrameID, poolSize)
	for i := 0; i < poolSize; i++ {
		frames[i] = newFrame(pageSize)
		free[i] = common.FrameID(i)
	}

	t := hash.New[common.PageID, common.FrameID](pageTableSize)
	t.Encode = func(pid common.PageID) []byte {
		b := make([]byte, 4)
		b[0] = byte(pid)
		b[1] = byte(pid >> 8)
		b[2] = byte(pid >> 16)
		b[3] = byte(pid >> 24)
		return b
	}

	return &Manager{
		disk:      d,
		replacer:  replacer.NewLRUReplacer(),
		pageTable: t,
		frames:    frames,
		freeList:  free,
	}
}

// victim picks a frame to (re)use: a free-list frame first, else an
// evictable replacer victim. Returns false if every frame is pinned.
func (m *Manager) victim() (common.FrameID, bool) {
	if n := len(m.freeList); n > 0 {
		fid := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		return fid, true
	}
	fid, ok := m.replacer.Victim()
	if ok {
		m.Stats.recordEviction()
	}
	return fid, ok
}

// evict prepares frame fid for reuse: flushing it if dirty and removing
// its old page-table mapping. Caller holds m.mu.
func (m *Manager) evict(fid common.FrameID) error {
	f := m.frames[fid]
	if f.PageID == common.InvalidPageID {
		return nil
	}
	if f.Dirty {
		if m.Log != nil {
			lsn := page.DecodeHeader(f.Data).LSN
			if err := m.Log.ForceFlushUpTo(lsn); err != nil {
				return errors.Wrapf(err, "force log flush before evicting page %d", f.PageID)
			}
		}
		if err := m.disk.WritePage(f.PageID, f.Data); err != nil {
			return errors.Wrapf(err, "flush victim page %d before reuse", f.PageID)
		}
		m.Stats.recordFlush()
	}
	m.pageTable.Remove(f.PageID)
	return nil
}

// FetchPage returns the frame holding pageID, pinning it, reading it from
// disk on a page-table miss.
func (m *Manager) FetchPage(pageID common.PageID) (*Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fid, ok := m.pageTable.Find(pageID); ok {
		f := m.frames[fid]
		f.PinCount++
		if f.PinCount == 1 {
			m.replacer.Erase(fid)
		}
		m.Stats.recordHit()
		return f, nil
	}

	m.Stats.recordMiss()
	fid, ok := m.victim()
	if !ok {
		return nil, common.ErrBufferPoolExhausted
	}
	if err := m.evict(fid); err != nil {
		return nil, err
	}

	f := m.frames[fid]
	f.reset(pageID)
	if err := m.disk.ReadPage(pageID, f.Data); err != nil {
		f.reset(common.InvalidPageID)
		m.freeList = append(m.freeList, fid)
		return nil, errors.Wrapf(err, "read page %d from disk", pageID)
	}

	m.pageTable.Insert(pageID, fid)
	f.PinCount = 1
	return f, nil
}

// NewPage allocates a fresh page on disk and pins its frame.
func (m *Manager) NewPage() (*Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.victim()
	if !ok {
		return nil, common.ErrBufferPoolExhausted
	}
	if err := m.evict(fid); err != nil {
		return nil, err
	}

	pageID := m.disk.AllocatePage()
	f := m.frames[fid]
	f.reset(pageID)
	f.PinCount = 1
	m.pageTable.Insert(pageID, fid)
	return f, nil
}

// UnpinPage decrements a frame's pin count, marking it dirty if isDirty.
// Once the pin count reaches zero the frame becomes replacer-evictable.
func (m *Manager) UnpinPage(pageID common.PageID, isDirty bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.pageTable.Find(pageID)
	if !ok {
		return errors.Wrapf(common.ErrPageNotFound, "unpin page %d", pageID)
	}
	f := m.frames[fid]
	if isDirty {
		f.Dirty = true
	}
	if f.PinCount == 0 {
		return nil
	}
	f.PinCount--
	if f.PinCount == 0 {
		m.replacer.Insert(fid)
	}
	return nil
}

// FlushPage writes pageID's frame back to disk unconditionally. Per spec
// §4.3 this does not clear the dirty flag.
func (m *Manager) FlushPage(pageID common.PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.pageTable.Find(pageID)
	if !ok {
		return errors.Wrapf(common.ErrPageNotFound, "flush page %d", pageID)
	}
	f := m.frames[fid]
	if err := m.disk.WritePage(f.PageID, f.Data); err != nil {
		return errors.Wrapf(err, "flush page %d", pageID)
	}
	m.Stats.recordFlush()
	return nil
}

// FlushAllPages flushes every resident page, logging but not stopping on
// a per-page error so a single bad page can't block checkpointing the
// rest of the pool.
func (m *Manager) FlushAllPages() error {
	m.mu.Lock()
	resident := make([]common.PageID, 0, len(m.frames))
	for _, f := range m.frames {
		if f.PageID != common.InvalidPageID {
			resident = append(resident, f.PageID)
		}
	}
	m.mu.Unlock()

	var firstErr error
	for _, pid := range resident {
		if err := m.FlushPage(pid); err != nil {
			logger.Errorf("flush page %d during FlushAllPages: %v", pid, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// DeletePage removes pageID from the pool entirely, refusing if it is
// still pinned. Deallocates the underlying disk page on success.
func (m *Manager) DeletePage(pageID common.PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.pageTable.Find(pageID)
	if !ok {
		return nil
	}
	f := m.frames[fid]
	if f.PinCount > 0 {
		return errors.Errorf("cannot delete pinned page %d (pin count %d)", pageID, f.PinCount)
	}
	m.replacer.Erase(fid)
	m.pageTable.Remove(pageID)
	f.reset(common.InvalidPageID)
	m.freeList = append(m.freeList, fid)

	if err := m.disk.DeallocatePage(pageID); err != nil {
		return errors.Wrapf(err, "deallocate page %d", pageID)
	}
	return nil
}
