package index

import (
	"sync"

	"github.com/coreindex/storageengine/buffer"
	"github.com/coreindex/storageengine/common"
	"github.com/coreindex/storageengine/logger"
	"github.com/coreindex/storageengine/storage/page"
	"github.com/pkg/errors"
)

// BPlusTree is a concurrent, disk-backed B+Tree over int64 keys and RID
// values, unique keys only, per spec §3/§4.4. Structural mutations use
// latch crabbing (§5): write latches are held root-to-leaf only while an
// ancestor is "unsafe" (an insert/delete through it might overflow/
// underflow), and are released early the moment a safe node is reached.
type BPlusTree struct {
	// mu serializes root-page-id mutations (tree created/emptied, or
	// root replaced by a split/AdjustRoot), per spec §5.
	mu sync.Mutex

	bpm  *buffer.Manager
	name string
	cmp  page.Comparator

	rootPageID      common.PageID
	leafMaxSize     int32
	internalMaxSize int32
}

// NewBPlusTree attaches to (or creates) the index named name, backed by
// bpm, with page-derived max sizes. The header page (page id 0) must
// already exist — see EnsureHeaderPage for fresh-engine bootstrap.
func NewBPlusTree(bpm *buffer.Manager, name string, pageSize uint32, cmp page.Comparator) (*BPlusTree, error) {
	t := &BPlusTree{
		bpm:             bpm,
		name:            name,
		cmp:             cmp,
		rootPageID:      common.InvalidPageID,
		leafMaxSize:     page.LeafMaxSize(pageSize),
		internalMaxSize: page.InternalMaxSize(pageSize),
	}

	guard, err := bpm.FetchPageRead(common.HeaderPageID)
	if err != nil {
		return nil, errors.Wrap(err, "load header page")
	}
	hp := NewHeaderPage(guard.Frame().Data)
	if root, ok := hp.GetRootID(name); ok {
		t.rootPageID = root
	}
	guard.Release()
	return t, nil
}

// EnsureHeaderPage allocates and initializes the well-known header page.
// Must be called exactly once, before any other page allocation, on a
// fresh engine — it relies on being the first NewPage call to land on
// page id 0.
func EnsureHeaderPage(bpm *buffer.Manager) error {
	guard, err := bpm.NewPageWrite()
	if err != nil {
		return errors.Wrap(err, "allocate header page")
	}
	if guard.PageID() != common.HeaderPageID {
		pid := guard.PageID()
		guard.Release()
		return errors.Errorf("EnsureHeaderPage must run before any other allocation: got page id %d, want %d", pid, common.HeaderPageID)
	}
	NewHeaderPage(guard.Frame().Data).Init()
	guard.MarkDirty()
	return guard.Release()
}

// IsEmpty reports whether the tree has no root yet.
func (t *BPlusTree) IsEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rootPageID == common.InvalidPageID
}

func (t *BPlusTree) currentRoot() common.PageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rootPageID
}

func (t *BPlusTree) saveRoot() error {
	guard, err := t.bpm.FetchPageWrite(common.HeaderPageID)
	if err != nil {
		return errors.Wrap(err, "fetch header page")
	}
	hp := NewHeaderPage(guard.Frame().Data)
	setErr := hp.SetRootID(t.name, t.rootPageID)
	guard.MarkDirty()
	relErr := guard.Release()
	if setErr != nil {
		return errors.Wrap(setErr, "record root page id")
	}
	return relErr
}

func (t *BPlusTree) releaseAll(path []*buffer.PageGuard) {
	for _, g := range path {
		if err := g.Release(); err != nil {
			logger.Errorf("release page guard %d: %v", g.PageID(), err)
		}
	}
}

func nodeHeader(g *buffer.PageGuard) page.Header { return page.DecodeHeader(g.Frame().Data) }

// Lookup finds the RID for key, if present.
func (t *BPlusTree) Lookup(key int64) (common.RID, bool, error) {
	root := t.currentRoot()
	if root == common.InvalidPageID {
		return common.RID{}, false, nil
	}

	guard, err := t.bpm.FetchPageRead(root)
	if err != nil {
		return common.RID{}, false, err
	}
	for nodeHeader(guard).PageType != page.LeafPageType {
		internal := page.NewInternal(guard.Frame().Data)
		childID := internal.Lookup(key, t.cmp)
		childGuard, err := t.bpm.FetchPageRead(childID)
		if err != nil {
			guard.Release()
			return common.RID{}, false, err
		}
		guard.Release()
		guard = childGuard
	}

	leaf := page.NewLeaf(guard.Frame().Data)
	rid, found := leaf.Lookup(key, t.cmp)
	guard.Release()
	return rid, found, nil
}

func (t *BPlusTree) setNodeParent(pid, newParent common.PageID) {
	guard, err := t.bpm.FetchPageWrite(pid)
	if err != nil {
		logger.Errorf("reparent page %d: %v", pid, err)
		return
	}
	if nodeHeader(guard).PageType == page.LeafPageType {
		page.NewLeaf(guard.Frame().Data).SetParentID(newParent)
	} else {
		page.NewInternal(guard.Frame().Data).SetParentID(newParent)
	}
	guard.MarkDirty()
	if err := guard.Release(); err != nil {
		logger.Errorf("release reparented page %d: %v", pid, err)
	}
}
