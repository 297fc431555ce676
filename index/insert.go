package index

import (
	"github.com/coreindex/storageengine/buffer"
	"github.com/coreindex/storageengine/common"
	"github.com/coreindex/storageengine/storage/page"
)

// Insert adds (key, rid). Returns false without modifying the tree if key
// is already present, per spec §4.4.2's unique-key rule.
func (t *BPlusTree) Insert(key int64, rid common.RID) (bool, error) {
	t.mu.Lock()
	if t.rootPageID == common.InvalidPageID {
		guard, err := t.bpm.NewPageWrite()
		if err != nil {
			t.mu.Unlock()
			return false, err
		}
		leaf := page.NewLeaf(guard.Frame().Data)
		leaf.Init(guard.PageID(), common.InvalidPageID, t.leafMaxSize)
		leaf.Insert(key, rid, t.cmp)
		guard.MarkDirty()
		t.rootPageID = guard.PageID()
		relErr := guard.Release()
		saveErr := t.saveRoot()
		t.mu.Unlock()
		if relErr != nil {
			return false, relErr
		}
		return true, saveErr
	}
	t.mu.Unlock()

	path, err := t.descendWriteForInsert(key)
	if err != nil {
		return false, err
	}

	leafGuard := path[len(path)-1]
	leaf := page.NewLeaf(leafGuard.Frame().Data)
	if _, found := leaf.Lookup(key, t.cmp); found {
		t.releaseAll(path)
		return false, nil
	}

	leaf.Insert(key, rid, t.cmp)
	leafGuard.MarkDirty()

	if leaf.Size() <= t.leafMaxSize {
		t.releaseAll(path)
		return true, nil
	}

	return t.splitLeafAndPropagate(path)
}

// isSafeForInsert reports whether inserting through this node cannot
// possibly overflow it.
func isSafeForInsert(g *buffer.PageGuard) bool {
	h := nodeHeader(g)
	return h.Size < h.MaxSize
}

// descendWriteForInsert write-latches a root-to-leaf path, releasing the
// held ancestor chain early whenever a freshly-latched node proves safe.
func (t *BPlusTree) descendWriteForInsert(key int64) ([]*buffer.PageGuard, error) {
	root := t.currentRoot()
	guard, err := t.bpm.FetchPageWrite(root)
	if err != nil {
		return nil, err
	}
	path := []*buffer.PageGuard{guard}

	for nodeHeader(guard).PageType != page.LeafPageType {
		internal := page.NewInternal(guard.Frame().Data)
		childID := internal.Lookup(key, t.cmp)
		childGuard, err := t.bpm.FetchPageWrite(childID)
		if err != nil {
			t.releaseAll(path)
			return nil, err
		}

		if isSafeForInsert(childGuard) {
			t.releaseAll(path)
			path = []*buffer.PageGuard{childGuard}
		} else {
			path = append(path, childGuard)
		}
		guard = childGuard
	}
	return path, nil
}

// splitLeafAndPropagate splits the overflowed leaf at the end of path and
// propagates the new separator key into the parent (or creates a new
// root), per spec §4.4.2.
func (t *BPlusTree) splitLeafAndPropagate(path []*buffer.PageGuard) (bool, error) {
	leafGuard := path[len(path)-1]
	ancestors := path[:len(path)-1]
	leaf := page.NewLeaf(leafGuard.Frame().Data)

	siblingGuard, err := t.bpm.NewPageWrite()
	if err != nil {
		t.releaseAll(path)
		return false, err
	}
	sibling := page.NewLeaf(siblingGuard.Frame().Data)
	sibling.Init(siblingGuard.PageID(), leaf.ParentID(), t.leafMaxSize)

	leaf.MoveHalfTo(sibling)
	sibling.SetNextPageID(leaf.NextPageID())
	sibling.SetPrevPageID(leaf.PageID())
	leaf.SetNextPageID(sibling.PageID())
	if sibling.NextPageID() != common.InvalidPageID {
		t.fixLeafPrevPointer(sibling.NextPageID(), sibling.PageID())
	}

	leafGuard.MarkDirty()
	siblingGuard.MarkDirty()

	// Per spec §9's Open Question on the leaf split separator: the new
	// right sibling's first key is used (not the left leaf's last key),
	// matching the post-split invariant that all of the right sibling's
	// keys are >= the separator.
	sepKey := sibling.KeyAt(0)

	return t.insertIntoParent(ancestors, leafGuard, siblingGuard, sepKey)
}

func (t *BPlusTree) fixLeafPrevPointer(pid, newPrev common.PageID) {
	guard, err := t.bpm.FetchPageWrite(pid)
	if err != nil {
		return
	}
	page.NewLeaf(guard.Frame().Data).SetPrevPageID(newPrev)
	guard.MarkDirty()
	guard.Release()
}

// insertIntoParent inserts (left, sepKey, right) into the parent at the
// top of ancestors, creating a new root if ancestors is empty, and
// recursively splitting the parent if it overflows.
func (t *BPlusTree) insertIntoParent(ancestors []*buffer.PageGuard, leftGuard, rightGuard *buffer.PageGuard, sepKey int64) (bool, error) {
	if len(ancestors) == 0 {
		rootGuard, err := t.bpm.NewPageWrite()
		if err != nil {
			leftGuard.Release()
			rightGuard.Release()
			return false, err
		}
		root := page.NewInternal(rootGuard.Frame().Data)
		root.Init(rootGuard.PageID(), common.InvalidPageID, t.internalMaxSize)
		root.PopulateNewRoot(leftGuard.PageID(), sepKey, rightGuard.PageID())
		rootGuard.MarkDirty()

		t.setParentInPlace(leftGuard, rootGuard.PageID())
		t.setParentInPlace(rightGuard, rootGuard.PageID())

		t.mu.Lock()
		t.rootPageID = rootGuard.PageID()
		saveErr := t.saveRoot()
		t.mu.Unlock()

		relErr := rootGuard.Release()
		leftGuard.Release()
		rightGuard.Release()
		if relErr != nil {
			return false, relErr
		}
		return true, saveErr
	}

	parentGuard := ancestors[len(ancestors)-1]
	parent := page.NewInternal(parentGuard.Frame().Data)
	parent.InsertNodeAfter(leftGuard.PageID(), sepKey, rightGuard.PageID())
	parentGuard.MarkDirty()

	t.setParentInPlace(rightGuard, parentGuard.PageID())

	leftGuard.Release()
	rightGuard.Release()

	if parent.Size() <= t.internalMaxSize {
		t.releaseAll(ancestors)
		return true, nil
	}

	newSiblingGuard, err := t.bpm.NewPageWrite()
	if err != nil {
		t.releaseAll(ancestors)
		return false, err
	}
	newSibling := page.NewInternal(newSiblingGuard.Frame().Data)
	newSibling.Init(newSiblingGuard.PageID(), parent.ParentID(), t.internalMaxSize)

	parent.MoveHalfTo(newSibling, func(child, newParent common.PageID) {
		t.setNodeParent(child, newParent)
	})
	parentGuard.MarkDirty()
	newSiblingGuard.MarkDirty()

	upKey := newSibling.KeyAt(0)
	return t.insertIntoParent(ancestors[:len(ancestors)-1], parentGuard, newSiblingGuard, upKey)
}

func (t *BPlusTree) setParentInPlace(g *buffer.PageGuard, parent common.PageID) {
	if nodeHeader(g).PageType == page.LeafPageType {
		page.NewLeaf(g.Frame().Data).SetParentID(parent)
	} else {
		page.NewInternal(g.Frame().Data).SetParentID(parent)
	}
	g.MarkDirty()
}
