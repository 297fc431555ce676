package index

import (
	"github.com/coreindex/storageengine/buffer"
	"github.com/coreindex/storageengine/common"
	"github.com/coreindex/storageengine/storage/page"
)

// minSize returns the minimum occupancy a non-root node must keep, per
// spec §4.4.3: ceil(max_size / 2).
func minSize(h page.Header) int32 {
	return (h.MaxSize + 1) / 2
}

// isSafeForDelete reports whether deleting through this node cannot
// possibly underflow it.
func isSafeForDelete(g *buffer.PageGuard) bool {
	h := nodeHeader(g)
	return h.Size > minSize(h)
}

// Delete removes key from the tree. Deleting an absent key is a no-op,
// per spec §7.
func (t *BPlusTree) Delete(key int64) error {
	root := t.currentRoot()
	if root == common.InvalidPageID {
		return nil
	}

	path, err := t.descendWriteForDelete(key)
	if err != nil {
		return err
	}

	leafGuard := path[len(path)-1]
	ancestors := path[:len(path)-1]
	leaf := page.NewLeaf(leafGuard.Frame().Data)

	before := leaf.Size()
	after := leaf.RemoveAndDeleteRecord(key, t.cmp)
	if after == before {
		t.releaseAll(path)
		return nil
	}
	leafGuard.MarkDirty()

	if len(ancestors) == 0 {
		return t.adjustRoot(leafGuard)
	}
	if after >= minSize(nodeHeader(leafGuard)) {
		t.releaseAll(path)
		return nil
	}
	return t.handleUnderflow(ancestors, leafGuard)
}

// descendWriteForDelete write-latches a root-to-leaf path, releasing the
// held ancestor chain early whenever a freshly-latched node proves safe
// against underflow, mirroring descendWriteForInsert.
func (t *BPlusTree) descendWriteForDelete(key int64) ([]*buffer.PageGuard, error) {
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

		if isSafeForDelete(childGuard) {
			t.releaseAll(path)
			path = []*buffer.PageGuard{childGuard}
		} else {
			path = append(path, childGuard)
		}
		guard = childGuard
	}
	return path, nil
}

// adjustRoot handles the root-specific underflow cases of spec §4.4.3:
// an internal root left with a single child is replaced by that child;
// a leaf root left empty makes the tree empty.
func (t *BPlusTree) adjustRoot(rootGuard *buffer.PageGuard) error {
	h := nodeHeader(rootGuard)
	oldRoot := rootGuard.PageID()

	if h.PageType != page.LeafPageType && h.Size == 1 {
		internal := page.NewInternal(rootGuard.Frame().Data)
		newRootID := internal.ChildAt(0)
		if err := rootGuard.Release(); err != nil {
			return err
		}
		t.setNodeParent(newRootID, common.InvalidPageID)

		t.mu.Lock()
		t.rootPageID = newRootID
		saveErr := t.saveRoot()
		t.mu.Unlock()

		if delErr := t.bpm.DeletePage(oldRoot); delErr != nil {
			return delErr
		}
		return saveErr
	}

	if h.PageType == page.LeafPageType && h.Size == 0 {
		if err := rootGuard.Release(); err != nil {
			return err
		}
		t.mu.Lock()
		t.rootPageID = common.InvalidPageID
		saveErr := t.saveRoot()
		t.mu.Unlock()

		if delErr := t.bpm.DeletePage(oldRoot); delErr != nil {
			return delErr
		}
		return saveErr
	}

	return rootGuard.Release()
}

// handleUnderflow implements CoalesceOrRedistribute for a non-root node
// that has dropped below minSize, per spec §4.4.3: try borrowing from a
// sibling via redistribution first, falling back to merging (Coalesce)
// with a sibling and recursing on the parent.
func (t *BPlusTree) handleUnderflow(ancestors []*buffer.PageGuard, nodeGuard *buffer.PageGuard) error {
	parentGuard := ancestors[len(ancestors)-1]
	parent := page.NewInternal(parentGuard.Frame().Data)
	idx := parent.ValueIndex(nodeGuard.PageID())
	isLeaf := nodeHeader(nodeGuard).PageType == page.LeafPageType
	hasLeft := idx > 0
	hasRight := idx < int(parent.Size())-1

	if hasLeft {
		leftGuard, err := t.bpm.FetchPageWrite(parent.ChildAt(idx - 1))
		if err != nil {
			t.releaseAll(ancestors)
			nodeGuard.Release()
			return err
		}
		if nodeHeader(leftGuard).Size > minSize(nodeHeader(leftGuard)) {
			t.redistributeFromLeft(parent, idx, leftGuard, nodeGuard, isLeaf)
			parentGuard.MarkDirty()
			leftGuard.Release()
			nodeGuard.Release()
			t.releaseAll(ancestors[:len(ancestors)-1])
			return parentGuard.Release()
		}
		if !hasRight {
			return t.coalesce(ancestors, parent, idx, leftGuard, nodeGuard, isLeaf)
		}
		leftGuard.Release()
	}

	rightGuard, err := t.bpm.FetchPageWrite(parent.ChildAt(idx + 1))
	if err != nil {
		t.releaseAll(ancestors)
		nodeGuard.Release()
		return err
	}
	if nodeHeader(rightGuard).Size > minSize(nodeHeader(rightGuard)) {
		t.redistributeFromRight(parent, idx, nodeGuard, rightGuard, isLeaf)
		parentGuard.MarkDirty()
		nodeGuard.Release()
		rightGuard.Release()
		t.releaseAll(ancestors[:len(ancestors)-1])
		return parentGuard.Release()
	}
	return t.coalesce(ancestors, parent, idx+1, nodeGuard, rightGuard, isLeaf)
}

func (t *BPlusTree) redistributeFromLeft(parent *page.Internal, idx int, leftGuard, nodeGuard *buffer.PageGuard, isLeaf bool) {
	if isLeaf {
		left := page.NewLeaf(leftGuard.Frame().Data)
		node := page.NewLeaf(nodeGuard.Frame().Data)
		left.MoveLastToFrontOf(node)
		parent.SetKeyAt(idx, node.KeyAt(0))
	} else {
		left := page.NewInternal(leftGuard.Frame().Data)
		node := page.NewInternal(nodeGuard.Frame().Data)
		reparent := func(child, newParent common.PageID) { t.setNodeParent(child, newParent) }
		newKey := left.MoveLastToFrontOf(node, parent.KeyAt(idx), reparent)
		parent.SetKeyAt(idx, newKey)
	}
	leftGuard.MarkDirty()
	nodeGuard.MarkDirty()
}

func (t *BPlusTree) redistributeFromRight(parent *page.Internal, idx int, nodeGuard, rightGuard *buffer.PageGuard, isLeaf bool) {
	if isLeaf {
		node := page.NewLeaf(nodeGuard.Frame().Data)
		right := page.NewLeaf(rightGuard.Frame().Data)
		right.MoveFirstToEndOf(node)
		parent.SetKeyAt(idx+1, right.KeyAt(0))
	} else {
		node := page.NewInternal(nodeGuard.Frame().Data)
		right := page.NewInternal(rightGuard.Frame().Data)
		reparent := func(child, newParent common.PageID) { t.setNodeParent(child, newParent) }
		newKey := right.MoveFirstToEndOf(node, parent.KeyAt(idx+1), reparent)
		parent.SetKeyAt(idx+1, newKey)
	}
	nodeGuard.MarkDirty()
	rightGuard.MarkDirty()
}

// coalesce merges rightGuard's entries into leftGuard, removes the
// now-redundant separator at discardedIdx (rightGuard's own position in
// parent) from parent, releases the merged-away page, and recurses
// CoalesceOrRedistribute on the parent if it underflows.
func (t *BPlusTree) coalesce(ancestors []*buffer.PageGuard, parent *page.Internal, discardedIdx int, leftGuard, rightGuard *buffer.PageGuard, isLeaf bool) error {
	parentGuard := ancestors[len(ancestors)-1]
	discardedID := rightGuard.PageID()
	removeAt := discardedIdx

	if isLeaf {
		left := page.NewLeaf(leftGuard.Frame().Data)
		right := page.NewLeaf(rightGuard.Frame().Data)
		right.MoveAllTo(left)
		left.SetNextPageID(right.NextPageID())
		if right.NextPageID() != common.InvalidPageID {
			t.fixLeafPrevPointer(right.NextPageID(), left.PageID())
		}
	} else {
		left := page.NewInternal(leftGuard.Frame().Data)
		right := page.NewInternal(rightGuard.Frame().Data)
		reparent := func(child, newParent common.PageID) { t.setNodeParent(child, newParent) }
		right.MoveAllTo(left, parent.KeyAt(removeAt), reparent)
	}
	leftGuard.MarkDirty()

	parent.Remove(removeAt)
	parentGuard.MarkDirty()

	if err := rightGuard.Release(); err != nil {
		t.releaseAll(ancestors)
		leftGuard.Release()
		return err
	}
	if err := t.bpm.DeletePage(discardedID); err != nil {
		t.releaseAll(ancestors)
		leftGuard.Release()
		return err
	}
	if err := leftGuard.Release(); err != nil {
		t.releaseAll(ancestors)
		return err
	}

	grandparents := ancestors[:len(ancestors)-1]
	if len(grandparents) == 0 {
		return t.adjustRoot(parentGuard)
	}
	if parent.Size() >= minSize(nodeHeader(parentGuard)) {
		t.releaseAll(grandparents)
		return parentGuard.Release()
	}
	return t.handleUnderflow(grandparents, parentGuard)
}
