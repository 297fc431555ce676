package index

import (
	"github.com/coreindex/storageengine/buffer"
	"github.com/coreindex/storageengine/common"
	"github.com/coreindex/storageengine/logger"
	"github.com/coreindex/storageengine/storage/page"
)

// Iterator walks a leaf chain in key order. It is single-pass and
// non-restartable: once Valid reports false, the iterator is done,
// per spec §4.4.4.
type Iterator struct {
	bpm  *buffer.Manager
	cmp  page.Comparator
	leaf *buffer.PageGuard
	pos  int
	done bool
}

// Begin returns an iterator positioned at the leftmost entry.
func (t *BPlusTree) Begin() (*Iterator, error) {
	root := t.currentRoot()
	if root == common.InvalidPageID {
		return &Iterator{bpm: t.bpm, cmp: t.cmp, done: true}, nil
	}

	guard, err := t.bpm.FetchPageRead(root)
	if err != nil {
		return nil, err
	}
	for nodeHeader(guard).PageType != page.LeafPageType {
		internal := page.NewInternal(guard.Frame().Data)
		childGuard, err := t.bpm.FetchPageRead(internal.ChildAt(0))
		if err != nil {
			guard.Release()
			return nil, err
		}
		guard.Release()
		guard = childGuard
	}

	return &Iterator{bpm: t.bpm, cmp: t.cmp, leaf: guard, pos: 0, done: false}, nil
}

// BeginAt returns an iterator positioned at the first entry with key >=
// the given key.
func (t *BPlusTree) BeginAt(key int64) (*Iterator, error) {
	root := t.currentRoot()
	if root == common.InvalidPageID {
		return &Iterator{bpm: t.bpm, cmp: t.cmp, done: true}, nil
	}

	guard, err := t.bpm.FetchPageRead(root)
	if err != nil {
		return nil, err
	}
	for nodeHeader(guard).PageType != page.LeafPageType {
		internal := page.NewInternal(guard.Frame().Data)
		childID := internal.Lookup(key, t.cmp)
		childGuard, err := t.bpm.FetchPageRead(childID)
		if err != nil {
			guard.Release()
			return nil, err
		}
		guard.Release()
		guard = childGuard
	}

	leaf := page.NewLeaf(guard.Frame().Data)
	it := &Iterator{bpm: t.bpm, cmp: t.cmp, leaf: guard, pos: leaf.KeyIndex(key, t.cmp), done: false}
	it.skipToValid()
	return it, nil
}

// Valid reports whether the iterator has a current entry to read.
func (it *Iterator) Valid() bool { return !it.done }

// Key returns the current entry's key. Valid must be true.
func (it *Iterator) Key() int64 {
	return page.NewLeaf(it.leaf.Frame().Data).KeyAt(it.pos)
}

// RID returns the current entry's RID. Valid must be true.
func (it *Iterator) RID() common.RID {
	return page.NewLeaf(it.leaf.Frame().Data).RIDAt(it.pos)
}

// Next advances the iterator, crossing to the next leaf via next-page-id
// when the current one is exhausted.
func (it *Iterator) Next() {
	it.pos++
	it.skipToValid()
}

// skipToValid crosses leaf boundaries until pos lands on a live entry or
// the chain is exhausted.
func (it *Iterator) skipToValid() {
	for !it.done {
		leaf := page.NewLeaf(it.leaf.Frame().Data)
		if it.pos < int(leaf.Size()) {
			return
		}
		next := leaf.NextPageID()
		it.leaf.Release()
		it.leaf = nil
		if next == common.InvalidPageID {
			it.done = true
			return
		}
		guard, err := it.bpm.FetchPageRead(next)
		if err != nil {
			logger.Errorf("fetch next leaf %d: %v", next, err)
			it.done = true
			return
		}
		it.leaf = guard
		it.pos = 0
	}
}

// Close releases any pinned leaf without consuming the rest of the
// traversal.
func (it *Iterator) Close() error {
	if it.leaf == nil {
		return nil
	}
	g := it.leaf
	it.leaf = nil
	it.done = true
	return g.Release()
}
