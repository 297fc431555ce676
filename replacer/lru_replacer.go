// Package replacer implements the ordered victim-candidacy policy the
// buffer pool consults when every frame is pinned and a new page must be
// brought in.
package replacer

import (
	"container/list"
	"sync"

	"github.com/coreindex/storageengine/common"
)

// LRUReplacer tracks unpinned frames in recency order. "Most recent" means
// most recently unpinned (inserted); Victim evicts the least-recently
// inserted frame at the tail. All operations are serialized by a single
// mutex; there is no suspension — callers that find nothing to evict get a
// false return, not a block.
type LRUReplacer struct {
	mu    sync.Mutex
	list  *list.List
	index map[common.FrameID]*list.Element
}

// NewLRUReplacer creates an empty replacer.
func NewLRUReplacer() *LRUReplacer {
	return &LRUReplacer{
		list:  list.New(),
		index: make(map[common.FrameID]*list.Element),
	}
}

// Insert marks frameID as the most-recently-unpinned candidate. Inserting a
// frame already present is equivalent to removing it and reinserting at the
// front.
func (r *LRUReplacer) Insert(frameID common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if elem, ok := r.index[frameID]; ok {
		r.list.Remove(elem)
	}
	r.index[frameID] = r.list.PushFront(frameID)
}

// Victim pops the least-recently-inserted frame. Returns false if the
// replacer is empty.
func (r *LRUReplacer) Victim() (common.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	back := r.list.Back()
	if back == nil {
		return 0, false
	}
	frameID := back.Value.(common.FrameID)
	r.list.Remove(back)
	delete(r.index, frameID)
	return frameID, true
}

// Erase removes frameID from candidacy, e.g. because it was just pinned
// again. Returns false if frameID was not present.
func (r *LRUReplacer) Erase(frameID common.FrameID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	elem, ok := r.index[frameID]
	if !ok {
		return false
	}
	r.list.Remove(elem)
	delete(r.index, frameID)
	return true
}

// Size returns the number of distinct candidate frames.
func (r *LRUReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list.Len()
}
