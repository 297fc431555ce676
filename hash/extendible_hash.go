// Package hash implements the extendible hash directory the buffer pool
// uses as its page table: a dynamic directory of bucket pointers that
// doubles (never shrinks) as buckets overflow.
package hash

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/OneOfOne/xxhash"
)

const defaultBucketSize = 4

// Table is a generic extendible hash table keyed by K, storing V. Key
// hashing goes through HashKey, overridable per-instance so callers (e.g.
// int64 B+Tree keys vs. page-id pairs) can supply their own byte encoding.
type Table[K comparable, V any] struct {
	mu sync.Mutex

	globalDepth int
	sizeLimit   int
	directory   []*bucket[K, V]

	// Encode turns a key into bytes for content hashing. Defaults to a
	// best-effort encoding of fixed-width integer types; callers with
	// richer keys should set it explicitly.
	Encode func(K) []byte

	// HashFn, if set, overrides xxhash entirely. Tests use this to pin
	// specific keys to specific directory slots; production code leaves
	// it nil and gets the content hash.
	HashFn func(K) uint64
}

type bucket[K comparable, V any] struct {
	localDepth int
	entries    map[K]V
}

func newBucket[K comparable, V any](localDepth, sizeLimit int) *bucket[K, V] {
	return &bucket[K, V]{localDepth: localDepth, entries: make(map[K]V, sizeLimit)}
}

// New creates an extendible hash table whose buckets hold up to sizeLimit
// entries before splitting.
func New[K comparable, V any](sizeLimit int) *Table[K, V] {
	if sizeLimit <= 0 {
		sizeLimit = defaultBucketSize
	}
	t := &Table[K, V]{
		sizeLimit: sizeLimit,
		directory: []*bucket[K, V]{newBucket[K, V](0, sizeLimit)},
	}
	return t
}

// HashKey returns the engine's content hash of key, via xxhash over the
// key's byte encoding.
func (t *Table[K, V]) HashKey(key K) uint64 {
	if t.HashFn != nil {
		return t.HashFn(key)
	}
	var buf []byte
	if t.Encode != nil {
		buf = t.Encode(key)
	} else {
		buf = defaultEncode(key)
	}
	h := xxhash.New64()
	h.Write(buf)
	return h.Sum64()
}

// defaultEncode handles the key shapes this engine actually uses
// (int64 B+Tree keys, uint64-packed page-id pairs) without requiring every
// caller to supply an Encode func.
func defaultEncode(key any) []byte {
	buf := make([]byte, 8)
	switch k := key.(type) {
	case int64:
		binary.LittleEndian.PutUint64(buf, uint64(k))
	case uint64:
		binary.LittleEndian.PutUint64(buf, k)
	case int32:
		binary.LittleEndian.PutUint32(buf, uint32(k))
		return buf[:4]
	case int:
		binary.LittleEndian.PutUint64(buf, uint64(k))
	default:
		// Fall back to a stable string form; slow but correct for
		// exotic key types exercised only in tests.
		return []byte(fmt.Sprintf("%v", k))
	}
	return buf
}

func (t *Table[K, V]) bucketIndex(h uint64) int {
	mask := uint64(1<<uint(t.globalDepth)) - 1
	return int(h & mask)
}

func (t *Table[K, V]) getBucket(key K) *bucket[K, V] {
	return t.directory[t.bucketIndex(t.HashKey(key))]
}

// Find returns the value for key, if present.
func (t *Table[K, V]) Find(key K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b := t.getBucket(key)
	v, ok := b.entries[key]
	return v, ok
}

// Remove deletes key, if present, and reports whether it was found.
func (t *Table[K, V]) Remove(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	b := t.getBucket(key)
	if _, ok := b.entries[key]; !ok {
		return false
	}
	delete(b.entries, key)
	return true
}

// Insert adds (or overwrites) key -> value, splitting and, if needed,
// doubling the directory until the target bucket has room. Per spec §4.2.
func (t *Table[K, V]) Insert(key K, value V) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b := t.getBucket(key)
	for len(b.entries) >= t.sizeLimit {
		if b.localDepth == t.globalDepth {
			t.directory = append(t.directory, t.directory...)
			t.globalDepth++
		}

		mask := uint64(1) << uint(b.localDepth)
		left := newBucket[K, V](b.localDepth+1, t.sizeLimit)
		right := newBucket[K, V](b.localDepth+1, t.sizeLimit)
		for k, v := range b.entries {
			if t.HashKey(k)&mask != 0 {
				right.entries[k] = v
			} else {
				left.entries[k] = v
			}
		}

		for i := range t.directory {
			if t.directory[i] == b {
				if uint64(i)&mask != 0 {
					t.directory[i] = right
				} else {
					t.directory[i] = left
				}
			}
		}

		b = t.getBucket(key)
	}
	b.entries[key] = value
}

// GetGlobalDepth returns the directory's global depth.
func (t *Table[K, V]) GetGlobalDepth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.globalDepth
}

// GetLocalDepth returns the local depth of the bucket at directory slot idx.
func (t *Table[K, V]) GetLocalDepth(idx int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.directory[idx].localDepth
}

// GetNumBuckets returns the number of distinct buckets (directory slots may
// alias the same bucket after a split elsewhere).
func (t *Table[K, V]) GetNumBuckets() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[*bucket[K, V]]struct{}, len(t.directory))
	for _, b := range t.directory {
		seen[b] = struct{}{}
	}
	return len(seen)
}
