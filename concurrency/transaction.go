// Package concurrency implements the transaction state machine and the
// tuple-granularity lock manager that enforces two-phase locking with
// wait-die deadlock avoidance, per spec §4.5/§5.
package concurrency

import (
	"sync"

	"github.com/coreindex/storageengine/common"
)

// State is a transaction's position in its two-phase-locking lifecycle.
type State int

const (
	Growing State = iota
	Shrinking
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Growing:
		return "GROWING"
	case Shrinking:
		return "SHRINKING"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Transaction tracks one client's lock footprint and latch crabbing page
// set. Txn-ids are assigned by IDs totally ordered by BEGIN time (smaller
// is older), which the lock manager's wait-die scheme relies on.
type Transaction struct {
	mu sync.Mutex

	id    common.TxnID
	state State

	sharedLocks    map[common.RID]struct{}
	exclusiveLocks map[common.RID]struct{}

	// PageSet records pages latched/pinned during the current B+Tree
	// descent, for crab release per spec §5.
	PageSet []common.PageID
}

// NewTransaction begins a transaction with the given id, in GROWING state.
func NewTransaction(id common.TxnID) *Transaction {
	return &Transaction{
		id:             id,
		state:          Growing,
		sharedLocks:    make(map[common.RID]struct{}),
		exclusiveLocks: make(map[common.RID]struct{}),
	}
}

// ID returns the transaction's txn-id.
func (t *Transaction) ID() common.TxnID { return t.id }

// State returns the transaction's current state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// setState transitions the transaction's state. Callers are the lock
// manager, holding its own table mutex; this just guards the field.
func (t *Transaction) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *Transaction) addShared(rid common.RID) {
	t.mu.Lock()
	t.sharedLocks[rid] = struct{}{}
	t.mu.Unlock()
}

func (t *Transaction) addExclusive(rid common.RID) {
	t.mu.Lock()
	t.exclusiveLocks[rid] = struct{}{}
	t.mu.Unlock()
}

func (t *Transaction) removeShared(rid common.RID) {
	t.mu.Lock()
	delete(t.sharedLocks, rid)
	t.mu.Unlock()
}

func (t *Transaction) removeExclusive(rid common.RID) {
	t.mu.Lock()
	delete(t.exclusiveLocks, rid)
	t.mu.Unlock()
}

func (t *Transaction) holdsShared(rid common.RID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sharedLocks[rid]
	return ok
}

// PushPage records a page as latched during the current descent.
func (t *Transaction) PushPage(pid common.PageID) {
	t.mu.Lock()
	t.PageSet = append(t.PageSet, pid)
	t.mu.Unlock()
}

// PopAllPages drains and returns the recorded page set, for crab release.
func (t *Transaction) PopAllPages() []common.PageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	pages := t.PageSet
	t.PageSet = nil
	return pages
}

// Commit transitions the transaction to COMMITTED.
func (t *Transaction) Commit() { t.setState(Committed) }
