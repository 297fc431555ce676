package concurrency

import (
	"sync"
	"time"

	"github.com/coreindex/storageengine/common"
	"github.com/coreindex/storageengine/logger"
)

// LockMode is the granularity a lock entry (or a waiter's request) holds.
type LockMode int

const (
	Shared LockMode = iota
	Exclusive
)

// waiter is a queued lock request: a one-shot channel stands in for the
// promise/future pair the original design signals outside the table
// mutex.
type waiter struct {
	txnID common.TxnID
	mode  LockMode
	done  chan struct{}
}

type lockEntry struct {
	mode    LockMode
	granted map[common.TxnID]struct{}
	queue   []*waiter
}

// LockManager is the per-rid wait-list table described in spec §4.5:
// shared/exclusive locks, wait-die deadlock avoidance, configurable
// strict or non-strict two-phase locking.
type LockManager struct {
	mu sync.Mutex

	table map[common.RID]*lockEntry

	// Strict selects strict 2PL: Unlock is only permitted once the
	// transaction has reached COMMITTED or ABORTED. Non-strict allows
	// an early Unlock, which transitions GROWING -> SHRINKING.
	Strict bool

	// WaitTimeout bounds how long a queued waiter blocks before its
	// transaction is aborted, per spec §5's WAIT_TIMEOUT.
	WaitTimeout time.Duration
}

// NewLockManager creates a strict-2PL lock manager with the given wait
// timeout.
func NewLockManager(waitTimeout time.Duration) *LockManager {
	return &LockManager{
		table:       make(map[common.RID]*lockEntry),
		Strict:      true,
		WaitTimeout: waitTimeout,
	}
}

func maxTxnID(ids map[common.TxnID]struct{}) common.TxnID {
	max := common.InvalidTxnID
	for id := range ids {
		if id > max {
			max = id
		}
	}
	return max
}

// LockShared acquires a shared lock on rid for txn, blocking if necessary.
// Returns false (aborting txn) on a 2PL violation, wait-die preemption, or
// timeout.
func (lm *LockManager) LockShared(txn *Transaction, rid common.RID) bool {
	return lm.acquire(txn, rid, Shared)
}

// LockExclusive acquires an exclusive lock on rid for txn.
func (lm *LockManager) LockExclusive(txn *Transaction, rid common.RID) bool {
	return lm.acquire(txn, rid, Exclusive)
}

// LockUpgrade upgrades txn's existing shared lock on rid to exclusive as a
// single atomic operation under lm.mu, per spec §9: the txn leaves
// `granted` as Shared and is evaluated for the Exclusive grant within the
// same critical section, so no concurrent LockShared can observe the rid
// with an empty granted set in between.
func (lm *LockManager) LockUpgrade(txn *Transaction, rid common.RID) bool {
	lm.mu.Lock()

	if txn.State() == Shrinking {
		txn.setState(Aborted)
		lm.mu.Unlock()
		return false
	}
	entry, ok := lm.table[rid]
	if !ok || entry.mode != Shared {
		lm.mu.Unlock()
		return false
	}
	if !txn.holdsShared(rid) {
		lm.mu.Unlock()
		return false
	}
	delete(entry.granted, txn.ID())
	txn.removeShared(rid)

	granted, abort, w := lm.acquireLocked(txn, rid, Exclusive)
	lm.mu.Unlock()

	return lm.finishAcquire(txn, rid, Exclusive, granted, abort, w)
}

// acquire is the shared implementation behind LockShared/LockExclusive.
func (lm *LockManager) acquire(txn *Transaction, rid common.RID, mode LockMode) bool {
	lm.mu.Lock()
	granted, abort, w := lm.acquireLocked(txn, rid, mode)
	lm.mu.Unlock()

	return lm.finishAcquire(txn, rid, mode, granted, abort, w)
}

// acquireLocked performs the non-blocking part of acquiring rid in mode:
// an immediate grant, a wait-die abort, or enqueuing a waiter to block on.
// Caller must hold lm.mu; acquireLocked never unlocks it.
func (lm *LockManager) acquireLocked(txn *Transaction, rid common.RID, mode LockMode) (granted, abort bool, w *waiter) {
	if txn.State() == Shrinking {
		txn.setState(Aborted)
		return false, true, nil
	}

	entry, ok := lm.table[rid]
	if !ok {
		entry = &lockEntry{mode: mode, granted: map[common.TxnID]struct{}{txn.ID(): {}}}
		lm.table[rid] = entry
		return true, false, nil
	}

	// No current holder (LockUpgrade has just removed the sole shared
	// holder): grant immediately in the requested mode.
	if len(entry.granted) == 0 {
		entry.mode = mode
		entry.granted[txn.ID()] = struct{}{}
		return true, false, nil
	}

	if mode == Shared && entry.mode == Shared && len(entry.queue) == 0 {
		entry.granted[txn.ID()] = struct{}{}
		return true, false, nil
	}

	// Wait-die: a younger requester than every current holder dies
	// instead of waiting, per spec §4.5/§9.
	if txn.ID() > maxTxnID(entry.granted) {
		txn.setState(Aborted)
		return false, true, nil
	}

	w = &waiter{txnID: txn.ID(), mode: mode, done: make(chan struct{})}
	entry.queue = append(entry.queue, w)
	return false, false, w
}

// finishAcquire interprets acquireLocked's result: records an immediate
// grant, reports an abort, or blocks on the waiter until it is signaled or
// the wait times out. Called with lm.mu not held.
func (lm *LockManager) finishAcquire(txn *Transaction, rid common.RID, mode LockMode, granted, abort bool, w *waiter) bool {
	if abort {
		return false
	}
	if granted {
		lm.recordGrant(txn, rid, mode)
		return true
	}

	timer := time.NewTimer(lm.WaitTimeout)
	defer timer.Stop()

	select {
	case <-w.done:
		lm.recordGrant(txn, rid, mode)
		return true
	case <-timer.C:
		return lm.timeoutWaiter(txn, rid, w)
	}
}

// timeoutWaiter handles a waiter whose timer fired: if it was granted in
// the same instant, honor the grant; otherwise remove it from the queue
// and abort its transaction.
func (lm *LockManager) timeoutWaiter(txn *Transaction, rid common.RID, w *waiter) bool {
	lm.mu.Lock()
	entry, ok := lm.table[rid]
	if !ok {
		lm.mu.Unlock()
		return false
	}
	for i, q := range entry.queue {
		if q == w {
			entry.queue = append(entry.queue[:i], entry.queue[i+1:]...)
			lm.mu.Unlock()
			txn.setState(Aborted)
			logger.Warnf("txn %d lock wait timed out on rid %v", txn.ID(), rid)
			return false
		}
	}
	lm.mu.Unlock()

	// Already removed from the queue: it was granted concurrently with
	// the timer firing. Drain the signal and honor the grant.
	<-w.done
	lm.recordGrant(txn, rid, w.mode)
	return true
}

func (lm *LockManager) recordGrant(txn *Transaction, rid common.RID, mode LockMode) {
	if mode == Shared {
		txn.addShared(rid)
	} else {
		txn.addExclusive(rid)
	}
}

// Unlock releases txn's lock on rid. Under strict 2PL this is only valid
// once txn has reached COMMITTED or ABORTED; under non-strict 2PL it may
// be called during GROWING, transitioning the transaction to SHRINKING.
func (lm *LockManager) Unlock(txn *Transaction, rid common.RID) bool {
	lm.mu.Lock()

	state := txn.State()
	if lm.Strict {
		if state != Committed && state != Aborted {
			lm.mu.Unlock()
			txn.setState(Aborted)
			return false
		}
	} else if state == Growing {
		txn.setState(Shrinking)
	}

	entry, ok := lm.table[rid]
	if !ok {
		lm.mu.Unlock()
		return true
	}
	delete(entry.granted, txn.ID())
	txn.removeShared(rid)
	txn.removeExclusive(rid)

	var toSignal *waiter
	if len(entry.granted) == 0 && len(entry.queue) > 0 {
		toSignal = entry.queue[0]
		entry.queue = entry.queue[1:]
		entry.mode = toSignal.mode
		entry.granted[toSignal.txnID] = struct{}{}
	}
	if len(entry.granted) == 0 && len(entry.queue) == 0 {
		delete(lm.table, rid)
	}
	lm.mu.Unlock()

	if toSignal != nil {
		close(toSignal.done)
	}
	return true
}
