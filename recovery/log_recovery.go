package recovery

import (
	"github.com/coreindex/storageengine/common"
	"github.com/coreindex/storageengine/logger"
	"github.com/coreindex/storageengine/storage/disk"
)

// PageApplier is the external table-page collaborator recovery drives:
// applying and inverting DML against tuple/table pages is out of this
// engine's scope (spec §1) and is satisfied by the embedder's table
// layer.
type PageApplier interface {
	// PageLSN returns the LSN currently stamped on pageID's header, and
	// whether the page exists at all (a page created and then lost to a
	// crash before Redo reaches it does not exist yet).
	PageLSN(pageID common.PageID) (common.LSN, bool)

	ApplyNewPage(pageID, prevPageID common.PageID) error
	ApplyInsert(rid common.RID, tuple []byte) error
	ApplyMarkDelete(rid common.RID) error
	ApplyDelete(rid common.RID) error
	ApplyRollbackDelete(rid common.RID) error
	ApplyUpdate(rid common.RID, newTuple []byte) error
}

// LogRecovery replays a WAL on startup: Redo reconstructs all recorded
// effects, Undo rolls back transactions that never committed, per spec
// §4.7.
type LogRecovery struct {
	disk     disk.Manager
	applier  PageApplier
	pageSize int

	activeTxn map[common.TxnID]common.LSN
	lsnOffset map[common.LSN]int64
}

// NewLogRecovery builds a recovery pass reading chunkSize bytes at a time
// from d's log.
func NewLogRecovery(d disk.Manager, applier PageApplier, chunkSize int) *LogRecovery {
	return &LogRecovery{
		disk:      d,
		applier:   applier,
		pageSize:  chunkSize,
		activeTxn: make(map[common.TxnID]common.LSN),
		lsnOffset: make(map[common.LSN]int64),
	}
}

// Redo scans the log from the start, applying every DML record to its
// page if the page's stamped LSN predates the record (idempotency check),
// and tracking which transactions never reached COMMIT/ABORT. Disables
// EnableLogging for its duration, per spec §6/§9: replayed records must not
// themselves be appended back into the log. Undo is responsible for
// re-enabling it once the whole recovery pass (Redo+Undo) completes.
func (lr *LogRecovery) Redo() error {
	EnableLogging.Store(false)

	var buf []byte
	bufStart := int64(0)
	readOffset := int64(0)
	chunk := make([]byte, lr.pageSize)

	for {
		n, err := lr.disk.ReadLog(chunk, readOffset)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		buf = append(buf, chunk[:n]...)
		readOffset += int64(n)

		for {
			rec, used, err := Decode(buf)
			if err != nil {
				break
			}
			lr.lsnOffset[rec.LSN] = bufStart

			switch rec.Type {
			case Begin:
				lr.activeTxn[rec.TxnID] = rec.LSN
			case Commit, Abort:
				delete(lr.activeTxn, rec.TxnID)
			default:
				lr.activeTxn[rec.TxnID] = rec.LSN
				if err := lr.applyRedo(rec); err != nil {
					logger.Errorf("redo record lsn=%d type=%d: %v", rec.LSN, rec.Type, err)
				}
			}

			buf = buf[used:]
			bufStart += int64(used)
		}

		if n < len(chunk) {
			break
		}
	}
	return nil
}

func (lr *LogRecovery) applyRedo(rec *LogRecord) error {
	switch rec.Type {
	case NewPage:
		if lr.alreadyApplied(rec) {
			return nil
		}
		return lr.applier.ApplyNewPage(rec.RID.PageID, rec.PrevPage)
	case Insert:
		if lr.alreadyApplied(rec) {
			return nil
		}
		return lr.applier.ApplyInsert(rec.RID, rec.NewTuple)
	case MarkDelete:
		if lr.alreadyApplied(rec) {
			return nil
		}
		return lr.applier.ApplyMarkDelete(rec.RID)
	case ApplyDelete:
		if lr.alreadyApplied(rec) {
			return nil
		}
		return lr.applier.ApplyDelete(rec.RID)
	case RollbackDelete:
		if lr.alreadyApplied(rec) {
			return nil
		}
		return lr.applier.ApplyRollbackDelete(rec.RID)
	case Update:
		if lr.alreadyApplied(rec) {
			return nil
		}
		return lr.applier.ApplyUpdate(rec.RID, rec.NewTuple)
	}
	return nil
}

// alreadyApplied implements the "page.LSN < record.LSN" redo idempotency
// check: a page whose stamped LSN is already >= the record's has this
// effect baked in and must not see it applied twice.
func (lr *LogRecovery) alreadyApplied(rec *LogRecord) bool {
	pageLSN, ok := lr.applier.PageLSN(rec.RID.PageID)
	if !ok {
		return false
	}
	return pageLSN >= rec.LSN
}

// Undo rolls back every transaction still active after Redo (losers):
// transactions that crashed before COMMIT or ABORT. It walks each one's
// prev-LSN chain backward from its last-seen record to its BEGIN,
// applying the inverse of each DML record. Re-enables EnableLogging on
// every return path via defer, closing over the reference C++ recovery's
// known bug of leaving it disabled on exit (spec §9).
func (lr *LogRecovery) Undo() error {
	defer EnableLogging.Store(true)

	for txnID, lastLSN := range lr.activeTxn {
		if err := lr.undoChain(txnID, lastLSN); err != nil {
			return err
		}
	}
	return nil
}

func (lr *LogRecovery) undoChain(txnID common.TxnID, lsn common.LSN) error {
	for lsn != common.InvalidLSN {
		offset, ok := lr.lsnOffset[lsn]
		if !ok {
			return nil
		}
		chunk := make([]byte, lr.pageSize)
		n, err := lr.disk.ReadLog(chunk, offset)
		if err != nil {
			return err
		}
		rec, _, err := Decode(chunk[:n])
		if err != nil {
			return err
		}

		if rec.Type == Begin {
			return nil
		}

		if err := lr.applyUndo(rec); err != nil {
			logger.Errorf("undo txn=%d lsn=%d: %v", txnID, rec.LSN, err)
		}
		lsn = rec.PrevLSN
	}
	return nil
}

func (lr *LogRecovery) applyUndo(rec *LogRecord) error {
	switch rec.Type {
	case Insert:
		return lr.applier.ApplyDelete(rec.RID)
	case MarkDelete:
		return lr.applier.ApplyRollbackDelete(rec.RID)
	case Update:
		return lr.applier.ApplyUpdate(rec.RID, rec.OldTuple)
	}
	return nil
}
