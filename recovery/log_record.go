// Package recovery implements the write-ahead log manager (double
// buffered append plus background flush thread) and the ARIES-style redo
// then undo recovery pass, per spec §4.6/§4.7.
package recovery

import (
	"encoding/binary"

	"github.com/coreindex/storageengine/common"
	"github.com/pkg/errors"
)

// RecordType tags a log record's payload shape.
type RecordType int32

const (
	Invalid RecordType = iota
	Begin
	Commit
	Abort
	Insert
	MarkDelete
	ApplyDelete
	RollbackDelete
	Update
	NewPage
)

// recordHeaderSize is size(4) + lsn(4) + txn-id(4) + prev-lsn(4) + type(4).
const recordHeaderSize = 20

// LogRecord is a variable-size WAL entry: a fixed header followed by a
// type-specific payload, per spec §3.
type LogRecord struct {
	Size    int32
	LSN     common.LSN
	TxnID   common.TxnID
	PrevLSN common.LSN
	Type    RecordType

	RID      common.RID
	OldTuple []byte
	NewTuple []byte
	PrevPage common.PageID
}

// NewBeginRecord starts a transaction's log chain.
func NewBeginRecord(txnID common.TxnID, prevLSN common.LSN) *LogRecord {
	return &LogRecord{TxnID: txnID, PrevLSN: prevLSN, Type: Begin}
}

// NewCommitRecord closes out a committed transaction's chain.
func NewCommitRecord(txnID common.TxnID, prevLSN common.LSN) *LogRecord {
	return &LogRecord{TxnID: txnID, PrevLSN: prevLSN, Type: Commit}
}

// NewAbortRecord closes out an aborted transaction's chain.
func NewAbortRecord(txnID common.TxnID, prevLSN common.LSN) *LogRecord {
	return &LogRecord{TxnID: txnID, PrevLSN: prevLSN, Type: Abort}
}

// NewInsertRecord logs a tuple insertion at rid.
func NewInsertRecord(txnID common.TxnID, prevLSN common.LSN, rid common.RID, tuple []byte) *LogRecord {
	return &LogRecord{TxnID: txnID, PrevLSN: prevLSN, Type: Insert, RID: rid, NewTuple: tuple}
}

// NewMarkDeleteRecord logs a tentative (rollback-able) delete.
func NewMarkDeleteRecord(txnID common.TxnID, prevLSN common.LSN, rid common.RID, tuple []byte) *LogRecord {
	return &LogRecord{TxnID: txnID, PrevLSN: prevLSN, Type: MarkDelete, RID: rid, OldTuple: tuple}
}

// NewApplyDeleteRecord logs a delete becoming permanent at commit.
func NewApplyDeleteRecord(txnID common.TxnID, prevLSN common.LSN, rid common.RID, tuple []byte) *LogRecord {
	return &LogRecord{TxnID: txnID, PrevLSN: prevLSN, Type: ApplyDelete, RID: rid, OldTuple: tuple}
}

// NewRollbackDeleteRecord logs a mark-delete being undone.
func NewRollbackDeleteRecord(txnID common.TxnID, prevLSN common.LSN, rid common.RID, tuple []byte) *LogRecord {
	return &LogRecord{TxnID: txnID, PrevLSN: prevLSN, Type: RollbackDelete, RID: rid, OldTuple: tuple}
}

// NewUpdateRecord logs replacing old with new at rid.
func NewUpdateRecord(txnID common.TxnID, prevLSN common.LSN, rid common.RID, old, new []byte) *LogRecord {
	return &LogRecord{TxnID: txnID, PrevLSN: prevLSN, Type: Update, RID: rid, OldTuple: old, NewTuple: new}
}

// NewNewPageRecord logs a freshly allocated table page, linked from prev.
func NewNewPageRecord(txnID common.TxnID, prevLSN common.LSN, pageID, prevPage common.PageID) *LogRecord {
	return &LogRecord{TxnID: txnID, PrevLSN: prevLSN, Type: NewPage, RID: common.RID{PageID: pageID}, PrevPage: prevPage}
}

func putRID(buf []byte, r common.RID) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.PageID))
	binary.LittleEndian.PutUint32(buf[4:8], r.SlotID)
}

func getRID(buf []byte) common.RID {
	return common.RID{
		PageID: common.PageID(int32(binary.LittleEndian.Uint32(buf[0:4]))),
		SlotID: binary.LittleEndian.Uint32(buf[4:8]),
	}
}

// Encode serializes the record, computing and writing its own Size field.
// LSN is written verbatim from r.LSN — AppendLogRecord patches this field
// in place once it knows the real assigned LSN.
func (r *LogRecord) Encode() []byte {
	payload := r.encodePayload()
	total := recordHeaderSize + len(payload)
	buf := make([]byte, total)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(total))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(r.LSN))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(r.TxnID))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(r.PrevLSN))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(r.Type))
	copy(buf[recordHeaderSize:], payload)
	return buf
}

func (r *LogRecord) encodePayload() []byte {
	switch r.Type {
	case Begin, Commit, Abort:
		return nil
	case Insert:
		buf := make([]byte, 8+4+len(r.NewTuple))
		putRID(buf, r.RID)
		binary.LittleEndian.PutUint32(buf[8:12], uint32(len(r.NewTuple)))
		copy(buf[12:], r.NewTuple)
		return buf
	case MarkDelete, ApplyDelete, RollbackDelete:
		buf := make([]byte, 8+4+len(r.OldTuple))
		putRID(buf, r.RID)
		binary.LittleEndian.PutUint32(buf[8:12], uint32(len(r.OldTuple)))
		copy(buf[12:], r.OldTuple)
		return buf
	case Update:
		buf := make([]byte, 8+4+len(r.OldTuple)+4+len(r.NewTuple))
		putRID(buf, r.RID)
		off := 8
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(r.OldTuple)))
		off += 4
		copy(buf[off:], r.OldTuple)
		off += len(r.OldTuple)
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(r.NewTuple)))
		off += 4
		copy(buf[off:], r.NewTuple)
		return buf
	case NewPage:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint32(buf[0:4], uint32(r.RID.PageID))
		binary.LittleEndian.PutUint32(buf[4:8], uint32(r.PrevPage))
		return buf
	default:
		return nil
	}
}

// ErrIncompleteRecord signals that buf does not yet contain a full record
// (either the header or the payload is truncated); the caller should
// refill its buffer and retry, per spec §4.7/§7.
var ErrIncompleteRecord = errors.New("incomplete log record")

// Decode reads one record from the front of buf, returning it and the
// number of bytes consumed.
func Decode(buf []byte) (*LogRecord, int, error) {
	if len(buf) < recordHeaderSize {
		return nil, 0, ErrIncompleteRecord
	}
	size := int32(binary.LittleEndian.Uint32(buf[0:4]))
	if size <= 0 || int(size) > len(buf) {
		return nil, 0, ErrIncompleteRecord
	}
	r := &LogRecord{
		Size:    size,
		LSN:     common.LSN(binary.LittleEndian.Uint32(buf[4:8])),
		TxnID:   common.TxnID(binary.LittleEndian.Uint32(buf[8:12])),
		PrevLSN: common.LSN(binary.LittleEndian.Uint32(buf[12:16])),
		Type:    RecordType(binary.LittleEndian.Uint32(buf[16:20])),
	}
	payload := buf[recordHeaderSize:size]
	if err := r.decodePayload(payload); err != nil {
		return nil, 0, err
	}
	return r, int(size), nil
}

func (r *LogRecord) decodePayload(buf []byte) error {
	switch r.Type {
	case Begin, Commit, Abort:
		return nil
	case Insert:
		if len(buf) < 12 {
			return ErrIncompleteRecord
		}
		r.RID = getRID(buf)
		n := int(binary.LittleEndian.Uint32(buf[8:12]))
		if len(buf) < 12+n {
			return ErrIncompleteRecord
		}
		r.NewTuple = append([]byte(nil), buf[12:12+n]...)
		return nil
	case MarkDelete, ApplyDelete, RollbackDelete:
		if len(buf) < 12 {
			return ErrIncompleteRecord
		}
		r.RID = getRID(buf)
		n := int(binary.LittleEndian.Uint32(buf[8:12]))
		if len(buf) < 12+n {
			return ErrIncompleteRecord
		}
		r.OldTuple = append([]byte(nil), buf[12:12+n]...)
		return nil
	case Update:
		if len(buf) < 12 {
			return ErrIncompleteRecord
		}
		r.RID = getRID(buf)
		off := 8
		oldLen := int(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
		if len(buf) < off+oldLen+4 {
			return ErrIncompleteRecord
		}
		r.OldTuple = append([]byte(nil), buf[off:off+oldLen]...)
		off += oldLen
		newLen := int(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
		if len(buf) < off+newLen {
			return ErrIncompleteRecord
		}
		r.NewTuple = append([]byte(nil), buf[off:off+newLen]...)
		return nil
	case NewPage:
		if len(buf) < 8 {
			return ErrIncompleteRecord
		}
		r.RID.PageID = common.PageID(int32(binary.LittleEndian.Uint32(buf[0:4])))
		r.PrevPage = common.PageID(int32(binary.LittleEndian.Uint32(buf[4:8])))
		return nil
	default:
		return errors.Errorf("unknown log record type %d", r.Type)
	}
}
