package recovery

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/coreindex/storageengine/common"
	"github.com/coreindex/storageengine/logger"
	"github.com/coreindex/storageengine/storage/disk"
	"go.uber.org/atomic"
)

// EnableLogging is the process-global flag from spec §6/§9: recovery
// disables it for the duration of Redo/Undo (new log records must not be
// appended while the log itself is being replayed) and re-enables it on
// exit. Starts enabled so a running engine logs normally outside recovery.
var EnableLogging = atomic.NewBool(true)

// LogManager owns the two fixed-size append/flush buffers and the
// background thread that swaps and persists them, per spec §4.6.
type LogManager struct {
	mu sync.Mutex

	disk disk.Manager

	logBuffer     []byte
	flushBuffer   []byte
	logBufferSize int

	nextLSN       common.LSN
	persistentLSN common.LSN

	appendMu sync.Mutex

	logTimeout time.Duration
	signalCh   chan struct{}
	cycleDone  chan struct{}
	stopCh     chan struct{}
	wg         sync.WaitGroup
	running    bool
}

// NewLogManager creates a log manager writing through disk, with the
// given buffer size (per side) and flush-thread wake interval.
func NewLogManager(d disk.Manager, bufferSize int, logTimeout time.Duration) *LogManager {
	return &LogManager{
		disk:          d,
		logBuffer:     make([]byte, bufferSize),
		flushBuffer:   make([]byte, bufferSize),
		persistentLSN: common.InvalidLSN,
		logTimeout:    logTimeout,
		signalCh:      make(chan struct{}, 1),
		cycleDone:     make(chan struct{}),
		stopCh:        make(chan struct{}),
	}
}

// AppendLogRecord assigns rec the next LSN, serializes it into the log
// buffer (forcing a flush first if it would overflow), and returns the
// assigned LSN. No-ops, returning common.InvalidLSN, while EnableLogging is
// false (recovery is replaying the log and must not interleave new writes).
func (lm *LogManager) AppendLogRecord(rec *LogRecord) common.LSN {
	if !EnableLogging.Load() {
		return common.InvalidLSN
	}

	lm.appendMu.Lock()
	defer lm.appendMu.Unlock()

	data := rec.Encode()

	lm.mu.Lock()
	if lm.logBufferSize+len(data) > len(lm.logBuffer) {
		lm.mu.Unlock()
		lm.Flush()
		lm.mu.Lock()
	}

	lsn := lm.nextLSN
	lm.nextLSN++
	rec.LSN = lsn
	binary.LittleEndian.PutUint32(data[4:8], uint32(lsn))

	copy(lm.logBuffer[lm.logBufferSize:], data)
	lm.logBufferSize += len(data)
	lm.mu.Unlock()

	return lsn
}

// PersistentLSN returns the highest LSN known to be durable on disk.
func (lm *LogManager) PersistentLSN() common.LSN {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.persistentLSN
}

// RunFlushThread starts the background flusher. Call once.
func (lm *LogManager) RunFlushThread() {
	lm.mu.Lock()
	lm.running = true
	lm.mu.Unlock()

	lm.wg.Add(1)
	go func() {
		defer lm.wg.Done()
		timer := time.NewTimer(lm.logTimeout)
		defer timer.Stop()
		for {
			select {
			case <-lm.stopCh:
				lm.flushCycle()
				return
			case <-lm.signalCh:
			case <-timer.C:
			}
			lm.flushCycle()
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(lm.logTimeout)
		}
	}()
}

// flushCycle swaps the buffers (if there is anything to write), persists
// the flush buffer, and advances persistentLSN to the highest LSN it
// contains.
func (lm *LogManager) flushCycle() {
	lm.mu.Lock()
	if lm.logBufferSize == 0 {
		done := lm.cycleDone
		lm.cycleDone = make(chan struct{})
		lm.mu.Unlock()
		close(done)
		return
	}

	lm.logBuffer, lm.flushBuffer = lm.flushBuffer, lm.logBuffer
	flushSize := lm.logBufferSize
	lm.logBufferSize = 0
	data := append([]byte(nil), lm.flushBuffer[:flushSize]...)
	highest := scanHighestLSN(data)
	done := lm.cycleDone
	lm.cycleDone = make(chan struct{})
	lm.mu.Unlock()

	if err := lm.disk.WriteLog(data); err != nil {
		logger.Errorf("flush thread write log: %v", err)
		close(done)
		return
	}

	lm.mu.Lock()
	if highest > lm.persistentLSN {
		lm.persistentLSN = highest
	}
	lm.mu.Unlock()

	close(done)
}

// scanHighestLSN walks a buffer of back-to-back encoded records and
// returns the highest LSN seen, skipping any trailing partial record.
func scanHighestLSN(buf []byte) common.LSN {
	highest := common.InvalidLSN
	off := 0
	for off < len(buf) {
		rec, n, err := Decode(buf[off:])
		if err != nil {
			break
		}
		if rec.LSN > highest {
			highest = rec.LSN
		}
		off += n
	}
	return highest
}

// Flush synchronously forces the buffer to disk. It wakes the flush
// thread twice so a record appended after the first signal but before its
// swap still lands on disk by the second cycle, per spec §4.6.
func (lm *LogManager) Flush() {
	lm.forceOneCycle()
	lm.forceOneCycle()
}

// ForceFlushUpTo blocks until persistentLSN >= lsn, the force-write-ahead
// contract the buffer pool relies on before evicting a dirty page (spec
// §5).
func (lm *LogManager) ForceFlushUpTo(lsn common.LSN) error {
	if lsn == common.InvalidLSN {
		return nil
	}
	for lm.PersistentLSN() < lsn {
		lm.Flush()
	}
	return nil
}

func (lm *LogManager) forceOneCycle() {
	lm.mu.Lock()
	done := lm.cycleDone
	running := lm.running
	lm.mu.Unlock()

	if !running {
		lm.flushCycle()
		return
	}

	select {
	case lm.signalCh <- struct{}{}:
	default:
	}
	<-done
}

// StopFlushThread disables the background flusher, draining any pending
// data first, and joins it.
func (lm *LogManager) StopFlushThread() {
	lm.mu.Lock()
	if !lm.running {
		lm.mu.Unlock()
		return
	}
	lm.running = false
	lm.mu.Unlock()

	close(lm.stopCh)
	lm.wg.Wait()
}
