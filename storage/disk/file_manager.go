package disk

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/coreindex/storageengine/common"
	"github.com/coreindex/storageengine/logger"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// FileManager is the reference DiskManager: a page file and a log file on
// the local filesystem. Page allocation is simply "next unused slot" —
// DeallocatePage does not reclaim space, matching spec §1's framing of the
// disk manager as an opaque, minimal external collaborator rather than a
// space-reclaiming storage layer.
type FileManager struct {
	pageSize uint32

	mu       sync.Mutex
	pageFile *os.File
	logFile  *os.File

	nextPageID atomic.Int64
	logOffset  atomic.Int64
}

// NewFileManager opens (creating if necessary) pagePath and logPath, taking
// an advisory exclusive lock on each so two engine instances cannot share
// them, per the file-locking pattern in the pack's own mmap-based pager.
func NewFileManager(pagePath, logPath string, pageSize uint32) (*FileManager, error) {
	pageFile, err := openExclusive(pagePath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening page file %s", pagePath)
	}
	logFile, err := openExclusive(logPath)
	if err != nil {
		pageFile.Close()
		return nil, errors.Wrapf(err, "opening log file %s", logPath)
	}

	fm := &FileManager{pageSize: pageSize, pageFile: pageFile, logFile: logFile}

	pageInfo, err := pageFile.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat page file")
	}
	fm.nextPageID.Store(pageInfo.Size() / int64(pageSize))

	logInfo, err := logFile.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat log file")
	}
	fm.logOffset.Store(logInfo.Size())

	return fm, nil
}

func openExclusive(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "flock %s: file already in use by another engine instance", path)
	}
	return f, nil
}

// ReadPage reads pageSize bytes at pid's offset into buf. A page beyond the
// current end of file (never written) reads back as zeros.
func (fm *FileManager) ReadPage(pid common.PageID, buf []byte) error {
	offset := int64(pid) * int64(fm.pageSize)
	n, err := fm.pageFile.ReadAt(buf[:fm.pageSize], offset)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			for i := n; i < int(fm.pageSize); i++ {
				buf[i] = 0
			}
			return nil
		}
		return errors.Wrapf(err, "reading page %d", pid)
	}
	return nil
}

// WritePage writes buf (exactly pageSize bytes) at pid's offset.
func (fm *FileManager) WritePage(pid common.PageID, buf []byte) error {
	offset := int64(pid) * int64(fm.pageSize)
	if _, err := fm.pageFile.WriteAt(buf[:fm.pageSize], offset); err != nil {
		return errors.Wrapf(err, "writing page %d", pid)
	}
	return nil
}

// AllocatePage returns a fresh page id, extending the page file.
func (fm *FileManager) AllocatePage() common.PageID {
	id := common.PageID(fm.nextPageID.Add(1) - 1)
	logger.Debugf("disk: allocated page %d", id)
	return id
}

// DeallocatePage is a no-op in the reference implementation: space is not
// reclaimed, only the buffer pool's mapping for pid is invalidated by the
// caller.
func (fm *FileManager) DeallocatePage(pid common.PageID) error {
	logger.Debugf("disk: deallocated page %d (no-op, space not reclaimed)", pid)
	return nil
}

// ReadLog reads into buf starting at offset, returning the number of bytes
// read (which may be less than len(buf) at end of file).
func (fm *FileManager) ReadLog(buf []byte, offset int64) (int, error) {
	n, err := fm.logFile.ReadAt(buf, offset)
	if err == io.EOF {
		return n, nil
	}
	return n, err
}

// WriteLog appends buf to the log file.
func (fm *FileManager) WriteLog(buf []byte) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	offset := fm.logOffset.Load()
	n, err := fm.logFile.WriteAt(buf, offset)
	if err != nil {
		return errors.Wrap(err, "writing log")
	}
	fm.logOffset.Add(int64(n))
	return fm.logFile.Sync()
}

// Shutdown flushes and releases the underlying files.
func (fm *FileManager) Shutdown() error {
	if err := fm.pageFile.Sync(); err != nil {
		return err
	}
	if err := fm.logFile.Sync(); err != nil {
		return err
	}
	unix.Flock(int(fm.pageFile.Fd()), unix.LOCK_UN)
	unix.Flock(int(fm.logFile.Fd()), unix.LOCK_UN)
	if err := fm.pageFile.Close(); err != nil {
		return err
	}
	return fm.logFile.Close()
}
