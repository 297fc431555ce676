// Package disk defines the byte-addressed page and log I/O contract the
// buffer pool and WAL depend on (spec §6), plus a reference file-backed
// implementation used for tests and standalone embedding. Per spec §1 this
// is an external collaborator — the buffer pool and recovery pass only ever
// talk to the DiskManager interface.
package disk

import "github.com/coreindex/storageengine/common"

// Manager is the contract spec §6 describes: opaque byte-addressed page
// I/O and log I/O.
type Manager interface {
	ReadPage(pid common.PageID, buf []byte) error
	WritePage(pid common.PageID, buf []byte) error
	AllocatePage() common.PageID
	DeallocatePage(pid common.PageID) error

	ReadLog(buf []byte, offset int64) (int, error)
	WriteLog(buf []byte) error

	Shutdown() error
}
