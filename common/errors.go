package common

import "github.com/pkg/errors"

// Sentinel errors surfaced across package boundaries, checked with
// errors.Is by callers per spec §7's error disposition table.
var (
	ErrKeyNotFound         = errors.New("key not found")
	ErrDuplicateKey        = errors.New("duplicate key")
	ErrBufferPoolExhausted = errors.New("buffer pool exhausted: no frame available to evict")
	ErrLockTimeout         = errors.New("lock wait timed out")
	ErrTxnAborted          = errors.New("transaction aborted")
	ErrPageNotFound        = errors.New("page not found in buffer pool")
)
