package recovery

import (
	"testing"

	"github.com/coreindex/storageengine/common"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeInsertRecord(t *testing.T) {
	r := NewInsertRecord(3, 7, common.RID{PageID: 2, SlotID: 5}, []byte("payload"))
	r.LSN = 42
	buf := r.Encode()

	got, n, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, common.LSN(42), got.LSN)
	require.Equal(t, common.TxnID(3), got.TxnID)
	require.Equal(t, common.LSN(7), got.PrevLSN)
	require.Equal(t, Insert, got.Type)
	require.Equal(t, common.RID{PageID: 2, SlotID: 5}, got.RID)
	require.Equal(t, []byte("payload"), got.NewTuple)
}

func TestEncodeDecodeUpdateRecord(t *testing.T) {
	r := NewUpdateRecord(1, common.InvalidLSN, common.RID{PageID: 9}, []byte("old"), []byte("newvalue"))
	buf := r.Encode()

	got, _, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, []byte("old"), got.OldTuple)
	require.Equal(t, []byte("newvalue"), got.NewTuple)
}

func TestEncodeDecodeNewPageRecord(t *testing.T) {
	r := NewNewPageRecord(1, common.InvalidLSN, 5, 4)
	buf := r.Encode()

	got, _, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, common.PageID(5), got.RID.PageID)
	require.Equal(t, common.PageID(4), got.PrevPage)
}

func TestDecodeIncompleteRecordReportsError(t *testing.T) {
	r := NewInsertRecord(1, common.InvalidLSN, common.RID{PageID: 1}, []byte("abc"))
	buf := r.Encode()

	_, _, err := Decode(buf[:len(buf)-2])
	require.ErrorIs(t, err, ErrIncompleteRecord)
}

func TestDecodeEmptyBufferIsIncomplete(t *testing.T) {
	_, _, err := Decode(nil)
	require.ErrorIs(t, err, ErrIncompleteRecord)
}
