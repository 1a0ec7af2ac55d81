package vfsengine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shibudb/vfsdb/internal/config"
	"github.com/shibudb/vfsdb/internal/recordcodec"
)

func newTestEngine(t *testing.T, flushThreshold int) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.FlushThreshold = flushThreshold
	cfg.StoragePath = filepath.Join(t.TempDir(), "vectors.dat")
	cfg.StatePath = filepath.Join(t.TempDir(), "state.bin")

	e, err := Open(cfg, "test-manager", 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestRegisterAssignsMonotonicIds(t *testing.T) {
	e := newTestEngine(t, 1000)
	id1, err := e.Register([]float32{1, 2, 3, 4}, "a", nil)
	require.NoError(t, err)
	id2, err := e.Register([]float32{1, 2, 3, 5}, "b", nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id1)
	require.Equal(t, uint64(2), id2)
}

func TestRegisterRejectsEmptyVector(t *testing.T) {
	e := newTestEngine(t, 1000)
	_, err := e.Register(nil, "empty", nil)
	require.Error(t, err)
}

func TestRegisterRejectsDimensionMismatch(t *testing.T) {
	e := newTestEngine(t, 1000)
	_, err := e.Register([]float32{1, 2, 3}, "bad", nil)
	require.Error(t, err)
}

// TestFlushThresholdTriggersAutoFlush mirrors seed scenario S3: with
// FLUSH_THRESHOLD=2 and three registrations, the first two should already
// be in the primary index (and the data file) by the time the third call
// returns, while the third still lives in the memtable.
func TestFlushThresholdTriggersAutoFlush(t *testing.T) {
	e := newTestEngine(t, 2)
	_, err := e.Register([]float32{1, 0, 0, 0}, "a", nil)
	require.NoError(t, err)
	_, err = e.Register([]float32{0, 1, 0, 0}, "b", nil)
	require.NoError(t, err)
	_, err = e.Register([]float32{0, 0, 1, 0}, "c", nil)
	require.NoError(t, err)

	require.True(t, e.primaryIndex.Has(1))
	require.True(t, e.primaryIndex.Has(2))
	require.False(t, e.primaryIndex.Has(3))

	_, inMemtable := e.memtable.get(3)
	require.True(t, inMemtable)
}

func TestWriteReadEquivalenceAfterFlush(t *testing.T) {
	e := newTestEngine(t, 1000)
	want := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}
	for i, v := range want {
		_, err := e.Register(v, "v", nil)
		require.NoError(t, err)
		_ = i
	}
	require.NoError(t, e.Flush())

	e.currentOffset = 0
	got, err := e.LoadAll()
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i, v := range got {
		require.Equal(t, want[i], v.Dense)
	}
}

func TestMemtableDrainsBeforeDisk(t *testing.T) {
	e := newTestEngine(t, 1000)
	_, err := e.Register([]float32{1, 0, 0, 0}, "disk-a", nil)
	require.NoError(t, err)
	require.NoError(t, e.Flush())

	_, err = e.Register([]float32{0, 1, 0, 0}, "mem-b", nil)
	require.NoError(t, err)

	e.currentOffset = 0
	batch, err := e.LoadBatch(2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.Equal(t, "mem-b", batch[0].Metadata.Name)
	require.Equal(t, "disk-a", batch[1].Metadata.Name)

	require.Equal(t, 0, e.memtable.len())
}

// TestDecodeFailureStopsScanWithCursorUnchanged mirrors spec §4.1 step 3:
// a record that frames correctly but fails to decode as a vector value
// stops the batch read before it, and the cursor does not advance past it
// — a second read attempt from the same position returns the same result,
// rather than skipping the bad record.
func TestDecodeFailureStopsScanWithCursorUnchanged(t *testing.T) {
	e := newTestEngine(t, 1000)
	_, err := e.Register([]float32{1, 0, 0, 0}, "good", nil)
	require.NoError(t, err)
	require.NoError(t, e.Flush())

	info, err := e.dataFile.Stat()
	require.NoError(t, err)
	goodSize := info.Size()

	garbage := recordcodec.Encode([]byte{0xFF})
	_, err = e.dataFile.WriteAt(garbage, goodSize)
	require.NoError(t, err)

	e.currentOffset = 0
	batch, err := e.LoadBatch(10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.Equal(t, "good", batch[0].Metadata.Name)
	require.Equal(t, goodSize, e.currentOffset)

	again, err := e.LoadBatch(10)
	require.NoError(t, err)
	require.Empty(t, again)
	require.Equal(t, goodSize, e.currentOffset)
}

func TestGetByIdFromMemtableAndDisk(t *testing.T) {
	e := newTestEngine(t, 1000)
	id, err := e.Register([]float32{1, 2, 3, 4}, "pre-flush", nil)
	require.NoError(t, err)

	v, found, err := e.GetByID(id)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []float32{1, 2, 3, 4}, v.Dense)

	require.NoError(t, e.Flush())

	v, found, err = e.GetByID(id)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []float32{1, 2, 3, 4}, v.Dense)
}

func TestGetByIdUnknownReturnsNotFound(t *testing.T) {
	e := newTestEngine(t, 1000)
	_, found, err := e.GetByID(999999)
	require.NoError(t, err)
	require.False(t, found)
}

func TestSnapshotRoundTrip(t *testing.T) {
	e := newTestEngine(t, 1000)
	for i := 0; i < 3; i++ {
		_, err := e.Register([]float32{float32(i), 0, 0, 0}, "v", nil)
		require.NoError(t, err)
	}
	require.NoError(t, e.Flush())

	statePath := filepath.Join(t.TempDir(), "snapshot.bin")
	require.NoError(t, e.SaveState(statePath))

	wantNextID := e.nextID
	wantOffset := e.currentOffset

	e2 := newTestEngine(t, 1000)
	require.NoError(t, e2.LoadState(statePath))

	require.Equal(t, wantNextID, e2.nextID)
	require.Equal(t, wantOffset, e2.currentOffset)
	require.Equal(t, e.primaryIndex.Len(), e2.primaryIndex.Len())
}

func TestResetOptionsSelectivelyClear(t *testing.T) {
	e := newTestEngine(t, 1000)
	_, err := e.Register([]float32{1, 2, 3, 4}, "a", nil)
	require.NoError(t, err)
	require.NoError(t, e.Flush())

	require.NoError(t, e.Reset(ResetOptions{ClearPrimaryIndex: true, ResetIDCounter: true}))
	require.Equal(t, 0, e.primaryIndex.Len())
	require.Equal(t, uint64(1), e.nextID)
}
