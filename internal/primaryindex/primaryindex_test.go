package primaryindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "primary.idx")
	idx, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestPutGet(t *testing.T) {
	idx := openTemp(t)

	require.NoError(t, idx.Put(1, 0))
	require.NoError(t, idx.Put(2, 128))

	off, ok := idx.Get(1)
	require.True(t, ok)
	require.Equal(t, int64(0), off)

	off, ok = idx.Get(2)
	require.True(t, ok)
	require.Equal(t, int64(128), off)

	_, ok = idx.Get(999)
	require.False(t, ok)
}

func TestAscendOrdersById(t *testing.T) {
	idx := openTemp(t)
	require.NoError(t, idx.Put(3, 30))
	require.NoError(t, idx.Put(1, 10))
	require.NoError(t, idx.Put(2, 20))

	var ids []uint64
	idx.Ascend(func(id uint64, offset int64) bool {
		ids = append(ids, id)
		return true
	})
	require.Equal(t, []uint64{1, 2, 3}, ids)
}

func TestReloadFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "primary.idx")
	idx, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, idx.Put(5, 500))
	require.NoError(t, idx.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	off, ok := reopened.Get(5)
	require.True(t, ok)
	require.Equal(t, int64(500), off)
}

func TestResetClearsEntries(t *testing.T) {
	idx := openTemp(t)
	require.NoError(t, idx.Put(1, 10))
	require.NoError(t, idx.Reset())
	require.Equal(t, 0, idx.Len())
	_, ok := idx.Get(1)
	require.False(t, ok)
}
