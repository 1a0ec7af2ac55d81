package ranker

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shibudb/vfsdb/internal/config"
	"github.com/shibudb/vfsdb/internal/distance"
	"github.com/shibudb/vfsdb/internal/hnsw"
	"github.com/shibudb/vfsdb/internal/vfsengine"
)

func newTestEngine(t *testing.T) *vfsengine.Engine {
	t.Helper()
	cfg := config.Default()
	cfg.StoragePath = filepath.Join(t.TempDir(), "vectors.dat")
	e, err := vfsengine.Open(cfg, "test", 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// TestExactTopKSeedScenario mirrors seed scenario S1: three dense vectors
// registered, query near "c", Euclidean distance, top-2. The nearest
// result must be "c".
func TestExactTopKSeedScenario(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Register([]float32{1, 2, 3, 4}, "a", nil)
	require.NoError(t, err)
	_, err = e.Register([]float32{1, 2, 4, 4}, "b", nil)
	require.NoError(t, err)
	_, err = e.Register([]float32{1, 2, 2, 4}, "c", nil)
	require.NoError(t, err)
	require.NoError(t, e.Flush())

	r := New(e, distance.Euclidean, hnsw.DefaultConfig())
	results, err := r.ExactTopK([]float32{1.1, 2.1, 2.1, 4.1}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, uint64(3), results[0].ID)
	require.InDelta(t, 0.198, float64(results[0].Distance), 0.01)
}

func TestExactTopKEmptyStoreReturnsEmpty(t *testing.T) {
	e := newTestEngine(t)
	r := New(e, distance.Euclidean, hnsw.DefaultConfig())
	results, err := r.ExactTopK([]float32{1, 2, 3, 4}, 5)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestApproximateTopKFindsNearestVector(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Register([]float32{0, 0, 0, 0}, "origin", nil)
	require.NoError(t, err)
	_, err = e.Register([]float32{10, 10, 10, 10}, "far", nil)
	require.NoError(t, err)
	require.NoError(t, e.Flush())

	r := New(e, distance.Euclidean, hnsw.DefaultConfig())
	results, err := r.ApproximateTopK([]float32{0.1, 0.1, 0.1, 0.1}, 1, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, uint64(1), results[0].ID)
}

func TestRangeSearchReturnsOnlyWithinRadius(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Register([]float32{0, 0, 0, 0}, "close", nil)
	require.NoError(t, err)
	_, err = e.Register([]float32{10, 10, 10, 10}, "far", nil)
	require.NoError(t, err)
	require.NoError(t, e.Flush())

	r := New(e, distance.Euclidean, hnsw.DefaultConfig())
	results, err := r.RangeSearch([]float32{0, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, uint64(1), results[0].ID)
}
