package protocol

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shibudb/vfsdb/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.StoragePath = filepath.Join(t.TempDir(), "vectors.dat")
	cfg.StatePath = filepath.Join(t.TempDir(), "state.bin")
	return NewServer(cfg)
}

func mustInit(t *testing.T, s *Server, dim int) {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"vector_dimension": dim})
	resp := s.HandleLine("POST", "/init", body)
	require.Equal(t, 201, resp.Status)
}

func TestRegisterBeforeInitReturnsNotInitialized(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(map[string]any{"values": []float32{1, 2, 3, 4}, "name": "a"})
	resp := s.HandleLine("POST", "/vectors", body)
	require.Equal(t, 400, resp.Status)
	m := resp.Body.(map[string]any)
	require.Equal(t, "not_initialized", m["error_type"])
}

func TestInitThenRegisterAndGet(t *testing.T) {
	s := newTestServer(t)
	mustInit(t, s, 4)

	body, _ := json.Marshal(map[string]any{"values": []float32{1, 2, 3, 4}, "name": "a"})
	resp := s.HandleLine("POST", "/vectors", body)
	require.Equal(t, 201, resp.Status)
	m := resp.Body.(map[string]any)
	id := m["id"].(uint64)
	require.Equal(t, uint64(1), id)

	getResp := s.HandleLine("GET", "/vectors/1", nil)
	require.Equal(t, 200, getResp.Status)
}

// TestRegisterWrongDimensionReturnsInvalidVector mirrors seed scenario S5:
// POSTing a vector whose length doesn't match the initialized dimension
// must come back 400 with error_type "invalid_vector".
func TestRegisterWrongDimensionReturnsInvalidVector(t *testing.T) {
	s := newTestServer(t)
	mustInit(t, s, 4)

	body, _ := json.Marshal(map[string]any{"values": []float32{1, 2, 3}, "name": "bad"})
	resp := s.HandleLine("POST", "/vectors", body)
	require.Equal(t, 400, resp.Status)
	m := resp.Body.(map[string]any)
	require.Equal(t, "invalid_vector", m["error_type"])
}

// TestGetUnknownIdReturnsNotFound mirrors seed scenario S6: GET on an id
// that was never registered returns 404.
func TestGetUnknownIdReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	mustInit(t, s, 4)

	resp := s.HandleLine("GET", "/vectors/999999", nil)
	require.Equal(t, 404, resp.Status)
}

func TestSearchRoundTrip(t *testing.T) {
	s := newTestServer(t)
	mustInit(t, s, 4)

	for _, v := range [][]float32{{1, 2, 3, 4}, {1, 2, 4, 4}, {1, 2, 2, 4}} {
		body, _ := json.Marshal(map[string]any{"values": v, "name": "v"})
		resp := s.HandleLine("POST", "/vectors", body)
		require.Equal(t, 201, resp.Status)
	}
	flushResp := s.HandleLine("POST", "/flush", nil)
	require.Equal(t, 200, flushResp.Status)

	searchBody, _ := json.Marshal(map[string]any{"values": []float32{1.1, 2.1, 2.1, 4.1}, "top_k": 2})
	resp := s.HandleLine("POST", "/search", searchBody)
	require.Equal(t, 200, resp.Status)
	results := resp.Body.([]searchResultJSON)
	require.Len(t, results, 2)
	require.Equal(t, uint64(3), results[0].ID)
}

func TestSnapshotAndRestoreRoundTrip(t *testing.T) {
	s := newTestServer(t)
	mustInit(t, s, 4)

	body, _ := json.Marshal(map[string]any{"values": []float32{1, 2, 3, 4}, "name": "a"})
	resp := s.HandleLine("POST", "/vectors", body)
	require.Equal(t, 201, resp.Status)

	snapResp := s.HandleLine("POST", "/snapshot", nil)
	require.Equal(t, 200, snapResp.Status)

	restoreResp := s.HandleLine("POST", "/restore", nil)
	require.Equal(t, 200, restoreResp.Status)
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	resp := s.HandleLine("POST", "/nonsense", nil)
	require.Equal(t, 404, resp.Status)
}
