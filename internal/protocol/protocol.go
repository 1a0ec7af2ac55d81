// Package protocol implements the line-oriented request surface described as
// an external collaborator in spec §4.6: a thin adapter translating verb+path
// requests with a JSON body into calls against the storage engine and
// ranker. The engine itself has no knowledge of this protocol.
//
// Grounded on the teacher's cmd/server/server.go (connection-per-goroutine
// handling, JSON-line request/response shape, simplified here to drop its
// RBAC/connection-manager machinery) and original_source/vfs/src/vfs/tcp.rs
// (the exact route table and request/response struct shapes).
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shibudb/vfsdb/internal/config"
	"github.com/shibudb/vfsdb/internal/hnsw"
	"github.com/shibudb/vfsdb/internal/ranker"
	"github.com/shibudb/vfsdb/internal/vfsengine"
	"github.com/shibudb/vfsdb/internal/vfserr"
	"github.com/shibudb/vfsdb/internal/vfsvector"
)

// Response is the status-code-plus-JSON-body reply described in §6.
type Response struct {
	Status int
	Body   any
}

// Server dispatches requests against one engine instance, created on the
// first successful /init call. Its own mutex protects only the
// engine/ranker pointers (swapped wholesale by /init); the engine's own
// lock guards everything else, per the single-exclusive-lock concurrency
// model in §5.
type Server struct {
	mu     sync.Mutex
	cfg    config.Config
	engine *vfsengine.Engine
	ranker *ranker.Ranker
}

// NewServer returns an uninitialized server; every call before /init
// answers with a not-initialized error.
func NewServer(cfg config.Config) *Server {
	return &Server{cfg: cfg}
}

// HandleLine dispatches one verb+path+body request to the matching engine
// operation.
func (s *Server) HandleLine(verb, path string, body []byte) Response {
	switch {
	case verb == "POST" && path == "/init":
		return s.handleInit(body)
	case verb == "POST" && path == "/vectors":
		return s.handleRegister(body)
	case verb == "GET" && strings.HasPrefix(path, "/vectors/"):
		return s.handleGetByID(path)
	case verb == "POST" && path == "/search":
		return s.handleSearch(body)
	case verb == "POST" && path == "/flush":
		return s.handleFlush()
	case verb == "POST" && path == "/snapshot":
		return s.handleSnapshot()
	case verb == "POST" && path == "/restore":
		return s.handleRestore()
	default:
		return errResponse(404, "not_found", fmt.Sprintf("no such route: %s %s", verb, path))
	}
}

type initRequest struct {
	VectorDimension int    `json:"vector_dimension"`
	StorageName     string `json:"storage_name,omitempty"`
	TruncateData    bool   `json:"truncate_data"`
}

func (s *Server) handleInit(body []byte) Response {
	var req initRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return errResponse(400, "invalid_request", err.Error())
	}
	if req.VectorDimension <= 0 {
		return errResponse(400, "invalid_vector", "vector_dimension must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cfg
	managerName := "default"
	if req.StorageName != "" {
		cfg.StoragePath = req.StorageName + ".dat"
		cfg.StatePath = req.StorageName + ".state"
		managerName = req.StorageName
	}

	eng, err := vfsengine.Open(cfg, managerName, req.VectorDimension)
	if err != nil {
		return mapError(err)
	}
	if req.TruncateData {
		resetErr := eng.Reset(vfsengine.ResetOptions{
			TruncateDataFile:  true,
			ClearMemtable:     true,
			ClearPrimaryIndex: true,
			ResetOffset:       true,
			ResetIDCounter:    true,
		})
		if resetErr != nil {
			return mapError(resetErr)
		}
	}

	s.engine = eng
	s.ranker = ranker.New(eng, cfg.DistanceMethod.Metric(), hnsw.Config{
		M:              cfg.M,
		M0:             cfg.M0,
		EfConstruction: cfg.EfConstruction,
		EfSearch:       cfg.EfSearch,
	})
	return Response{Status: 201, Body: map[string]any{"status": "initialized", "vector_dimension": req.VectorDimension}}
}

type vectorRegisterRequest struct {
	Values []float32 `json:"values"`
	Name   string    `json:"name"`
	Tags   []string  `json:"tags"`
}

func (s *Server) handleRegister(body []byte) Response {
	eng := s.currentEngine()
	if eng == nil {
		return mapError(vfserr.NewNotInitializedError())
	}
	var req vectorRegisterRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return errResponse(400, "invalid_request", err.Error())
	}
	id, err := eng.Register(req.Values, req.Name, req.Tags)
	if err != nil {
		return mapError(err)
	}
	return Response{Status: 201, Body: map[string]any{"id": id}}
}

type vectorResponse struct {
	ID        uint64    `json:"id"`
	Values    []float32 `json:"values"`
	Name      string    `json:"name"`
	Tags      []string  `json:"tags"`
	CreatedAt string    `json:"created_at"`
}

func toVectorResponse(v vfsvector.Value) vectorResponse {
	return vectorResponse{
		ID:        v.ID,
		Values:    v.AsFloat32(),
		Name:      v.Metadata.Name,
		Tags:      v.Metadata.Tags,
		CreatedAt: v.Metadata.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (s *Server) handleGetByID(path string) Response {
	eng := s.currentEngine()
	if eng == nil {
		return mapError(vfserr.NewNotInitializedError())
	}
	idStr := strings.TrimPrefix(path, "/vectors/")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return errResponse(400, "invalid_request", "malformed vector id")
	}
	v, found, err := eng.GetByID(id)
	if err != nil {
		return mapError(err)
	}
	if !found {
		return errResponse(404, "not_found", fmt.Sprintf("no such id: %d", id))
	}
	return Response{Status: 200, Body: toVectorResponse(v)}
}

type searchRequest struct {
	Values         []float32 `json:"values"`
	TopK           int       `json:"top_k"`
	EfSearch       *int      `json:"ef_search,omitempty"`
	SearchType     string    `json:"search_type,omitempty"`
	DistanceMethod string    `json:"distance_method,omitempty"`
}

type searchResultJSON struct {
	ID       uint64  `json:"id"`
	Distance float32 `json:"distance"`
}

func (s *Server) handleSearch(body []byte) Response {
	eng := s.currentEngine()
	if eng == nil {
		return mapError(vfserr.NewNotInitializedError())
	}
	var req searchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return errResponse(400, "invalid_request", err.Error())
	}
	if dim := eng.Dimension(); dim != 0 && len(req.Values) != dim {
		return mapError(vfserr.NewInvalidVectorError("expected dimension %d, got %d", dim, len(req.Values)))
	}

	s.mu.Lock()
	cfg := s.cfg
	baseRanker := s.ranker
	s.mu.Unlock()

	searchType := cfg.SearchType
	if req.SearchType != "" {
		searchType = config.SearchType(req.SearchType)
	}

	distanceMethod := cfg.DistanceMethod
	if req.DistanceMethod != "" {
		distanceMethod = config.DistanceMethod(req.DistanceMethod)
	}
	metric := distanceMethod.Metric()
	if !metric.SupportsDimension(len(req.Values)) {
		return mapError(vfserr.NewInvalidVectorError("%s does not support dimension %d", metric, len(req.Values)))
	}

	activeRanker := baseRanker
	if req.DistanceMethod != "" || req.EfSearch != nil {
		efSearch := cfg.EfSearch
		if req.EfSearch != nil {
			efSearch = *req.EfSearch
		}
		activeRanker = ranker.New(eng, metric, hnsw.Config{
			M:              cfg.M,
			M0:             cfg.M0,
			EfConstruction: cfg.EfConstruction,
			EfSearch:       efSearch,
		})
	}

	results, err := activeRanker.Search(req.Values, req.TopK, searchType, defaultSearchSeed)
	if err != nil {
		return mapError(err)
	}
	out := make([]searchResultJSON, len(results))
	for i, r := range results {
		out[i] = searchResultJSON{ID: r.ID, Distance: r.Distance}
	}
	return Response{Status: 200, Body: out}
}

// defaultSearchSeed drives the approximate path's HNSW level-assignment
// PRNG when a query doesn't otherwise specify one. Fixed rather than
// derived from the current time so repeated identical queries build
// identical graphs.
const defaultSearchSeed = 1469598103934665603

func (s *Server) handleFlush() Response {
	eng := s.currentEngine()
	if eng == nil {
		return mapError(vfserr.NewNotInitializedError())
	}
	if err := eng.Flush(); err != nil {
		return mapError(err)
	}
	return Response{Status: 200, Body: map[string]any{"status": "flushed"}}
}

func (s *Server) handleSnapshot() Response {
	eng := s.currentEngine()
	if eng == nil {
		return mapError(vfserr.NewNotInitializedError())
	}
	s.mu.Lock()
	path := s.cfg.StatePath
	s.mu.Unlock()
	if err := eng.SaveState(path); err != nil {
		return mapError(err)
	}
	return Response{Status: 200, Body: map[string]any{"status": "saved"}}
}

func (s *Server) handleRestore() Response {
	eng := s.currentEngine()
	if eng == nil {
		return mapError(vfserr.NewNotInitializedError())
	}
	s.mu.Lock()
	path := s.cfg.StatePath
	s.mu.Unlock()
	if err := eng.LoadState(path); err != nil {
		return mapError(err)
	}
	return Response{Status: 200, Body: map[string]any{"status": "restored"}}
}

func (s *Server) currentEngine() *vfsengine.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

func errResponse(status int, errorType, message string) Response {
	return Response{Status: status, Body: map[string]any{"error": message, "error_type": errorType}}
}

func mapError(err error) Response {
	switch err.(type) {
	case *vfserr.InvalidVectorError:
		return errResponse(400, "invalid_vector", err.Error())
	case *vfserr.NotInitializedError:
		return errResponse(400, "not_initialized", err.Error())
	case *vfserr.IDGenerationError:
		return errResponse(500, "id_generation_error", err.Error())
	case *vfserr.SerializationError:
		return errResponse(422, "serialization_error", err.Error())
	case *vfserr.MemtableError:
		return errResponse(500, "memtable_error", err.Error())
	case *vfserr.IOError:
		return errResponse(500, "io_error", err.Error())
	default:
		return errResponse(500, "internal_error", err.Error())
	}
}
