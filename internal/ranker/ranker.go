// Package ranker implements the search pipeline: an exact batched top-k scan
// over the storage engine and an approximate top-k query via a freshly built
// HNSW graph, both sharing one distance function closed over at
// construction.
//
// Grounded on original_source/vfs/src/vfs/rank.rs (Ranker, exact_search's
// batch-sort-truncate-retain loop, calculate_distance) and spec §4.4/§4.5
// for the approximate path's HNSW construction.
package ranker

import (
	"sort"

	"github.com/shibudb/vfsdb/internal/config"
	"github.com/shibudb/vfsdb/internal/distance"
	"github.com/shibudb/vfsdb/internal/hnsw"
	"github.com/shibudb/vfsdb/internal/vfsengine"
)

// batchSize bounds how many vectors the exact scan pulls from the engine
// per round, keeping memory bounded by batchSize+limit as the design
// requires.
const batchSize = 256

// Result is one ranked hit: an identifier and its distance to the query.
type Result struct {
	ID       uint64
	Distance float32
}

// Ranker answers top-k queries against an engine using one distance metric,
// fixed at construction time.
type Ranker struct {
	engine *vfsengine.Engine
	metric distance.Metric
	hnsw   hnsw.Config
}

// New builds a ranker over engine using the given distance metric and HNSW
// parameters for its approximate mode.
func New(engine *vfsengine.Engine, metric distance.Metric, hnswCfg hnsw.Config) *Ranker {
	return &Ranker{engine: engine, metric: metric, hnsw: hnswCfg}
}

func (r *Ranker) distFn() hnsw.DistanceFunc {
	metric := r.metric
	return func(a, b []float32) float32 { return distance.Compute(metric, a, b) }
}

// ExactTopK pulls batches from the engine until one comes back empty,
// computing the distance from query to every vector returned, keeping a
// running sorted list truncated to limit. The scan starts at the engine's
// current read cursor and leaves that cursor at the end of the data file.
func (r *Ranker) ExactTopK(query []float32, limit int) ([]Result, error) {
	if limit <= 0 {
		return nil, nil
	}
	dist := r.distFn()
	var results []Result

	for {
		batch, err := r.engine.LoadBatch(batchSize)
		if err != nil {
			return results, err
		}
		if len(batch) == 0 {
			break
		}
		for _, v := range batch {
			d := dist(query, v.AsFloat32())
			results = append(results, Result{ID: v.ID, Distance: d})
		}
		sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
		if len(results) > limit {
			worst := results[limit-1].Distance
			cut := limit
			for cut < len(results) && results[cut].Distance <= worst {
				cut++
			}
			results = results[:cut]
			if len(results) > limit {
				results = results[:limit]
			}
		}
	}
	return results, nil
}

// ApproximateTopK builds a fresh HNSW graph from the batches the engine
// returns (starting at its current read cursor, as ExactTopK does) and
// queries it for the k nearest neighbors of query. seed drives the graph's
// level-assignment PRNG.
func (r *Ranker) ApproximateTopK(query []float32, k int, seed int64) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	graph := hnsw.New(r.hnsw, r.distFn(), seed)

	for {
		batch, err := r.engine.LoadBatch(batchSize)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		for _, v := range batch {
			graph.Insert(v.ID, v.AsFloat32())
		}
	}

	hits := graph.Search(query, k)
	out := make([]Result, len(hits))
	for i, h := range hits {
		out[i] = Result{ID: h.ID, Distance: h.Distance}
	}
	return out, nil
}

// Search dispatches to ExactTopK or ApproximateTopK based on searchType.
func (r *Ranker) Search(query []float32, k int, searchType config.SearchType, seed int64) ([]Result, error) {
	if searchType == config.SearchApproximate {
		return r.ApproximateTopK(query, k, seed)
	}
	return r.ExactTopK(query, k)
}

// RangeSearch returns every vector within radius of query, sorted ascending
// by distance. Supplemented from the teacher's VectorEngine.RangeSearch and
// the retrieved tcp.rs handler table; it reuses the same exact-scan batch
// machinery as ExactTopK rather than capping by count.
func (r *Ranker) RangeSearch(query []float32, radius float32) ([]Result, error) {
	dist := r.distFn()
	var results []Result
	for {
		batch, err := r.engine.LoadBatch(batchSize)
		if err != nil {
			return results, err
		}
		if len(batch) == 0 {
			break
		}
		for _, v := range batch {
			d := dist(query, v.AsFloat32())
			if d <= radius {
				results = append(results, Result{ID: v.ID, Distance: d})
			}
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	return results, nil
}
