// Package hnsw implements the hierarchical navigable small-world graph used
// for approximate nearest-neighbor search: layered graph construction,
// probabilistic level assignment, greedy descent, and bounded per-layer
// search with explicit worst-neighbor replacement.
//
// Grounded in the layered-graph shape from original_source/vfs/src/vfs/ann.rs
// (level generation, per-layer greedy-then-bounded search), generalized to
// the fixed-size sentinel-filled neighbor arrays and explicit
// nearest/candidates/seen Searcher state called for by the most detailed of
// the source's drafts, including worst-neighbor replacement against the
// host node (the draft ann.rs itself omits).
package hnsw

import (
	"container/heap"
	"math"
	"math/rand"
	"sort"
)

// emptyIndex is the sentinel marking an unused neighbor slot.
const emptyIndex = ^uint32(0)

// DistanceFunc computes the distance between two equal-length vectors.
type DistanceFunc func(a, b []float32) float32

// Config holds the graph's construction and query parameters.
type Config struct {
	M              int
	M0             int
	EfConstruction int
	EfSearch       int
}

// DefaultConfig returns the spec's reference parameters: M=16, M0=40,
// ef_construction=400, ef_search=ef_construction.
func DefaultConfig() Config {
	return Config{M: 16, M0: 40, EfConstruction: 400, EfSearch: 400}
}

// Node is one vector's representation within a single layer. Neighbors is a
// fixed-size array filled with the emptyIndex sentinel in unused slots
// rather than a variable-length pointer list. Down links to this same
// vector's node in the layer immediately below (emptyIndex at layer 0);
// Base links to this vector's node at layer 0.
type Node struct {
	ID        uint64
	Vector    []float32
	Neighbors []uint32
	Down      uint32
	Base      uint32
}

type layer struct {
	nodes []Node
	entry uint32
}

// Graph is a layered HNSW index built incrementally by Insert and queried by
// Search. Not safe for concurrent use; callers serialize access (the ranker
// owns one graph per build).
type Graph struct {
	cfg      Config
	dist     DistanceFunc
	rng      *rand.Rand
	layers   []layer
	topLayer int
	empty    bool
}

// New constructs an empty graph. seed drives the level-assignment PRNG so
// that repeated builds over the same insertion order are reproducible.
func New(cfg Config, dist DistanceFunc, seed int64) *Graph {
	return &Graph{
		cfg:   cfg,
		dist:  dist,
		rng:   rand.New(rand.NewSource(seed)),
		empty: true,
	}
}

// Len reports the number of vectors inserted (layer-0 node count).
func (g *Graph) Len() int {
	if len(g.layers) == 0 {
		return 0
	}
	return len(g.layers[0].nodes)
}

func (g *Graph) sampleLevel() int {
	u := g.rng.Float64()
	for u <= 0 {
		u = g.rng.Float64()
	}
	level := int(math.Floor(-math.Log(u) / math.Log(float64(g.cfg.M))))
	if level < 0 {
		level = 0
	}
	return level
}

func (g *Graph) neighborCap(l int) int {
	if l == 0 {
		return g.cfg.M0
	}
	return g.cfg.M
}

func newEmptyNeighbors(cap int) []uint32 {
	n := make([]uint32, cap)
	for i := range n {
		n[i] = emptyIndex
	}
	return n
}

func (g *Graph) ensureLayer(l int) {
	for len(g.layers) <= l {
		g.layers = append(g.layers, layer{entry: emptyIndex})
	}
}

// Insert adds vec under external identifier id to the graph.
func (g *Graph) Insert(id uint64, vec []float32) {
	level := g.sampleLevel()

	if g.empty {
		g.insertIntoEmptyGraph(id, vec, level)
		return
	}

	oldTop := g.topLayer
	reserved := make([]uint32, level+1)

	for l := 0; l <= level; l++ {
		g.ensureLayer(l)
		idx := uint32(len(g.layers[l].nodes))
		g.layers[l].nodes = append(g.layers[l].nodes, Node{
			ID:        id,
			Vector:    vec,
			Neighbors: newEmptyNeighbors(g.neighborCap(l)),
			Down:      emptyIndex,
			Base:      0,
		})
		reserved[l] = idx
	}
	for l := 0; l <= level; l++ {
		n := &g.layers[l].nodes[reserved[l]]
		if l > 0 {
			n.Down = reserved[l-1]
		}
		n.Base = reserved[0]
	}

	entryIdx := g.layers[oldTop].entry
	for l := oldTop; l > level; l-- {
		res := g.searchLayer(l, vec, entryIdx, 1)
		best := res[0].node
		entryIdx = g.layers[l].nodes[best].Down
	}

	cur := entryIdx
	startLayer := oldTop
	if level < startLayer {
		startLayer = level
	}
	for l := startLayer; l >= 1; l-- {
		results := g.searchLayer(l, vec, cur, g.cfg.EfConstruction)
		chosen := truncateCandidates(results, g.neighborCap(l))
		myIdx := reserved[l]
		for _, c := range chosen {
			g.linkBidirectional(l, myIdx, c.node)
		}
		if len(results) > 0 {
			cur = g.layers[l].nodes[results[0].node].Down
		}
	}

	results := g.searchLayer(0, vec, cur, g.cfg.EfConstruction)
	chosen := truncateCandidates(results, g.neighborCap(0))
	myIdx0 := reserved[0]
	for _, c := range chosen {
		g.linkBidirectional(0, myIdx0, c.node)
	}

	if level > oldTop {
		for l := oldTop + 1; l <= level; l++ {
			g.layers[l].entry = reserved[l]
		}
		g.topLayer = level
	}
}

func (g *Graph) insertIntoEmptyGraph(id uint64, vec []float32, level int) {
	prevIdx := emptyIndex
	for l := 0; l <= level; l++ {
		g.ensureLayer(l)
		idx := uint32(len(g.layers[l].nodes))
		g.layers[l].nodes = append(g.layers[l].nodes, Node{
			ID:        id,
			Vector:    vec,
			Neighbors: newEmptyNeighbors(g.neighborCap(l)),
			Down:      prevIdx,
			Base:      0,
		})
		g.layers[l].entry = idx
		prevIdx = idx
	}
	g.topLayer = level
	g.empty = false
}

func truncateCandidates(results []candidate, cap int) []candidate {
	if len(results) > cap {
		return results[:cap]
	}
	return results
}

// linkBidirectional wires host<->cand at layer l, applying the neighbor cap
// and worst-neighbor replacement rule to both sides independently.
func (g *Graph) linkBidirectional(l int, host, cand uint32) {
	g.addNeighbor(l, host, cand)
	g.addNeighbor(l, cand, host)
}

// addNeighbor tries to record cand as a neighbor of host at layer l. If
// host's neighbor list is full, cand replaces host's current worst neighbor
// (by distance to host) only if cand is strictly closer; otherwise cand is
// dropped.
func (g *Graph) addNeighbor(l int, host, cand uint32) {
	hostNode := &g.layers[l].nodes[host]
	if host == cand {
		return
	}
	for i, nb := range hostNode.Neighbors {
		if nb == cand {
			return
		}
		if nb == emptyIndex {
			hostNode.Neighbors[i] = cand
			return
		}
	}

	hostVec := hostNode.Vector
	worstSlot := -1
	var worstDist float32 = -1
	for i, nb := range hostNode.Neighbors {
		d := g.dist(hostVec, g.layers[l].nodes[nb].Vector)
		if d > worstDist {
			worstDist = d
			worstSlot = i
		}
	}
	candDist := g.dist(hostVec, g.layers[l].nodes[cand].Vector)
	if candDist < worstDist {
		hostNode.Neighbors[worstSlot] = cand
	}
}

// candidate pairs a node index (within one layer's slice) with its distance
// to the query that produced it.
type candidate struct {
	node uint32
	dist float32
}

type candHeap []candidate

func (h candHeap) Len() int            { return len(h) }
func (h candHeap) Less(i, j int) bool   { return h[i].dist < h[j].dist }
func (h candHeap) Swap(i, j int)        { h[i], h[j] = h[j], h[i] }
func (h *candHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// searchLayer runs the bounded per-layer search described in the design
// notes: a seen set, a priority-pop candidate queue, and a sorted nearest
// list capped at `cap`. It stops once the candidate queue is exhausted.
func (g *Graph) searchLayer(l int, query []float32, entry uint32, cap int) []candidate {
	ly := &g.layers[l]
	seen := map[uint32]bool{entry: true}

	d0 := g.dist(query, ly.nodes[entry].Vector)
	nearest := []candidate{{entry, d0}}

	pq := &candHeap{{entry, d0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(candidate)
		node := &ly.nodes[cur.node]
		for _, nb := range node.Neighbors {
			if nb == emptyIndex || seen[nb] {
				continue
			}
			seen[nb] = true
			d := g.dist(query, ly.nodes[nb].Vector)
			pos := sort.Search(len(nearest), func(i int) bool { return nearest[i].dist >= d })
			if pos >= cap {
				continue
			}
			if len(nearest) >= cap {
				nearest = nearest[:cap-1]
			}
			nearest = append(nearest, candidate{})
			copy(nearest[pos+1:], nearest[pos:len(nearest)-1])
			nearest[pos] = candidate{nb, d}
			heap.Push(pq, candidate{nb, d})
		}
	}
	return nearest
}

// Result is one ranked hit from Search.
type Result struct {
	ID       uint64
	Distance float32
}

// Search returns up to k nearest neighbors of query, sorted ascending by
// distance. An empty graph returns nil; k greater than the graph's size
// returns every node.
func (g *Graph) Search(query []float32, k int) []Result {
	if g.empty || g.Len() == 0 {
		return nil
	}

	cur := g.layers[g.topLayer].entry
	for l := g.topLayer; l >= 1; l-- {
		res := g.searchLayer(l, query, cur, 1)
		cur = g.layers[l].nodes[res[0].node].Down
	}

	ef := g.cfg.EfSearch
	if k > ef {
		ef = k
	}
	res := g.searchLayer(0, query, cur, ef)
	if len(res) > k {
		res = res[:k]
	}

	out := make([]Result, len(res))
	for i, c := range res {
		out[i] = Result{ID: g.layers[0].nodes[c.node].ID, Distance: c.dist}
	}
	return out
}
