package store

import (
	"math"

	"github.com/coder/hnsw"
)

// HNSW parameters. M and EfSearch follow the library's recommendations
// for collections in the tens of thousands of vectors.
const (
	hnswM        = 16
	hnswEfSearch = 20
)

// annIndex is an in-process nearest-neighbor index over one namespace.
// Nodes are keyed by the SQLite rowid of their chunk record. Deletion is
// lazy: removed keys drop out of the valid set while their nodes stay in
// the graph, because coder/hnsw misbehaves when the last node is deleted.
type annIndex struct {
	graph *hnsw.Graph[uint64]
	valid map[uint64]struct{}
}

func newANNIndex() *annIndex {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = hnswM
	g.EfSearch = hnswEfSearch
	g.Ml = 0.25
	return &annIndex{
		graph: g,
		valid: make(map[uint64]struct{}),
	}
}

// add inserts a normalized copy of the vector under the given key.
func (a *annIndex) add(key uint64, vector []float32) {
	vec := make([]float32, len(vector))
	copy(vec, vector)
	normalizeInPlace(vec)
	a.graph.Add(hnsw.MakeNode(key, vec))
	a.valid[key] = struct{}{}
}

// remove lazily deletes a key.
func (a *annIndex) remove(key uint64) {
	delete(a.valid, key)
}

func (a *annIndex) len() int {
	return len(a.valid)
}

// orphans counts lazily-deleted nodes still occupying the graph.
func (a *annIndex) orphans() int {
	return a.graph.Len() - len(a.valid)
}

type annResult struct {
	key   uint64
	score float32
}

// search returns up to k valid neighbors of the query, best first.
// Scores are cosine distance mapped to 0..1.
func (a *annIndex) search(query []float32, k int) []annResult {
	if len(a.valid) == 0 || k <= 0 {
		return nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeInPlace(q)

	// Overfetch so lazily-deleted nodes don't starve the result set.
	fetch := k + a.orphans()
	nodes := a.graph.Search(q, fetch)

	results := make([]annResult, 0, k)
	for _, node := range nodes {
		if _, ok := a.valid[node.Key]; !ok {
			continue
		}
		distance := a.graph.Distance(q, node.Value)
		results = append(results, annResult{
			key:   node.Key,
			score: 1.0 - distance/2.0,
		})
		if len(results) == k {
			break
		}
	}
	return results
}

// normalizeInPlace scales a vector to unit length in place.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
