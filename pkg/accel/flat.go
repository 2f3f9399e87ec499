// Package accel provides an optional brute-force ScalableIndex
// implementation for vcore: the Accelerator Shim's identity case, shadowing
// the Primary Store's authoritative map with its own id->vector map and a
// top-k max-heap search. It is adapted from the teacher's pkg/index flat
// brute-force index, retargeted from float32 to the float64 vectors vcore
// stores, and rewired onto vcore's own Metric/ScoredRecord/Filter types
// instead of a standalone distance-function parameter.
package accel

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	vcore "github.com/liliang-cn/vcore"
)

// FlatIndex is a brute-force exact vcore.ScalableIndex: O(n) per search,
// guaranteed exact results. Useful as a baseline accelerator, or for small
// stores where an approximate index isn't worth the complexity.
type FlatIndex struct {
	mu        sync.RWMutex
	dimension int
	metric    vcore.Metric

	vectors  map[string][]float64
	metadata map[string]vcore.Metadata
}

// NewFlatIndex returns a FlatIndex scoring with metric over dimension-length
// vectors.
func NewFlatIndex(dimension int, metric vcore.Metric) *FlatIndex {
	return &FlatIndex{
		dimension: dimension,
		metric:    metric,
		vectors:   make(map[string][]float64),
		metadata:  make(map[string]vcore.Metadata),
	}
}

// Insert adds or overwrites the vector/metadata for id.
func (f *FlatIndex) Insert(id string, vector []float64, metadata vcore.Metadata) error {
	if f.dimension > 0 && len(vector) != f.dimension {
		return fmt.Errorf("accel: dimension mismatch: expected %d, got %d", f.dimension, len(vector))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	v := make([]float64, len(vector))
	copy(v, vector)
	f.vectors[id] = v
	f.metadata[id] = metadata.Clone()
	return nil
}

// Delete removes id from the index. Deleting a missing id is not an error.
func (f *FlatIndex) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.vectors, id)
	delete(f.metadata, id)
	return nil
}

// Clear empties the index.
func (f *FlatIndex) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors = make(map[string][]float64)
	f.metadata = make(map[string]vcore.Metadata)
	return nil
}

// Size returns the number of indexed vectors.
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Search scores every indexed vector against q.Vector with the configured
// metric, applies q.Filter through vcore.EvaluateFilter (the same evaluator
// the in-process scan path uses, so accelerated and unaccelerated search
// agree on every filter shape) and q.Threshold, and returns the top q.Limit
// results ordered the way vcore.Store would (descending similarity /
// ascending distance).
func (f *FlatIndex) Search(ctx context.Context, q vcore.AccelQuery) ([]vcore.ScoredRecord, error) {
	if f.dimension > 0 && len(q.Vector) != f.dimension {
		return nil, fmt.Errorf("accel: dimension mismatch: expected %d, got %d", f.dimension, len(q.Vector))
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	h := &scoreHeap{isDistance: f.metric.IsDistance()}
	heap.Init(h)

	now := time.Now().UnixMilli()
	for id, vec := range f.vectors {
		md := f.metadata[id]
		if !vcore.EvaluateFilter(q.Filter, md, now) {
			continue
		}
		score := distanceOrSimilarity(f.metric, q.Vector, vec)
		if q.Threshold != nil {
			if f.metric.IsDistance() && score > *q.Threshold {
				continue
			}
			if !f.metric.IsDistance() && score < *q.Threshold {
				continue
			}
		}

		item := scoreItem{id: id, score: score}
		if h.Len() < limit {
			heap.Push(h, item)
		} else if h.worseThan(item, h.items[0]) {
			heap.Pop(h)
			heap.Push(h, item)
		}
	}

	items := make([]scoreItem, h.Len())
	for i := len(items) - 1; i >= 0; i-- {
		items[i] = heap.Pop(h).(scoreItem)
	}

	results := make([]vcore.ScoredRecord, len(items))
	for i, it := range items {
		results[i] = vcore.ScoredRecord{
			Record: vcore.Record{ID: it.id, Vector: f.vectors[it.id], Metadata: f.metadata[it.id]},
			Score:  it.score,
		}
	}
	return results, nil
}

func distanceOrSimilarity(m vcore.Metric, a, b []float64) float64 {
	switch m {
	case vcore.MetricEuclidean:
		return euclidean(a, b)
	case vcore.MetricAngular:
		return angular(a, b)
	default:
		return cosine(a, b)
	}
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	na = math.Sqrt(na)
	nb = math.Sqrt(nb)
	if na < 1e-10 || nb < 1e-10 {
		return 0
	}
	c := dot / (na * nb)
	if c < -1 {
		c = -1
	}
	if c > 1 {
		c = 1
	}
	return c
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func angular(a, b []float64) float64 {
	return math.Acos(cosine(a, b))
}

// scoreItem is one heap entry: an id and its score against the query.
type scoreItem struct {
	id    string
	score float64
}

// scoreHeap is a heap.Interface that keeps the worst-scoring item at the
// root, so pushing past capacity evicts it (spec_full §3 accelerator
// grounded on the teacher's flatMaxHeap, generalized to either ordering).
type scoreHeap struct {
	items      []scoreItem
	isDistance bool
}

func (h scoreHeap) Len() int { return len(h.items) }

// worseThan reports whether root scores worse than candidate under the
// heap's ordering (larger distance is worse; smaller similarity is worse),
// i.e. whether candidate should replace root.
func (h scoreHeap) worseThan(candidate, root scoreItem) bool {
	if h.isDistance {
		return candidate.score < root.score
	}
	return candidate.score > root.score
}

func (h scoreHeap) Less(i, j int) bool {
	if h.isDistance {
		return h.items[i].score > h.items[j].score
	}
	return h.items[i].score < h.items[j].score
}

func (h scoreHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *scoreHeap) Push(x interface{}) {
	h.items = append(h.items, x.(scoreItem))
}

func (h *scoreHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
