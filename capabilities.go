package vcore

import "context"

// EmbeddingProvider turns text into vectors (spec §1 "external collaborators").
// It is an external capability: vcore never implements one itself.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
	// Dimension reports the length of vectors this provider produces, used
	// to fail fast with EmbeddingDimensionMismatch before a store attempt.
	Dimension() int
	ModelName() string
}

// CrossEncoder reranks a query against a set of candidate texts, returning
// one rank per candidate in the same order as the input slice (spec §4.8
// "Rerank search").
type CrossEncoder interface {
	Rerank(ctx context.Context, query string, candidates []string) ([]int, error)
}

// AccelQuery is the request shape handed to a ScalableIndex by the Search
// Pipeline's accelerator path (spec §4.8 Path A).
type AccelQuery struct {
	Vector    []float64
	Limit     int
	Threshold *float64
	Filter    Filter
}

// ScalableIndex is an optional ANN accelerator kept in sync with the Primary
// Store by the Accelerator Shim (spec §4.10). When configured, Search
// delegates to it instead of scanning the Primary Store directly.
type ScalableIndex interface {
	Insert(id string, vector []float64, metadata Metadata) error
	Delete(id string) error
	Clear() error
	Search(ctx context.Context, q AccelQuery) ([]ScoredRecord, error)
	Size() int
}

// accelShim mirrors Primary Store mutations into an optional ScalableIndex.
// A nil underlying index makes every method a no-op, so Store can call
// through the shim unconditionally.
type accelShim struct {
	idx ScalableIndex
}

func newAccelShim(idx ScalableIndex) *accelShim {
	return &accelShim{idx: idx}
}

func (s *accelShim) insert(id string, vector []float64, md Metadata) {
	if s.idx == nil {
		return
	}
	_ = s.idx.Insert(id, vector, md)
}

func (s *accelShim) delete(id string) {
	if s.idx == nil {
		return
	}
	_ = s.idx.Delete(id)
}

func (s *accelShim) clear() {
	if s.idx == nil {
		return
	}
	_ = s.idx.Clear()
}

func (s *accelShim) present() bool {
	return s.idx != nil
}
