package vcore

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// PruneReason tags why a pruning pass ran, recorded in Pruning History
// (spec §4.5 step 3, §4.6).
type PruneReason string

const (
	ReasonBatchThreshold  PruneReason = "batch_threshold"
	ReasonCapacity        PruneReason = "capacity"
	ReasonWorkspaceCap    PruneReason = "workspace_capacity"
	ReasonMemoryExceeded  PruneReason = "memory_exceeded"
	ReasonMemoryPressure  PruneReason = "memory_pressure"
	ReasonManual          PruneReason = "manual"
)

// PruneCandidate is one victim-selection input: the record plus the
// auxiliary per-id state the Pruning Engine needs (spec §4.5).
type PruneCandidate struct {
	Record     *Record
	AccessTime int64 // Access-Time Table entry, used by the lru strategy
	Footprint  int64 // Memory Accountant estimate, used by the memory-based strategy
}

// PruningEvent is one row of Pruning History (spec §4.5 step 3).
type PruningEvent struct {
	TimestampMs int64       `json:"timestampMs"`
	Reason      PruneReason `json:"reason"`
	Count       int         `json:"count"`
	DurationMs  float64     `json:"durationMs"`
}

// PruningStats aggregates Pruning History into the diagnostic view exposed
// by getPruningStats (spec §4.10).
type PruningStats struct {
	TotalPruned      int64   `json:"totalPruned"`
	EventCount       int64   `json:"eventCount"`
	AvgDurationMs    float64 `json:"avgDurationMs"`
}

// PruningEngine selects eviction victims under one of the five strategies
// and keeps a running history/EMA of pass durations (spec §4.5).
type PruningEngine struct {
	mu sync.Mutex

	strategy      PruningStrategy
	priorityField string
	preserveCount int
	respectPinned bool
	customFn      CustomPruningFunc

	history    []PruningEvent
	totalPruned int64
	emaDuration float64
	emaAlpha    float64
}

// NewPruningEngine returns an engine configured from cfg/strategy.
func NewPruningEngine(strategy PruningStrategy, priorityField string, cfg PruningConfig, customFn CustomPruningFunc) *PruningEngine {
	return &PruningEngine{
		strategy:      strategy,
		priorityField: priorityField,
		preserveCount: cfg.PreserveCount,
		respectPinned: cfg.RespectPinned,
		customFn:      customFn,
		emaAlpha:      0.2,
	}
}

// SelectVictims returns up to count ids to evict from candidates, in
// eviction order, honoring preserveCount/respectPinned (spec §4.5 step 1).
func (e *PruningEngine) SelectVictims(candidates []PruneCandidate, count int, nowMs int64) []string {
	e.mu.Lock()
	respectPinned := e.respectPinned
	preserve := e.preserveCount
	strategy := e.strategy
	priorityField := e.priorityField
	customFn := e.customFn
	e.mu.Unlock()

	eligible := candidates
	if respectPinned {
		eligible = lo.Filter(candidates, func(c PruneCandidate, _ int) bool {
			return !c.Record.Metadata.Pinned()
		})
	}

	maxRemovable := len(eligible) - preserve
	if maxRemovable <= 0 {
		return nil
	}
	if count > maxRemovable {
		count = maxRemovable
	}
	if count <= 0 {
		return nil
	}

	switch strategy {
	case PruningFIFO:
		return selectFIFO(eligible, count, nowMs)
	case PruningLRU:
		return selectLRU(eligible, count)
	case PruningPriority:
		return selectPriority(eligible, count, priorityField)
	case PruningMemoryBased:
		return selectMemoryBased(eligible, count)
	case PruningCustom:
		return selectCustom(eligible, count, customFn)
	default:
		return selectFIFO(eligible, count, nowMs)
	}
}

func selectFIFO(candidates []PruneCandidate, count int, nowMs int64) []string {
	sorted := make([]PruneCandidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		return creationOrder(sorted[i].Record, nowMs) < creationOrder(sorted[j].Record, nowMs)
	})
	return idsOf(sorted[:count])
}

// creationOrder prefers metadata.timestamp, falling back to the epoch-ms
// embedded in the id, and finally to nowMs so malformed ids still sort last.
func creationOrder(r *Record, nowMs int64) float64 {
	if ts, ok := r.Metadata.Timestamp(); ok {
		return ts
	}
	if ms, ok := idCreationMs(r.ID); ok {
		return float64(ms)
	}
	return float64(nowMs)
}

func selectLRU(candidates []PruneCandidate, count int) []string {
	sorted := make([]PruneCandidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].AccessTime < sorted[j].AccessTime
	})
	return idsOf(sorted[:count])
}

func selectPriority(candidates []PruneCandidate, count int, priorityField string) []string {
	sorted := make([]PruneCandidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Record.Metadata.Priority(priorityField) < sorted[j].Record.Metadata.Priority(priorityField)
	})
	return idsOf(sorted[:count])
}

func selectMemoryBased(candidates []PruneCandidate, count int) []string {
	sorted := make([]PruneCandidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Footprint > sorted[j].Footprint
	})
	return idsOf(sorted[:count])
}

func selectCustom(candidates []PruneCandidate, count int, fn CustomPruningFunc) []string {
	if fn == nil {
		return nil
	}
	records := lo.Map(candidates, func(c PruneCandidate, _ int) *Record { return c.Record })
	return fn(records, count)
}

func idsOf(candidates []PruneCandidate) []string {
	return lo.Map(candidates, func(c PruneCandidate, _ int) string { return c.Record.ID })
}

// RecordEvent appends a Pruning History entry and updates the running
// EMA of pass duration (spec §4.5 step 3).
func (e *PruningEngine) RecordEvent(reason PruneReason, count int, durationMs float64, nowMs int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, PruningEvent{
		TimestampMs: nowMs,
		Reason:      reason,
		Count:       count,
		DurationMs:  durationMs,
	})
	e.totalPruned += int64(count)
	if e.emaDuration == 0 {
		e.emaDuration = durationMs
	} else {
		e.emaDuration = e.emaAlpha*durationMs + (1-e.emaAlpha)*e.emaDuration
	}
}

// History returns the full Pruning History log.
func (e *PruningEngine) History() []PruningEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]PruningEvent, len(e.history))
	copy(out, e.history)
	return out
}

// Stats returns the aggregated Pruning Stats view.
func (e *PruningEngine) Stats() PruningStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return PruningStats{
		TotalPruned:   e.totalPruned,
		EventCount:    int64(len(e.history)),
		AvgDurationMs: e.emaDuration,
	}
}

// BatchSize returns the raised victim count when batch pruning fires
// (spec §4.5 "Batch pruning").
func BatchSize(cfg PruningConfig, storeSize, maxVectors int) (int, bool) {
	if maxVectors <= 0 {
		return 0, false
	}
	if float64(storeSize) >= float64(maxVectors)*cfg.Threshold {
		return cfg.BatchSize, true
	}
	return 0, false
}
