package vcore

// pruneExecutor performs an actual eviction pass and reports how many
// records were removed. Implemented by Store, which owns the Primary Store,
// Access-Time Table, and workspace count table the Pruning Engine needs to
// read from and update.
type pruneExecutor interface {
	pruneCount(workspaceID string, count int, reason PruneReason) (int, error)
}

// ConstraintGate runs the ordered checks of spec §4.6 synchronously before
// every insert.
type ConstraintGate struct {
	cfg        *Config
	accountant *Accountant
	exec       pruneExecutor
}

// NewConstraintGate returns a gate bound to cfg/accountant/exec. cfg is
// shared with the Store and may be mutated by updateConstraints; the gate
// always reads the current values.
func NewConstraintGate(cfg *Config, accountant *Accountant, exec pruneExecutor) *ConstraintGate {
	return &ConstraintGate{cfg: cfg, accountant: accountant, exec: exec}
}

// Check runs the Constraint Gate for a pending insert of one record with the
// given estimated footprint into workspace workspaceID, against a store of
// currentSize records (workspaceCount of which already belong to
// workspaceID). It either returns nil (insert may proceed) or a sentinel
// CapacityExceeded/MemoryExceeded error.
func (g *ConstraintGate) Check(workspaceID string, footprint int64, currentSize, workspaceCount int) error {
	cfg := g.cfg

	// 1. Batch threshold.
	if cfg.EnableAutoPruning && cfg.BatchPruning {
		if n, fire := BatchSize(cfg.Pruning, currentSize, cfg.MaxVectors); fire {
			pruned, _ := g.exec.pruneCount("", n, ReasonBatchThreshold)
			currentSize -= pruned
		}
	}

	// 2. Global count.
	if cfg.MaxVectors > 0 && currentSize >= cfg.MaxVectors {
		if cfg.EnableAutoPruning {
			pruned, _ := g.exec.pruneCount("", 1, ReasonCapacity)
			currentSize -= pruned
			if currentSize >= cfg.MaxVectors {
				return wrapError("store", ErrCapacityExceeded)
			}
		} else {
			return wrapError("store", ErrCapacityExceeded)
		}
	}

	// 3/4. Workspace count, with per-workspace override.
	if cfg.WorkspaceIsolation {
		limit := cfg.MaxVectorsPerWorkspace
		if wc, ok := cfg.WorkspaceConfig[workspaceID]; ok && wc.MaxVectors > 0 {
			limit = wc.MaxVectors
		}
		if limit > 0 && workspaceCount >= limit {
			if cfg.EnableAutoPruning {
				pruned, _ := g.exec.pruneCount(workspaceID, 1, ReasonWorkspaceCap)
				workspaceCount -= pruned
				if workspaceCount >= limit {
					return wrapError("store", ErrCapacityExceeded)
				}
			} else {
				return wrapError("store", ErrCapacityExceeded)
			}
		}
	}

	// 5/6. Memory.
	return g.checkMemory(footprint)
}

func (g *ConstraintGate) checkMemory(footprint int64) error {
	cfg := g.cfg
	cap := g.accountant.CapBytes()
	if cap <= 0 {
		return nil
	}

	projected := g.accountant.ProjectedRatio(footprint)
	exceeds := projected > 1.0

	if exceeds {
		if cfg.MemoryConstraintMode == MemoryConstraintStrict {
			return wrapError("store", ErrMemoryExceeded)
		}

		if cfg.EnableAutoPruning {
			if cfg.PruningStrategy == PruningMemoryBased {
				g.pruneTowardRatio(0.5, 2)
			} else {
				g.exec.pruneCount("", 1, ReasonMemoryExceeded)
				if g.accountant.ProjectedRatio(footprint) > 1.0 {
					return wrapError("store", ErrMemoryExceeded)
				}
			}
		} else {
			return wrapError("store", ErrMemoryExceeded)
		}
	}

	projected = g.accountant.ProjectedRatio(footprint)

	if projected >= 0.9 {
		g.pruneTowardRatio(0.7, 1)
	} else if cfg.PruningStrategy == PruningMemoryBased && projected >= cfg.MemoryPruningThreshold {
		g.exec.pruneCount("", 1, ReasonMemoryPressure)
	}

	if cfg.PruningStrategy == PruningMemoryBased && footprint > 100*1024 {
		g.pruneTowardRatio(0.6, 1)
	}

	return nil
}

// pruneTowardRatio repeatedly prunes minCount-at-a-time until the running
// total falls to or below targetRatio of the cap, or pruning stops making
// progress (spec §4.6 step 6).
func (g *ConstraintGate) pruneTowardRatio(targetRatio float64, minCount int) {
	for i := 0; i < 1000; i++ {
		if g.accountant.Ratio() <= targetRatio {
			return
		}
		pruned, _ := g.exec.pruneCount("", minCount, ReasonMemoryPressure)
		if pruned == 0 {
			return
		}
	}
}
