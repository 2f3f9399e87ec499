package vcore

import (
	"sync"

	"github.com/liliang-cn/vcore/internal/canon"
)

const (
	bytesPerFloat64 = 8

	overheadMultiplierHigh = 70 // dim >= 1000
	overheadMultiplierMid  = 80 // dim >= 500
	overheadMultiplierLow  = 2  // otherwise
)

// estimateFootprint approximates a record's resident-memory cost in bytes
// (spec §4.4). The overhead multipliers are a calibration knob tuned against
// the reference test corpus, not a derivation from real allocator behavior.
// Within a band the estimate grows with vector length; at the 1000-dim
// boundary it drops, since the high band's multiplier (70) is below the mid
// band's (80).
func estimateFootprint(vec []float64, md Metadata) int64 {
	vectorBytes := int64(len(vec)) * bytesPerFloat64
	metadataBytes := int64(2 * len(canon.MustCanonical(md)))

	multiplier := int64(overheadMultiplierLow)
	switch {
	case len(vec) >= 1000:
		multiplier = overheadMultiplierHigh
	case len(vec) >= 500:
		multiplier = overheadMultiplierMid
	}

	return vectorBytes*multiplier + metadataBytes
}

// PressureLevel identifies which Memory Accountant threshold fired.
type PressureLevel string

const (
	PressureWarning  PressureLevel = "warning"
	PressureCritical PressureLevel = "critical"
)

// Accountant tracks the store's estimated resident footprint and fires
// registered callbacks once per threshold crossing (spec §4.4). Callbacks
// run synchronously on the caller's goroutine while the accountant's lock
// is held, consistent with the single-threaded cooperative execution model;
// a callback must not call back into the same Accountant.
type Accountant struct {
	mu    sync.Mutex
	total int64

	capBytes float64
	warnAt   float64
	critAt   float64

	warnFired bool
	critFired bool

	warnCallbacks []MemoryPressureCallback
	critCallbacks []MemoryPressureCallback
}

// NewAccountant returns an Accountant enforcing a maxMemoryMB cap with
// warning/critical fractions in [0,1].
func NewAccountant(maxMemoryMB, warnFraction, critFraction float64) *Accountant {
	return &Accountant{
		capBytes: maxMemoryMB * 1024 * 1024,
		warnAt:   warnFraction,
		critAt:   critFraction,
	}
}

// OnPressure registers cb to fire the first time usage crosses level's
// threshold. Callbacks are not re-armed until usage drops back below the
// threshold and crosses it again.
func (a *Accountant) OnPressure(level PressureLevel, cb MemoryPressureCallback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch level {
	case PressureWarning:
		a.warnCallbacks = append(a.warnCallbacks, cb)
	case PressureCritical:
		a.critCallbacks = append(a.critCallbacks, cb)
	}
}

// Add accounts for a newly-inserted record's footprint.
func (a *Accountant) Add(bytes int64) {
	a.mu.Lock()
	a.total += bytes
	a.checkLocked()
	a.mu.Unlock()
}

// Remove accounts for a deleted record's footprint.
func (a *Accountant) Remove(bytes int64) {
	a.mu.Lock()
	a.total -= bytes
	if a.total < 0 {
		a.total = 0
	}
	a.checkLocked()
	a.mu.Unlock()
}

// Rescan replaces the running total with a freshly computed sum, used after
// batch mutations to correct any at-most-one-update lag (spec §2 property).
func (a *Accountant) Rescan(total int64) {
	a.mu.Lock()
	a.total = total
	a.checkLocked()
	a.mu.Unlock()
}

// Total returns the current running total in bytes.
func (a *Accountant) Total() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// Ratio returns the current usage ratio against the cap (0 if no cap set).
func (a *Accountant) Ratio() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ratioLocked()
}

// ProjectedRatio returns the usage ratio if extraBytes were added, without
// mutating the running total. Used by the Constraint Gate to evaluate a
// pending insert before committing it.
func (a *Accountant) ProjectedRatio(extraBytes int64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.capBytes <= 0 {
		return 0
	}
	return float64(a.total+extraBytes) / a.capBytes
}

func (a *Accountant) ratioLocked() float64 {
	if a.capBytes <= 0 {
		return 0
	}
	return float64(a.total) / a.capBytes
}

func (a *Accountant) checkLocked() {
	ratio := a.ratioLocked()

	if ratio >= a.critAt {
		if !a.critFired {
			a.critFired = true
			for _, cb := range a.critCallbacks {
				safeCallback(cb, ratio)
			}
		}
	} else {
		a.critFired = false
	}

	if ratio >= a.warnAt {
		if !a.warnFired {
			a.warnFired = true
			for _, cb := range a.warnCallbacks {
				safeCallback(cb, ratio)
			}
		}
	} else {
		a.warnFired = false
	}
}

func safeCallback(cb MemoryPressureCallback, ratio float64) {
	defer func() { _ = recover() }()
	cb(ratio)
}

// CapBytes returns the configured memory cap in bytes.
func (a *Accountant) CapBytes() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capBytes
}
