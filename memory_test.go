package vcore

import "testing"

func TestEstimateFootprintMonotonicInVectorLength(t *testing.T) {
	short := estimateFootprint(make([]float64, 10), Metadata{})
	long := estimateFootprint(make([]float64, 100), Metadata{})
	if long <= short {
		t.Errorf("longer vector should cost at least as much: short=%d long=%d", short, long)
	}
}

func TestEstimateFootprintDimensionBands(t *testing.T) {
	low := estimateFootprint(make([]float64, 100), Metadata{})
	mid := estimateFootprint(make([]float64, 500), Metadata{})
	high := estimateFootprint(make([]float64, 1000), Metadata{})

	lowPerDim := float64(low) / 100
	midPerDim := float64(mid) / 500

	if midPerDim <= lowPerDim {
		t.Errorf("mid band per-dim cost (%v) should exceed low band (%v)", midPerDim, lowPerDim)
	}
	if high <= mid {
		t.Errorf("high band total cost (%d) should exceed mid band (%d)", high, mid)
	}
}

func TestAccountantPressureCallbacks(t *testing.T) {
	a := NewAccountant(1, 0.5, 0.9) // 1 MB cap

	warned := make(chan float64, 1)
	a.OnPressure(PressureWarning, func(ratio float64) { warned <- ratio })

	a.Add(600 * 1024) // 600KB of 1MB = ~0.586 ratio, crosses 0.5

	select {
	case ratio := <-warned:
		if ratio < 0.5 {
			t.Errorf("warning fired below threshold: %v", ratio)
		}
	default:
		t.Error("expected warning callback to fire")
	}
}

func TestAccountantRatioAndProjection(t *testing.T) {
	a := NewAccountant(1, 0.7, 0.9)
	a.Add(500 * 1024)
	if a.Total() != 500*1024 {
		t.Errorf("Total() = %d, want %d", a.Total(), 500*1024)
	}
	projected := a.ProjectedRatio(100 * 1024)
	if projected <= a.Ratio() {
		t.Error("projected ratio with extra bytes should exceed current ratio")
	}
}

func TestAccountantRemoveNeverGoesNegative(t *testing.T) {
	a := NewAccountant(1, 0.7, 0.9)
	a.Add(100)
	a.Remove(1000)
	if a.Total() != 0 {
		t.Errorf("Total() = %d, want 0 (clamped)", a.Total())
	}
}
