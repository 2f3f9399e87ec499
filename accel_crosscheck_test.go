package vcore_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	vcore "github.com/liliang-cn/vcore"
	"github.com/liliang-cn/vcore/pkg/accel"
)

// TestAcceleratedSearchMatchesInProcessForCompositeFilter cross-checks the
// accelerated (ScalableIndex) search path against the in-process scan path
// for a composite $and/$gt filter, the shape matchesExact used to silently
// fail on before it was rewired onto vcore.EvaluateFilter.
func TestAcceleratedSearchMatchesInProcessForCompositeFilter(t *testing.T) {
	ctx := context.Background()

	seed := []struct {
		vec []float64
		md  vcore.Metadata
	}{
		{[]float64{1, 0, 0}, vcore.Metadata{"score": 10.0, "category": "a"}},
		{[]float64{0.9, 0.1, 0}, vcore.Metadata{"score": 3.0, "category": "a"}},
		{[]float64{0, 1, 0}, vcore.Metadata{"score": 20.0, "category": "b"}},
		{[]float64{0, 0, 1}, vcore.Metadata{"score": 1.0, "category": "a"}},
	}

	filter := vcore.Filter{
		"$and": []vcore.Filter{
			{"category": "a"},
			{"score": vcore.Filter{"$gt": 5.0}},
		},
	}

	run := func(withAccel bool) []vcore.ScoredRecord {
		cfg := vcore.DefaultConfig()
		cfg.Dimension = 3
		cfg.Metric = vcore.MetricCosine
		if withAccel {
			cfg.Accelerator = accel.NewFlatIndex(3, vcore.MetricCosine)
		}
		s, err := vcore.Open(cfg)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if err := s.Initialize(ctx); err != nil {
			t.Fatalf("Initialize: %v", err)
		}
		for _, sd := range seed {
			if _, err := s.Store(ctx, sd.vec, sd.md); err != nil {
				t.Fatalf("Store: %v", err)
			}
		}
		results, err := s.Search(ctx, []float64{1, 0, 0}, vcore.SearchOptions{K: 10, Filter: filter})
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		return results
	}

	inProcess := run(false)
	accelerated := run(true)

	if len(inProcess) == 0 {
		t.Fatal("expected the composite filter to match at least one seeded record")
	}
	if len(accelerated) != len(inProcess) {
		t.Fatalf("accelerated and in-process result counts diverge: accelerated=%d in-process=%d",
			len(accelerated), len(inProcess))
	}

	idsOf := func(rs []vcore.ScoredRecord) []string {
		out := make([]string, len(rs))
		for i, r := range rs {
			out[i] = fmt.Sprintf("%v/%v", r.Metadata["category"], r.Metadata["score"])
		}
		sort.Strings(out)
		return out
	}
	gotA, gotB := idsOf(accelerated), idsOf(inProcess)
	for i := range gotA {
		if gotA[i] != gotB[i] {
			t.Errorf("accelerated vs in-process mismatch at %d: %v vs %v", i, gotA, gotB)
		}
	}

	for _, r := range accelerated {
		score, _ := r.Metadata["score"].(float64)
		category, _ := r.Metadata["category"].(string)
		if category != "a" || score <= 5.0 {
			t.Errorf("accelerated path returned a record outside the filter: category=%q score=%v", category, score)
		}
	}
}

// TestDeleteBatchRollbackRestoresAccelerator forces persistSnapshot to fail
// mid-DeleteBatch and confirms the Accelerator Shim mirror is restored along
// with the Primary Store, not left with the ids deleted out from under it.
func TestDeleteBatchRollbackRestoresAccelerator(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := vcore.DefaultConfig()
	cfg.Dimension = 3
	cfg.Path = dir
	cfg.Accelerator = accel.NewFlatIndex(3, vcore.MetricCosine)

	s, err := vcore.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	id1, err := s.Store(ctx, []float64{1, 0, 0}, nil)
	if err != nil {
		t.Fatalf("Store 1: %v", err)
	}
	id2, err := s.Store(ctx, []float64{0, 1, 0}, nil)
	if err != nil {
		t.Fatalf("Store 2: %v", err)
	}

	// Occupy persistSnapshot's temp-file path with a directory so the next
	// write fails regardless of process privilege.
	if err := os.Mkdir(filepath.Join(dir, "vectors.json.tmp"), 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if _, err := s.DeleteBatch(ctx, []string{id1, id2}); err == nil {
		t.Fatal("expected DeleteBatch to fail when the snapshot write cannot complete")
	}

	if s.Size() != 2 {
		t.Fatalf("expected the Primary Store to be rolled back to 2 records, got %d", s.Size())
	}

	results, err := s.Search(ctx, []float64{1, 0, 0}, vcore.SearchOptions{K: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected the accelerator mirror to be restored with both records, got %d result(s)", len(results))
	}
}
