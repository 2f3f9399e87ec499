package vcore

import (
	"context"
	"testing"
)

func TestGetWorkspaceStatsGroupsByWorkspace(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, func(c *Config) { c.WorkspaceIsolation = true })

	s.Store(ctx, []float64{1, 0, 0}, Metadata{FieldWorkspaceID: "tenant-a"})
	s.Store(ctx, []float64{0, 1, 0}, Metadata{FieldWorkspaceID: "tenant-a"})
	s.Store(ctx, []float64{0, 0, 1}, Metadata{FieldWorkspaceID: "tenant-b"})

	stats, err := s.GetWorkspaceStats(ctx)
	if err != nil {
		t.Fatalf("GetWorkspaceStats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 workspaces, got %d: %+v", len(stats), stats)
	}
	byID := map[string]WorkspaceStats{}
	for _, st := range stats {
		byID[st.WorkspaceID] = st
	}
	if byID["tenant-a"].Count != 2 {
		t.Errorf("tenant-a count = %d, want 2", byID["tenant-a"].Count)
	}
	if byID["tenant-b"].Count != 1 {
		t.Errorf("tenant-b count = %d, want 1", byID["tenant-b"].Count)
	}
}

func TestGetWorkspaceStatsDefaultsWhenNoWorkspaceSet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, nil)
	s.Store(ctx, []float64{1, 0, 0}, nil)

	stats, err := s.GetWorkspaceStats(ctx)
	if err != nil {
		t.Fatalf("GetWorkspaceStats: %v", err)
	}
	if len(stats) != 1 || stats[0].WorkspaceID != DefaultWorkspaceID {
		t.Errorf("expected single default-workspace entry, got %+v", stats)
	}
}

func TestListWorkspacesReturnsDistinctIDs(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, func(c *Config) { c.WorkspaceIsolation = true })
	s.Store(ctx, []float64{1, 0, 0}, Metadata{FieldWorkspaceID: "a"})
	s.Store(ctx, []float64{0, 1, 0}, Metadata{FieldWorkspaceID: "a"})
	s.Store(ctx, []float64{0, 0, 1}, Metadata{FieldWorkspaceID: "b"})

	ids, err := s.ListWorkspaces(ctx)
	if err != nil {
		t.Fatalf("ListWorkspaces: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 distinct workspace ids, got %v", ids)
	}
}
