package vcore

import (
	"context"
	"sort"
)

// WorkspaceStats is one workspace's diagnostic snapshot (spec_full §4
// supplemented feature, grounded on the reference ListDocuments/DocumentInfo
// idiom of summarizing the primary map by a grouping key).
type WorkspaceStats struct {
	WorkspaceID string  `json:"workspaceId"`
	Count       int     `json:"count"`
	BytesUsed   int64   `json:"bytesUsed"`
}

// GetWorkspaceStats returns per-workspace counts and estimated footprint.
// Records are grouped by their metadata workspaceId whether or not workspace
// isolation is enabled; a record without one is attributed to
// DefaultWorkspaceID.
func (s *Store) GetWorkspaceStats(ctx context.Context) ([]WorkspaceStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureUsable(); err != nil {
		return nil, err
	}

	agg := make(map[string]*WorkspaceStats)
	for _, r := range s.records {
		ws := r.Metadata.WorkspaceID()
		st, ok := agg[ws]
		if !ok {
			st = &WorkspaceStats{WorkspaceID: ws}
			agg[ws] = st
		}
		st.Count++
		st.BytesUsed += estimateFootprint(r.Vector, r.Metadata)
	}

	out := make([]WorkspaceStats, 0, len(agg))
	for _, st := range agg {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkspaceID < out[j].WorkspaceID })
	return out, nil
}

// ListWorkspaces returns the distinct workspace ids currently present.
func (s *Store) ListWorkspaces(ctx context.Context) ([]string, error) {
	stats, err := s.GetWorkspaceStats(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(stats))
	for i, st := range stats {
		ids[i] = st.WorkspaceID
	}
	return ids, nil
}
