package vcore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotRoundTripAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.Dimension = 3
	cfg.Path = dir
	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	id, err := s.Store(ctx, []float64{1, 2, 3}, Metadata{"k": "v"})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	if err := s2.Initialize(ctx); err != nil {
		t.Fatalf("reopen Initialize: %v", err)
	}
	rec, err := s2.Get(ctx, id)
	if err != nil || rec == nil {
		t.Fatalf("expected record to survive reopen, got rec=%v err=%v", rec, err)
	}
	if rec.Vector[0] != 1 || rec.Vector[1] != 2 || rec.Vector[2] != 3 {
		t.Errorf("vector not preserved exactly: %v", rec.Vector)
	}
	if rec.Metadata["k"] != "v" {
		t.Errorf("metadata not preserved: %+v", rec.Metadata)
	}
}

func TestLoadSnapshotMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	records, err := loadSnapshot(dir)
	if err != nil {
		t.Fatalf("expected no error for a missing snapshot file, got %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty map, got %d records", len(records))
	}
}

func TestLoadSnapshotEmptyDirMeansPureInMemory(t *testing.T) {
	records, err := loadSnapshot("")
	if err != nil || len(records) != 0 {
		t.Errorf("empty dir should mean pure in-memory: records=%v err=%v", records, err)
	}
}

func TestPersistSnapshotIsAtomic(t *testing.T) {
	dir := t.TempDir()
	records := map[string]*Record{
		"a": {ID: "a", Vector: []float64{1, 2, 3}, Metadata: Metadata{"x": 1.0}},
	}
	if err := persistSnapshot(dir, records); err != nil {
		t.Fatalf("persistSnapshot: %v", err)
	}

	if _, err := os.Stat(snapshotPath(dir)); err != nil {
		t.Fatalf("expected snapshot file to exist: %v", err)
	}
	if _, err := os.Stat(snapshotPath(dir) + ".tmp"); !os.IsNotExist(err) {
		t.Error("expected the temp file to be renamed away, not left behind")
	}

	loaded, err := loadSnapshot(dir)
	if err != nil {
		t.Fatalf("loadSnapshot: %v", err)
	}
	if len(loaded) != 1 || loaded["a"].Vector[2] != 3 {
		t.Errorf("round-trip mismatch: %+v", loaded)
	}
}

func TestCreateBackupAndRestoreFromBackup(t *testing.T) {
	dir := t.TempDir()
	records := map[string]*Record{
		"a": {ID: "a", Vector: []float64{1, 2, 3}, Metadata: Metadata{"x": 1.0}},
		"b": {ID: "b", Vector: []float64{4, 5, 6}, Metadata: Metadata{"x": 2.0}},
	}
	backupPath, err := createBackup(dir, records, 123456)
	if err != nil {
		t.Fatalf("createBackup: %v", err)
	}
	if filepath.Dir(backupPath) != dir {
		t.Errorf("backup path %q not under %q", backupPath, dir)
	}

	restored, err := restoreFromBackup(backupPath)
	if err != nil {
		t.Fatalf("restoreFromBackup: %v", err)
	}
	if len(restored) != 2 || restored["b"].Vector[0] != 4 {
		t.Errorf("restored snapshot mismatch: %+v", restored)
	}
}

func TestRestoreFromBackupMissingFile(t *testing.T) {
	_, err := restoreFromBackup("/nonexistent/path/vectors.json.backup.1")
	if err == nil {
		t.Fatal("expected ErrBackupNotFound for a missing backup file")
	}
}

func TestCreateBackupRequiresPersistence(t *testing.T) {
	_, err := createBackup("", nil, 0)
	if err == nil {
		t.Fatal("expected an error creating a backup with no persistence path configured")
	}
}

func TestValidateSnapshotEfficientModeDoesNotLoadIntoMemory(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.Dimension = 3
	cfg.Path = dir
	seed, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := seed.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	id, err := seed.Store(ctx, []float64{1, 2, 3}, nil)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := seed.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	effCfg := cfg
	effCfg.MemoryMode = MemoryModeEfficient
	s, err := Open(effCfg)
	if err != nil {
		t.Fatalf("Open (efficient): %v", err)
	}
	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize (efficient): %v", err)
	}
	if s.Size() != 0 {
		t.Errorf("efficient-memory mode should leave the in-memory map empty on open, Size() = %d", s.Size())
	}

	rec, err := s.Get(ctx, id)
	if err != nil || rec == nil {
		t.Fatalf("expected lazy on-demand load to find the record: rec=%v err=%v", rec, err)
	}
	if rec.Vector[0] != 1 {
		t.Errorf("unexpected lazily-loaded vector: %v", rec.Vector)
	}
}

func TestSearchFindsRecordsInEfficientMode(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.Dimension = 3
	cfg.Path = dir
	seed, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := seed.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := seed.Store(ctx, []float64{1, 0, 0}, Metadata{"tag": "match"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := seed.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	effCfg := cfg
	effCfg.MemoryMode = MemoryModeEfficient
	s, err := Open(effCfg)
	if err != nil {
		t.Fatalf("Open (efficient): %v", err)
	}
	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize (efficient): %v", err)
	}

	results, err := s.Search(ctx, []float64{1, 0, 0}, SearchOptions{K: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected efficient-mode search to load the snapshot from disk and find 1 result, got %d", len(results))
	}
}

func TestStoreBatchDropsRecordsFromMemoryInEfficientMode(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.Dimension = 3
	cfg.Path = dir
	cfg.MemoryMode = MemoryModeEfficient
	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	vectors := [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	ids, _, err := s.StoreBatch(ctx, vectors, nil)
	if err != nil {
		t.Fatalf("StoreBatch: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(ids))
	}
	if s.Size() != 0 {
		t.Errorf("expected StoreBatch to drop each chunk from memory in efficient mode, resident size = %d", s.Size())
	}

	results, err := s.Search(ctx, []float64{1, 0, 0}, SearchOptions{K: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected the batch-stored records to be found via the on-demand disk load, got %d", len(results))
	}
}

func TestExportImportRecords(t *testing.T) {
	records := map[string]*Record{
		"a": {ID: "a", Vector: []float64{1, 2, 3}, Metadata: Metadata{"x": 1.0}},
	}
	data, err := exportRecords(records)
	if err != nil {
		t.Fatalf("exportRecords: %v", err)
	}
	list, err := importRecords(data)
	if err != nil {
		t.Fatalf("importRecords: %v", err)
	}
	if len(list) != 1 || list[0].ID != "a" {
		t.Errorf("unexpected import result: %+v", list)
	}
}
