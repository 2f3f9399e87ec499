package vcore

import (
	"context"
	"fmt"
	"sync"
)

// lifecycleState is the store's Created/Initialized/Closed state machine
// (spec §4.8 "State machine").
type lifecycleState int

const (
	stateCreated lifecycleState = iota
	stateInitialized
	stateClosed
)

// Store is the primary, in-process vector store: Primary Store, Access-Time
// Table, Workspace Count Table, Constraint Gate, Pruning Engine, Memory
// Accountant, Filter Evaluator/Cache, and Accelerator Shim, wired together
// behind a single mutex (spec §5 "single-threaded cooperative").
type Store struct {
	mu    sync.Mutex
	state lifecycleState

	cfg Config

	records   map[string]*Record
	access    map[string]int64
	wsCounts  map[string]int

	accountant *Accountant
	evaluator  *Evaluator
	cache      *FilterCache
	pruning    map[string]*PruningEngine // "" key = global engine
	gate       *ConstraintGate
	accel      *accelShim

	searchLatencies *latencyRing

	clock func() int64
}

// Open validates cfg, applies defaults, and returns an un-initialized
// Store. Callers must call Initialize before any other operation (spec §4.8
// "State machine").
func Open(cfg Config) (*Store, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Store{
		cfg:      cfg,
		records:  make(map[string]*Record),
		access:   make(map[string]int64),
		wsCounts: make(map[string]int),
		clock:    nowMs,
	}
	s.accountant = NewAccountant(cfg.MaxMemoryMB, cfg.MemoryPressureWarning, cfg.MemoryPressureCritical)
	s.evaluator = NewEvaluator(cfg.TrackFilterStats)
	cacheSize := 0
	if cfg.EnableFilterCache {
		cacheSize = cfg.FilterCacheSize
	}
	s.cache = NewFilterCache(cacheSize)
	s.accel = newAccelShim(cfg.Accelerator)
	s.pruning = map[string]*PruningEngine{
		"": NewPruningEngine(cfg.PruningStrategy, cfg.PriorityField, cfg.Pruning, cfg.CustomPruning),
	}
	s.gate = NewConstraintGate(&s.cfg, s.accountant, s)
	s.searchLatencies = newLatencyRing(256)
	return s, nil
}

// Initialize loads any existing snapshot from Config.Path and transitions
// Created -> Initialized. Idempotent (spec §4.8).
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateInitialized {
		return nil
	}
	if s.state == stateClosed {
		return wrapError("initialize", ErrAlreadyClosed)
	}

	if s.cfg.Path != "" {
		if s.cfg.MemoryMode == MemoryModeEfficient {
			if err := validateSnapshot(s.cfg.Path); err != nil {
				if !s.cfg.FallbackToMemory {
					return err
				}
				s.cfg.Path = ""
				s.cfg.Logger.Warn("persistence open failed, falling back to memory", "err", err)
			}
		} else {
			loaded, err := loadSnapshot(s.cfg.Path)
			if err != nil {
				if !s.cfg.FallbackToMemory {
					return err
				}
				s.cfg.Path = ""
				s.cfg.Logger.Warn("persistence open failed, falling back to memory", "err", err)
			} else {
				now := s.clock()
				s.records = loaded
				var total int64
				for id, r := range loaded {
					s.access[id] = now
					fp := estimateFootprint(r.Vector, r.Metadata)
					total += fp
					s.bumpWorkspace(r.Metadata.WorkspaceID(), 1)
					s.accel.insert(id, r.Vector, r.Metadata)
				}
				s.accountant.Rescan(total)
			}
		}
	}

	s.state = stateInitialized
	return nil
}

func (s *Store) ensureUsable() error {
	switch s.state {
	case stateCreated:
		return wrapError("store", ErrNotInitialized)
	case stateClosed:
		return wrapError("store", ErrAlreadyClosed)
	default:
		return nil
	}
}

func (s *Store) bumpWorkspace(ws string, delta int) {
	if !s.cfg.WorkspaceIsolation {
		return
	}
	s.wsCounts[ws] += delta
	if s.wsCounts[ws] <= 0 {
		delete(s.wsCounts, ws)
	}
}

func (s *Store) pruningEngineFor(workspaceID string) *PruningEngine {
	if workspaceID == "" {
		return s.pruning[""]
	}
	if wc, ok := s.cfg.WorkspaceConfig[workspaceID]; ok && wc.PruningStrategy != "" {
		if e, ok := s.pruning[workspaceID]; ok {
			return e
		}
		e := NewPruningEngine(wc.PruningStrategy, s.cfg.PriorityField, s.cfg.Pruning, s.cfg.CustomPruning)
		s.pruning[workspaceID] = e
		return e
	}
	return s.pruning[""]
}

// pruneCount implements pruneExecutor: it selects and removes up to count
// victims from workspaceID ("" = whole store), persists, and records the
// Pruning History entry.
func (s *Store) pruneCount(workspaceID string, count int, reason PruneReason) (int, error) {
	if count <= 0 {
		return 0, nil
	}
	start := s.clock()

	candidates := make([]PruneCandidate, 0, len(s.records))
	for id, r := range s.records {
		if workspaceID != "" && r.Metadata.WorkspaceID() != workspaceID {
			continue
		}
		candidates = append(candidates, PruneCandidate{
			Record:     r,
			AccessTime: s.access[id],
			Footprint:  estimateFootprint(r.Vector, r.Metadata),
		})
	}

	engine := s.pruningEngineFor(workspaceID)
	victims := engine.SelectVictims(candidates, count, s.clock())
	for _, id := range victims {
		s.removeRecord(id)
	}

	engine.RecordEvent(reason, len(victims), float64(s.clock()-start), s.clock())

	if len(victims) > 0 {
		s.persistLocked()
	}
	return len(victims), nil
}

func (s *Store) removeRecord(id string) {
	r, ok := s.records[id]
	if !ok {
		return
	}
	fp := estimateFootprint(r.Vector, r.Metadata)
	delete(s.records, id)
	delete(s.access, id)
	s.bumpWorkspace(r.Metadata.WorkspaceID(), -1)
	s.accountant.Remove(fp)
	s.accel.delete(id)
}

func (s *Store) persistLocked() {
	if s.cfg.Path == "" {
		return
	}
	if err := persistSnapshot(s.cfg.Path, s.records); err != nil {
		s.cfg.Logger.Error("snapshot persist failed", "err", err)
	}
}

// evictIfEfficient drops id's Record from the resident map once it has been
// persisted, for batch inserts under efficient-memory mode (spec §4.7
// "batch inserts persist each chunk and then drop the chunk from memory"):
// residency is never grown past Initialize's empty map, the same way Get's
// on-demand load never caches a hit back into s.records.
func (s *Store) evictIfEfficient(id string) {
	if s.cfg.MemoryMode != MemoryModeEfficient {
		return
	}
	delete(s.records, id)
}

// Store inserts vector with metadata and returns its generated id
// (spec §4.6/§4.7 "store" flow).
func (s *Store) Store(ctx context.Context, vector []float64, metadata Metadata) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureUsable(); err != nil {
		return "", err
	}
	if err := s.validateInsert(vector); err != nil {
		return "", err
	}

	md := metadata.Clone()
	if md == nil {
		md = Metadata{}
	}
	ws := md.WorkspaceID()
	fp := estimateFootprint(vector, md)

	if err := s.gate.Check(ws, fp, len(s.records), s.wsCounts[ws]); err != nil {
		return "", err
	}

	id := newID(s.clock())
	r := &Record{ID: id, Vector: append([]float64(nil), vector...), Metadata: md}
	s.records[id] = r
	s.access[id] = s.clock()
	s.bumpWorkspace(ws, 1)
	s.accountant.Add(fp)
	s.accel.insert(id, r.Vector, r.Metadata)
	s.cache.Clear()
	s.persistLocked()

	return id, nil
}

func (s *Store) validateInsert(vector []float64) error {
	if err := validateVector(vector); err != nil {
		return wrapError("store", err)
	}
	if s.cfg.Dimension > 0 && len(vector) != s.cfg.Dimension {
		return wrapError("store", ErrInvalidVector)
	}
	return nil
}

// Get returns the record for id, updating its access time (spec §3
// "Access-Time Table ... written ... on every successful get").
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureUsable(); err != nil {
		return nil, err
	}

	r, ok := s.records[id]
	if !ok {
		if s.cfg.MemoryMode == MemoryModeEfficient {
			loaded, found, err := loadOneRecord(s.cfg.Path, id)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, nil
			}
			s.access[id] = s.clock()
			return loaded.clone(), nil
		}
		return nil, nil
	}
	s.access[id] = s.clock()
	return r.clone(), nil
}

// Delete removes id and reports whether it existed (spec §6 "delete").
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureUsable(); err != nil {
		return false, err
	}

	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	s.removeRecord(id)
	s.cache.Clear()
	s.persistLocked()
	return true, nil
}

// Clear removes every record (spec §6 "clear").
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureUsable(); err != nil {
		return err
	}

	s.records = make(map[string]*Record)
	s.access = make(map[string]int64)
	s.wsCounts = make(map[string]int)
	s.accountant.Rescan(0)
	s.accel.clear()
	s.cache.Clear()
	s.persistLocked()
	return nil
}

// Close persists a final snapshot and transitions to Closed (spec §6
// "close").
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return nil
	}
	if s.cfg.Path != "" && s.cfg.MemoryMode != MemoryModeEfficient {
		if err := persistSnapshot(s.cfg.Path, s.records); err != nil {
			return err
		}
	}
	s.state = stateClosed
	return nil
}

// StoreBatch inserts multiple (vector, metadata) pairs in one call
// (spec §4.9 "storeBatch").
func (s *Store) StoreBatch(ctx context.Context, vectors [][]float64, metadatas []Metadata) ([]string, []BatchError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureUsable(); err != nil {
		return nil, nil, err
	}

	if !s.cfg.AllowPartialBatch {
		var details []BatchError
		for i, v := range vectors {
			if err := s.validateInsert(v); err != nil {
				details = append(details, BatchError{Index: i, Message: describeInsertError(err, s.cfg.Dimension, len(v))})
			}
		}
		if len(details) > 0 {
			return nil, nil, &BatchValidationError{Details: details}
		}
		ids := make([]string, 0, len(vectors))
		for i, v := range vectors {
			md := metadataAt(metadatas, i)
			id, err := s.storeLocked(v, md)
			if err != nil {
				return ids, nil, err
			}
			ids = append(ids, id)
		}
		return ids, nil, nil
	}

	var ids []string
	var errs []BatchError
	for i, v := range vectors {
		md := metadataAt(metadatas, i)
		id, err := s.storeLocked(v, md)
		if err != nil {
			errs = append(errs, BatchError{Index: i, Message: describeInsertError(err, s.cfg.Dimension, len(v))})
			continue
		}
		ids = append(ids, id)
	}
	return ids, errs, nil
}

func metadataAt(metadatas []Metadata, i int) Metadata {
	if i < len(metadatas) {
		return metadatas[i]
	}
	return nil
}

func describeInsertError(err error, wantDim, gotDim int) string {
	if wantDim > 0 && gotDim != wantDim {
		return fmt.Sprintf("Wrong dimension: expected %d, got %d", wantDim, gotDim)
	}
	return err.Error()
}

// storeLocked is Store's body without the lock/ensureUsable guard, for
// callers that already hold s.mu (batch operations).
func (s *Store) storeLocked(vector []float64, metadata Metadata) (string, error) {
	if err := s.validateInsert(vector); err != nil {
		return "", err
	}
	md := metadata.Clone()
	if md == nil {
		md = Metadata{}
	}
	ws := md.WorkspaceID()
	fp := estimateFootprint(vector, md)

	if err := s.gate.Check(ws, fp, len(s.records), s.wsCounts[ws]); err != nil {
		return "", err
	}

	id := newID(s.clock())
	r := &Record{ID: id, Vector: append([]float64(nil), vector...), Metadata: md}
	s.records[id] = r
	s.access[id] = s.clock()
	s.bumpWorkspace(ws, 1)
	s.accountant.Add(fp)
	s.accel.insert(id, r.Vector, r.Metadata)
	s.cache.Clear()
	s.persistLocked()
	s.evictIfEfficient(id)
	return id, nil
}

// UpsertBatch inserts new ids or overwrites existing ones in place (spec §3
// "Mutated only by upsertBatch (same id)").
func (s *Store) UpsertBatch(ctx context.Context, items []Record) ([]string, []BatchError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureUsable(); err != nil {
		return nil, nil, err
	}

	var ids []string
	var errs []BatchError
	for i, item := range items {
		if err := s.validateInsert(item.Vector); err != nil {
			errs = append(errs, BatchError{Index: i, ID: item.ID, Message: describeInsertError(err, s.cfg.Dimension, len(item.Vector))})
			continue
		}
		md := item.Metadata.Clone()
		if md == nil {
			md = Metadata{}
		}

		if existing, ok := s.records[item.ID]; ok && item.ID != "" {
			s.removeRecord(item.ID)
			_ = existing
		}

		id := item.ID
		if id == "" {
			id = newID(s.clock())
		}
		ws := md.WorkspaceID()
		fp := estimateFootprint(item.Vector, md)
		r := &Record{ID: id, Vector: append([]float64(nil), item.Vector...), Metadata: md}
		s.records[id] = r
		s.access[id] = s.clock()
		s.bumpWorkspace(ws, 1)
		s.accountant.Add(fp)
		s.accel.insert(id, r.Vector, r.Metadata)
		ids = append(ids, id)
	}
	s.cache.Clear()
	s.persistLocked()
	for _, id := range ids {
		s.evictIfEfficient(id)
	}
	return ids, errs, nil
}

// GetBatch returns records for the given ids, in the same order; a missing
// id maps to a nil entry.
func (s *Store) GetBatch(ctx context.Context, ids []string) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureUsable(); err != nil {
		return nil, err
	}

	out := make([]*Record, len(ids))
	for i, id := range ids {
		if r, ok := s.records[id]; ok {
			s.access[id] = s.clock()
			out[i] = r.clone()
		}
	}
	return out, nil
}

// DeleteBatch removes every id in ids, all-or-nothing: on any internal
// error the Primary Store is restored to its pre-call snapshot
// (spec §4.9 "deleteBatch").
func (s *Store) DeleteBatch(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureUsable(); err != nil {
		return 0, err
	}

	snapshot := make(map[string]*Record, len(s.records))
	for k, v := range s.records {
		snapshot[k] = v
	}
	accessSnapshot := make(map[string]int64, len(s.access))
	for k, v := range s.access {
		accessSnapshot[k] = v
	}
	wsSnapshot := make(map[string]int, len(s.wsCounts))
	for k, v := range s.wsCounts {
		wsSnapshot[k] = v
	}
	totalSnapshot := s.accountant.Total()

	removed := 0
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			s.removeRecord(id)
			removed++
		}
	}

	s.cache.Clear()
	if err := s.persistOrRestore(snapshot, accessSnapshot, wsSnapshot, totalSnapshot); err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *Store) persistOrRestore(records map[string]*Record, access map[string]int64, wsCounts map[string]int, total int64) error {
	if s.cfg.Path == "" {
		return nil
	}
	if err := persistSnapshot(s.cfg.Path, s.records); err != nil {
		s.records = records
		s.access = access
		s.wsCounts = wsCounts
		s.accountant.Rescan(total)
		s.accel.clear()
		for id, r := range records {
			s.accel.insert(id, r.Vector, r.Metadata)
		}
		return err
	}
	return nil
}

// DeleteByFilter removes every record matching filter and returns the
// count removed.
func (s *Store) DeleteByFilter(ctx context.Context, filter Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureUsable(); err != nil {
		return 0, err
	}

	now := s.clock()
	var toRemove []string
	for id, r := range s.records {
		if s.evaluator.Evaluate(filter, r.Metadata, now) {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		s.removeRecord(id)
	}
	s.cache.Clear()
	s.persistLocked()
	return len(toRemove), nil
}

// GetBatchByFilter returns every record matching filter.
func (s *Store) GetBatchByFilter(ctx context.Context, filter Filter) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureUsable(); err != nil {
		return nil, err
	}

	now := s.clock()
	var out []*Record
	for id, r := range s.records {
		if s.evaluator.Evaluate(filter, r.Metadata, now) {
			s.access[id] = now
			out = append(out, r.clone())
		}
	}
	return out, nil
}

// CreateBackup writes a timestamped snapshot sibling and returns its path.
func (s *Store) CreateBackup(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureUsable(); err != nil {
		return "", err
	}
	return createBackup(s.cfg.Path, s.records, s.clock())
}

// RestoreFromBackup replaces the Primary Store with a prior backup and
// re-persists (spec §4.7).
func (s *Store) RestoreFromBackup(ctx context.Context, backupPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureUsable(); err != nil {
		return err
	}

	restored, err := restoreFromBackup(backupPath)
	if err != nil {
		return err
	}

	s.records = restored
	s.access = make(map[string]int64)
	s.wsCounts = make(map[string]int)
	var total int64
	now := s.clock()
	for id, r := range restored {
		s.access[id] = now
		total += estimateFootprint(r.Vector, r.Metadata)
		s.bumpWorkspace(r.Metadata.WorkspaceID(), 1)
		s.accel.insert(id, r.Vector, r.Metadata)
	}
	s.accountant.Rescan(total)
	s.cache.Clear()
	s.persistLocked()
	return nil
}

// Size returns the current record count.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
