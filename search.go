package vcore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// SearchOptions configures one Search call (spec §4.8).
type SearchOptions struct {
	K         int
	Filter    Filter
	FilterFn  func(Metadata) bool
	Threshold *float64
}

// Search runs the Search Pipeline: gather candidates (accelerator or
// in-process scan), score, threshold, sort, truncate (spec §4.8).
func (s *Store) Search(ctx context.Context, query []float64, opts SearchOptions) ([]ScoredRecord, error) {
	start := nowMs()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureUsable(); err != nil {
		return nil, err
	}
	if s.cfg.Dimension > 0 && len(query) != s.cfg.Dimension {
		return nil, wrapError("search", ErrDimensionMismatch)
	}
	if err := validateVector(query); err != nil {
		return nil, wrapError("search", err)
	}

	k := opts.K
	if k <= 0 {
		k = 10
	}

	var results []ScoredRecord
	var err error
	if s.accel.present() {
		results, err = s.searchAccelerated(ctx, query, opts, k)
	} else {
		results, err = s.searchInProcess(query, opts, k)
	}
	s.searchLatencies.record(float64(nowMs() - start))
	return results, err
}

func (s *Store) searchAccelerated(ctx context.Context, query []float64, opts SearchOptions, k int) ([]ScoredRecord, error) {
	results, err := s.cfg.Accelerator.Search(ctx, AccelQuery{
		Vector:    query,
		Limit:     k,
		Threshold: opts.Threshold,
		Filter:    opts.Filter,
	})
	if err != nil {
		return nil, wrapError("search", err)
	}
	if opts.FilterFn != nil {
		filtered := results[:0]
		for _, r := range results {
			if opts.FilterFn(r.Metadata) {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *Store) searchInProcess(query []float64, opts SearchOptions, k int) ([]ScoredRecord, error) {
	now := s.clock()
	metric := s.cfg.Metric

	source := s.records
	if s.cfg.MemoryMode == MemoryModeEfficient {
		loaded, err := loadSnapshot(s.cfg.Path)
		if err != nil {
			return nil, wrapError("search", err)
		}
		source = loaded
	}

	var candidateIDs []string
	usedCache := false
	cacheKey := ""
	if s.cfg.EnableFilterCache {
		cacheKey = CanonicalKey(opts.Filter)
		if ids, ok := s.cache.Get(cacheKey); ok {
			candidateIDs = ids
			usedCache = true
		}
	}

	var results []ScoredRecord
	if usedCache {
		for _, id := range candidateIDs {
			r, ok := source[id]
			if !ok {
				continue
			}
			if sr, ok := s.scoreRecord(r, query, opts, metric); ok {
				results = append(results, sr)
			}
		}
	} else {
		matchedIDs := make([]string, 0, len(source))
		for id, r := range source {
			if !s.evaluator.Evaluate(opts.Filter, r.Metadata, now) {
				continue
			}
			matchedIDs = append(matchedIDs, id)
			if sr, ok := s.scoreRecord(r, query, opts, metric); ok {
				results = append(results, sr)
			}
		}
		if s.cfg.EnableFilterCache {
			s.cache.Put(cacheKey, matchedIDs)
		}
	}

	sortResults(results, metric)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *Store) scoreRecord(r *Record, query []float64, opts SearchOptions, metric Metric) (ScoredRecord, bool) {
	if opts.FilterFn != nil && !opts.FilterFn(r.Metadata) {
		return ScoredRecord{}, false
	}
	if len(r.Vector) != len(query) {
		return ScoredRecord{}, false
	}
	score := calculate(metric, query, r.Vector)
	if opts.Threshold != nil {
		if metric.IsDistance() {
			if score > *opts.Threshold {
				return ScoredRecord{}, false
			}
		} else {
			if score < *opts.Threshold {
				return ScoredRecord{}, false
			}
		}
	}
	return ScoredRecord{Record: *r.clone(), Score: score}, true
}

func sortResults(results []ScoredRecord, metric Metric) {
	if metric.IsDistance() {
		sort.Slice(results, func(i, j int) bool { return results[i].Score < results[j].Score })
	} else {
		sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	}
}

// StoreText embeds text with the configured EmbeddingProvider and stores the
// resulting vector (spec §4.8 "storeText").
func (s *Store) StoreText(ctx context.Context, text string, metadata Metadata) (string, error) {
	s.mu.Lock()
	provider := s.cfg.EmbeddingProvider
	dim := s.cfg.Dimension
	s.mu.Unlock()

	if provider == nil {
		return "", wrapError("storeText", ErrEmbeddingProviderNil)
	}
	if dim > 0 && provider.Dimension() > 0 && provider.Dimension() != dim {
		return "", wrapError("storeText", ErrEmbeddingDimMismatch)
	}

	vec, err := provider.Embed(ctx, text)
	if err != nil {
		return "", wrapError("storeText", fmt.Errorf("%w: %v", ErrEmbeddingGenFailed, err))
	}

	md := metadata.Clone()
	if md == nil {
		md = Metadata{}
	}
	md[FieldText] = text
	md[FieldEmbeddingModel] = provider.ModelName()

	return s.Store(ctx, vec, md)
}

// SearchText embeds text and delegates to Search (spec §4.8 "searchText").
// It always asks the provider for the embedding: there is no
// precomputed-query table, and Config.PrecomputeQueries is not read.
func (s *Store) SearchText(ctx context.Context, text string, opts SearchOptions) ([]ScoredRecord, error) {
	s.mu.Lock()
	provider := s.cfg.EmbeddingProvider
	s.mu.Unlock()

	if provider == nil {
		return nil, wrapError("searchText", ErrEmbeddingProviderNil)
	}
	vec, err := provider.Embed(ctx, text)
	if err != nil {
		return nil, wrapError("searchText", fmt.Errorf("%w: %v", ErrEmbeddingGenFailed, err))
	}
	return s.Search(ctx, vec, opts)
}

// HybridSearch blends vector similarity with a metadata-match bonus
// (spec §4.8 "Hybrid search"): k' = 2k candidates are gathered, then
// hybridScore = score*weightVector + (filter matched ? 1 : 0)*weightMetadata,
// re-sorted descending, truncated to k.
func (s *Store) HybridSearch(ctx context.Context, text string, opts SearchOptions, weightVector, weightMetadata float64) ([]ScoredRecord, error) {
	k := opts.K
	if k <= 0 {
		k = 10
	}
	wideOpts := opts
	wideOpts.K = 2 * k

	base, err := s.SearchText(ctx, text, wideOpts)
	if err != nil {
		return nil, err
	}

	type hybrid struct {
		rec   ScoredRecord
		score float64
	}
	scored := make([]hybrid, 0, len(base))
	for _, r := range base {
		bonus := 0.0
		if opts.Filter != nil {
			bonus = 1.0
		}
		hs := r.Score*weightVector + bonus*weightMetadata
		scored = append(scored, hybrid{rec: r, score: hs})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	out := make([]ScoredRecord, 0, k)
	for i, h := range scored {
		if i >= k {
			break
		}
		rec := h.rec
		rec.Score = h.score
		out = append(out, rec)
	}
	return out, nil
}

// SearchWithReranking gets max(k, rerankTop) textual candidates, asks the
// CrossEncoder to rank them against query, reorders, and truncates to k
// (spec §4.8 "Rerank search").
func (s *Store) SearchWithReranking(ctx context.Context, query string, opts SearchOptions, rerankTop int) ([]ScoredRecord, error) {
	s.mu.Lock()
	encoder := s.cfg.CrossEncoder
	s.mu.Unlock()

	if encoder == nil {
		return nil, wrapError("searchWithReranking", ErrCrossEncoderNil)
	}

	k := opts.K
	if k <= 0 {
		k = 10
	}
	fetch := k
	if rerankTop > fetch {
		fetch = rerankTop
	}
	wideOpts := opts
	wideOpts.K = fetch

	base, err := s.SearchText(ctx, query, wideOpts)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(base))
	for i, r := range base {
		if t, ok := r.Metadata[FieldText].(string); ok {
			texts[i] = t
		}
	}

	ranks, err := encoder.Rerank(ctx, query, texts)
	if err != nil {
		return nil, wrapError("searchWithReranking", err)
	}
	if len(ranks) != len(base) {
		return nil, wrapError("searchWithReranking", ErrInvalidConfig)
	}

	reordered := make([]ScoredRecord, len(base))
	for i, rank := range ranks {
		if rank < 0 || rank >= len(base) {
			return nil, wrapError("searchWithReranking", ErrInvalidConfig)
		}
		reordered[rank] = base[i]
	}

	if len(reordered) > k {
		reordered = reordered[:k]
	}
	return reordered, nil
}

// SearchBatch fans out queries and awaits all, preserving input order
// (spec §5 "searchBatch fans out queries and awaits all in parallel on the
// same executor; results preserve input order").
func (s *Store) SearchBatch(ctx context.Context, queries [][]float64, opts SearchOptions) ([][]ScoredRecord, error) {
	out := make([][]ScoredRecord, len(queries))
	errs := make([]error, len(queries))

	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q []float64) {
			defer wg.Done()
			res, err := s.Search(ctx, q, opts)
			out[i] = res
			errs[i] = err
		}(i, q)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return out, err
		}
	}
	return out, nil
}
