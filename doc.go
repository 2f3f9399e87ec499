// Package vcore provides a persistent, in-process vector store with metadata
// filtering, batched operations, bounded memory, and automatic eviction.
//
// It is the storage kernel for retrieval-augmented applications that need to
// keep an authoritative map of id -> (vector, metadata) in process, search it
// by cosine/Euclidean/angular similarity, filter by a small Mongo-style query
// language over metadata, and stay under an operator-configured memory and
// count budget via FIFO/LRU/priority/memory-based/custom pruning.
//
// # Quick start
//
//	cfg := vcore.DefaultConfig()
//	cfg.Dimension = 3
//	cfg.Path = "./data"
//
//	store, err := vcore.Open(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctx := context.Background()
//	if err := store.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close(ctx)
//
//	id, err := store.Store(ctx, []float64{1, 0, 0}, map[string]any{"text": "hello"})
//	results, err := store.Search(ctx, []float64{1, 0, 0}, vcore.SearchOptions{K: 5})
//
// Embedding generation, cross-encoder reranking, and ANN acceleration are
// external collaborators injected at construction time (see EmbeddingProvider,
// CrossEncoder, and ScalableIndex) — vcore only defines and consumes those
// seams.
package vcore
