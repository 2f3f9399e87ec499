package vcore

// MemoryMode controls whether the Primary Store keeps all records resident
// or reloads from disk on demand (spec §4.7 "efficient-memory mode").
type MemoryMode string

const (
	MemoryModeNormal     MemoryMode = "normal"
	MemoryModeEfficient  MemoryMode = "efficient"
)

// MemoryConstraintMode controls whether the Constraint Gate is allowed to
// auto-prune its way out of a memory-cap violation (spec §4.6 step 5).
type MemoryConstraintMode string

const (
	MemoryConstraintSoft   MemoryConstraintMode = "soft"
	MemoryConstraintStrict MemoryConstraintMode = "strict"
)

// PruningStrategy names a victim-selection policy (spec §4.5).
type PruningStrategy string

const (
	PruningFIFO         PruningStrategy = "fifo"
	PruningLRU          PruningStrategy = "lru"
	PruningPriority     PruningStrategy = "priority"
	PruningMemoryBased  PruningStrategy = "memory-based"
	PruningCustom       PruningStrategy = "custom"
)

// CustomPruningFunc selects count victims (by id) from candidates. Used when
// Config.PruningStrategy == PruningCustom.
type CustomPruningFunc func(candidates []*Record, count int) []string

// PruningConfig tunes the Pruning Engine (spec §4.5/§4.6).
type PruningConfig struct {
	BatchSize      int  // pruningBatchSize: victim count once batch threshold fires
	Threshold      float64 // pruningThreshold: fraction of maxVectors that triggers batch pruning
	PreserveCount  int  // never prune below this many records remaining
	RespectPinned  bool // skip metadata.pinned == true records as victims
	DryRun         bool // not read by the store: pruning always removes the victims it selects
}

// DefaultPruningConfig returns the reference constants used throughout
// spec §4.5/§4.6.
func DefaultPruningConfig() PruningConfig {
	return PruningConfig{
		BatchSize:     100,
		Threshold:     0.9,
		PreserveCount: 0,
		RespectPinned: true,
		DryRun:        false,
	}
}

// WorkspaceConfig overrides store-wide limits/strategy for one workspace
// (spec §4.6 step 4).
type WorkspaceConfig struct {
	MaxVectors          int
	PruningStrategy      PruningStrategy
	TrackDetailedStats   bool
	TrackPruningStats    bool
}

// MemoryPressureCallback is invoked once per threshold crossing by the
// Memory Accountant (spec §4.4).
type MemoryPressureCallback func(ratio float64)

// Config is vcore's single, field-by-field configuration struct (spec §9
// "Polymorphic option containers" — no open-ended dictionary configs).
type Config struct {
	// Identity / storage.
	Dimension int        // fixed vector length; 0 disables the length check (any non-empty vector is accepted)
	Path      string     // directory for vectors.json; "" => pure in-memory, no persistence
	Metric    Metric     // similarity/distance metric; default MetricCosine
	MemoryMode MemoryMode // default MemoryModeNormal

	// Filter cache.
	EnableFilterCache bool
	FilterCacheSize   int // default 1000

	// Capacity & workspace isolation.
	MaxVectors             int
	MaxVectorsPerWorkspace int
	WorkspaceIsolation     bool
	WorkspaceConfig        map[string]WorkspaceConfig

	// Memory budget.
	MaxMemoryMB             float64
	MemoryConstraintMode    MemoryConstraintMode
	MemoryPruningThreshold  float64 // fraction of cap that triggers memory-based pruning
	MemoryPressureWarning   float64 // fraction of cap that fires the "warning" callback
	MemoryPressureCritical  float64 // fraction of cap that fires the "critical" callback

	// Pruning.
	EnableAutoPruning  bool
	PruningStrategy    PruningStrategy
	PriorityField      string // default "importance"
	BatchPruning       bool
	Pruning            PruningConfig
	CustomPruning      CustomPruningFunc
	TrackPruningStats  bool

	// Batch behavior.
	AllowPartialBatch bool

	// Diagnostics.
	TrackFilterStats            bool
	EnableConfigRecommendations bool
	PrecomputeQueries            bool

	// Persistence behavior.
	FallbackToMemory bool // downgrade to pure in-memory on persistence open failure

	// Capabilities (external collaborators, spec §1/§9). All optional.
	EmbeddingProvider EmbeddingProvider
	CrossEncoder      CrossEncoder
	Accelerator       ScalableIndex

	Logger Logger
}

// DefaultConfig returns a Config with the reference defaults used throughout
// spec §4 and §9.
func DefaultConfig() Config {
	return Config{
		Metric:                 MetricCosine,
		MemoryMode:              MemoryModeNormal,
		EnableFilterCache:       true,
		FilterCacheSize:         1000,
		MaxVectors:              0, // 0 == unlimited
		MaxVectorsPerWorkspace:  0,
		WorkspaceIsolation:      false,
		MaxMemoryMB:             512,
		MemoryConstraintMode:    MemoryConstraintSoft,
		MemoryPruningThreshold:  0.8,
		MemoryPressureWarning:   0.7,
		MemoryPressureCritical:  0.9,
		EnableAutoPruning:       false,
		PruningStrategy:         PruningFIFO,
		PriorityField:           FieldImportance,
		BatchPruning:            false,
		Pruning:                 DefaultPruningConfig(),
		TrackPruningStats:       true,
		AllowPartialBatch:       false,
		TrackFilterStats:        true,
		EnableConfigRecommendations: true,
		FallbackToMemory:        false,
		Logger:                  NopLogger(),
	}
}

// validate rejects configurations the Constraint Gate could never satisfy
// (spec §4.6: "validated on open ... before any data is touched").
func (c *Config) validate() error {
	if c.Dimension < 0 {
		return wrapError("config", ErrInvalidConfig)
	}
	if c.MaxVectors < 0 {
		return wrapError("config", ErrInvalidConfig)
	}
	if c.MaxMemoryMB <= 0 {
		return wrapError("config", ErrInvalidConfig)
	}
	switch c.PruningStrategy {
	case PruningFIFO, PruningLRU, PruningPriority, PruningMemoryBased, PruningCustom:
	default:
		return wrapError("config", ErrInvalidConfig)
	}
	if c.PruningStrategy == PruningCustom && c.CustomPruning == nil {
		return wrapError("config", ErrInvalidConfig)
	}
	if c.Metric != "" && !c.Metric.valid() {
		return wrapError("config", ErrInvalidConfig)
	}
	return nil
}

// applyDefaults fills zero-valued fields that must never be their zero value
// for the store to function, without overriding an explicit caller choice.
func (c *Config) applyDefaults() {
	if c.Metric == "" {
		c.Metric = MetricCosine
	}
	if c.MemoryMode == "" {
		c.MemoryMode = MemoryModeNormal
	}
	if c.FilterCacheSize == 0 {
		c.FilterCacheSize = 1000
	}
	if c.PriorityField == "" {
		c.PriorityField = FieldImportance
	}
	if c.PruningStrategy == "" {
		c.PruningStrategy = PruningFIFO
	}
	if c.Pruning.BatchSize == 0 {
		c.Pruning.Threshold = defaultFloat(c.Pruning.Threshold, 0.9)
		c.Pruning.BatchSize = 100
	}
	if c.MemoryConstraintMode == "" {
		c.MemoryConstraintMode = MemoryConstraintSoft
	}
	if c.MemoryPruningThreshold == 0 {
		c.MemoryPruningThreshold = 0.8
	}
	if c.MemoryPressureWarning == 0 {
		c.MemoryPressureWarning = 0.7
	}
	if c.MemoryPressureCritical == 0 {
		c.MemoryPressureCritical = 0.9
	}
	if c.Logger == nil {
		c.Logger = NopLogger()
	}
}

func defaultFloat(v, d float64) float64 {
	if v == 0 {
		return d
	}
	return v
}
