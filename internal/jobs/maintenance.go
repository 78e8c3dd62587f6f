package jobs

import (
	"context"
	"time"

	"reflex/internal/services"
)

// ReorganizeJob runs the full tier batch pass: every pathway's tier is
// recomputed and the scan order rebuilt from scratch.
type ReorganizeJob struct {
	tiers    *services.TierService
	interval time.Duration
}

// NewReorganizeJob creates the tier reorganization job.
func NewReorganizeJob(tiers *services.TierService, interval time.Duration) *ReorganizeJob {
	return &ReorganizeJob{tiers: tiers, interval: interval}
}

func (j *ReorganizeJob) Name() string            { return "tier-reorganize" }
func (j *ReorganizeJob) Interval() time.Duration { return j.interval }

func (j *ReorganizeJob) Run(ctx context.Context) error {
	j.tiers.ReorganizeAll()
	return nil
}

// CacheSweepJob evicts expired and over-capacity response cache entries.
type CacheSweepJob struct {
	cache    *services.ResponseCacheService
	interval time.Duration
}

// NewCacheSweepJob creates the cache eviction job.
func NewCacheSweepJob(cache *services.ResponseCacheService, interval time.Duration) *CacheSweepJob {
	return &CacheSweepJob{cache: cache, interval: interval}
}

func (j *CacheSweepJob) Name() string            { return "cache-sweep" }
func (j *CacheSweepJob) Interval() time.Duration { return j.interval }

func (j *CacheSweepJob) Run(ctx context.Context) error {
	j.cache.Sweep()
	return nil
}

// GenerationJob forces a pathway generation pass over whatever is pending,
// so slow-trickle query streams still get clustered eventually.
type GenerationJob struct {
	generator *services.PathwayGeneratorService
	metrics   *services.Metrics
	interval  time.Duration
}

// NewGenerationJob creates the periodic generation pass job.
func NewGenerationJob(generator *services.PathwayGeneratorService, metrics *services.Metrics, interval time.Duration) *GenerationJob {
	return &GenerationJob{generator: generator, metrics: metrics, interval: interval}
}

func (j *GenerationJob) Name() string            { return "pathway-generation" }
func (j *GenerationJob) Interval() time.Duration { return j.interval }

func (j *GenerationJob) Run(ctx context.Context) error {
	created := j.generator.GeneratePass()
	if j.metrics != nil && created > 0 {
		j.metrics.GeneratedPathways.Add(float64(created))
	}
	return nil
}

// SnapshotJob persists the pathway document.
type SnapshotJob struct {
	repository *services.PathwayRepository
	store      *services.PathwayStore
	interval   time.Duration
}

// NewSnapshotJob creates the periodic persistence job.
func NewSnapshotJob(repository *services.PathwayRepository, store *services.PathwayStore, interval time.Duration) *SnapshotJob {
	return &SnapshotJob{repository: repository, store: store, interval: interval}
}

func (j *SnapshotJob) Name() string            { return "pathway-snapshot" }
func (j *SnapshotJob) Interval() time.Duration { return j.interval }

func (j *SnapshotJob) Run(ctx context.Context) error {
	return j.repository.Save(ctx, j.store)
}
