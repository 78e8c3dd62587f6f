package services

import (
	"log"
	"time"

	"reflex/internal/models"
)

// TierPolicy holds the numeric promotion/demotion thresholds. The zero value
// is not usable; use DefaultTierPolicy.
type TierPolicy struct {
	// Demotions (checked before promotions)
	HotDemoteConfidence  float64 // HOT→WARM when confidence drops below this
	WarmDemoteConfidence float64 // WARM→COLD when confidence drops below this

	// Promotions
	PromoteWarmSuccesses  int64 // COLD→WARM minimum successes
	PromoteWarmConfidence float64
	PromoteHotSuccesses   int64 // WARM→HOT minimum successes
	PromoteHotConfidence  float64
	PromoteHotFailRatio   float64 // WARM→HOT requires failures < successes*ratio

	// Confidence assumed for pathways that have never been used, so fresh
	// rules are not demoted before they get a chance to fire.
	NeutralConfidence float64

	// Archival: pathways idle this long in the low tiers move to ARCHIVED.
	ArchiveAfter time.Duration
}

// DefaultTierPolicy returns the standard tier policy.
func DefaultTierPolicy() TierPolicy {
	return TierPolicy{
		HotDemoteConfidence:   0.7,
		WarmDemoteConfidence:  0.5,
		PromoteWarmSuccesses:  3,
		PromoteWarmConfidence: 0.6,
		PromoteHotSuccesses:   10,
		PromoteHotConfidence:  0.8,
		PromoteHotFailRatio:   0.2,
		NeutralConfidence:     0.7,
		ArchiveAfter:          30 * 24 * time.Hour,
	}
}

// TierService owns the per-pathway tier state machine:
//
//	COLD → WARM → HOT, with demotions HOT → WARM and WARM → COLD.
//
// It is wired to the store's re-evaluation hook for incremental updates and
// exposes ReorganizeAll for the full batch pass.
type TierService struct {
	store  *PathwayStore
	policy TierPolicy
	now    func() time.Time // injectable for tests
}

// NewTierService creates a tier service and registers it as the store's
// re-evaluation hook.
func NewTierService(store *PathwayStore, policy TierPolicy) *TierService {
	s := &TierService{
		store:  store,
		policy: policy,
		now:    time.Now,
	}
	store.SetReevalHook(s.Reevaluate)
	return s
}

// Reevaluate applies the tier policy to a single pathway. Called by the
// store after every Nth successful use.
func (s *TierService) Reevaluate(pathwayID string) {
	s.store.ReevaluateOne(pathwayID, s.Evaluate)
}

// ReorganizeAll recomputes every pathway's tier and rebuilds the scan order
// from scratch. Returns the number of pathways that moved.
func (s *TierService) ReorganizeAll() int {
	started := time.Now()
	changed := s.store.Reorganize(s.Evaluate)
	counts := s.store.TierCounts()
	log.Printf("🗂️ [TIER] Reorganized pathways in %s: %d moved (hot=%d warm=%d cool=%d cold=%d archived=%d)",
		time.Since(started).Round(time.Millisecond), changed,
		counts[models.TierHot], counts[models.TierWarm], counts[models.TierCool],
		counts[models.TierCold], counts[models.TierArchived])
	return changed
}

// Evaluate returns the tier the pathway should occupy. Rules are applied in
// priority order: demotions first, then promotions; at most one transition
// per evaluation. ARCHIVED pathways only leave the archive through an
// explicit revive, and COOL is a manually assigned tier with no automatic
// transitions besides archival.
func (s *TierService) Evaluate(p models.Pathway) models.Tier {
	confidence := s.confidence(p)

	switch p.Tier {
	case models.TierHot:
		if p.FailureCount > p.SuccessCount/3 || confidence < s.policy.HotDemoteConfidence {
			return models.TierWarm
		}
		return models.TierHot

	case models.TierWarm:
		if p.FailureCount > p.SuccessCount/2 || confidence < s.policy.WarmDemoteConfidence {
			return models.TierCold
		}
		if p.SuccessCount >= s.policy.PromoteHotSuccesses &&
			confidence >= s.policy.PromoteHotConfidence &&
			(p.FailureCount == 0 || float64(p.FailureCount) < float64(p.SuccessCount)*s.policy.PromoteHotFailRatio) {
			return models.TierHot
		}
		return models.TierWarm

	case models.TierCold:
		if p.SuccessCount >= s.policy.PromoteWarmSuccesses && confidence >= s.policy.PromoteWarmConfidence {
			return models.TierWarm
		}
		if s.shouldArchive(p) {
			return models.TierArchived
		}
		return models.TierCold

	case models.TierCool:
		if s.shouldArchive(p) {
			return models.TierArchived
		}
		return models.TierCool

	default:
		return p.Tier
	}
}

// confidence is the observed success ratio, or the neutral default when the
// pathway has never been used. The matcher's heuristic score is deliberately
// not used here.
func (s *TierService) confidence(p models.Pathway) float64 {
	ratio := p.SuccessRatio()
	if ratio < 0 {
		return s.policy.NeutralConfidence
	}
	return ratio
}

// shouldArchive reports whether a low-tier pathway has been idle long enough
// to retire. Retired pathways stay on disk for audit and revival.
func (s *TierService) shouldArchive(p models.Pathway) bool {
	if s.policy.ArchiveAfter <= 0 {
		return false
	}
	reference := p.CreatedAt
	if p.LastUsed != nil {
		reference = *p.LastUsed
	}
	return s.now().Sub(reference) > s.policy.ArchiveAfter
}
