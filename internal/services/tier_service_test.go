package services

import (
	"testing"
	"time"

	"reflex/internal/models"
)

func addWithStats(t *testing.T, store *PathwayStore, id string, tier models.Tier, successes, failures int) {
	t.Helper()
	mustAdd(t, store, models.Pathway{ID: id, Triggers: []string{id + "-trigger"}, Tier: tier})
	for i := 0; i < successes; i++ {
		if err := store.RecordUsage(id, "u", true); err != nil {
			t.Fatalf("RecordUsage failed: %v", err)
		}
	}
	for i := 0; i < failures; i++ {
		if err := store.RecordUsage(id, "u", false); err != nil {
			t.Fatalf("RecordUsage failed: %v", err)
		}
	}
}

func tierOf(t *testing.T, store *PathwayStore, id string) models.Tier {
	t.Helper()
	p, ok := store.GetByID(id)
	if !ok {
		t.Fatalf("Pathway %s not found", id)
	}
	return p.Tier
}

func TestReorganize_PromotesWarmToHot(t *testing.T) {
	store := NewPathwayStore(100)
	tiers := NewTierService(store, DefaultTierPolicy())

	// 10 successes, 0 failures, observed confidence 1.0
	addWithStats(t, store, "flawless", models.TierWarm, 10, 0)

	tiers.ReorganizeAll()
	if got := tierOf(t, store, "flawless"); got != models.TierHot {
		t.Errorf("Expected promotion to hot, got %s", got)
	}
}

func TestReorganize_DemotesHotToWarm(t *testing.T) {
	store := NewPathwayStore(100)
	tiers := NewTierService(store, DefaultTierPolicy())

	// 4 failures > 10/3: demote even though the ratio (0.714) clears 0.7
	addWithStats(t, store, "shaky", models.TierHot, 10, 4)

	tiers.ReorganizeAll()
	if got := tierOf(t, store, "shaky"); got != models.TierWarm {
		t.Errorf("Expected demotion to warm, got %s", got)
	}
}

func TestReorganize_HotBoundaryStaysHot(t *testing.T) {
	store := NewPathwayStore(100)
	tiers := NewTierService(store, DefaultTierPolicy())

	// Exactly successes/3 failures with confidence 0.75: neither demotion
	// rule fires.
	addWithStats(t, store, "boundary", models.TierHot, 9, 3)

	tiers.ReorganizeAll()
	if got := tierOf(t, store, "boundary"); got != models.TierHot {
		t.Errorf("Expected boundary pathway to stay hot, got %s", got)
	}
}

func TestReorganize_DemotesWarmToCold(t *testing.T) {
	store := NewPathwayStore(100)
	tiers := NewTierService(store, DefaultTierPolicy())

	// 5 failures > 8/2
	addWithStats(t, store, "failing", models.TierWarm, 8, 5)

	tiers.ReorganizeAll()
	if got := tierOf(t, store, "failing"); got != models.TierCold {
		t.Errorf("Expected demotion to cold, got %s", got)
	}
}

func TestReorganize_PromotesColdToWarm(t *testing.T) {
	store := NewPathwayStore(100)
	tiers := NewTierService(store, DefaultTierPolicy())

	addWithStats(t, store, "riser", models.TierCold, 3, 0)

	tiers.ReorganizeAll()
	if got := tierOf(t, store, "riser"); got != models.TierWarm {
		t.Errorf("Expected promotion to warm, got %s", got)
	}
}

func TestReorganize_FreshPathwaysKeepTheirTier(t *testing.T) {
	store := NewPathwayStore(100)
	tiers := NewTierService(store, DefaultTierPolicy())

	// Never used: neutral confidence keeps seeded tiers in place.
	mustAdd(t, store, models.Pathway{ID: "fresh-hot", Triggers: []string{"aaa"}, Tier: models.TierHot})
	mustAdd(t, store, models.Pathway{ID: "fresh-warm", Triggers: []string{"bbb"}, Tier: models.TierWarm})

	tiers.ReorganizeAll()
	if got := tierOf(t, store, "fresh-hot"); got != models.TierHot {
		t.Errorf("Fresh hot pathway moved to %s", got)
	}
	if got := tierOf(t, store, "fresh-warm"); got != models.TierWarm {
		t.Errorf("Fresh warm pathway moved to %s", got)
	}
}

func TestReorganize_OneTransitionPerPass(t *testing.T) {
	store := NewPathwayStore(100)
	tiers := NewTierService(store, DefaultTierPolicy())

	// Qualifies for COLD→WARM and would qualify for WARM→HOT, but a single
	// pass moves one step at a time.
	addWithStats(t, store, "climber", models.TierCold, 12, 0)

	tiers.ReorganizeAll()
	if got := tierOf(t, store, "climber"); got != models.TierWarm {
		t.Errorf("Expected single-step promotion to warm, got %s", got)
	}
	tiers.ReorganizeAll()
	if got := tierOf(t, store, "climber"); got != models.TierHot {
		t.Errorf("Expected second pass to reach hot, got %s", got)
	}
}

func TestIncrementalReevaluation(t *testing.T) {
	store := NewPathwayStore(10)
	NewTierService(store, DefaultTierPolicy())

	mustAdd(t, store, models.Pathway{ID: "p", Triggers: []string{"ping"}, Tier: models.TierCold})

	// The 10th success triggers the wired re-evaluation hook, which promotes
	// without an explicit reorganize call.
	for i := 0; i < 10; i++ {
		if err := store.RecordUsage("p", "u", true); err != nil {
			t.Fatalf("RecordUsage failed: %v", err)
		}
	}
	if got := tierOf(t, store, "p"); got != models.TierWarm {
		t.Errorf("Expected hook-driven promotion to warm, got %s", got)
	}
}

func TestArchival_IdleColdPathway(t *testing.T) {
	store := NewPathwayStore(100)
	policy := DefaultTierPolicy()
	policy.ArchiveAfter = 24 * time.Hour
	tiers := NewTierService(store, policy)
	tiers.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	mustAdd(t, store, models.Pathway{ID: "stale", Triggers: []string{"old"}, Tier: models.TierCold})

	tiers.ReorganizeAll()
	if got := tierOf(t, store, "stale"); got != models.TierArchived {
		t.Errorf("Expected idle cold pathway archived, got %s", got)
	}
	if m := store.Match("old stuff", ""); m != nil {
		t.Errorf("Archived pathway matched: %+v", m)
	}
}

func TestArchival_DisabledWhenZero(t *testing.T) {
	store := NewPathwayStore(100)
	policy := DefaultTierPolicy()
	policy.ArchiveAfter = 0
	tiers := NewTierService(store, policy)
	tiers.now = func() time.Time { return time.Now().Add(365 * 24 * time.Hour) }

	mustAdd(t, store, models.Pathway{ID: "keep", Triggers: []string{"keep"}, Tier: models.TierCool})

	tiers.ReorganizeAll()
	if got := tierOf(t, store, "keep"); got != models.TierCool {
		t.Errorf("Archival disabled, expected cool, got %s", got)
	}
}
