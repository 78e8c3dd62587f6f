package services

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"reflex/internal/models"

	"github.com/google/uuid"
)

// DefaultConfidenceThreshold is applied to registered pathways that don't set
// their own. Safety-critical rules should register a lower threshold so they
// fire even on partial overlap.
const DefaultConfidenceThreshold = 0.7

// scanEntry pairs a pathway with the tier it occupied when the snapshot was
// built, so the match path never reads mutable pathway fields.
type scanEntry struct {
	pathway    *models.Pathway
	tier       models.Tier
	position   int
	triggers   []string // lowercased copies for case-insensitive rules
	rawTrigger []string
}

// scanSnapshot is an immutable tier-ordered view of the store. Readers load
// it atomically; the rebuild path constructs a fresh one and swaps the
// pointer, so in-flight matches never observe a half-sorted list.
type scanSnapshot struct {
	tiers map[models.Tier][]*scanEntry
}

// PathwayStore holds every learned pathway and serves the tier-ordered
// matching scan. Matching reads only the atomic snapshot; all mutation goes
// through the store mutex.
type PathwayStore struct {
	mu       sync.RWMutex
	byID     map[string]*models.Pathway
	snapshot atomic.Pointer[scanSnapshot]

	totalLookups atomic.Int64
	totalMatches atomic.Int64

	reevalEvery int64
	reevalHook  func(pathwayID string) // invoked outside the lock
}

// NewPathwayStore creates an empty store. reevalEvery controls how often a
// pathway's tier is re-evaluated (every Nth successful use).
func NewPathwayStore(reevalEvery int) *PathwayStore {
	if reevalEvery <= 0 {
		reevalEvery = 10
	}
	s := &PathwayStore{
		byID:        make(map[string]*models.Pathway),
		reevalEvery: int64(reevalEvery),
	}
	s.snapshot.Store(&scanSnapshot{tiers: map[models.Tier][]*scanEntry{}})
	return s
}

// SetReevalHook registers the callback fired after every Nth successful use
// of a pathway (used by the tier service for incremental re-evaluation).
func (s *PathwayStore) SetReevalHook(hook func(pathwayID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reevalHook = hook
}

// Add registers a pathway. Missing fields are defaulted: id (uuid), tier
// (COLD), confidence threshold, created-at. Duplicate ids are rejected.
func (s *PathwayStore) Add(p models.Pathway) (models.Pathway, error) {
	if len(p.Triggers) == 0 && !p.RequireExactMatch {
		return models.Pathway{}, fmt.Errorf("pathway needs at least one trigger")
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if !p.Tier.Valid() {
		p.Tier = models.TierCold
	}
	if p.ConfidenceThreshold <= 0 {
		p.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.UniqueUsers == nil {
		p.UniqueUsers = make(map[string]bool)
	}
	p.Triggers = dedupeTriggers(p.Triggers)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[p.ID]; exists {
		return models.Pathway{}, fmt.Errorf("pathway %s already exists", p.ID)
	}
	stored := p
	s.byID[p.ID] = &stored
	s.rebuildLocked()

	log.Printf("🧩 [PATHWAY] Registered pathway %s (tier=%s, triggers=%d, category=%s)",
		stored.ID, stored.Tier, len(stored.Triggers), stored.Category)
	return stored, nil
}

// GetByID returns a copy of the pathway record.
func (s *PathwayStore) GetByID(id string) (models.Pathway, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return models.Pathway{}, false
	}
	return copyPathway(p), true
}

// List returns copies of all pathways, optionally filtered by tier.
func (s *PathwayStore) List(tier models.Tier) []models.Pathway {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Pathway, 0, len(s.byID))
	for _, p := range s.byID {
		if tier != "" && p.Tier != tier {
			continue
		}
		out = append(out, copyPathway(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return tierRank(out[i].Tier) < tierRank(out[j].Tier)
		}
		return out[i].Position < out[j].Position
	})
	return out
}

// Match scans every active tier in order and returns the first accepted
// pathway, or nil when nothing accepts. Match never mutates pathway state;
// callers report outcomes through RecordUsage.
func (s *PathwayStore) Match(text, callerID string) *models.MatchResult {
	return s.MatchTiers(text, callerID, models.ScanOrder...)
}

// MatchTiers is Match restricted to the given tiers, scanned in the order
// provided. ARCHIVED is never scanned even if requested.
func (s *PathwayStore) MatchTiers(text, callerID string, tiers ...models.Tier) *models.MatchResult {
	started := time.Now()
	s.totalLookups.Add(1)

	if strings.TrimSpace(text) == "" {
		return nil
	}

	snap := s.snapshot.Load()
	lowered := strings.ToLower(text)

	for _, tier := range tiers {
		if tier == models.TierArchived {
			continue
		}
		for _, entry := range snap.tiers[tier] {
			p := entry.pathway
			if p.UserSpecific && p.OwnerID != callerID {
				continue
			}

			confidence, trigger, ok := scoreEntry(entry, text, lowered)
			if !ok {
				continue
			}

			s.totalMatches.Add(1)
			latency := time.Since(started)
			return &models.MatchResult{
				PathwayID:  p.ID,
				Confidence: confidence,
				Tier:       entry.tier,
				Trigger:    trigger,
				Latency:    latency,
				LatencyMS:  float64(latency.Microseconds()) / 1000.0,
			}
		}
	}
	return nil
}

// scoreEntry applies the matching rules for a single pathway: exact equality
// when required, otherwise the best substring score over all triggers,
// accepted when it clears the pathway's own threshold.
func scoreEntry(entry *scanEntry, text, lowered string) (float64, string, bool) {
	p := entry.pathway

	if p.RequireExactMatch {
		for i, raw := range entry.rawTrigger {
			if p.CaseSensitive {
				if text == raw {
					return 1.0, raw, true
				}
			} else if lowered == entry.triggers[i] {
				return 1.0, raw, true
			}
		}
		return 0, "", false
	}

	input := text
	haystack := lowered
	best := 0.0
	bestTrigger := ""
	for i, raw := range entry.rawTrigger {
		needle := entry.triggers[i]
		if p.CaseSensitive {
			needle = raw
			haystack = input
		}
		if needle == "" || !strings.Contains(haystack, needle) {
			continue
		}
		score := float64(len(needle)) / float64(len(input)) * 1.2
		if score > 1.0 {
			score = 1.0
		}
		if score > best {
			best = score
			bestTrigger = raw
		}
	}

	if best >= p.ConfidenceThreshold && best > 0 {
		return best, bestTrigger, true
	}
	return 0, "", false
}

// RecordUsage reports the outcome of actually using a matched pathway.
// Counters and the unique-user set are updated under the store lock; every
// Nth success triggers the tier re-evaluation hook (outside the lock).
func (s *PathwayStore) RecordUsage(pathwayID, callerID string, success bool) error {
	s.mu.Lock()
	p, ok := s.byID[pathwayID]
	if !ok {
		s.mu.Unlock()
		log.Printf("⚠️ [PATHWAY] Usage recorded for unknown pathway %s, ignoring", pathwayID)
		return fmt.Errorf("pathway %s not found", pathwayID)
	}

	if success {
		p.SuccessCount++
	} else {
		p.FailureCount++
	}
	if callerID != "" {
		p.UniqueUsers[callerID] = true
	}
	now := time.Now()
	p.LastUsed = &now

	needsReeval := success && p.SuccessCount%s.reevalEvery == 0
	hook := s.reevalHook
	s.mu.Unlock()

	if needsReeval && hook != nil {
		hook(pathwayID)
	}
	return nil
}

// Reorganize recomputes every pathway's tier with the supplied policy,
// resorts each tier by descending success count, renumbers positions, and
// atomically swaps in the fresh scan snapshot. Returns the number of
// pathways whose tier changed.
func (s *PathwayStore) Reorganize(evaluate func(models.Pathway) models.Tier) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, p := range s.byID {
		next := evaluate(copyPathway(p))
		if !next.Valid() || next == p.Tier {
			continue
		}
		log.Printf("🔀 [PATHWAY] %s: %s → %s (successes=%d, failures=%d)",
			p.ID, p.Tier, next, p.SuccessCount, p.FailureCount)
		p.Tier = next
		changed++
	}
	s.rebuildLocked()
	return changed
}

// ReevaluateOne applies the tier policy to a single pathway, rebuilding the
// snapshot only when its tier actually changes. Unknown ids are a logged
// no-op (the pathway may have been removed concurrently).
func (s *PathwayStore) ReevaluateOne(id string, evaluate func(models.Pathway) models.Tier) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		log.Printf("⚠️ [PATHWAY] Re-evaluation requested for missing pathway %s, skipping", id)
		return false
	}
	next := evaluate(copyPathway(p))
	if !next.Valid() || next == p.Tier {
		return false
	}
	log.Printf("🔀 [PATHWAY] %s: %s → %s (successes=%d, failures=%d)",
		p.ID, p.Tier, next, p.SuccessCount, p.FailureCount)
	p.Tier = next
	s.rebuildLocked()
	return true
}

// Revive moves an archived pathway back to COLD so it can match again.
func (s *PathwayStore) Revive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("pathway %s not found", id)
	}
	if p.Tier != models.TierArchived {
		return fmt.Errorf("pathway %s is not archived (tier=%s)", id, p.Tier)
	}
	p.Tier = models.TierCold
	s.rebuildLocked()
	log.Printf("♻️ [PATHWAY] Revived pathway %s from archive", id)
	return nil
}

// All returns copies of every pathway, for persistence.
func (s *PathwayStore) All() []models.Pathway {
	return s.List("")
}

// TierCounts returns the number of pathways per tier.
func (s *PathwayStore) TierCounts() map[models.Tier]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.Tier]int)
	for _, p := range s.byID {
		counts[p.Tier]++
	}
	return counts
}

// Stats returns aggregate lookup counters.
func (s *PathwayStore) Stats() (lookups, matches int64) {
	return s.totalLookups.Load(), s.totalMatches.Load()
}

// Restore replaces the store contents from a loaded document.
func (s *PathwayStore) Restore(pathways []models.Pathway, lookups, matches int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[string]*models.Pathway, len(pathways))
	for i := range pathways {
		p := pathways[i]
		if p.UniqueUsers == nil {
			p.UniqueUsers = make(map[string]bool)
		}
		if !p.Tier.Valid() {
			p.Tier = models.TierCold
		}
		stored := p
		s.byID[p.ID] = &stored
	}
	s.totalLookups.Store(lookups)
	s.totalMatches.Store(matches)
	s.rebuildLocked()
	log.Printf("📦 [PATHWAY] Restored %d pathways from snapshot", len(pathways))
}

// rebuildLocked rebuilds the scan snapshot. Caller must hold s.mu.
func (s *PathwayStore) rebuildLocked() {
	snap := &scanSnapshot{tiers: make(map[models.Tier][]*scanEntry)}

	for _, tier := range models.ScanOrder {
		var entries []*scanEntry
		for _, p := range s.byID {
			if p.Tier != tier {
				continue
			}
			entries = append(entries, newScanEntry(p))
		}
		// Stable order: descending success count, then creation time, then id.
		sort.SliceStable(entries, func(i, j int) bool {
			a, b := entries[i].pathway, entries[j].pathway
			if a.SuccessCount != b.SuccessCount {
				return a.SuccessCount > b.SuccessCount
			}
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		})
		for i, e := range entries {
			e.position = i
			e.pathway.Position = i
		}
		snap.tiers[tier] = entries
	}

	s.snapshot.Store(snap)
}

func newScanEntry(p *models.Pathway) *scanEntry {
	entry := &scanEntry{
		pathway:    p,
		tier:       p.Tier,
		rawTrigger: append([]string(nil), p.Triggers...),
		triggers:   make([]string, len(p.Triggers)),
	}
	for i, t := range p.Triggers {
		entry.triggers[i] = strings.ToLower(t)
	}
	return entry
}

func copyPathway(p *models.Pathway) models.Pathway {
	cp := *p
	cp.Triggers = append([]string(nil), p.Triggers...)
	cp.UniqueUsers = make(map[string]bool, len(p.UniqueUsers))
	for u := range p.UniqueUsers {
		cp.UniqueUsers[u] = true
	}
	if p.LastUsed != nil {
		t := *p.LastUsed
		cp.LastUsed = &t
	}
	return cp
}

func dedupeTriggers(triggers []string) []string {
	seen := make(map[string]bool, len(triggers))
	out := make([]string, 0, len(triggers))
	for _, t := range triggers {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func tierRank(t models.Tier) int {
	switch t {
	case models.TierHot:
		return 0
	case models.TierWarm:
		return 1
	case models.TierCool:
		return 2
	case models.TierCold:
		return 3
	default:
		return 4
	}
}
