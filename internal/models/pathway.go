package models

import (
	"sort"
	"time"
)

// Tier is the trust/priority bucket a pathway lives in. The matcher scans
// tiers in order HOT → WARM → COOL → COLD; ARCHIVED pathways are retained
// for audit and revival but never participate in matching.
type Tier string

const (
	TierHot      Tier = "hot"
	TierWarm     Tier = "warm"
	TierCool     Tier = "cool"
	TierCold     Tier = "cold"
	TierArchived Tier = "archived"
)

// ScanOrder is the tier order used by the matcher. ARCHIVED is never
// scanned.
var ScanOrder = []Tier{TierHot, TierWarm, TierCool, TierCold}

// Valid reports whether t is one of the five known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierHot, TierWarm, TierCool, TierCold, TierArchived:
		return true
	}
	return false
}

// Pathway is a learned trigger→response rule with tier placement and usage
// statistics. Counters are only ever incremented; tier and position are
// recomputed by the tier manager.
type Pathway struct {
	ID       string `json:"id"`
	Category string `json:"category"`

	// Rule content
	Triggers         []string `json:"triggers"`          // ordered, distinct substrings that activate the rule
	ResponseTemplate string   `json:"response_template"` // may contain {input} / {caller} placeholders

	// Tier placement
	Tier     Tier `json:"tier"`
	Position int  `json:"position"` // rank within the tier, stable sort by descending success count

	// Usage statistics
	SuccessCount int64           `json:"success_count"`
	FailureCount int64           `json:"failure_count"`
	UniqueUsers  map[string]bool `json:"-"` // set in memory, sorted array on disk

	// Matching behavior
	ConfidenceThreshold float64 `json:"confidence_threshold"` // minimum score (0–1) to accept a match
	RequireExactMatch   bool    `json:"require_exact_match"`
	CaseSensitive       bool    `json:"case_sensitive"`
	UserSpecific        bool    `json:"user_specific"`
	OwnerID             string  `json:"owner_id,omitempty"` // only meaningful when UserSpecific

	// Timestamps
	CreatedAt time.Time  `json:"created_at"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
}

// SuccessRatio returns successes / total uses, or -1 when the pathway has
// never been used. Callers treat -1 as "no observation yet".
func (p *Pathway) SuccessRatio() float64 {
	total := p.SuccessCount + p.FailureCount
	if total == 0 {
		return -1
	}
	return float64(p.SuccessCount) / float64(total)
}

// UniqueUserList returns the unique-user set as a sorted slice, the canonical
// form used for serialization and stable comparisons.
func (p *Pathway) UniqueUserList() []string {
	users := make([]string, 0, len(p.UniqueUsers))
	for u := range p.UniqueUsers {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// MatchResult is what the matcher hands back for an accepted pathway.
type MatchResult struct {
	PathwayID  string        `json:"pathway_id"`
	Confidence float64       `json:"confidence"`
	Tier       Tier          `json:"tier"`
	Trigger    string        `json:"trigger"` // the trigger that produced the best score
	Latency    time.Duration `json:"-"`
	LatencyMS  float64       `json:"latency_ms"`
}

// CacheEntry is a memoized generated answer with its semantic fingerprint.
type CacheEntry struct {
	Query     string    `json:"query"`
	QueryHash string    `json:"query_hash"` // sha256 of the normalized query
	Embedding []float32 `json:"embedding,omitempty"`

	Response string        `json:"response"`
	HitCount int64         `json:"hit_count"`
	TTL      time.Duration `json:"ttl"`

	CreatedAt time.Time `json:"created_at"`
	LastHit   time.Time `json:"last_hit"`
}

// PendingQuery is a buffered (query, response) pair awaiting clustering by
// the pathway generator.
type PendingQuery struct {
	Query     string
	Response  string
	Embedding []float32
	Timestamp time.Time
}

// ReflexSource identifies which layer produced a response.
type ReflexSource string

const (
	SourcePathway    ReflexSource = "pathway"
	SourceCache      ReflexSource = "cache"
	SourceGenerated  ReflexSource = "generated"
	SourceEscalation ReflexSource = "escalation_required"
)

// ReflexResponse is the orchestrator's answer to a single request.
type ReflexResponse struct {
	Response   string       `json:"response,omitempty"`
	Source     ReflexSource `json:"source"`
	PathwayID  string       `json:"pathway_id,omitempty"`
	Confidence float64      `json:"confidence,omitempty"`
	Tier       Tier         `json:"tier,omitempty"`
	LatencyMS  float64      `json:"latency_ms"`
}
