package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"reflex/internal/models"
)

// documentVersion is bumped when the on-disk record shape changes; older
// documents load with missing fields defaulted.
const documentVersion = 1

// PathwayDocument is the persisted form of the store: one array of pathway
// records plus the aggregate lookup counters. It round-trips losslessly.
type PathwayDocument struct {
	Version      int             `json:"version"`
	SavedAt      time.Time       `json:"saved_at"`
	TotalLookups int64           `json:"total_lookups"`
	TotalMatches int64           `json:"total_matches"`
	Pathways     []pathwayRecord `json:"pathways"`
}

// pathwayRecord is the on-disk shape of a pathway. The unique-user set is
// serialized as a sorted array.
type pathwayRecord struct {
	ID                  string      `json:"id"`
	Category            string      `json:"category"`
	Triggers            []string    `json:"triggers"`
	ResponseTemplate    string      `json:"response_template"`
	Tier                models.Tier `json:"tier"`
	Position            int         `json:"position"`
	SuccessCount        int64       `json:"success_count"`
	FailureCount        int64       `json:"failure_count"`
	UniqueUsers         []string    `json:"unique_users"`
	ConfidenceThreshold float64     `json:"confidence_threshold"`
	RequireExactMatch   bool        `json:"require_exact_match"`
	CaseSensitive       bool        `json:"case_sensitive"`
	UserSpecific        bool        `json:"user_specific"`
	OwnerID             string      `json:"owner_id,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	LastUsed            *time.Time  `json:"last_used,omitempty"`
}

// PathwayRepository persists the store as a JSON document on disk, with an
// optional Redis mirror for bootstrap when the local file is missing.
type PathwayRepository struct {
	path  string
	redis *RedisService // nil-safe
}

// NewPathwayRepository creates a repository writing to path.
func NewPathwayRepository(path string, redis *RedisService) *PathwayRepository {
	return &PathwayRepository{path: path, redis: redis}
}

// Save snapshots the store to disk (atomic tmp+rename) and mirrors the
// document to Redis when configured.
func (r *PathwayRepository) Save(ctx context.Context, store *PathwayStore) error {
	lookups, matches := store.Stats()
	doc := PathwayDocument{
		Version:      documentVersion,
		SavedAt:      time.Now(),
		TotalLookups: lookups,
		TotalMatches: matches,
	}
	for _, p := range store.All() {
		doc.Pathways = append(doc.Pathways, toRecord(p))
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pathway document: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write pathway document: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("failed to replace pathway document: %w", err)
	}

	if err := r.redis.StoreSnapshot(ctx, data); err != nil {
		// Mirror failure is not fatal; the local file is the source of truth.
		log.Printf("⚠️ [REPOSITORY] Failed to mirror snapshot to Redis: %v", err)
	}

	log.Printf("💾 [REPOSITORY] Saved %d pathways to %s", len(doc.Pathways), r.path)
	return nil
}

// Load restores the store from disk, falling back to the Redis mirror when
// the local file is missing. A missing or corrupted document is non-fatal:
// the engine starts empty.
func (r *PathwayRepository) Load(ctx context.Context, store *PathwayStore) error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		mirrored, redisErr := r.redis.LoadSnapshot(ctx)
		if redisErr != nil {
			log.Printf("⚠️ [REPOSITORY] Redis snapshot unavailable: %v", redisErr)
		}
		if len(mirrored) == 0 {
			log.Printf("📂 [REPOSITORY] No pathway document at %s, starting empty", r.path)
			return nil
		}
		log.Printf("📂 [REPOSITORY] Bootstrapping from Redis snapshot (%d bytes)", len(mirrored))
		data = mirrored
	} else if err != nil {
		log.Printf("⚠️ [REPOSITORY] Failed to read %s, starting empty: %v", r.path, err)
		return nil
	}

	var doc PathwayDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Printf("⚠️ [REPOSITORY] Corrupted pathway document, starting empty: %v", err)
		return nil
	}

	pathways := make([]models.Pathway, 0, len(doc.Pathways))
	for _, rec := range doc.Pathways {
		pathways = append(pathways, fromRecord(rec))
	}
	store.Restore(pathways, doc.TotalLookups, doc.TotalMatches)
	return nil
}

func toRecord(p models.Pathway) pathwayRecord {
	return pathwayRecord{
		ID:                  p.ID,
		Category:            p.Category,
		Triggers:            p.Triggers,
		ResponseTemplate:    p.ResponseTemplate,
		Tier:                p.Tier,
		Position:            p.Position,
		SuccessCount:        p.SuccessCount,
		FailureCount:        p.FailureCount,
		UniqueUsers:         p.UniqueUserList(),
		ConfidenceThreshold: p.ConfidenceThreshold,
		RequireExactMatch:   p.RequireExactMatch,
		CaseSensitive:       p.CaseSensitive,
		UserSpecific:        p.UserSpecific,
		OwnerID:             p.OwnerID,
		CreatedAt:           p.CreatedAt,
		LastUsed:            p.LastUsed,
	}
}

func fromRecord(rec pathwayRecord) models.Pathway {
	users := make(map[string]bool, len(rec.UniqueUsers))
	for _, u := range rec.UniqueUsers {
		users[u] = true
	}
	return models.Pathway{
		ID:                  rec.ID,
		Category:            rec.Category,
		Triggers:            rec.Triggers,
		ResponseTemplate:    rec.ResponseTemplate,
		Tier:                rec.Tier,
		Position:            rec.Position,
		SuccessCount:        rec.SuccessCount,
		FailureCount:        rec.FailureCount,
		UniqueUsers:         users,
		ConfidenceThreshold: rec.ConfidenceThreshold,
		RequireExactMatch:   rec.RequireExactMatch,
		CaseSensitive:       rec.CaseSensitive,
		UserSpecific:        rec.UserSpecific,
		OwnerID:             rec.OwnerID,
		CreatedAt:           rec.CreatedAt,
		LastUsed:            rec.LastUsed,
	}
}
