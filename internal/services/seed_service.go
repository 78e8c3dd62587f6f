package services

import (
	"fmt"
	"log"
	"os"

	"reflex/internal/models"

	"gopkg.in/yaml.v3"
)

// seedFile is the YAML shape of a seed pathway bundle.
type seedFile struct {
	Pathways []seedPathway `yaml:"pathways"`
}

type seedPathway struct {
	ID                  string   `yaml:"id"`
	Category            string   `yaml:"category"`
	Triggers            []string `yaml:"triggers"`
	Response            string   `yaml:"response"`
	Tier                string   `yaml:"tier"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
	RequireExactMatch   bool     `yaml:"require_exact_match"`
	CaseSensitive       bool     `yaml:"case_sensitive"`
	UserSpecific        bool     `yaml:"user_specific"`
	OwnerID             string   `yaml:"owner_id"`
}

// LoadSeeds registers pathways from a YAML seed file. Pathways whose id is
// already registered are skipped, so re-loading (including fsnotify-driven
// hot reloads) is idempotent. Returns the number of pathways added.
func LoadSeeds(path string, store *PathwayStore) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("failed to parse seed file: %w", err)
	}

	added := 0
	for _, seed := range file.Pathways {
		if seed.ID != "" {
			if _, exists := store.GetByID(seed.ID); exists {
				continue
			}
		}
		pathway := models.Pathway{
			ID:                  seed.ID,
			Category:            seed.Category,
			Triggers:            seed.Triggers,
			ResponseTemplate:    seed.Response,
			Tier:                models.Tier(seed.Tier),
			ConfidenceThreshold: seed.ConfidenceThreshold,
			RequireExactMatch:   seed.RequireExactMatch,
			CaseSensitive:       seed.CaseSensitive,
			UserSpecific:        seed.UserSpecific,
			OwnerID:             seed.OwnerID,
		}
		if _, err := store.Add(pathway); err != nil {
			log.Printf("⚠️ [SEEDS] Skipping invalid seed pathway %q: %v", seed.ID, err)
			continue
		}
		added++
	}

	if added > 0 {
		log.Printf("🌾 [SEEDS] Loaded %d seed pathways from %s", added, path)
	}
	return added, nil
}
