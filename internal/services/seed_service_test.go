package services

import (
	"os"
	"path/filepath"
	"testing"

	"reflex/internal/models"
)

const seedYAML = `pathways:
  - id: greeting
    category: smalltalk
    triggers: ["hello", "hey"]
    response: "Hi there!"
    tier: hot
    confidence_threshold: 0.3
  - id: stop-word
    triggers: ["STOP"]
    response: "Okay, stopping."
    tier: hot
    require_exact_match: true
    case_sensitive: true
  - id: broken
    triggers: []
    response: "no triggers, rejected by the store"
`

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seeds.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write seed file: %v", err)
	}
	return path
}

func TestLoadSeeds(t *testing.T) {
	path := writeSeedFile(t, seedYAML)
	store := NewPathwayStore(10)

	added, err := LoadSeeds(path, store)
	if err != nil {
		t.Fatalf("LoadSeeds failed: %v", err)
	}
	if added != 2 {
		t.Errorf("Expected 2 valid seeds loaded, got %d", added)
	}

	greeting, ok := store.GetByID("greeting")
	if !ok {
		t.Fatal("Seed 'greeting' not registered")
	}
	if greeting.Tier != models.TierHot || greeting.ConfidenceThreshold != 0.3 {
		t.Errorf("Seed fields lost: %+v", greeting)
	}

	stop, _ := store.GetByID("stop-word")
	if !stop.RequireExactMatch || !stop.CaseSensitive {
		t.Errorf("Matching flags lost: %+v", stop)
	}

	if _, ok := store.GetByID("broken"); ok {
		t.Error("Triggerless seed should have been rejected")
	}
}

func TestLoadSeeds_Idempotent(t *testing.T) {
	path := writeSeedFile(t, seedYAML)
	store := NewPathwayStore(10)

	if _, err := LoadSeeds(path, store); err != nil {
		t.Fatalf("First load failed: %v", err)
	}
	// Mark some usage, then reload: known ids are skipped, stats survive.
	_ = store.RecordUsage("greeting", "alice", true)

	added, err := LoadSeeds(path, store)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if added != 0 {
		t.Errorf("Reload should add nothing, added %d", added)
	}
	p, _ := store.GetByID("greeting")
	if p.SuccessCount != 1 {
		t.Errorf("Reload clobbered usage stats: %d", p.SuccessCount)
	}
}

func TestLoadSeeds_MissingFile(t *testing.T) {
	store := NewPathwayStore(10)
	if _, err := LoadSeeds(filepath.Join(t.TempDir(), "absent.yaml"), store); err == nil {
		t.Error("Expected error for missing seed file")
	}
}

func TestLoadSeeds_InvalidYAML(t *testing.T) {
	path := writeSeedFile(t, "pathways: [unclosed")
	store := NewPathwayStore(10)
	if _, err := LoadSeeds(path, store); err == nil {
		t.Error("Expected error for invalid YAML")
	}
}
