package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"reflex/internal/models"
)

func newTestReflex(genClient *stubGenerator, vectors map[string][]float32) (*ReflexService, *PathwayStore, *ResponseCacheService, *PathwayGeneratorService) {
	store := NewPathwayStore(10)
	tiers := NewTierService(store, DefaultTierPolicy())
	embedder := &stubEmbedder{vectors: vectors}
	cache := NewResponseCacheService(embedder, ResponseCacheConfig{
		BaseTTL:       time.Hour,
		Capacity:      100,
		Window:        16,
		MinSimilarity: 0.85,
	})
	generator := NewPathwayGeneratorService(store, embedder, GeneratorConfig{
		BufferCapacity: 50,
		Threshold:      100,
		MinSimilarity:  0.8,
		MinClusterSize: 3,
	})

	var svc *ReflexService
	if genClient != nil {
		svc = NewReflexService(store, cache, generator, tiers, genClient, 100, 100, time.Second)
	} else {
		svc = NewReflexService(store, cache, generator, tiers, nil, 100, 100, time.Second)
	}
	return svc, store, cache, generator
}

func TestReflex_HotPathwayBeatsCache(t *testing.T) {
	vectors := map[string][]float32{"hello there": {1, 0}}
	reflex, store, cache, _ := newTestReflex(nil, vectors)
	ctx := context.Background()

	mustAdd(t, store, models.Pathway{
		ID:                  "greet",
		Triggers:            []string{"hello"},
		ResponseTemplate:    "Hi {caller}, you said: {input}",
		Tier:                models.TierHot,
		ConfidenceThreshold: 0.3,
	})
	cache.Store(ctx, "hello there", "stale cached greeting", 1.0)

	resp := reflex.Respond(ctx, "hello there", "alice")
	if resp.Source != models.SourcePathway {
		t.Fatalf("HOT pathway must win over the cache, got source %s", resp.Source)
	}
	if resp.Response != "Hi alice, you said: hello there" {
		t.Errorf("Template placeholders not resolved: %q", resp.Response)
	}
	if resp.Tier != models.TierHot || resp.PathwayID != "greet" {
		t.Errorf("Unexpected match metadata: %+v", resp)
	}

	// Optimistic success recording on execution.
	p, _ := store.GetByID("greet")
	if p.SuccessCount != 1 {
		t.Errorf("Expected optimistic success count 1, got %d", p.SuccessCount)
	}
}

func TestReflex_CacheHitAfterHotMiss(t *testing.T) {
	vectors := map[string][]float32{
		"what is 2+2":       {1.00, 0.00},
		"2 + 2 equals what": {0.99, 0.12},
	}
	reflex, _, cache, _ := newTestReflex(nil, vectors)
	ctx := context.Background()

	cache.Store(ctx, "what is 2+2", "4", 1.0)

	resp := reflex.Respond(ctx, "2 + 2 equals what", "bob")
	if resp.Source != models.SourceCache {
		t.Fatalf("Expected cache hit, got source %s", resp.Source)
	}
	if resp.Response != "4" {
		t.Errorf("Expected cached answer '4', got %q", resp.Response)
	}
}

func TestReflex_WarmPathwayAfterCacheMiss(t *testing.T) {
	reflex, store, _, _ := newTestReflex(nil, nil)
	ctx := context.Background()

	mustAdd(t, store, models.Pathway{
		ID:                  "reset",
		Triggers:            []string{"password reset"},
		ResponseTemplate:    "Use the forgot-password link.",
		Tier:                models.TierWarm,
		ConfidenceThreshold: 0.5,
	})

	resp := reflex.Respond(ctx, "password reset please", "bob")
	if resp.Source != models.SourcePathway || resp.Tier != models.TierWarm {
		t.Fatalf("Expected WARM pathway match, got %+v", resp)
	}
}

func TestReflex_EscalationWriteThrough(t *testing.T) {
	vectors := map[string][]float32{
		"how do i cancel my subscription":  {1.00, 0.00},
		"cancel my subscription right now": {0.98, 0.15},
	}
	genClient := &stubGenerator{reply: "Go to settings and press cancel."}
	reflex, _, _, generator := newTestReflex(genClient, vectors)
	ctx := context.Background()

	resp := reflex.Respond(ctx, "how do i cancel my subscription", "carol")
	if resp.Source != models.SourceGenerated {
		t.Fatalf("Expected generated answer, got source %s", resp.Source)
	}
	if resp.Response != genClient.reply {
		t.Errorf("Expected the collaborator's answer, got %q", resp.Response)
	}
	if generator.PendingCount() != 1 {
		t.Errorf("Escalated query should feed the generator buffer, got %d", generator.PendingCount())
	}

	// The answer was written through: a rephrased query is now a cache hit
	// and the collaborator is not called again.
	resp = reflex.Respond(ctx, "cancel my subscription right now", "carol")
	if resp.Source != models.SourceCache {
		t.Fatalf("Expected cache hit on rephrase, got source %s", resp.Source)
	}
	if genClient.calls != 1 {
		t.Errorf("Collaborator should have been called once, got %d", genClient.calls)
	}
}

func TestReflex_EscalationRequiredWithoutClient(t *testing.T) {
	reflex, _, _, _ := newTestReflex(nil, nil)

	resp := reflex.Respond(context.Background(), "completely novel question", "dave")
	if resp.Source != models.SourceEscalation {
		t.Fatalf("Expected escalation_required, got source %s", resp.Source)
	}
	if resp.Response != "" {
		t.Errorf("Escalation response must be empty, got %q", resp.Response)
	}
}

func TestReflex_GenerationFailureIsSoftMiss(t *testing.T) {
	genClient := &stubGenerator{err: errors.New("upstream down")}
	reflex, _, _, _ := newTestReflex(genClient, nil)

	resp := reflex.Respond(context.Background(), "novel question", "dave")
	if resp.Source != models.SourceEscalation {
		t.Fatalf("Expected soft miss on generation failure, got source %s", resp.Source)
	}
}

func TestReflex_EscalationRateLimited(t *testing.T) {
	vectors := map[string][]float32{
		"first unique question":  {1, 0, 0},
		"second unique question": {0, 1, 0},
	}
	store := NewPathwayStore(10)
	tiers := NewTierService(store, DefaultTierPolicy())
	embedder := &stubEmbedder{vectors: vectors}
	cache := NewResponseCacheService(embedder, DefaultResponseCacheConfig())
	generator := NewPathwayGeneratorService(store, embedder, DefaultGeneratorConfig())
	genClient := &stubGenerator{reply: "answer"}

	// Burst of one and a refill rate far slower than the test.
	reflex := NewReflexService(store, cache, generator, tiers, genClient, 0.001, 1, time.Second)

	if resp := reflex.Respond(context.Background(), "first unique question", ""); resp.Source != models.SourceGenerated {
		t.Fatalf("First escalation should pass the limiter, got %s", resp.Source)
	}
	if resp := reflex.Respond(context.Background(), "second unique question", ""); resp.Source != models.SourceEscalation {
		t.Fatalf("Second escalation should be rate limited, got %s", resp.Source)
	}
	if genClient.calls != 1 {
		t.Errorf("Collaborator called %d times, expected 1", genClient.calls)
	}
}

func TestReflex_TrackQueryCreditsMatchingPathway(t *testing.T) {
	reflex, store, _, generator := newTestReflex(nil, nil)
	ctx := context.Background()

	mustAdd(t, store, models.Pathway{
		ID:                  "cold-rule",
		Triggers:            []string{"invoice copy"},
		Tier:                models.TierCold,
		ConfidenceThreshold: 0.5,
	})

	reflex.TrackQuery(ctx, "invoice copy", "sent", true)
	reflex.TrackQuery(ctx, "invoice copy", "", false)

	p, _ := store.GetByID("cold-rule")
	if p.SuccessCount != 1 || p.FailureCount != 1 {
		t.Errorf("Expected 1/1 credited to the cold pathway, got %d/%d", p.SuccessCount, p.FailureCount)
	}
	if generator.PendingCount() != 0 {
		t.Errorf("Matched queries must not feed the generator, got %d pending", generator.PendingCount())
	}
}

func TestReflex_TrackQueryBuffersUnmatched(t *testing.T) {
	vectors := map[string][]float32{"novel successful question": {1, 0}}
	reflex, _, _, generator := newTestReflex(nil, vectors)
	ctx := context.Background()

	reflex.TrackQuery(ctx, "novel successful question", "the answer", true)
	if generator.PendingCount() != 1 {
		t.Errorf("Unmatched successful query should be buffered, got %d", generator.PendingCount())
	}

	// Failures and empty responses are not learning material.
	reflex.TrackQuery(ctx, "novel successful question", "", true)
	reflex.TrackQuery(ctx, "novel successful question", "the answer", false)
	if generator.PendingCount() != 1 {
		t.Errorf("Expected buffer unchanged, got %d", generator.PendingCount())
	}
}

func TestReflex_StatsShape(t *testing.T) {
	reflex, store, _, _ := newTestReflex(nil, nil)
	mustAdd(t, store, models.Pathway{ID: "p", Triggers: []string{"x"}, Tier: models.TierHot})

	stats := reflex.Stats()
	tiers, ok := stats["tiers"].(map[string]int)
	if !ok {
		t.Fatalf("Expected tier counts in stats, got %T", stats["tiers"])
	}
	if tiers["hot"] != 1 {
		t.Errorf("Expected 1 hot pathway in stats, got %d", tiers["hot"])
	}
}
