package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"reflex/internal/inference"
	"reflex/internal/models"
	"reflex/internal/vector"
)

// GeneratorConfig configures the pathway auto-generator.
type GeneratorConfig struct {
	BufferCapacity int     // pending buffer bound; oldest dropped beyond this
	Threshold      int     // buffered items that trigger a generation pass
	MinSimilarity  float64 // cosine threshold for cluster membership
	MinClusterSize int     // clusters below this stay pending
}

// DefaultGeneratorConfig returns the standard generator configuration.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		BufferCapacity: 200,
		Threshold:      12,
		MinSimilarity:  0.8,
		MinClusterSize: 3,
	}
}

// GeneratedThreshold is the confidence threshold assigned to auto-generated
// pathways: stricter than the default so a synthesized rule has to earn
// trust before loose matches fire it.
const GeneratedThreshold = 0.6

// PathwayGeneratorService watches the stream of escalated (query, response)
// pairs and synthesizes new pathways from clusters of semantically similar
// queries. Generation is idempotent: a candidate whose trigger set hashes to
// an existing pathway id is silently skipped.
type PathwayGeneratorService struct {
	store    *PathwayStore
	embedder inference.Embedder
	config   GeneratorConfig

	mu        sync.Mutex
	pending   []models.PendingQuery
	generated int64
}

// NewPathwayGeneratorService creates a generator feeding the given store.
func NewPathwayGeneratorService(store *PathwayStore, embedder inference.Embedder, config GeneratorConfig) *PathwayGeneratorService {
	if config.BufferCapacity <= 0 {
		config.BufferCapacity = 200
	}
	if config.Threshold <= 0 {
		config.Threshold = 12
	}
	if config.MinSimilarity <= 0 {
		config.MinSimilarity = 0.8
	}
	if config.MinClusterSize <= 0 {
		config.MinClusterSize = 3
	}
	return &PathwayGeneratorService{
		store:    store,
		embedder: embedder,
		config:   config,
	}
}

// Track buffers an escalated (query, response) pair for clustering. Items
// that cannot be embedded are dropped with a log line, since clustering is
// semantic only. A full buffer drops its oldest item. Reaching the
// generation threshold triggers a pass inline.
func (s *PathwayGeneratorService) Track(ctx context.Context, query, response string) {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil || len(embedding) == 0 {
		if err != nil {
			log.Printf("⚠️ [GENERATOR] Skipping unembeddable query %q: %v", truncateQuery(query), err)
		}
		return
	}

	s.mu.Lock()
	s.pending = append(s.pending, models.PendingQuery{
		Query:     query,
		Response:  response,
		Embedding: embedding,
		Timestamp: time.Now(),
	})
	if len(s.pending) > s.config.BufferCapacity {
		s.pending = s.pending[len(s.pending)-s.config.BufferCapacity:]
	}
	ready := len(s.pending) >= s.config.Threshold
	s.mu.Unlock()

	if ready {
		s.GeneratePass()
	}
}

// PendingCount returns the number of buffered queries.
func (s *PathwayGeneratorService) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// GeneratedCount returns how many pathways this generator has created.
func (s *PathwayGeneratorService) GeneratedCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generated
}

// GeneratePass clusters the pending buffer and synthesizes a pathway per
// valid cluster. Items belonging to a processed cluster are consumed whether
// or not a pathway was created; items in clusters below the minimum size
// stay pending for a later pass. Returns the number of pathways created.
func (s *PathwayGeneratorService) GeneratePass() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return 0
	}

	clusters, leftovers := s.cluster(s.pending)

	created := 0
	for _, group := range clusters {
		if s.synthesize(group) {
			created++
		}
	}

	s.pending = leftovers
	s.generated += int64(created)

	if created > 0 || len(clusters) > 0 {
		log.Printf("🌱 [GENERATOR] Pass complete: %d clusters, %d pathways created, %d queries still pending",
			len(clusters), created, len(leftovers))
	}
	return created
}

// cluster runs greedy single-link clustering: each unclustered item seeds a
// group and absorbs every remaining item whose similarity to the seed clears
// the threshold. Groups below the minimum size are returned as leftovers.
func (s *PathwayGeneratorService) cluster(buffer []models.PendingQuery) (clusters [][]models.PendingQuery, leftovers []models.PendingQuery) {
	used := make([]bool, len(buffer))

	for i := range buffer {
		if used[i] {
			continue
		}
		used[i] = true
		group := []models.PendingQuery{buffer[i]}

		for j := i + 1; j < len(buffer); j++ {
			if used[j] {
				continue
			}
			if vector.CosineSimilarity(buffer[i].Embedding, buffer[j].Embedding) >= s.config.MinSimilarity {
				used[j] = true
				group = append(group, buffer[j])
			}
		}

		if len(group) >= s.config.MinClusterSize {
			clusters = append(clusters, group)
		} else {
			leftovers = append(leftovers, group...)
		}
	}
	return clusters, leftovers
}

// synthesize turns one cluster into a pathway. Returns false when the
// cluster yields no usable triggers or collides with an existing id.
func (s *PathwayGeneratorService) synthesize(group []models.PendingQuery) bool {
	triggers := extractTriggers(group)
	if len(triggers) == 0 {
		log.Printf("🌱 [GENERATOR] Cluster of %d had no shared keywords, discarding", len(group))
		return false
	}

	id := generatedID(triggers)
	if _, exists := s.store.GetByID(id); exists {
		// Idempotence: re-running the generator must not duplicate rules.
		log.Printf("🌱 [GENERATOR] Pathway %s already exists for triggers %v, skipping", id, triggers)
		return false
	}

	pathway := models.Pathway{
		ID:                  id,
		Category:            "auto_generated",
		Triggers:            triggers,
		ResponseTemplate:    group[0].Response,
		Tier:                models.TierCold,
		ConfidenceThreshold: GeneratedThreshold,
	}
	if _, err := s.store.Add(pathway); err != nil {
		log.Printf("⚠️ [GENERATOR] Failed to register generated pathway %s: %v", id, err)
		return false
	}

	log.Printf("🌱 [GENERATOR] Created pathway %s from cluster of %d (triggers=%v)", id, len(group), triggers)
	return true
}

// extractTriggers picks the most frequent keywords appearing at least twice
// across the cluster's queries, most frequent first, capped at five.
func extractTriggers(group []models.PendingQuery) []string {
	counts := make(map[string]int)
	for _, item := range group {
		for _, word := range keywords(item.Query) {
			counts[word]++
		}
	}

	type freq struct {
		word  string
		count int
	}
	candidates := make([]freq, 0, len(counts))
	for word, count := range counts {
		if count >= 2 {
			candidates = append(candidates, freq{word, count})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		return candidates[i].word < candidates[j].word
	})

	limit := 5
	if len(candidates) < limit {
		limit = len(candidates)
	}
	triggers := make([]string, 0, limit)
	for _, c := range candidates[:limit] {
		triggers = append(triggers, c.word)
	}
	return triggers
}

// generatedID derives a stable id from the sorted trigger set, so the same
// cluster always maps to the same pathway.
func generatedID(triggers []string) string {
	sorted := append([]string(nil), triggers...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "|")))
	return "gen-" + hex.EncodeToString(sum[:])[:16]
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"his": true, "has": true, "how": true, "who": true, "its": true,
	"did": true, "get": true, "may": true, "him": true, "she": true,
	"use": true, "your": true, "with": true, "this": true, "that": true,
	"what": true, "when": true, "does": true, "have": true, "from": true,
	"they": true, "will": true, "would": true, "there": true, "their": true,
	"about": true, "could": true, "please": true,
}

// keywords tokenizes a query into lowercase alphanumeric words of length ≥ 3
// with stop-words removed.
func keywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	out := make([]string, 0, len(fields))
	for _, w := range fields {
		if len(w) < 3 || stopWords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}
