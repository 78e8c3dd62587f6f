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

	"github.com/patrickmn/go-cache"
)

// ResponseCacheConfig configures the semantic response cache.
type ResponseCacheConfig struct {
	BaseTTL       time.Duration // scaled by answer quality: ttl = base * (0.5 + quality)
	Capacity      int           // hard cap; least-recently-hit evicted beyond this
	Window        int           // most recent entries scanned per lookup
	MinSimilarity float64       // cosine threshold for a hit
}

// DefaultResponseCacheConfig returns the standard cache configuration.
func DefaultResponseCacheConfig() ResponseCacheConfig {
	return ResponseCacheConfig{
		BaseTTL:       time.Hour,
		Capacity:      1000,
		Window:        256,
		MinSimilarity: 0.85,
	}
}

// ResponseCacheService memoizes generated answers keyed by meaning rather
// than by exact text: lookups embed the query and pick the nearest cached
// neighbor above the similarity threshold. Lookup is semantic only: when no
// embedding is available the cache reports a miss.
type ResponseCacheService struct {
	embedder inference.Embedder
	config   ResponseCacheConfig

	cache *cache.Cache // query hash -> *models.CacheEntry

	mu     sync.RWMutex
	recent []string // query hashes, oldest first, bounded to config.Window

	hits   int64
	misses int64
}

// NewResponseCacheService creates a response cache backed by a TTL store.
func NewResponseCacheService(embedder inference.Embedder, config ResponseCacheConfig) *ResponseCacheService {
	if config.BaseTTL <= 0 {
		config.BaseTTL = time.Hour
	}
	if config.Capacity <= 0 {
		config.Capacity = 1000
	}
	if config.Window <= 0 {
		config.Window = 256
	}
	if config.MinSimilarity <= 0 {
		config.MinSimilarity = 0.85
	}

	c := cache.New(config.BaseTTL, 10*time.Minute)
	c.OnEvicted(func(key string, value interface{}) {
		if entry, ok := value.(*models.CacheEntry); ok {
			log.Printf("🗑️ [RESPONSE-CACHE] Evicted entry %s (hits=%d, age=%s)",
				key[:8], entry.HitCount, time.Since(entry.CreatedAt).Round(time.Second))
		}
	})

	return &ResponseCacheService{
		embedder: embedder,
		config:   config,
		cache:    c,
	}
}

// Get returns the cached response semantically nearest to query, or ("",
// false) when nothing clears the similarity threshold. A hit bumps the
// entry's hit count and slides its TTL window.
func (s *ResponseCacheService) Get(ctx context.Context, query string) (string, bool) {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil || len(embedding) == 0 {
		if err != nil {
			log.Printf("⚠️ [RESPONSE-CACHE] Embedding unavailable, skipping semantic lookup: %v", err)
		}
		s.mu.Lock()
		s.misses++
		s.mu.Unlock()
		return "", false
	}

	entry, similarity := s.nearest(embedding)
	if entry == nil || similarity < s.config.MinSimilarity {
		s.mu.Lock()
		s.misses++
		s.mu.Unlock()
		return "", false
	}

	s.mu.Lock()
	entry.HitCount++
	entry.LastHit = time.Now()
	s.hits++
	s.mu.Unlock()

	// Re-set so expiry counts from the last hit, not the original insert.
	s.cache.Set(entry.QueryHash, entry, entry.TTL)

	log.Printf("⚡ [RESPONSE-CACHE] Hit for %q (similarity=%.3f, hits=%d)",
		truncateQuery(query), similarity, entry.HitCount)
	return entry.Response, true
}

// Store inserts a generated answer. Higher quality scores earn longer
// retention: ttl = baseTTL * (0.5 + quality), quality clamped to [0, 1].
func (s *ResponseCacheService) Store(ctx context.Context, query, response string, quality float64) {
	if quality < 0 {
		quality = 0
	}
	if quality > 1 {
		quality = 1
	}
	ttl := time.Duration(float64(s.config.BaseTTL) * (0.5 + quality))

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		// Entry is still stored; it just can't be found semantically until
		// it expires. Better than losing the answer entirely.
		log.Printf("⚠️ [RESPONSE-CACHE] Storing entry without embedding: %v", err)
		embedding = nil
	}

	now := time.Now()
	entry := &models.CacheEntry{
		Query:     query,
		QueryHash: hashQuery(query),
		Embedding: embedding,
		Response:  response,
		TTL:       ttl,
		CreatedAt: now,
		LastHit:   now,
	}

	s.cache.Set(entry.QueryHash, entry, ttl)

	s.mu.Lock()
	s.recent = append(s.recent, entry.QueryHash)
	if len(s.recent) > s.config.Window {
		s.recent = s.recent[len(s.recent)-s.config.Window:]
	}
	over := s.cache.ItemCount() - s.config.Capacity
	s.mu.Unlock()

	if over > 0 {
		s.evictLeastRecentlyHit(over)
	}
}

// Sweep removes entries whose TTL elapsed since their last hit and trims the
// store back under capacity. Runs over a copied index so concurrent lookups
// and stores are never invalidated.
func (s *ResponseCacheService) Sweep() int {
	removed := 0
	now := time.Now()
	for key, item := range s.cache.Items() {
		entry, ok := item.Object.(*models.CacheEntry)
		if !ok {
			continue
		}
		s.mu.RLock()
		expired := now.Sub(entry.LastHit) > entry.TTL
		s.mu.RUnlock()
		if expired {
			s.cache.Delete(key)
			removed++
		}
	}

	if over := s.cache.ItemCount() - s.config.Capacity; over > 0 {
		removed += s.evictLeastRecentlyHit(over)
	}

	if removed > 0 {
		log.Printf("🧹 [RESPONSE-CACHE] Sweep removed %d entries (%d remain)", removed, s.cache.ItemCount())
	}
	return removed
}

// Len returns the number of live cache entries.
func (s *ResponseCacheService) Len() int {
	return s.cache.ItemCount()
}

// Stats returns hit/miss counters.
func (s *ResponseCacheService) Stats() (hits, misses int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hits, s.misses
}

// nearest scans the recent window (newest first) and returns the closest
// entry by cosine similarity.
func (s *ResponseCacheService) nearest(embedding []float32) (*models.CacheEntry, float64) {
	s.mu.RLock()
	window := append([]string(nil), s.recent...)
	s.mu.RUnlock()

	var best *models.CacheEntry
	bestSim := -1.0
	for i := len(window) - 1; i >= 0; i-- {
		value, found := s.cache.Get(window[i])
		if !found {
			continue
		}
		entry, ok := value.(*models.CacheEntry)
		if !ok || len(entry.Embedding) == 0 {
			continue
		}
		sim := vector.CosineSimilarity(embedding, entry.Embedding)
		if sim > bestSim {
			bestSim = sim
			best = entry
		}
	}
	return best, bestSim
}

// evictLeastRecentlyHit removes n entries ordered by oldest last hit.
func (s *ResponseCacheService) evictLeastRecentlyHit(n int) int {
	type candidate struct {
		key     string
		lastHit time.Time
	}
	items := s.cache.Items()
	candidates := make([]candidate, 0, len(items))
	s.mu.RLock()
	for key, item := range items {
		if entry, ok := item.Object.(*models.CacheEntry); ok {
			candidates = append(candidates, candidate{key: key, lastHit: entry.LastHit})
		}
	}
	s.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastHit.Before(candidates[j].lastHit)
	})

	evicted := 0
	for i := 0; i < len(candidates) && evicted < n; i++ {
		s.cache.Delete(candidates[i].key)
		evicted++
	}
	return evicted
}

// hashQuery produces the normalized digest used as the cache key:
// lowercase, whitespace collapsed.
func hashQuery(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func truncateQuery(q string) string {
	if len(q) <= 40 {
		return q
	}
	return q[:40] + "..."
}
