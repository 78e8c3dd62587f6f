package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"reflex/internal/inference"
	"reflex/internal/models"

	"golang.org/x/time/rate"
)

// ReflexService is the decision engine composing the pathway store, the
// semantic cache, and the auto-generator into a single respond flow:
//
//  1. HOT pathway match, trusted immediately
//  2. semantic cache hit
//  3. WARM/COOL pathway match
//  4. escalation to the external generation collaborator
//
// After a successful escalation the answer is written through to the cache
// and the generator's pending buffer, so repeated similar questions are
// eventually served locally.
type ReflexService struct {
	store     *PathwayStore
	cache     *ResponseCacheService
	generator *PathwayGeneratorService
	tiers     *TierService

	genClient inference.Generator
	limiter   *rate.Limiter
	timeout   time.Duration
	metrics   *Metrics
}

// NewReflexService wires the decision engine. genClient may be nil, in which
// case every unanswered request reports "escalation required" and the caller
// owns the external generation call.
func NewReflexService(
	store *PathwayStore,
	cache *ResponseCacheService,
	generator *PathwayGeneratorService,
	tiers *TierService,
	genClient inference.Generator,
	escalationRPS float64,
	escalationBurst int,
	timeout time.Duration,
) *ReflexService {
	if escalationRPS <= 0 {
		escalationRPS = 5
	}
	if escalationBurst <= 0 {
		escalationBurst = 10
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ReflexService{
		store:     store,
		cache:     cache,
		generator: generator,
		tiers:     tiers,
		genClient: genClient,
		limiter:   rate.NewLimiter(rate.Limit(escalationRPS), escalationBurst),
		timeout:   timeout,
	}
}

// SetMetrics attaches Prometheus metrics (optional).
func (s *ReflexService) SetMetrics(m *Metrics) {
	s.metrics = m
}

// Respond answers a single request through the layered decision flow.
// It never returns an error for the request itself: when every local layer
// misses and generation is unavailable, the result carries source
// "escalation_required" so the caller can defer to its own generator.
func (s *ReflexService) Respond(ctx context.Context, text, callerID string) *models.ReflexResponse {
	started := time.Now()

	// 1. HOT tier: first accepted match is trusted immediately.
	if m := s.store.MatchTiers(text, callerID, models.TierHot); m != nil {
		s.observeMatch(m)
		response := s.Execute(m, text, callerID)
		return s.finish(&models.ReflexResponse{
			Response:   response,
			Source:     models.SourcePathway,
			PathwayID:  m.PathwayID,
			Confidence: m.Confidence,
			Tier:       m.Tier,
		}, started)
	}

	// 2. Semantic cache.
	if response, ok := s.cache.Get(ctx, text); ok {
		s.countCache(true)
		return s.finish(&models.ReflexResponse{
			Response: response,
			Source:   models.SourceCache,
		}, started)
	}
	s.countCache(false)

	// 3. Lower-trust pathways.
	if m := s.store.MatchTiers(text, callerID, models.TierWarm, models.TierCool); m != nil {
		s.observeMatch(m)
		response := s.Execute(m, text, callerID)
		return s.finish(&models.ReflexResponse{
			Response:   response,
			Source:     models.SourcePathway,
			PathwayID:  m.PathwayID,
			Confidence: m.Confidence,
			Tier:       m.Tier,
		}, started)
	}
	if s.metrics != nil {
		s.metrics.MatchMisses.Inc()
	}

	// 4. Escalate.
	answer, ok := s.escalate(ctx, text)
	if !ok {
		return s.finish(&models.ReflexResponse{Source: models.SourceEscalation}, started)
	}

	// Write-through learning: remember the answer and feed the generator.
	s.cache.Store(ctx, text, answer, answerQuality(answer))
	s.generator.Track(ctx, text, answer)

	return s.finish(&models.ReflexResponse{
		Response: answer,
		Source:   models.SourceGenerated,
	}, started)
}

// Execute resolves the matched pathway's template and optimistically records
// a successful use. Callers that later learn the answer was wrong report it
// through RecordUsage or TrackQuery.
func (s *ReflexService) Execute(m *models.MatchResult, text, callerID string) string {
	pathway, ok := s.store.GetByID(m.PathwayID)
	if !ok {
		log.Printf("⚠️ [REFLEX] Matched pathway %s vanished before execution", m.PathwayID)
		return ""
	}

	response := pathway.ResponseTemplate
	response = strings.ReplaceAll(response, "{input}", text)
	response = strings.ReplaceAll(response, "{caller}", callerID)

	if err := s.store.RecordUsage(m.PathwayID, callerID, true); err != nil {
		log.Printf("⚠️ [REFLEX] Failed to record usage for %s: %v", m.PathwayID, err)
	}
	return response
}

// RecordUsage is the outcome-report hook for a known pathway id.
func (s *ReflexService) RecordUsage(pathwayID, callerID string, success bool) error {
	return s.store.RecordUsage(pathwayID, callerID, success)
}

// TrackQuery reports the outcome of an externally answered query back into
// the learning loop. When the text matches an existing pathway (any active
// tier, COLD included) the outcome is credited to that pathway; otherwise a
// successful answer is buffered for the auto-generator.
func (s *ReflexService) TrackQuery(ctx context.Context, text, response string, success bool) {
	if m := s.store.Match(text, ""); m != nil {
		if err := s.store.RecordUsage(m.PathwayID, "", success); err != nil {
			log.Printf("⚠️ [REFLEX] TrackQuery failed to credit pathway %s: %v", m.PathwayID, err)
		}
		return
	}
	if success && response != "" {
		s.generator.Track(ctx, text, response)
	}
}

// escalate calls the generation collaborator with a bounded timeout. Any
// failure (missing client, rate limit, timeout, transport error) is a soft
// miss reported as ("", false).
func (s *ReflexService) escalate(ctx context.Context, text string) (string, bool) {
	if s.genClient == nil {
		return "", false
	}
	if !s.limiter.Allow() {
		log.Printf("⏳ [REFLEX] Escalation rate limit reached, deferring to caller")
		return "", false
	}

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	answer, err := s.genClient.Generate(genCtx, text)
	if err != nil {
		if s.metrics != nil {
			s.metrics.EscalationErrors.Inc()
		}
		log.Printf("⚠️ [REFLEX] Generation collaborator failed: %v", err)
		return "", false
	}
	return answer, true
}

// Stats summarizes the engine for the stats endpoint.
func (s *ReflexService) Stats() map[string]interface{} {
	lookups, matches := s.store.Stats()
	hits, misses := s.cache.Stats()
	counts := s.store.TierCounts()

	tiers := make(map[string]int, len(counts))
	for tier, n := range counts {
		tiers[string(tier)] = n
	}

	return map[string]interface{}{
		"total_lookups":      lookups,
		"total_matches":      matches,
		"cache_hits":         hits,
		"cache_misses":       misses,
		"cache_entries":      s.cache.Len(),
		"pending_queries":    s.generator.PendingCount(),
		"generated_pathways": s.generator.GeneratedCount(),
		"tiers":              tiers,
	}
}

func (s *ReflexService) finish(resp *models.ReflexResponse, started time.Time) *models.ReflexResponse {
	resp.LatencyMS = float64(time.Since(started).Microseconds()) / 1000.0
	if s.metrics != nil {
		s.metrics.Responses.WithLabelValues(string(resp.Source)).Inc()
	}
	return resp
}

func (s *ReflexService) observeMatch(m *models.MatchResult) {
	if s.metrics != nil {
		s.metrics.MatchLatency.Observe(m.Latency.Seconds())
	}
}

func (s *ReflexService) countCache(hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.CacheHits.Inc()
	} else {
		s.metrics.CacheMisses.Inc()
	}
}

// answerQuality is a cheap retention heuristic: longer, structured answers
// earn a longer cache TTL. Clamped to [0.3, 0.9] so no answer is thrown away
// immediately or kept forever.
func answerQuality(answer string) float64 {
	quality := 0.3 + float64(len(answer))/2000.0
	if quality > 0.9 {
		quality = 0.9
	}
	return quality
}

// Describe returns a one-line summary for startup logging.
func (s *ReflexService) Describe() string {
	counts := s.store.TierCounts()
	total := 0
	for _, n := range counts {
		total += n
	}
	return fmt.Sprintf("%d pathways (hot=%d warm=%d), %d cache entries",
		total, counts[models.TierHot], counts[models.TierWarm], s.cache.Len())
}
