package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port     string
	RedisURL string // optional snapshot mirror; empty disables Redis

	// Persistence
	StorePath string // JSON pathway document
	SeedPath  string // optional YAML seed pathways, hot-reloaded

	// Inference collaborators (OpenAI-compatible endpoints)
	EmbeddingURL     string
	EmbeddingModel   string
	GenerationURL    string
	GenerationModel  string
	InferenceAPIKey  string
	InferenceTimeout time.Duration

	// Matching / tiering
	ReevalEvery  int           // re-evaluate a pathway's tier every Nth success
	ArchiveAfter time.Duration // idle window before a low-traffic pathway is archived

	// Response cache
	CacheBaseTTL  time.Duration
	CacheCapacity int
	CacheWindow   int     // recent entries scanned per semantic lookup
	CacheMinSim   float64 // cosine threshold for a cache hit
	SweepInterval time.Duration

	// Pathway generator
	BufferCapacity    int
	GenerateThreshold int     // pending items before a generation pass runs
	ClusterMinSim     float64 // cosine threshold for cluster membership
	ClusterMinSize    int

	// Jobs
	ReorganizeInterval time.Duration
	SnapshotInterval   time.Duration

	// Escalation rate limiting (requests per second, burst)
	EscalationRPS   float64
	EscalationBurst int
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "3001"),
		RedisURL: getEnv("REDIS_URL", ""),

		StorePath: getEnv("STORE_PATH", "data/pathways.json"),
		SeedPath:  getEnv("SEED_PATH", ""),

		EmbeddingURL:     getEnv("EMBEDDING_URL", ""),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		GenerationURL:    getEnv("GENERATION_URL", ""),
		GenerationModel:  getEnv("GENERATION_MODEL", "gpt-4o-mini"),
		InferenceAPIKey:  getEnv("INFERENCE_API_KEY", ""),
		InferenceTimeout: getDurationEnv("INFERENCE_TIMEOUT", 10*time.Second),

		ReevalEvery:  getIntEnv("TIER_REEVAL_EVERY", 10),
		ArchiveAfter: getDurationEnv("TIER_ARCHIVE_AFTER", 30*24*time.Hour),

		CacheBaseTTL:  getDurationEnv("CACHE_BASE_TTL", time.Hour),
		CacheCapacity: getIntEnv("CACHE_CAPACITY", 1000),
		CacheWindow:   getIntEnv("CACHE_WINDOW", 256),
		CacheMinSim:   getFloatEnv("CACHE_MIN_SIMILARITY", 0.85),
		SweepInterval: getDurationEnv("CACHE_SWEEP_INTERVAL", 5*time.Minute),

		BufferCapacity:    getIntEnv("GENERATOR_BUFFER_CAPACITY", 200),
		GenerateThreshold: getIntEnv("GENERATOR_THRESHOLD", 12),
		ClusterMinSim:     getFloatEnv("GENERATOR_MIN_SIMILARITY", 0.8),
		ClusterMinSize:    getIntEnv("GENERATOR_MIN_CLUSTER", 3),

		ReorganizeInterval: getDurationEnv("REORGANIZE_INTERVAL", 15*time.Minute),
		SnapshotInterval:   getDurationEnv("SNAPSHOT_INTERVAL", 5*time.Minute),

		EscalationRPS:   getFloatEnv("ESCALATION_RPS", 5),
		EscalationBurst: getIntEnv("ESCALATION_BURST", 10),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
