package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"reflex/internal/config"
	"reflex/internal/handlers"
	"reflex/internal/inference"
	"reflex/internal/jobs"
	"reflex/internal/logging"
	"reflex/internal/services"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Reflex Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err == nil {
		log.Println("✅ .env file loaded successfully")
	}

	// Load configuration
	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Store: %s)", cfg.Port, cfg.StorePath)

	// Optional Redis snapshot mirror
	redisService, err := services.NewRedisService(cfg.RedisURL)
	if err != nil {
		log.Printf("⚠️ Redis unavailable, continuing without snapshot mirror: %v", err)
		redisService = nil
	}

	// Pathway store + persistence
	store := services.NewPathwayStore(cfg.ReevalEvery)
	repository := services.NewPathwayRepository(cfg.StorePath, redisService)

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 10*time.Second)
	if err := repository.Load(loadCtx, store); err != nil {
		log.Printf("⚠️ Failed to load pathway document: %v", err)
	}
	cancelLoad()

	// Seed pathways (optional, hot-reloaded)
	if cfg.SeedPath != "" {
		if _, err := services.LoadSeeds(cfg.SeedPath, store); err != nil {
			log.Printf("⚠️ Failed to load seed pathways: %v", err)
		}
		go startSeedFileWatcher(cfg.SeedPath, store)
	}

	// Tier manager
	policy := services.DefaultTierPolicy()
	policy.ArchiveAfter = cfg.ArchiveAfter
	tierService := services.NewTierService(store, policy)

	// Inference collaborators
	infClient := inference.NewClient(inference.Options{
		EmbeddingURL:    cfg.EmbeddingURL,
		EmbeddingModel:  cfg.EmbeddingModel,
		GenerationURL:   cfg.GenerationURL,
		GenerationModel: cfg.GenerationModel,
		APIKey:          cfg.InferenceAPIKey,
		Timeout:         cfg.InferenceTimeout,
	})
	if cfg.EmbeddingURL == "" {
		log.Println("⚠️ EMBEDDING_URL not set - semantic cache and auto-generation will be inactive")
	}

	// Cache, generator, orchestrator
	cacheService := services.NewResponseCacheService(infClient, services.ResponseCacheConfig{
		BaseTTL:       cfg.CacheBaseTTL,
		Capacity:      cfg.CacheCapacity,
		Window:        cfg.CacheWindow,
		MinSimilarity: cfg.CacheMinSim,
	})
	generator := services.NewPathwayGeneratorService(store, infClient, services.GeneratorConfig{
		BufferCapacity: cfg.BufferCapacity,
		Threshold:      cfg.GenerateThreshold,
		MinSimilarity:  cfg.ClusterMinSim,
		MinClusterSize: cfg.ClusterMinSize,
	})

	metrics := services.InitMetrics(store)

	var genClient inference.Generator
	if cfg.GenerationURL != "" {
		genClient = infClient
	} else {
		log.Println("⚠️ GENERATION_URL not set - unanswered requests will report escalation_required")
	}

	reflexService := services.NewReflexService(
		store, cacheService, generator, tierService,
		genClient, cfg.EscalationRPS, cfg.EscalationBurst, cfg.InferenceTimeout,
	)
	reflexService.SetMetrics(metrics)
	log.Printf("🧠 Reflex engine ready: %s", reflexService.Describe())

	// Maintenance jobs
	scheduler, err := jobs.NewScheduler()
	if err != nil {
		log.Fatalf("❌ Failed to create scheduler: %v", err)
	}
	mustRegister(scheduler, jobs.NewReorganizeJob(tierService, cfg.ReorganizeInterval))
	mustRegister(scheduler, jobs.NewCacheSweepJob(cacheService, cfg.SweepInterval))
	mustRegister(scheduler, jobs.NewGenerationJob(generator, metrics, cfg.ReorganizeInterval))
	mustRegister(scheduler, jobs.NewSnapshotJob(repository, store, cfg.SnapshotInterval))
	scheduler.Start()

	// Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Reflex v1.0",
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("reflex")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	app.Use(cors.New(cors.Config{
		AllowOrigins: getAllowedOrigins(),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Handlers
	reflexHandler := handlers.NewReflexHandler(reflexService)
	pathwayHandler := handlers.NewPathwayHandler(store, tierService)
	cacheHandler := handlers.NewCacheHandler(cacheService)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")
	api.Post("/respond", reflexHandler.Respond)
	api.Post("/track", reflexHandler.Track)
	api.Get("/stats", reflexHandler.Stats)

	api.Post("/pathways", pathwayHandler.Register)
	api.Get("/pathways", pathwayHandler.List)
	api.Get("/pathways/:id", pathwayHandler.Get)
	api.Post("/pathways/:id/usage", pathwayHandler.RecordUsage)
	api.Post("/pathways/:id/revive", pathwayHandler.Revive)
	api.Post("/reorganize", pathwayHandler.Reorganize)

	api.Get("/cache", cacheHandler.Get)
	api.Post("/cache", cacheHandler.Store)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("🛑 Shutting down...")

		if err := scheduler.Stop(); err != nil {
			log.Printf("⚠️ Error stopping scheduler: %v", err)
		}

		saveCtx, cancelSave := context.WithTimeout(context.Background(), 10*time.Second)
		if err := repository.Save(saveCtx, store); err != nil {
			log.Printf("⚠️ Error saving pathway document: %v", err)
		}
		cancelSave()

		if err := redisService.Close(); err != nil {
			log.Printf("⚠️ Error closing Redis: %v", err)
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

func mustRegister(scheduler *jobs.Scheduler, job jobs.Job) {
	if err := scheduler.Register(job); err != nil {
		log.Fatalf("❌ Failed to register job: %v", err)
	}
}

func getAllowedOrigins() string {
	origins := os.Getenv("ALLOWED_ORIGINS")
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️ ALLOWED_ORIGINS not set, using development defaults")
	}
	return origins
}

// startSeedFileWatcher hot-reloads the seed pathway file on change. Already
// registered seed ids are skipped, so repeated reloads are idempotent.
func startSeedFileWatcher(path string, store *services.PathwayStore) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️ Failed to create seed file watcher: %v", err)
		return
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		log.Printf("⚠️ Failed to get absolute path for %s: %v", path, err)
		watcher.Close()
		return
	}

	// Watch the directory containing the file (more reliable than watching
	// the file directly, since editors replace files on save).
	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)
	if err := watcher.Add(dir); err != nil {
		log.Printf("⚠️ Failed to watch directory %s: %v", dir, err)
		watcher.Close()
		return
	}

	log.Printf("👁️ Watching %s for seed changes (hot-reload enabled)", path)

	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					added, err := services.LoadSeeds(path, store)
					if err != nil {
						log.Printf("❌ Failed to reload seeds after file change: %v", err)
						return
					}
					log.Printf("🔄 Seed file reloaded, %d new pathways", added)
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️ Seed file watcher error: %v", err)
		}
	}
}
