package handlers

import (
	"context"
	"time"

	"reflex/internal/services"

	"github.com/gofiber/fiber/v2"
)

// CacheHandler exposes the semantic response cache directly, for callers
// that run their own generation and only want the memoization layer.
type CacheHandler struct {
	cache *services.ResponseCacheService
}

// NewCacheHandler creates a new cache handler
func NewCacheHandler(cache *services.ResponseCacheService) *CacheHandler {
	return &CacheHandler{cache: cache}
}

// Get looks up the semantically nearest cached answer
// GET /api/v1/cache?q=...
func (h *CacheHandler) Get(c *fiber.Ctx) error {
	query := c.Query("q", "")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "q is required",
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	response, ok := h.cache.Get(ctx, query)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No semantically similar entry",
		})
	}
	return c.JSON(fiber.Map{"response": response})
}

type cacheStoreRequest struct {
	Text     string  `json:"text"`
	Response string  `json:"response"`
	Quality  float64 `json:"quality"`
}

// Store inserts a generated answer into the cache
// POST /api/v1/cache
func (h *CacheHandler) Store(c *fiber.Ctx) error {
	var req cacheStoreRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Text == "" || req.Response == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "text and response are required",
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	h.cache.Store(ctx, req.Text, req.Response, req.Quality)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "stored"})
}
