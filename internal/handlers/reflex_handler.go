package handlers

import (
	"context"
	"log"
	"time"

	"reflex/internal/logging"
	"reflex/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ReflexHandler exposes the decision engine: respond, outcome tracking, and
// aggregate stats.
type ReflexHandler struct {
	reflexService *services.ReflexService
}

// NewReflexHandler creates a new reflex handler
func NewReflexHandler(reflexService *services.ReflexService) *ReflexHandler {
	return &ReflexHandler{reflexService: reflexService}
}

type respondRequest struct {
	Text     string `json:"text"`
	CallerID string `json:"caller_id"`
}

// Respond runs the layered decision flow for one request
// POST /api/v1/respond
func (h *ReflexHandler) Respond(c *fiber.Ctx) error {
	var req respondRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "text is required",
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 30*time.Second)
	defer cancel()

	logger := logging.WithRequest(uuid.NewString(), req.CallerID)
	result := h.reflexService.Respond(ctx, req.Text, req.CallerID)
	if result.PathwayID != "" {
		logger = logging.WithPathway(logger, result.PathwayID, string(result.Tier))
	}
	logger.Info("respond complete", "source", result.Source, "latency_ms", result.LatencyMS)

	return c.JSON(result)
}

type trackRequest struct {
	Text     string `json:"text"`
	Response string `json:"response"`
	Success  bool   `json:"success"`
}

// Track reports an externally answered query back into the learning loop
// POST /api/v1/track
func (h *ReflexHandler) Track(c *fiber.Ctx) error {
	var req trackRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "text is required",
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	h.reflexService.TrackQuery(ctx, req.Text, req.Response, req.Success)
	return c.JSON(fiber.Map{"status": "tracked"})
}

// Stats returns aggregate engine counters
// GET /api/v1/stats
func (h *ReflexHandler) Stats(c *fiber.Ctx) error {
	stats := h.reflexService.Stats()
	log.Printf("📊 [REFLEX-API] Stats requested: %v lookups", stats["total_lookups"])
	return c.JSON(stats)
}
