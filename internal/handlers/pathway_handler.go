package handlers

import (
	"log"

	"reflex/internal/models"
	"reflex/internal/services"

	"github.com/gofiber/fiber/v2"
)

// PathwayHandler handles pathway registration, inspection, and tier
// administration endpoints.
type PathwayHandler struct {
	store       *services.PathwayStore
	tierService *services.TierService
}

// NewPathwayHandler creates a new pathway handler
func NewPathwayHandler(store *services.PathwayStore, tierService *services.TierService) *PathwayHandler {
	return &PathwayHandler{store: store, tierService: tierService}
}

type registerPathwayRequest struct {
	ID                  string   `json:"id"`
	Category            string   `json:"category"`
	Triggers            []string `json:"triggers"`
	ResponseTemplate    string   `json:"response_template"`
	Tier                string   `json:"tier"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	RequireExactMatch   bool     `json:"require_exact_match"`
	CaseSensitive       bool     `json:"case_sensitive"`
	UserSpecific        bool     `json:"user_specific"`
	OwnerID             string   `json:"owner_id"`
}

// Register registers a new pathway
// POST /api/v1/pathways
func (h *PathwayHandler) Register(c *fiber.Ctx) error {
	var req registerPathwayRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	pathway, err := h.store.Add(models.Pathway{
		ID:                  req.ID,
		Category:            req.Category,
		Triggers:            req.Triggers,
		ResponseTemplate:    req.ResponseTemplate,
		Tier:                models.Tier(req.Tier),
		ConfidenceThreshold: req.ConfidenceThreshold,
		RequireExactMatch:   req.RequireExactMatch,
		CaseSensitive:       req.CaseSensitive,
		UserSpecific:        req.UserSpecific,
		OwnerID:             req.OwnerID,
	})
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(pathwayResponse(pathway))
}

// Get returns a single pathway by id
// GET /api/v1/pathways/:id
func (h *PathwayHandler) Get(c *fiber.Ctx) error {
	pathway, ok := h.store.GetByID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Pathway not found",
		})
	}
	return c.JSON(pathwayResponse(pathway))
}

// List returns pathways, optionally filtered by tier
// GET /api/v1/pathways?tier=hot
func (h *PathwayHandler) List(c *fiber.Ctx) error {
	tier := models.Tier(c.Query("tier", ""))
	if tier != "" && !tier.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown tier",
		})
	}

	pathways := h.store.List(tier)
	out := make([]fiber.Map, len(pathways))
	for i, p := range pathways {
		out[i] = pathwayResponse(p)
	}
	return c.JSON(fiber.Map{
		"pathways": out,
		"total":    len(out),
	})
}

type usageRequest struct {
	CallerID string `json:"caller_id"`
	Success  bool   `json:"success"`
}

// RecordUsage reports a use outcome for a pathway
// POST /api/v1/pathways/:id/usage
func (h *PathwayHandler) RecordUsage(c *fiber.Ctx) error {
	var req usageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.store.RecordUsage(c.Params("id"), req.CallerID, req.Success); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"status": "recorded"})
}

// Revive moves an archived pathway back into the COLD tier
// POST /api/v1/pathways/:id/revive
func (h *PathwayHandler) Revive(c *fiber.Ctx) error {
	if err := h.store.Revive(c.Params("id")); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"status": "revived"})
}

// Reorganize runs the full tier batch pass
// POST /api/v1/reorganize
func (h *PathwayHandler) Reorganize(c *fiber.Ctx) error {
	changed := h.tierService.ReorganizeAll()
	log.Printf("🗂️ [PATHWAY-API] Manual reorganize moved %d pathways", changed)
	return c.JSON(fiber.Map{"moved": changed})
}

func pathwayResponse(p models.Pathway) fiber.Map {
	return fiber.Map{
		"id":                   p.ID,
		"category":             p.Category,
		"triggers":             p.Triggers,
		"response_template":    p.ResponseTemplate,
		"tier":                 p.Tier,
		"position":             p.Position,
		"success_count":        p.SuccessCount,
		"failure_count":        p.FailureCount,
		"unique_users":         len(p.UniqueUsers),
		"confidence_threshold": p.ConfidenceThreshold,
		"require_exact_match":  p.RequireExactMatch,
		"case_sensitive":       p.CaseSensitive,
		"user_specific":        p.UserSpecific,
		"created_at":           p.CreatedAt,
		"last_used":            p.LastUsed,
	}
}
