package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gemfinder/backend/internal/api/middleware/validation"
	"github.com/gemfinder/backend/internal/catalog"
	"github.com/gemfinder/backend/internal/popular"
	"github.com/gemfinder/backend/pkg/logger"
)

// Pinger is anything with a liveness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MiscHandler serves the small supporting endpoints: categories, value
// calculator, popular terms and health checks.
type MiscHandler struct {
	tracker *popular.Tracker
	sqlite  Pinger
	redis   Pinger // nil when redis is disabled
	log     *zap.Logger
}

func NewMiscHandler(tracker *popular.Tracker, sqlite, redis Pinger) *MiscHandler {
	return &MiscHandler{
		tracker: tracker,
		sqlite:  sqlite,
		redis:   redis,
		log:     logger.GetLogger().With(zap.String("handler", "misc")),
	}
}

// Categories handles GET /api/v1/categories.
func (h *MiscHandler) Categories(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"categories": popular.Categories()})
}

// CalculateValue handles POST /api/v1/calculate-value.
func (h *MiscHandler) CalculateValue(c *fiber.Ctx) error {
	req, err := validation.ValidateValueRequest(c)
	if err != nil {
		return err
	}

	metrics, err := catalog.CalculateValueMetrics(req.Price, req.LifespanYears)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(metrics)
}

// PopularSearches handles GET /api/v1/popular. An optional category
// query parameter narrows the list to one navigation category.
func (h *MiscHandler) PopularSearches(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "10"))
	category := c.Query("category")

	terms, err := h.tracker.List(c.Context(), limit)
	if err != nil {
		h.log.Error("failed to list popular terms", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
		})
	}

	if category != "" {
		filtered := make([]popular.PopularTerm, 0, len(terms))
		for _, term := range terms {
			if term.Category == category {
				filtered = append(filtered, term)
			}
		}
		terms = filtered
	}
	return c.JSON(fiber.Map{"popular_searches": terms})
}

// Health handles GET /health: process liveness only.
func (h *MiscHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready: dependency reachability.
func (h *MiscHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	checks := fiber.Map{}
	healthy := true

	if err := h.sqlite.Ping(ctx); err != nil {
		checks["sqlite"] = err.Error()
		healthy = false
	} else {
		checks["sqlite"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			// redis is optional, report but stay ready
			checks["redis"] = err.Error()
		} else {
			checks["redis"] = "ok"
		}
	} else {
		checks["redis"] = "disabled"
	}

	status := fiber.StatusOK
	if !healthy {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{"ready": healthy, "checks": checks})
}
