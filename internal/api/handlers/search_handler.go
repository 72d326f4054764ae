package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gemfinder/backend/internal/api/middleware/validation"
	"github.com/gemfinder/backend/internal/query"
	"github.com/gemfinder/backend/internal/synthesis"
	"github.com/gemfinder/backend/pkg/logger"
)

// SearchHandler serves the research endpoint.
type SearchHandler struct {
	engine *query.Engine
	log    *zap.Logger
}

func NewSearchHandler(engine *query.Engine) *SearchHandler {
	return &SearchHandler{
		engine: engine,
		log:    logger.GetLogger().With(zap.String("handler", "search")),
	}
}

// Search handles POST /api/v1/search. A synthesis failure is the only
// pipeline error a client ever sees; everything else degrades inside
// the pipeline.
func (h *SearchHandler) Search(c *fiber.Ctx) error {
	req, err := validation.ValidateSearchRequest(c)
	if err != nil {
		return err
	}

	resp, err := h.engine.Search(c.Context(), query.Request{
		Query:           req.Query,
		MaxPrice:        req.MaxPrice,
		ValuePreference: req.ValuePreference,
	}, nil)
	if err != nil {
		if errors.Is(err, synthesis.ErrSynthesisFailed) {
			h.log.Error("research produced no recommendations",
				zap.String("query", req.Query), zap.Error(err))
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":   "research failed",
				"message": "could not build recommendations for this query, try rephrasing it",
			})
		}
		h.log.Error("search request failed", zap.String("query", req.Query), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
		})
	}

	return c.JSON(resp)
}
