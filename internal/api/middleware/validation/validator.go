package validation

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const maxQueryLength = 200

// SearchRequest is the inbound body for research endpoints, validated
// before it reaches the pipeline.
type SearchRequest struct {
	Query           string  `json:"query"`
	MaxPrice        float64 `json:"max_price"`
	ValuePreference string  `json:"value_preference"`
}

// ValidateSearchRequest parses and sanity-checks a search body. It
// returns a fiber error carrying the right status code on failure.
func ValidateSearchRequest(c *fiber.Ctx) (*SearchRequest, error) {
	var req SearchRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "query is required")
	}
	if len(req.Query) > maxQueryLength {
		return nil, fiber.NewError(fiber.StatusBadRequest, "query too long")
	}
	if strings.ContainsAny(req.Query, "<>") {
		return nil, fiber.NewError(fiber.StatusBadRequest, "query contains invalid characters")
	}
	if req.MaxPrice < 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "max_price must be positive")
	}

	switch req.ValuePreference {
	case "", "value", "budget", "quality", "durability":
	default:
		return nil, fiber.NewError(fiber.StatusBadRequest, "unknown value_preference")
	}

	return &req, nil
}

// ValidateValueRequest checks the inputs of the value calculator.
type ValueRequest struct {
	Price         float64 `json:"price"`
	LifespanYears float64 `json:"lifespan_years"`
}

func ValidateValueRequest(c *fiber.Ctx) (*ValueRequest, error) {
	var req ValueRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Price <= 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "price must be greater than 0")
	}
	if req.LifespanYears <= 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "lifespan_years must be greater than 0")
	}
	return &req, nil
}
