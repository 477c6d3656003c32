package handlers

import (
	"strconv"

	"github.com/cardealsai/cardeals-backend/models"
	"github.com/cardealsai/cardeals-backend/services"
	"github.com/cardealsai/cardeals-backend/shared"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type OfferHandler struct {
	Search *services.SearchService
	Offers *services.OfferService
}

func NewOfferHandler(search *services.SearchService, offers *services.OfferService) *OfferHandler {
	return &OfferHandler{Search: search, Offers: offers}
}

// SearchOffers handles GET /api/v1/offers/search. Malformed filters are
// a 400 with per-field reasons; a store outage is a 503, never an empty
// 200.
func (h *OfferHandler) SearchOffers(c *fiber.Ctx) error {
	params, parseErrors := parseSearchParams(c)
	if len(parseErrors) == 0 {
		parseErrors = h.Search.ValidateParams(params)
	}
	if len(parseErrors) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid search parameters",
			"details": parseErrors,
		})
	}

	response, cached, err := h.Search.Search(c.Context(), params)
	if err != nil {
		if shared.IsServiceUnavailable(err) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"success": false,
				"error":   "search temporarily unavailable",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    response,
		"cached":  cached,
	})
}

// GetOffer handles GET /api/v1/offers/:id, returning the full offer with
// its raw extraction payload.
func (h *OfferHandler) GetOffer(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid offer id",
		})
	}

	offer, err := h.Offers.GetOfferByID(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"error":   "offer lookup temporarily unavailable",
		})
	}
	if offer == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "offer not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    offer,
	})
}

// GetDealers handles GET /api/v1/dealers.
func (h *OfferHandler) GetDealers(c *fiber.Ctx) error {
	dealers, err := h.Offers.ListDealers(c.Context())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"error":   "dealer listing temporarily unavailable",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    dealers,
		"count":   len(dealers),
	})
}

// knownSearchKeys is the full query surface of the search endpoint. A
// key outside it is a typo on the caller's side; dropping it silently
// would answer a filter the caller never asked for.
var knownSearchKeys = map[string]bool{
	"make":                true,
	"model":               true,
	"offer_type":          true,
	"max_monthly_payment": true,
	"max_down_payment":    true,
	"min_term_months":     true,
	"max_term_months":     true,
	"limit":               true,
	"sort_by":             true,
}

// parseSearchParams reads the query string into a filter tuple, collecting
// per-field parse failures instead of stopping at the first. Unknown keys
// are a parse failure, not a no-op.
func parseSearchParams(c *fiber.Ctx) (models.SearchParams, []string) {
	var params models.SearchParams
	var problems []string

	for key := range c.Queries() {
		if !knownSearchKeys[key] {
			problems = append(problems, "unknown parameter: "+key)
		}
	}

	if v := c.Query("make"); v != "" {
		params.Make = &v
	}
	if v := c.Query("model"); v != "" {
		params.Model = &v
	}
	if v := c.Query("offer_type"); v != "" {
		params.OfferType = &v
	}
	if v := c.Query("max_monthly_payment"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			params.MaxMonthlyPayment = &parsed
		} else {
			problems = append(problems, "max_monthly_payment must be a number")
		}
	}
	if v := c.Query("max_down_payment"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			params.MaxDownPayment = &parsed
		} else {
			problems = append(problems, "max_down_payment must be a number")
		}
	}
	if v := c.Query("min_term_months"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			params.MinTermMonths = &parsed
		} else {
			problems = append(problems, "min_term_months must be an integer")
		}
	}
	if v := c.Query("max_term_months"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			params.MaxTermMonths = &parsed
		} else {
			problems = append(problems, "max_term_months must be an integer")
		}
	}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			params.Limit = parsed
		} else {
			problems = append(problems, "limit must be an integer")
		}
	}
	params.SortBy = c.Query("sort_by")

	return params, problems
}
