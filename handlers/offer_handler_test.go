package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cardealsai/cardeals-backend/models"
	"github.com/cardealsai/cardeals-backend/services"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOfferStore struct {
	offers []models.Offer
}

func (s *stubOfferStore) FindActiveOffers(ctx context.Context, params models.SearchParams) ([]models.Offer, error) {
	return s.offers, nil
}

func (s *stubOfferStore) LogSearch(ctx context.Context, entry models.SearchLog) {}

func newSearchApp(store services.OfferStore) *fiber.App {
	search := services.NewSearchService(store, services.NewCacheService(time.Minute, 10))
	handler := NewOfferHandler(search, nil)

	app := fiber.New()
	app.Get("/api/v1/offers/search", handler.SearchOffers)
	return app
}

// A typo like ?modle= must come back as a 400, not as an unfiltered
// search the caller mistakes for "no RAV4 offers exist".
func TestSearchOffersRejectsUnknownParameter(t *testing.T) {
	app := newSearchApp(&stubOfferStore{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/offers/search?modle=RAV4", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body struct {
		Success bool     `json:"success"`
		Details []string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.False(t, body.Success)
	require.Len(t, body.Details, 1)
	assert.Contains(t, body.Details[0], "modle")
}

func TestSearchOffersAcceptsEveryKnownParameter(t *testing.T) {
	store := &stubOfferStore{offers: []models.Offer{
		{Model: "RAV4", Make: "Toyota", OfferType: models.OfferTypeLease, Active: true},
	}}
	app := newSearchApp(store)

	url := "/api/v1/offers/search?make=Toyota&model=RAV4&offer_type=lease" +
		"&max_monthly_payment=400&max_down_payment=3000&min_term_months=24" +
		"&max_term_months=48&limit=5&sort_by=monthly_payment"
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, url, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestSearchOffersCollectsAllParseProblems(t *testing.T) {
	app := newSearchApp(&stubOfferStore{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet,
		"/api/v1/offers/search?limit=many&max_monthly_payment=cheap", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body struct {
		Details []string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Len(t, body.Details, 2)
}
