package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cardealsai/cardeals-backend/models"
	"github.com/cardealsai/cardeals-backend/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOfferStore serves canned offers and records calls. Make and model
// filtering mirrors the SQL store: case-insensitive substring match.
type fakeOfferStore struct {
	mutex   sync.Mutex
	offers  []models.Offer
	err     error
	queries int
	logs    []models.SearchLog
}

func (f *fakeOfferStore) FindActiveOffers(ctx context.Context, params models.SearchParams) ([]models.Offer, error) {
	f.mutex.Lock()
	f.queries++
	f.mutex.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Offer
	for _, offer := range f.offers {
		if params.Make != nil && !containsFold(offer.Make, *params.Make) {
			continue
		}
		if params.Model != nil && !containsFold(offer.Model, *params.Model) {
			continue
		}
		out = append(out, offer)
	}
	return out, nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func (f *fakeOfferStore) LogSearch(ctx context.Context, entry models.SearchLog) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.logs = append(f.logs, entry)
}

func (f *fakeOfferStore) queryCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.queries
}

func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func offerWith(model string, payment *float64, confidence float64) models.Offer {
	return models.Offer{
		Model:           model,
		Make:            "Toyota",
		OfferType:       models.OfferTypeLease,
		MonthlyPayment:  payment,
		ConfidenceScore: confidence,
		Active:          true,
	}
}

func newTestSearch(store OfferStore) *SearchService {
	return NewSearchService(store, NewCacheService(time.Minute, 50))
}

func TestSearchSortsByPaymentWithConfidenceTieBreak(t *testing.T) {
	store := &fakeOfferStore{offers: []models.Offer{
		offerWith("Camry", floatPtr(349), 0.8),
		offerWith("Corolla", floatPtr(249), 0.7),
		offerWith("RAV4", floatPtr(249), 0.95),
		offerWith("Tundra", nil, 0.99),
	}}
	search := newTestSearch(store)

	response, cached, err := search.Search(context.Background(), models.SearchParams{})
	require.NoError(t, err)
	assert.False(t, cached)
	require.Len(t, response.Offers, 4)

	// Equal payments rank by confidence; missing payment sorts last
	assert.Equal(t, "RAV4", response.Offers[0].Model)
	assert.Equal(t, "Corolla", response.Offers[1].Model)
	assert.Equal(t, "Camry", response.Offers[2].Model)
	assert.Equal(t, "Tundra", response.Offers[3].Model)
}

func TestSearchModelFilterMatchesSubstring(t *testing.T) {
	store := &fakeOfferStore{offers: []models.Offer{
		offerWith("Corolla", floatPtr(249), 0.8),
		offerWith("Corolla Cross", floatPtr(299), 0.8),
		offerWith("Camry", floatPtr(329), 0.8),
	}}
	search := newTestSearch(store)

	response, _, err := search.Search(context.Background(), models.SearchParams{Model: strPtr("corolla")})
	require.NoError(t, err)
	require.Len(t, response.Offers, 2, "Corolla also matches Corolla Cross")

	response, _, err = search.Search(context.Background(), models.SearchParams{Model: strPtr("Cross")})
	require.NoError(t, err)
	require.Len(t, response.Offers, 1)
	assert.Equal(t, "Corolla Cross", response.Offers[0].Model)
}

func TestSearchSortsByConfidence(t *testing.T) {
	store := &fakeOfferStore{offers: []models.Offer{
		offerWith("Camry", floatPtr(349), 0.8),
		offerWith("RAV4", floatPtr(449), 0.95),
	}}
	search := newTestSearch(store)

	response, _, err := search.Search(context.Background(), models.SearchParams{SortBy: models.SortByConfidence})
	require.NoError(t, err)
	assert.Equal(t, "RAV4", response.Offers[0].Model)
}

func TestSearchAppliesLimitAndCap(t *testing.T) {
	var offers []models.Offer
	for i := 0; i < 80; i++ {
		offers = append(offers, offerWith("Camry", floatPtr(float64(200+i)), 0.8))
	}
	store := &fakeOfferStore{offers: offers}
	search := newTestSearch(store)

	response, _, err := search.Search(context.Background(), models.SearchParams{})
	require.NoError(t, err)
	assert.Len(t, response.Offers, models.DefaultSearchLimit)

	response, _, err = search.Search(context.Background(), models.SearchParams{Limit: 500})
	require.NoError(t, err)
	assert.Len(t, response.Offers, models.MaxSearchLimit)
}

func TestSearchCacheHitSkipsStore(t *testing.T) {
	store := &fakeOfferStore{offers: []models.Offer{offerWith("Camry", floatPtr(299), 0.8)}}
	search := newTestSearch(store)

	_, cached, err := search.Search(context.Background(), models.SearchParams{Make: strPtr("Toyota")})
	require.NoError(t, err)
	assert.False(t, cached)

	response, cached, err := search.Search(context.Background(), models.SearchParams{Make: strPtr("Toyota")})
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 1, response.Total)
	assert.Equal(t, 1, store.queryCount(), "second identical search must come from cache")
}

func TestSearchMissesAfterInvalidation(t *testing.T) {
	store := &fakeOfferStore{offers: []models.Offer{offerWith("RAV4", floatPtr(329), 0.9)}}
	cache := NewCacheService(time.Minute, 50)
	search := NewSearchService(store, cache)

	model := "RAV4"
	payment := 350.0
	params := models.SearchParams{Model: &model, MaxMonthlyPayment: &payment}

	_, cached, err := search.Search(context.Background(), params)
	require.NoError(t, err)
	assert.False(t, cached)

	cache.Clear()

	_, cached, err = search.Search(context.Background(), params)
	require.NoError(t, err)
	assert.False(t, cached, "invalidation guarantees the next search hits the store")
	assert.Equal(t, 2, store.queryCount())
}

func TestSearchCacheKeyIgnoresFilterOrder(t *testing.T) {
	search := newTestSearch(&fakeOfferStore{})

	a := search.NormalizeParams(models.SearchParams{Make: strPtr("Toyota"), MaxMonthlyPayment: floatPtr(400)})
	b := search.NormalizeParams(models.SearchParams{MaxMonthlyPayment: floatPtr(400), Make: strPtr("toyota")})

	assert.Equal(t, search.CacheKey(a), search.CacheKey(b))
}

func TestSearchCacheKeyDistinguishesTuples(t *testing.T) {
	search := newTestSearch(&fakeOfferStore{})

	a := search.NormalizeParams(models.SearchParams{Make: strPtr("Toyota")})
	b := search.NormalizeParams(models.SearchParams{Make: strPtr("Honda")})
	c := search.NormalizeParams(models.SearchParams{Make: strPtr("Toyota"), Limit: 20})

	assert.NotEqual(t, search.CacheKey(a), search.CacheKey(b))
	assert.NotEqual(t, search.CacheKey(a), search.CacheKey(c))
}

func TestSearchEmptyResultIsNotAnError(t *testing.T) {
	search := newTestSearch(&fakeOfferStore{})

	response, _, err := search.Search(context.Background(), models.SearchParams{})
	require.NoError(t, err)
	assert.Equal(t, 0, response.Total)
	assert.NotNil(t, response.Offers)
}

func TestSearchStoreOutageSurfacesAsUnavailable(t *testing.T) {
	store := &fakeOfferStore{err: shared.NewServiceUnavailableError("OfferService", "find_active_offers", errors.New("connection refused"))}
	search := newTestSearch(store)

	_, _, err := search.Search(context.Background(), models.SearchParams{})
	require.Error(t, err)
	assert.True(t, shared.IsServiceUnavailable(err))
}

func TestSearchFiltersAppliedEchoesSetFilters(t *testing.T) {
	store := &fakeOfferStore{offers: []models.Offer{offerWith("Camry", floatPtr(299), 0.8)}}
	search := newTestSearch(store)

	response, _, err := search.Search(context.Background(), models.SearchParams{
		Make:              strPtr("Toyota"),
		MaxMonthlyPayment: floatPtr(400),
	})
	require.NoError(t, err)
	assert.Equal(t, "Toyota", response.FiltersApplied["make"])
	assert.Equal(t, 400.0, response.FiltersApplied["max_monthly_payment"])
	assert.NotContains(t, response.FiltersApplied, "model")
}

func TestValidateParams(t *testing.T) {
	search := newTestSearch(&fakeOfferStore{})

	assert.Empty(t, search.ValidateParams(models.SearchParams{}))

	bad := models.SearchParams{
		OfferType:         strPtr("rental"),
		MaxMonthlyPayment: floatPtr(-10),
		SortBy:            "price",
	}
	problems := search.ValidateParams(bad)
	assert.Len(t, problems, 3)

	min, max := 48, 36
	crossed := models.SearchParams{MinTermMonths: &min, MaxTermMonths: &max}
	problems = search.ValidateParams(crossed)
	require.Len(t, problems, 1)
	assert.True(t, strings.Contains(problems[0], "min_term_months"))
}

func TestNormalizeParamsDefaults(t *testing.T) {
	search := newTestSearch(&fakeOfferStore{})

	params := search.NormalizeParams(models.SearchParams{OfferType: strPtr("LEASE")})
	assert.Equal(t, models.DefaultSearchLimit, params.Limit)
	assert.Equal(t, models.SortByMonthlyPayment, params.SortBy)
	assert.Equal(t, "lease", *params.OfferType)
}
