package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cardealsai/cardeals-backend/models"
	"github.com/sirupsen/logrus"
)

// OfferStore is the persistence slice the search layer depends on. The
// production implementation is OfferService; tests supply an in-memory
// store.
type OfferStore interface {
	FindActiveOffers(ctx context.Context, params models.SearchParams) ([]models.Offer, error)
	LogSearch(ctx context.Context, entry models.SearchLog)
}

// SearchService answers offer searches for both the public endpoint and
// the agent tool, through one cache. Identical filter tuples from either
// consumer hit the same cache entry, so ordering and limiting happen
// in-service rather than per-caller.
type SearchService struct {
	store OfferStore
	cache *CacheService
}

// NewSearchService creates the search layer over a store and cache.
func NewSearchService(store OfferStore, cache *CacheService) *SearchService {
	return &SearchService{store: store, cache: cache}
}

// ValidateParams returns field-level problems with a raw filter tuple.
// An empty list means the params are usable after NormalizeParams.
func (s *SearchService) ValidateParams(params models.SearchParams) []string {
	var problems []string

	if params.OfferType != nil {
		offerType := strings.ToLower(*params.OfferType)
		if offerType != models.OfferTypeLease && offerType != models.OfferTypeFinance {
			problems = append(problems, fmt.Sprintf("offer_type must be %q or %q", models.OfferTypeLease, models.OfferTypeFinance))
		}
	}
	if params.MaxMonthlyPayment != nil && *params.MaxMonthlyPayment <= 0 {
		problems = append(problems, "max_monthly_payment must be positive")
	}
	if params.MaxDownPayment != nil && *params.MaxDownPayment < 0 {
		problems = append(problems, "max_down_payment must not be negative")
	}
	if params.MinTermMonths != nil && *params.MinTermMonths <= 0 {
		problems = append(problems, "min_term_months must be positive")
	}
	if params.MaxTermMonths != nil && *params.MaxTermMonths <= 0 {
		problems = append(problems, "max_term_months must be positive")
	}
	if params.MinTermMonths != nil && params.MaxTermMonths != nil && *params.MinTermMonths > *params.MaxTermMonths {
		problems = append(problems, "min_term_months must not exceed max_term_months")
	}
	if params.Limit < 0 {
		problems = append(problems, "limit must not be negative")
	}
	if params.SortBy != "" &&
		params.SortBy != models.SortByMonthlyPayment &&
		params.SortBy != models.SortByConfidence &&
		params.SortBy != models.SortByDownPayment {
		problems = append(problems, "sort_by must be one of monthly_payment, confidence_score, down_payment")
	}

	return problems
}

// NormalizeParams applies defaults and caps so equivalent requests
// produce identical tuples, and therefore identical cache keys.
func (s *SearchService) NormalizeParams(params models.SearchParams) models.SearchParams {
	if params.Limit <= 0 {
		params.Limit = models.DefaultSearchLimit
	}
	if params.Limit > models.MaxSearchLimit {
		params.Limit = models.MaxSearchLimit
	}
	if params.SortBy == "" {
		params.SortBy = models.SortByMonthlyPayment
	}
	if params.OfferType != nil {
		lowered := strings.ToLower(*params.OfferType)
		params.OfferType = &lowered
	}
	return params
}

// CacheKey derives the canonical cache key for a normalized tuple:
// alphabetically ordered key=value pairs of the set filters plus limit
// and sort, so filter order at the call site is irrelevant.
func (s *SearchService) CacheKey(params models.SearchParams) string {
	pairs := []string{
		fmt.Sprintf("limit=%d", params.Limit),
		fmt.Sprintf("sort_by=%s", params.SortBy),
	}
	if params.Make != nil {
		pairs = append(pairs, "make="+strings.ToLower(*params.Make))
	}
	if params.Model != nil {
		pairs = append(pairs, "model="+strings.ToLower(*params.Model))
	}
	if params.OfferType != nil {
		pairs = append(pairs, "offer_type="+*params.OfferType)
	}
	if params.MaxMonthlyPayment != nil {
		pairs = append(pairs, fmt.Sprintf("max_monthly_payment=%.2f", *params.MaxMonthlyPayment))
	}
	if params.MaxDownPayment != nil {
		pairs = append(pairs, fmt.Sprintf("max_down_payment=%.2f", *params.MaxDownPayment))
	}
	if params.MinTermMonths != nil {
		pairs = append(pairs, fmt.Sprintf("min_term_months=%d", *params.MinTermMonths))
	}
	if params.MaxTermMonths != nil {
		pairs = append(pairs, fmt.Sprintf("max_term_months=%d", *params.MaxTermMonths))
	}

	sort.Strings(pairs)
	return "search:" + strings.Join(pairs, "&")
}

// Search runs one cached offer search. The bool reports a cache hit.
// Zero matches is a normal response; a store failure is an error the
// caller must distinguish from empty.
func (s *SearchService) Search(ctx context.Context, params models.SearchParams) (*models.SearchResponse, bool, error) {
	params = s.NormalizeParams(params)
	key := s.CacheKey(params)

	if cached, ok := s.cache.Get(key); ok {
		if response, ok := cached.(*models.SearchResponse); ok {
			logrus.WithField("cache_key", key).Debug("Search cache hit")
			go s.store.LogSearch(context.WithoutCancel(ctx), models.SearchLog{
				Params: params, ResultsCount: response.Total, Cached: true,
			})
			return response, true, nil
		}
	}

	offers, err := s.store.FindActiveOffers(ctx, params)
	if err != nil {
		return nil, false, err
	}

	sortOffers(offers, params.SortBy)
	if len(offers) > params.Limit {
		offers = offers[:params.Limit]
	}
	if offers == nil {
		offers = []models.Offer{}
	}

	response := &models.SearchResponse{
		Offers:         offers,
		Total:          len(offers),
		FiltersApplied: filtersApplied(params),
	}

	s.cache.Set(key, response)
	go s.store.LogSearch(context.WithoutCancel(ctx), models.SearchLog{
		Params: params, ResultsCount: response.Total, Cached: false,
	})

	return response, false, nil
}

// sortOffers orders results deterministically. Offers without a value
// for the sort field rank last; ties break on confidence so the most
// trustworthy extraction leads.
func sortOffers(offers []models.Offer, sortBy string) {
	sort.SliceStable(offers, func(i, j int) bool {
		a, b := offers[i], offers[j]

		switch sortBy {
		case models.SortByConfidence:
			if a.ConfidenceScore != b.ConfidenceScore {
				return a.ConfidenceScore > b.ConfidenceScore
			}
			return lessFloatPtrAsc(a.MonthlyPayment, b.MonthlyPayment)

		case models.SortByDownPayment:
			if cmp := compareFloatPtrAsc(a.DownPayment, b.DownPayment); cmp != 0 {
				return cmp < 0
			}
			return a.ConfidenceScore > b.ConfidenceScore

		default: // monthly_payment
			if cmp := compareFloatPtrAsc(a.MonthlyPayment, b.MonthlyPayment); cmp != 0 {
				return cmp < 0
			}
			return a.ConfidenceScore > b.ConfidenceScore
		}
	})
}

// compareFloatPtrAsc orders ascending with nil last.
func compareFloatPtrAsc(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	default:
		return 0
	}
}

func lessFloatPtrAsc(a, b *float64) bool {
	return compareFloatPtrAsc(a, b) < 0
}

// filtersApplied reports which filters shaped this result set, echoed in
// responses so both human and agent consumers can see what was applied.
func filtersApplied(params models.SearchParams) map[string]interface{} {
	applied := map[string]interface{}{
		"limit":   params.Limit,
		"sort_by": params.SortBy,
	}
	if params.Make != nil {
		applied["make"] = *params.Make
	}
	if params.Model != nil {
		applied["model"] = *params.Model
	}
	if params.OfferType != nil {
		applied["offer_type"] = *params.OfferType
	}
	if params.MaxMonthlyPayment != nil {
		applied["max_monthly_payment"] = *params.MaxMonthlyPayment
	}
	if params.MaxDownPayment != nil {
		applied["max_down_payment"] = *params.MaxDownPayment
	}
	if params.MinTermMonths != nil {
		applied["min_term_months"] = *params.MinTermMonths
	}
	if params.MaxTermMonths != nil {
		applied["max_term_months"] = *params.MaxTermMonths
	}
	return applied
}
