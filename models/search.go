package models

// Sort keys accepted by the search API.
const (
	SortByMonthlyPayment = "monthly_payment"
	SortByConfidence     = "confidence_score"
	SortByDownPayment    = "down_payment"
)

// Result limit defaults enforced by the search service.
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50
)

// SearchParams is the normalized filter tuple shared by the direct search
// endpoint and the agent tool call. It doubles as the cache key input
// after canonical ordering.
type SearchParams struct {
	Make              *string  `json:"make"`
	Model             *string  `json:"model"`
	MaxMonthlyPayment *float64 `json:"max_monthly_payment"`
	OfferType         *string  `json:"offer_type"`
	MaxDownPayment    *float64 `json:"max_down_payment"`
	MinTermMonths     *int     `json:"min_term_months"`
	MaxTermMonths     *int     `json:"max_term_months"`
	Limit             int      `json:"limit"`
	SortBy            string   `json:"sort_by"`
}

// SearchResponse is the shared response shape for both consumers.
type SearchResponse struct {
	Offers         []Offer                `json:"offers"`
	Total          int                    `json:"total"`
	FiltersApplied map[string]interface{} `json:"filters_applied"`
}

// SearchLog records one search for operational analytics.
type SearchLog struct {
	Params       SearchParams `json:"params"`
	ResultsCount int          `json:"results_count"`
	Cached       bool         `json:"cached"`
}
