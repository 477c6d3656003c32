package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Offer type values accepted by the validator and the search API.
const (
	OfferTypeLease   = "lease"
	OfferTypeFinance = "finance"
)

// Extraction method tags recorded on persisted offers.
const (
	ExtractionMethodCSS = "css"
	ExtractionMethodLLM = "llm_html"
)

// CandidateOffer is the unvalidated output of either extractor. Model
// output is untrusted machine-generated data, so every field stays
// optional until the validator has looked at it. Pointer fields mark
// "not stated on the page" explicitly; zero is a legitimate value for
// the money fields and must not double as absence.
type CandidateOffer struct {
	Year             *int     `json:"year"`
	Make             string   `json:"make"`
	Model            string   `json:"model"`
	Trim             *string  `json:"trim"`
	OfferType        string   `json:"offer_type"`
	MonthlyPayment   *float64 `json:"monthly_payment"`
	DownPayment      *float64 `json:"down_payment"`
	TermMonths       *int     `json:"term_months"`
	AnnualMileage    *int     `json:"annual_mileage"`
	APR              *float64 `json:"apr"`
	MSRP             *float64 `json:"msrp"`
	SellingPrice     *float64 `json:"selling_price"`
	OfferEndDate     *string  `json:"offer_end_date"`
	Disclaimer       *string  `json:"disclaimer"`
	ImageURL         *string  `json:"image_url"`
	SourceAnchor     *string  `json:"source_anchor"`
	Confidence       float64  `json:"confidence"`
	ExtractionMethod string   `json:"extraction_method"`
}

// ValidatedOffer is a CandidateOffer that passed every validation rule,
// with normalized fields ready for the reconciler.
type ValidatedOffer struct {
	Year             int      `json:"year"`
	Make             string   `json:"make"`
	Model            string   `json:"model"`
	Trim             *string  `json:"trim"`
	OfferType        string   `json:"offer_type"`
	MonthlyPayment   *float64 `json:"monthly_payment"`
	DownPayment      *float64 `json:"down_payment"`
	TermMonths       *int     `json:"term_months"`
	AnnualMileage    *int     `json:"annual_mileage"`
	APR              *float64 `json:"apr"`
	MSRP             *float64 `json:"msrp"`
	SellingPrice     *float64 `json:"selling_price"`
	OfferEndDate     *string  `json:"offer_end_date"`
	Disclaimer       *string  `json:"disclaimer"`
	ImageURL         *string  `json:"image_url"`
	SourceAnchor     *string  `json:"source_anchor"`
	Confidence       float64  `json:"confidence"`
	ExtractionMethod string   `json:"extraction_method"`
	RawExtractedData json.RawMessage `json:"raw_extracted_data"`
}

// Offer is the persisted entity. Immutable once written except for the
// active flag and updated_at; history is kept via the active flag.
type Offer struct {
	ID       uuid.UUID `json:"id"`
	DealerID uuid.UUID `json:"dealer_id"`

	Year  int     `json:"year"`
	Make  string  `json:"make"`
	Model string  `json:"model"`
	Trim  *string `json:"trim"`

	OfferType      string   `json:"offer_type"`
	MonthlyPayment *float64 `json:"monthly_payment"`
	DownPayment    *float64 `json:"down_payment"`
	TermMonths     *int     `json:"term_months"`
	AnnualMileage  *int     `json:"annual_mileage"`
	APR            *float64 `json:"apr"`
	MSRP           *float64 `json:"msrp"`
	SellingPrice   *float64 `json:"selling_price"`

	OfferEndDate *string `json:"offer_end_date"`
	Disclaimer   *string `json:"disclaimer"`

	SourceURL *string `json:"source_url"`
	ImageURL  *string `json:"image_url"`

	ConfidenceScore  float64         `json:"confidence_score"`
	ExtractionMethod string          `json:"extraction_method"`
	RawExtractedData json.RawMessage `json:"raw_extracted_data,omitempty"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Dealer display fields joined at query time
	DealerName string  `json:"dealer_name,omitempty"`
	DealerCity *string `json:"dealer_city,omitempty"`
}

// RawFetchResult is the page payload for one fetch. Ephemeral: it lives
// for a single ingestion cycle and is never persisted beyond logs.
type RawFetchResult struct {
	HTML       string
	Strategy   string // "http" or "browser"
	StatusCode int
	ByteLength int
	FetchedAt  time.Time
}

// ReconcileReport summarizes one per-dealer active-generation swap.
type ReconcileReport struct {
	Deactivated int `json:"deactivated"`
	Inserted    int `json:"inserted"`
}
