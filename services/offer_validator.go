package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cardealsai/cardeals-backend/config"
	"github.com/cardealsai/cardeals-backend/models"
	"github.com/sirupsen/logrus"
)

// Validation bounds for commercial terms. Bounds are inclusive.
const (
	MinMonthlyPayment = 50.0
	MaxMonthlyPayment = 2000.0
	MinDownPayment    = 0.0
	MaxDownPayment    = 20000.0
	MinConfidence     = 0.5
)

// ValidTermMonths is the enumerated set of lease/finance term lengths.
var ValidTermMonths = []int{24, 27, 30, 33, 36, 39, 42, 48, 60, 72}

// termSnapTolerance is how far an extracted term may sit from an
// enumerated value and still be snapped to it instead of rejected.
const termSnapTolerance = 3

// modelVariations maps common extraction spellings to canonical model
// names. Checked after exact and substring vocabulary matching.
var modelVariations = map[string]string{
	// Toyota
	"rav 4":            "RAV4",
	"rav-4":            "RAV4",
	"4 runner":         "4Runner",
	"4-runner":         "4Runner",
	"gr 86":            "GR86",
	"gr-86":            "GR86",
	"gr supra":         "GR Supra",
	"gr-supra":         "GR Supra",
	"corolla cross":    "Corolla Cross",
	"grand highlander": "Grand Highlander",
	"land cruiser":     "Land Cruiser",
	// Honda
	"cr-v": "CR-V",
	"crv":  "CR-V",
	"hr-v": "HR-V",
	"hrv":  "HR-V",
	// Tesla
	"model3": "Model 3",
	"modely": "Model Y",
	"models": "Model S",
	"modelx": "Model X",
}

// OfferValidator applies domain rules to candidate offers and
// canonicalizes the fields of those that pass. Extractor output is
// machine-generated and untrusted; nothing reaches the reconciler
// without going through here.
type OfferValidator struct {
	knownModels []string
	validMakes  []string
	now         func() time.Time
}

// NewOfferValidator creates a validator over the configured vehicle
// vocabulary.
func NewOfferValidator() *OfferValidator {
	return &OfferValidator{
		knownModels: config.AllModels,
		validMakes:  config.ValidMakes,
		now:         time.Now,
	}
}

// ValidateOffer checks every domain rule against a candidate. It returns
// the list of field-level failures; an empty list means the candidate is
// acceptable. A failed candidate is dropped and logged, never fatal to
// the batch.
func (v *OfferValidator) ValidateOffer(candidate models.CandidateOffer) []string {
	var errors []string

	if candidate.Model == "" {
		errors = append(errors, "missing model")
	}

	if candidate.Year == nil {
		errors = append(errors, "missing year")
	} else {
		currentYear := v.now().Year()
		if *candidate.Year != currentYear && *candidate.Year != currentYear+1 {
			errors = append(errors, fmt.Sprintf("invalid year: %d", *candidate.Year))
		}
	}

	if candidate.MonthlyPayment != nil {
		payment := *candidate.MonthlyPayment
		if payment < MinMonthlyPayment || payment > MaxMonthlyPayment {
			errors = append(errors, fmt.Sprintf("monthly_payment out of range: %.2f", payment))
		}
	}

	if candidate.DownPayment != nil {
		down := *candidate.DownPayment
		if down < MinDownPayment || down > MaxDownPayment {
			errors = append(errors, fmt.Sprintf("down_payment out of range: %.2f", down))
		}
	}

	if candidate.TermMonths != nil {
		if _, ok := snapTermMonths(*candidate.TermMonths); !ok {
			errors = append(errors, fmt.Sprintf("invalid term_months: %d", *candidate.TermMonths))
		}
	}

	if candidate.Model != "" {
		if v.NormalizeModelName(candidate.Model) == "" {
			errors = append(errors, fmt.Sprintf("unknown model: %s", candidate.Model))
		}
	}

	if candidate.Confidence < MinConfidence {
		errors = append(errors, fmt.Sprintf("confidence too low: %.2f", candidate.Confidence))
	}

	offerType := candidate.OfferType
	if offerType != models.OfferTypeLease && offerType != models.OfferTypeFinance {
		errors = append(errors, fmt.Sprintf("invalid offer_type: %s", offerType))
	}

	return errors
}

// CleanOffer canonicalizes a candidate that passed ValidateOffer into the
// shape the reconciler persists. Optional fields stay nil when the page
// did not state them; zero is a valid price component and is preserved.
func (v *OfferValidator) CleanOffer(candidate models.CandidateOffer) models.ValidatedOffer {
	cleaned := models.ValidatedOffer{
		Make:             v.NormalizeMake(candidate.Make),
		Trim:             candidate.Trim,
		MonthlyPayment:   candidate.MonthlyPayment,
		DownPayment:      candidate.DownPayment,
		AnnualMileage:    candidate.AnnualMileage,
		APR:              candidate.APR,
		MSRP:             candidate.MSRP,
		SellingPrice:     candidate.SellingPrice,
		OfferEndDate:     candidate.OfferEndDate,
		Disclaimer:       candidate.Disclaimer,
		ImageURL:         candidate.ImageURL,
		SourceAnchor:     candidate.SourceAnchor,
		Confidence:       candidate.Confidence,
		ExtractionMethod: candidate.ExtractionMethod,
	}

	if candidate.Year != nil {
		cleaned.Year = *candidate.Year
	} else {
		cleaned.Year = v.now().Year()
	}

	if normalized := v.NormalizeModelName(candidate.Model); normalized != "" {
		cleaned.Model = normalized
	} else {
		cleaned.Model = candidate.Model
	}

	offerType := strings.ToLower(candidate.OfferType)
	if offerType == models.OfferTypeFinance {
		cleaned.OfferType = models.OfferTypeFinance
	} else {
		cleaned.OfferType = models.OfferTypeLease
	}

	if candidate.TermMonths != nil {
		if snapped, ok := snapTermMonths(*candidate.TermMonths); ok {
			cleaned.TermMonths = &snapped
		}
	}

	if cleaned.ExtractionMethod == "" {
		cleaned.ExtractionMethod = models.ExtractionMethodLLM
	}

	// Keep the original extraction payload for audit
	if raw, err := json.Marshal(candidate); err == nil {
		cleaned.RawExtractedData = raw
	}

	return cleaned
}

// ValidateBatch runs every candidate through validation and returns the
// cleaned survivors. Rejections are logged with their field reasons.
func (v *OfferValidator) ValidateBatch(dealerName string, candidates []models.CandidateOffer) []models.ValidatedOffer {
	var valid []models.ValidatedOffer

	for _, candidate := range candidates {
		if errors := v.ValidateOffer(candidate); len(errors) > 0 {
			logrus.WithFields(logrus.Fields{
				"dealer": dealerName,
				"model":  candidate.Model,
				"errors": errors,
			}).Debug("Rejected candidate offer")
			continue
		}
		valid = append(valid, v.CleanOffer(candidate))
	}

	logrus.WithFields(logrus.Fields{
		"dealer":   dealerName,
		"accepted": len(valid),
		"rejected": len(candidates) - len(valid),
	}).Info("Validated candidate offers")

	return valid
}

// NormalizeModelName resolves an extracted model string against the
// known vocabulary, case-insensitively and through the variation table.
// Returns the canonical name, or "" when the model is not recognized.
func (v *OfferValidator) NormalizeModelName(model string) string {
	if model == "" {
		return ""
	}

	modelLower := strings.ToLower(strings.TrimSpace(model))

	for _, known := range v.knownModels {
		knownLower := strings.ToLower(known)
		if knownLower == modelLower {
			return known
		}
		if strings.Contains(knownLower, modelLower) || strings.Contains(modelLower, knownLower) {
			return known
		}
	}

	for variation, normalized := range modelVariations {
		if strings.Contains(modelLower, variation) {
			return normalized
		}
	}

	return ""
}

// NormalizeMake canonicalizes a make name, title-casing unknown makes
// rather than rejecting them.
func (v *OfferValidator) NormalizeMake(make string) string {
	if make == "" {
		return "Toyota"
	}
	makeLower := strings.ToLower(strings.TrimSpace(make))
	for _, valid := range v.validMakes {
		if strings.ToLower(valid) == makeLower {
			return valid
		}
	}
	return strings.ToUpper(makeLower[:1]) + makeLower[1:]
}

// snapTermMonths returns the enumerated term for an extracted value,
// snapping to the nearest entry when within termSnapTolerance months.
func snapTermMonths(term int) (int, bool) {
	closest := ValidTermMonths[0]
	for _, valid := range ValidTermMonths {
		if abs(valid-term) < abs(closest-term) {
			closest = valid
		}
	}
	if abs(closest-term) <= termSnapTolerance {
		return closest, true
	}
	return 0, false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
