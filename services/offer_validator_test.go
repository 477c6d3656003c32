package services

import (
	"testing"
	"time"

	"github.com/cardealsai/cardeals-backend/models"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClockValidator() *OfferValidator {
	v := NewOfferValidator()
	v.now = func() time.Time {
		return time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	}
	return v
}

func validCandidate() models.CandidateOffer {
	year := 2026
	payment := 299.0
	down := 2999.0
	term := 36
	return models.CandidateOffer{
		Year:           &year,
		Make:           "Toyota",
		Model:          "Camry",
		OfferType:      models.OfferTypeLease,
		MonthlyPayment: &payment,
		DownPayment:    &down,
		TermMonths:     &term,
		Confidence:     0.85,
	}
}

func TestValidateOfferAcceptsCompleteCandidate(t *testing.T) {
	v := fixedClockValidator()
	assert.Empty(t, v.ValidateOffer(validCandidate()))
}

func TestValidateOfferMonthlyPaymentBounds(t *testing.T) {
	v := fixedClockValidator()

	cases := []struct {
		payment float64
		valid   bool
	}{
		{49.99, false},
		{50.00, true},
		{299.00, true},
		{2000.00, true},
		{2000.01, false},
	}

	for _, tc := range cases {
		candidate := validCandidate()
		candidate.MonthlyPayment = &tc.payment
		errors := v.ValidateOffer(candidate)
		if tc.valid {
			assert.Empty(t, errors, "payment %.2f should pass", tc.payment)
		} else {
			assert.NotEmpty(t, errors, "payment %.2f should fail", tc.payment)
		}
	}
}

func TestValidateOfferDownPaymentBounds(t *testing.T) {
	v := fixedClockValidator()

	zero := 0.0
	candidate := validCandidate()
	candidate.DownPayment = &zero
	assert.Empty(t, v.ValidateOffer(candidate), "zero down is a real offer structure")

	over := 20000.01
	candidate = validCandidate()
	candidate.DownPayment = &over
	assert.NotEmpty(t, v.ValidateOffer(candidate))
}

func TestValidateOfferYearWindow(t *testing.T) {
	v := fixedClockValidator()

	for year, valid := range map[int]bool{2025: false, 2026: true, 2027: true, 2028: false} {
		candidate := validCandidate()
		candidate.Year = &year
		errors := v.ValidateOffer(candidate)
		if valid {
			assert.Empty(t, errors, "year %d", year)
		} else {
			assert.NotEmpty(t, errors, "year %d", year)
		}
	}

	candidate := validCandidate()
	candidate.Year = nil
	assert.NotEmpty(t, v.ValidateOffer(candidate))
}

func TestValidateOfferConfidenceFloor(t *testing.T) {
	v := fixedClockValidator()

	candidate := validCandidate()
	candidate.Confidence = 0.49
	assert.NotEmpty(t, v.ValidateOffer(candidate))

	candidate.Confidence = 0.50
	assert.Empty(t, v.ValidateOffer(candidate))
}

func TestValidateOfferRejectsUnknownModel(t *testing.T) {
	v := fixedClockValidator()

	candidate := validCandidate()
	candidate.Model = "Flying Carpet"
	assert.NotEmpty(t, v.ValidateOffer(candidate))
}

func TestValidateOfferOptionalFieldsMayBeNil(t *testing.T) {
	v := fixedClockValidator()

	candidate := validCandidate()
	candidate.MonthlyPayment = nil
	candidate.DownPayment = nil
	candidate.TermMonths = nil
	assert.Empty(t, v.ValidateOffer(candidate), "absent commercial terms are not a failure")
}

func TestSnapTermMonths(t *testing.T) {
	cases := []struct {
		input   int
		want    int
		snapped bool
	}{
		{36, 36, true},
		{35, 36, true},
		{37, 36, true},
		{38, 39, true},
		{26, 27, true},
		{75, 72, true},
		{12, 0, false},
		{90, 0, false},
	}

	for _, tc := range cases {
		got, ok := snapTermMonths(tc.input)
		assert.Equal(t, tc.snapped, ok, "term %d", tc.input)
		if tc.snapped {
			assert.Equal(t, tc.want, got, "term %d", tc.input)
		}
	}
}

func TestNormalizeModelName(t *testing.T) {
	v := fixedClockValidator()

	cases := map[string]string{
		"Camry":       "Camry",
		"camry":       "Camry",
		"RAV 4":       "RAV4",
		"rav-4":       "RAV4",
		"CRV":         "CR-V",
		"cr-v hybrid": "CR-V Hybrid",
		"Model3":      "Model 3",
		"Gibberish":   "",
	}

	for input, want := range cases {
		assert.Equal(t, want, v.NormalizeModelName(input), "input %q", input)
	}
}

func TestNormalizeMake(t *testing.T) {
	v := fixedClockValidator()

	assert.Equal(t, "Toyota", v.NormalizeMake("toyota"))
	assert.Equal(t, "Honda", v.NormalizeMake("HONDA"))
	assert.Equal(t, "Subaru", v.NormalizeMake("subaru"))
	assert.Equal(t, "Toyota", v.NormalizeMake(""))
}

func TestCleanOfferNormalizesAndPreservesRaw(t *testing.T) {
	v := fixedClockValidator()

	candidate := validCandidate()
	candidate.Model = "rav 4"
	candidate.Make = "toyota"
	candidate.OfferType = "Lease"
	term := 35
	candidate.TermMonths = &term

	cleaned := v.CleanOffer(candidate)
	assert.Equal(t, "RAV4", cleaned.Model)
	assert.Equal(t, "Toyota", cleaned.Make)
	assert.Equal(t, models.OfferTypeLease, cleaned.OfferType)
	require.NotNil(t, cleaned.TermMonths)
	assert.Equal(t, 36, *cleaned.TermMonths)
	assert.NotEmpty(t, cleaned.RawExtractedData, "original extraction payload must survive cleaning")
}

func TestCleanOfferPreservesZeroDownPayment(t *testing.T) {
	v := fixedClockValidator()

	zero := 0.0
	candidate := validCandidate()
	candidate.DownPayment = &zero

	cleaned := v.CleanOffer(candidate)
	require.NotNil(t, cleaned.DownPayment)
	assert.Equal(t, 0.0, *cleaned.DownPayment)
}

func TestValidateBatchDropsOnlyFailures(t *testing.T) {
	v := fixedClockValidator()

	bad := validCandidate()
	bad.Confidence = 0.2

	batch := []models.CandidateOffer{validCandidate(), bad, validCandidate()}
	valid := v.ValidateBatch("Test Dealer", batch)
	assert.Len(t, valid, 2)
}

func TestMonthlyPaymentBoundsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	v := fixedClockValidator()

	properties.Property("payments inside the bounds always pass", prop.ForAll(
		func(payment float64) bool {
			candidate := validCandidate()
			candidate.MonthlyPayment = &payment
			return len(v.ValidateOffer(candidate)) == 0
		},
		gen.Float64Range(MinMonthlyPayment, MaxMonthlyPayment),
	))

	properties.Property("payments outside the bounds always fail", prop.ForAll(
		func(payment float64) bool {
			candidate := validCandidate()
			candidate.MonthlyPayment = &payment
			return len(v.ValidateOffer(candidate)) > 0
		},
		gen.OneGenOf(
			gen.Float64Range(0.01, MinMonthlyPayment-0.01),
			gen.Float64Range(MaxMonthlyPayment+0.01, 100000),
		),
	))

	properties.Property("snapped terms are always members of the valid set", prop.ForAll(
		func(term int) bool {
			snapped, ok := snapTermMonths(term)
			if !ok {
				return true
			}
			for _, valid := range ValidTermMonths {
				if snapped == valid {
					return true
				}
			}
			return false
		},
		gen.IntRange(1, 120),
	))

	properties.TestingRun(t)
}
