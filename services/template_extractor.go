package services

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cardealsai/cardeals-backend/config"
	"github.com/cardealsai/cardeals-backend/models"
	"github.com/sirupsen/logrus"
)

// TemplateKind identifies a recognized dealer-site platform. Dealers on
// a recognized platform are extracted deterministically from selector
// rules; everything else falls through to the model-assisted extractor.
type TemplateKind string

const (
	TemplateOctane        TemplateKind = "octane"
	TemplateDealerOn      TemplateKind = "dealeron_gemini"
	TemplateDealerInspire TemplateKind = "dealerinspire"
	TemplateUnknown       TemplateKind = "unknown"
)

// TemplateRuleSet is the declarative selector rule table for one
// platform. Adding a platform means adding a rule set, not code.
type TemplateRuleSet struct {
	Kind TemplateKind

	// ContainerSelector locates offer cards directly. When empty,
	// TitleSelector hits are used as entry points and the container is
	// found by climbing parents until PriceSelector matches inside.
	ContainerSelector string
	TitleSelector     string
	PriceSelector     string

	// PriceSubtextSelector distinguishes "$299 /month" from "3.9% apr"
	// cards on platforms that mark the unit separately.
	PriceSubtextSelector string

	// TermsSelector and DescriptionSelector scope term and
	// down-payment/expiration parsing; container text is the fallback.
	TermsSelector       string
	DescriptionSelector string

	ImageSelector string

	// AllowTextPayment enables regex payment extraction from the card's
	// full text for platform variants without a price element.
	AllowTextPayment bool

	Confidence float64
}

// templateRules is the closed set of recognized platforms.
var templateRules = map[TemplateKind]TemplateRuleSet{
	TemplateOctane: {
		Kind:                 TemplateOctane,
		TitleSelector:        ".octane-specials-css-vehicle-title, .octane-specials-css-vehicle-slide-title",
		PriceSelector:        ".octane-specials-css-offer-price",
		PriceSubtextSelector: ".octane-specials-css-offer-price-subtext",
		ImageSelector:        `img[src*="vehicle"], img[src*="toyota"], img[alt*="Toyota"]`,
		Confidence:           0.85,
	},
	TemplateDealerOn: {
		Kind:                TemplateDealerOn,
		ContainerSelector:   ".vehicle-specials-banner",
		TitleSelector:       ".vehicle-specials-vehiclename",
		PriceSelector:       ".pricing",
		TermsSelector:       ".terms",
		DescriptionSelector: ".vehicle-description",
		ImageSelector:       `img.img-fluid, img[src*="secureoffersites"]`,
		Confidence:          0.85,
	},
	TemplateDealerInspire: {
		Kind:                TemplateDealerInspire,
		ContainerSelector:   "li.special-offer",
		TitleSelector:       "h2",
		PriceSelector:       ".offerrate",
		DescriptionSelector: ".offerlabel",
		ImageSelector:       "img",
		AllowTextPayment:    true,
		Confidence:          0.85,
	},
}

// templateMarkers map raw-HTML fingerprints to platforms for
// auto-detection when a dealer carries no template tag.
var templateMarkers = []struct {
	Kind    TemplateKind
	Markers []string
}{
	{Kind: TemplateOctane, Markers: []string{"octane-specials-css"}},
	{Kind: TemplateDealerOn, Markers: []string{"vehicle-specials-banner", "vehicle-specials-vehiclename"}},
	{Kind: TemplateDealerInspire, Markers: []string{"special-offer", "offerrate"}},
	{Kind: TemplateDealerInspire, Markers: []string{"special-offer", "offer-content"}},
}

var (
	priceRegex       = regexp.MustCompile(`\$?([\d,]+(?:\.\d{2})?)`)
	termRegex        = regexp.MustCompile(`(?i)(\d+)\s*months?`)
	mileageRegex     = regexp.MustCompile(`(?i)(\d{1,2})[,\s]*000\s*miles?`)
	downRegex        = regexp.MustCompile(`(?i)\$?([\d,]+)\s*(?:cap cost\s*)?(?:due at signing|due at lease signing|at signing)`)
	yearRegex        = regexp.MustCompile(`(202[4-9])`)
	expirationRegex  = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)
	leadingWordRegex = regexp.MustCompile(`(?i)^(new|lease|lease a new|buy a new|lease for)\s+`)
	textPaymentRegex = regexp.MustCompile(`(?i)(?:lease|finance)\s+(?:for\s+)?\$([\d,]+)\s*(?:a\s*month|/mo|per\s*month)`)
	barePaymentRegex = regexp.MustCompile(`(?i)\$([\d,]+)\s*/mo`)
	parenTrailRegex  = regexp.MustCompile(`\s*\(.*\)\s*$`)
	driveTrailRegex  = regexp.MustCompile(`\s+\d+WD\s*$`)
	bodyTrailRegex   = regexp.MustCompile(`(?i)\s*(Sedan|Hatchback|Coupe|SUV)\s*$`)
)

var knownMakes = []string{"Toyota", "Honda", "Tesla", "Hyundai", "Kia", "Nissan", "Ford", "Chevrolet"}

// TemplateExtractorService classifies dealer pages against the
// recognized platform set and runs the matching selector rules.
type TemplateExtractorService struct {
	modelsByLength []string
}

// NewTemplateExtractorService creates the structured extraction service.
func NewTemplateExtractorService() *TemplateExtractorService {
	byLength := make([]string, len(config.AllModels))
	copy(byLength, config.AllModels)
	// Longest names first so "Corolla Cross" wins over "Corolla"
	sort.Slice(byLength, func(i, j int) bool {
		return len(byLength[i]) > len(byLength[j])
	})

	return &TemplateExtractorService{modelsByLength: byLength}
}

// Classify picks the template for a dealer: the registry's platform tag
// wins when it names a recognized template, otherwise the HTML is
// fingerprinted. Unknown is a routine outcome, not an error.
func (s *TemplateExtractorService) Classify(source config.DealerSource, html string) TemplateKind {
	if _, ok := templateRules[TemplateKind(source.Platform)]; ok {
		return TemplateKind(source.Platform)
	}
	return DetectTemplate(html)
}

// DetectTemplate fingerprints raw HTML against the known platform markers.
func DetectTemplate(html string) TemplateKind {
	for _, candidate := range templateMarkers {
		matched := true
		for _, marker := range candidate.Markers {
			if !strings.Contains(html, marker) {
				matched = false
				break
			}
		}
		if matched {
			return candidate.Kind
		}
	}
	return TemplateUnknown
}

// ExtractStructured runs the rule set for kind over the page and returns
// candidate offers. Zero offers is a valid result; the caller falls
// through to the model-assisted extractor.
func (s *TemplateExtractorService) ExtractStructured(html string, kind TemplateKind, baseURL, defaultMake string) []models.CandidateOffer {
	rules, ok := templateRules[kind]
	if !ok {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		logrus.WithError(err).Warn("Failed to parse HTML for structured extraction")
		return nil
	}

	var offers []models.CandidateOffer

	containers := s.findContainers(doc, rules)
	logrus.WithFields(logrus.Fields{
		"template":   kind,
		"containers": len(containers),
	}).Info("Structured extraction located offer containers")

	for _, container := range containers {
		if offer := s.extractFromContainer(container, rules, baseURL, defaultMake); offer != nil {
			offers = append(offers, *offer)
		}
	}

	offers = dedupeCandidates(offers)
	logrus.WithFields(logrus.Fields{
		"template": kind,
		"offers":   len(offers),
	}).Info("Structured extraction complete")

	return offers
}

// findContainers returns one selection per offer card, either directly
// via ContainerSelector or by climbing from title hits to the nearest
// ancestor that holds a price element.
func (s *TemplateExtractorService) findContainers(doc *goquery.Document, rules TemplateRuleSet) []*goquery.Selection {
	var containers []*goquery.Selection

	if rules.ContainerSelector != "" {
		doc.Find(rules.ContainerSelector).Each(func(i int, sel *goquery.Selection) {
			containers = append(containers, sel)
		})
		return containers
	}

	doc.Find(rules.TitleSelector).Each(func(i int, title *goquery.Selection) {
		container := title.Parent()
		for depth := 0; depth < 10 && container.Length() > 0; depth++ {
			if container.Find(rules.PriceSelector).Length() > 0 {
				containers = append(containers, container)
				return
			}
			container = container.Parent()
		}
	})
	return containers
}

// extractFromContainer applies the field rules to one offer card.
func (s *TemplateExtractorService) extractFromContainer(container *goquery.Selection, rules TemplateRuleSet, baseURL, defaultMake string) *models.CandidateOffer {
	titleText := strings.TrimSpace(container.Find(rules.TitleSelector).First().Text())
	fullText := container.Text()

	var monthlyPayment, apr *float64
	offerType := models.OfferTypeLease

	priceEl := container.Find(rules.PriceSelector).First()
	if priceEl.Length() > 0 {
		priceText := strings.TrimSpace(priceEl.Text())
		subtext := ""
		if rules.PriceSubtextSelector != "" {
			subtext = strings.ToLower(strings.TrimSpace(container.Find(rules.PriceSubtextSelector).First().Text()))
		}

		if strings.Contains(subtext, "apr") || strings.Contains(priceText, "%") {
			offerType = models.OfferTypeFinance
			apr = parsePrice(priceText)
		} else {
			monthlyPayment = parsePrice(priceText)
			if !strings.Contains(strings.ToLower(priceText), "lease") &&
				strings.Contains(strings.ToLower(titleText), "finance") {
				offerType = models.OfferTypeFinance
			}
		}
	} else if rules.AllowTextPayment {
		// Text-embedded variant: pricing lives in the card's prose
		match := textPaymentRegex.FindStringSubmatch(fullText)
		if match == nil {
			match = barePaymentRegex.FindStringSubmatch(fullText)
		}
		if match == nil {
			return nil
		}
		monthlyPayment = parsePrice(match[1])
		if !strings.Contains(strings.ToLower(firstChars(fullText, 200)), "lease") {
			offerType = models.OfferTypeFinance
		}
	} else {
		return nil
	}

	if monthlyPayment == nil && apr == nil {
		return nil
	}

	if titleText == "" || len(titleText) < 5 {
		// Fall back to a year-make-model phrase embedded in the text
		if match := yearRegex.FindString(fullText); match != "" {
			idx := strings.Index(fullText, match)
			titleText = firstChars(fullText[idx:], 60)
		}
	}

	year, make, model, trim := s.parseYearMakeModel(titleText, defaultMake)

	descText := fullText
	if rules.DescriptionSelector != "" {
		if scoped := container.Find(rules.DescriptionSelector).First(); scoped.Length() > 0 {
			descText = scoped.Text() + " " + fullText
		}
	}

	var downPayment *float64
	if match := downRegex.FindStringSubmatch(descText); match != nil {
		downPayment = parsePrice(match[1])
	}

	termSource := fullText
	if rules.TermsSelector != "" {
		if scoped := container.Find(rules.TermsSelector).First(); scoped.Length() > 0 {
			termSource = scoped.Text()
		}
	}
	termMonths := parseTermMonths(termSource)
	annualMileage := parseAnnualMileage(fullText)
	expiration := parseExpirationDate(fullText)

	var imageURL *string
	if rules.ImageSelector != "" {
		img := container.Find(rules.ImageSelector).First()
		if src, ok := img.Attr("src"); ok && src != "" {
			resolved := resolveURL(baseURL, src)
			imageURL = &resolved
		} else if src, ok := img.Attr("data-src"); ok && src != "" {
			resolved := resolveURL(baseURL, src)
			imageURL = &resolved
		}
	}

	sourceAnchor := findAnchorID(container)

	var disclaimer *string
	if trimmed := strings.TrimSpace(firstChars(fullText, 500)); trimmed != "" {
		disclaimer = &trimmed
	}

	offer := models.CandidateOffer{
		Make:             make,
		Model:            model,
		Trim:             trim,
		OfferType:        offerType,
		MonthlyPayment:   monthlyPayment,
		DownPayment:      downPayment,
		TermMonths:       termMonths,
		AnnualMileage:    annualMileage,
		APR:              apr,
		OfferEndDate:     expiration,
		Disclaimer:       disclaimer,
		ImageURL:         imageURL,
		SourceAnchor:     sourceAnchor,
		Confidence:       rules.Confidence,
		ExtractionMethod: models.ExtractionMethodCSS,
	}

	if year != nil {
		offer.Year = year
	} else {
		currentYear := time.Now().Year()
		offer.Year = &currentYear
	}

	return &offer
}

// parseYearMakeModel splits text like "New 2026 Toyota Corolla Cross L
// 2WD (Natl)" into its vehicle parts, matching longer model names first.
func (s *TemplateExtractorService) parseYearMakeModel(text, defaultMake string) (*int, string, string, *string) {
	text = strings.TrimSpace(text)
	text = leadingWordRegex.ReplaceAllString(text, "")

	var year *int
	if match := yearRegex.FindStringSubmatch(text); match != nil {
		if parsed, err := strconv.Atoi(match[1]); err == nil {
			year = &parsed
		}
	}

	make := defaultMake
	lowerText := strings.ToLower(text)
	for _, m := range knownMakes {
		if strings.Contains(lowerText, strings.ToLower(m)) {
			make = m
			break
		}
	}

	remainder := yearRegex.ReplaceAllString(text, "")
	for _, m := range knownMakes {
		remainder = regexp.MustCompile(`(?i)`+m+`\s*`).ReplaceAllString(remainder, "")
	}
	remainder = strings.TrimSpace(remainder)

	var model string
	var trim *string

	lowerRemainder := strings.ToLower(remainder)
	for _, known := range s.modelsByLength {
		idx := strings.Index(lowerRemainder, strings.ToLower(known))
		if idx < 0 {
			continue
		}
		model = known
		trimText := strings.TrimSpace(remainder[idx+len(known):])
		trimText = parenTrailRegex.ReplaceAllString(trimText, "")
		trimText = driveTrailRegex.ReplaceAllString(trimText, "")
		trimText = bodyTrailRegex.ReplaceAllString(trimText, "")
		trimText = strings.TrimSpace(trimText)
		if trimText != "" {
			trim = &trimText
		}
		break
	}

	if model == "" {
		words := strings.Fields(remainder)
		if len(words) > 0 {
			model = words[0]
		} else {
			model = "Unknown"
		}
	}

	return year, make, model, trim
}

// parsePrice extracts a numeric amount from text like "$293" or "$2,931.50".
func parsePrice(text string) *float64 {
	if text == "" {
		return nil
	}
	match := priceRegex.FindStringSubmatch(strings.ReplaceAll(text, ",", ""))
	if match == nil {
		return nil
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return nil
	}
	return &value
}

// parseTermMonths extracts a term from text like "39 Months".
func parseTermMonths(text string) *int {
	match := termRegex.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	term, err := strconv.Atoi(match[1])
	if err != nil {
		return nil
	}
	return &term
}

// parseAnnualMileage extracts a yearly mileage cap from text like
// "12,000 miles per year".
func parseAnnualMileage(text string) *int {
	match := mileageRegex.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	thousands, err := strconv.Atoi(match[1])
	if err != nil {
		return nil
	}
	mileage := thousands * 1000
	return &mileage
}

// parseExpirationDate extracts an MM/DD/YYYY date as ISO-8601.
func parseExpirationDate(text string) *string {
	match := expirationRegex.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	month := match[1]
	day := match[2]
	if len(month) == 1 {
		month = "0" + month
	}
	if len(day) == 1 {
		day = "0" + day
	}
	iso := match[3] + "-" + month + "-" + day
	return &iso
}

// findAnchorID walks up from the container looking for an element id
// usable as a deep-link fragment (e.g. "offer-29956").
func findAnchorID(container *goquery.Selection) *string {
	el := container
	for depth := 0; depth < 5 && el.Length() > 0; depth++ {
		if id, ok := el.Attr("id"); ok && id != "" {
			return &id
		}
		el = el.Parent()
	}
	return nil
}

// dedupeCandidates removes duplicate cards on (year, model, payment).
// Carousel platforms render the same offer in several slides.
func dedupeCandidates(offers []models.CandidateOffer) []models.CandidateOffer {
	type offerKey struct {
		Year    int
		Model   string
		Payment float64
	}

	seen := make(map[offerKey]bool)
	var unique []models.CandidateOffer

	for _, offer := range offers {
		key := offerKey{Model: offer.Model}
		if offer.Year != nil {
			key.Year = *offer.Year
		}
		if offer.MonthlyPayment != nil {
			key.Payment = *offer.MonthlyPayment
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, offer)
	}
	return unique
}

// resolveURL makes a possibly relative asset URL absolute.
func resolveURL(baseURL, ref string) string {
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref
	}
	if strings.HasPrefix(ref, "http") {
		return ref
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return ref
	}
	resolved, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return resolved.String()
}

// firstChars returns at most n leading characters of s.
func firstChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
