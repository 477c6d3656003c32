package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cardealsai/cardeals-backend/config"
	"github.com/cardealsai/cardeals-backend/models"
	"github.com/cardealsai/cardeals-backend/shared"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// ChatCompleter is the slice of the OpenAI client the extractor uses.
// Tests substitute a canned implementation.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

const extractorSystemPrompt = "You are a precise data extraction system for car dealership offers. " +
	"You only return valid JSON. You never invent offers that are not present in the text."

const extractorPromptTemplate = `Extract all current vehicle lease and finance offers from this dealership page text.

Return a JSON array of offers. Each offer object has these fields (use null when the page does not state a value):
- year: integer model year
- make: manufacturer name
- model: model name only, without trim
- trim: trim level or null
- offer_type: "lease" or "finance"
- monthly_payment: number, dollars per month, or null
- down_payment: number, total due at signing in dollars, or null
- term_months: integer number of months, or null
- annual_mileage: integer miles per year for leases, or null
- apr: number, annual percentage rate for finance offers, or null
- msrp: number or null
- selling_price: number or null
- offer_end_date: "YYYY-MM-DD" or null
- disclaimer: short disclaimer text or null
- confidence: your confidence from 0.0 to 1.0 that this is a real current offer

Rules:
- Only extract offers explicitly stated in the text. Do not infer or invent.
- A monthly payment without a vehicle name is not an offer.
- Expired offers still count; include their end date.
- Default make is %s when the text does not name one.

Page text:
%s`

var (
	jsonFenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

// ModelExtractorService extracts offers from pages no template rules
// cover by sending cleaned page text to a chat completion model. It is
// the fallback path: slower, costs tokens, and its output is untrusted
// until validated.
type ModelExtractorService struct {
	client  ChatCompleter
	config  *config.ExtractorConfig
	metrics *shared.ServiceMetrics
}

// NewModelExtractorService creates the extractor with a live OpenAI
// client. An empty API key yields a disabled extractor that fails fast.
func NewModelExtractorService(apiKey string, cfg *config.ExtractorConfig) *ModelExtractorService {
	if cfg == nil {
		cfg = config.DefaultExtractorConfig()
	}

	var client ChatCompleter
	if apiKey != "" {
		client = openai.NewClient(apiKey)
	}

	return &ModelExtractorService{client: client, config: cfg, metrics: shared.NewServiceMetrics("ModelExtractorService")}
}

// NewModelExtractorServiceWithClient wires a caller-provided completion
// client, used by tests.
func NewModelExtractorServiceWithClient(client ChatCompleter, cfg *config.ExtractorConfig) *ModelExtractorService {
	if cfg == nil {
		cfg = config.DefaultExtractorConfig()
	}
	return &ModelExtractorService{client: client, config: cfg, metrics: shared.NewServiceMetrics("ModelExtractorService")}
}

// Enabled reports whether a completion client is configured.
func (s *ModelExtractorService) Enabled() bool {
	return s.client != nil
}

// Metrics exposes completion-call counters for run summaries and the
// admin surface.
func (s *ModelExtractorService) Metrics() *shared.ServiceMetrics {
	return s.metrics
}

// Extract cleans the page, prechecks it for offer content, and runs one
// completion call. Pages that fail the precheck return an empty slice
// without spending tokens.
func (s *ModelExtractorService) Extract(ctx context.Context, dealerName, html, defaultMake string) ([]models.CandidateOffer, error) {
	if s.client == nil {
		return nil, shared.NewServiceUnavailableError("ModelExtractorService", "extract",
			errors.New("no completion client configured"))
	}

	text := s.CleanPageText(html)

	if keywords := countOfferKeywords(text); keywords < s.config.MinOfferKeywords {
		logrus.WithFields(logrus.Fields{
			"dealer":   dealerName,
			"keywords": keywords,
		}).Info("Page failed offer-content precheck, skipping completion call")
		s.metrics.IncrementCounter("precheck_skips")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	started := time.Now()
	response, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.config.Model,
		Temperature: 0,
		MaxTokens:   s.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractorSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(extractorPromptTemplate, defaultMake, text)},
		},
	})
	if err != nil {
		s.metrics.RecordRequest(false, time.Since(started))
		return nil, shared.NewFetchError("extract",
			fmt.Sprintf("completion call failed for %s", dealerName), err)
	}

	if len(response.Choices) == 0 {
		s.metrics.RecordRequest(false, time.Since(started))
		return nil, shared.NewFetchError("extract",
			fmt.Sprintf("completion returned no choices for %s", dealerName), nil)
	}
	s.metrics.RecordRequest(true, time.Since(started))

	offers, err := ParseExtractionResponse(response.Choices[0].Message.Content)
	if err != nil {
		// The model occasionally answers in prose; treat it as zero
		// offers rather than failing the dealer.
		logrus.WithFields(logrus.Fields{
			"dealer":   dealerName,
			"response": firstChars(response.Choices[0].Message.Content, 300),
		}).Warn("Model returned unparseable extraction output")
		s.metrics.IncrementCounter("parse_failures")
		return nil, nil
	}

	kept := offers[:0]
	for _, offer := range offers {
		if offer.Confidence < s.config.ConfidenceFloor {
			continue
		}
		offer.ExtractionMethod = models.ExtractionMethodLLM
		kept = append(kept, offer)
	}

	s.harvestVehicleImages(html, kept)

	logrus.WithFields(logrus.Fields{
		"dealer":   dealerName,
		"offers":   len(kept),
		"duration": time.Since(started).Round(time.Millisecond).String(),
	}).Info("Model-assisted extraction complete")

	return kept, nil
}

// CleanPageText reduces raw HTML to readable text within the model's
// input budget: boilerplate elements removed, whitespace collapsed, and
// truncation at a sentence boundary near the character limit.
func (s *ModelExtractorService) CleanPageText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return truncateAtSentence(whitespaceRe.ReplaceAllString(html, " "), s.config.MaxInputChars)
	}

	doc.Find("script, style, noscript, iframe, svg, nav, footer, header, meta, link").Remove()

	text := doc.Find("body").Text()
	if text == "" {
		text = doc.Text()
	}
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	return truncateAtSentence(text, s.config.MaxInputChars)
}

// ParseExtractionResponse parses model output into candidate offers. It
// tolerates markdown fences and accepts either a bare array or an object
// wrapping one under "offers".
func ParseExtractionResponse(content string) ([]models.CandidateOffer, error) {
	content = strings.TrimSpace(content)

	if match := jsonFenceRegex.FindStringSubmatch(content); match != nil {
		content = strings.TrimSpace(match[1])
	}

	var offers []models.CandidateOffer
	if err := json.Unmarshal(coerceNumericFields([]byte(content)), &offers); err == nil {
		return offers, nil
	}

	var wrapped struct {
		Offers json.RawMessage `json:"offers"`
	}
	if err := json.Unmarshal([]byte(content), &wrapped); err == nil && len(wrapped.Offers) > 0 {
		if err := json.Unmarshal(coerceNumericFields(wrapped.Offers), &offers); err == nil && offers != nil {
			return offers, nil
		}
	}

	return nil, shared.NewValidationError("parse_response", "model returned unparseable JSON")
}

// Numeric candidate fields the model sometimes quotes ("monthly_payment":
// "299" or "$2,999"). Integer-typed fields get coerced to integer form so
// a quoted "36.0" still lands in an int field.
var (
	floatCandidateFields = []string{"monthly_payment", "down_payment", "apr", "msrp", "selling_price", "confidence"}
	intCandidateFields   = []string{"year", "term_months", "annual_mileage"}
)

// coerceNumericFields rewrites string-typed numeric values in an offer
// array so the whole array still unmarshals. One quoted number must not
// cost the dealer its entire extraction.
func coerceNumericFields(raw []byte) []byte {
	var rows []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return raw
	}

	changed := false
	for _, row := range rows {
		for _, key := range floatCandidateFields {
			if value, ok := coerceQuotedNumber(row[key], false); ok {
				row[key] = value
				changed = true
			}
		}
		for _, key := range intCandidateFields {
			if value, ok := coerceQuotedNumber(row[key], true); ok {
				row[key] = value
				changed = true
			}
		}
	}

	if !changed {
		return raw
	}
	out, err := json.Marshal(rows)
	if err != nil {
		return raw
	}
	return out
}

// coerceQuotedNumber turns a JSON string holding a number (currency
// symbols and thousands separators tolerated) into a bare JSON number.
// A string with no number in it ("call for price") becomes null so the
// offer keeps its other fields.
func coerceQuotedNumber(raw json.RawMessage, wantInt bool) (json.RawMessage, bool) {
	if len(raw) == 0 || raw[0] != '"' {
		return nil, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}

	s = strings.TrimSpace(strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(s), "$"), ",", ""))
	parsed, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return json.RawMessage("null"), true
	}

	if wantInt {
		return json.RawMessage(strconv.Itoa(int(parsed))), true
	}
	return json.RawMessage(strconv.FormatFloat(parsed, 'f', -1, 64)), true
}

// harvestVehicleImages fills missing image URLs by matching img tags in
// the original page against each offer's model name.
func (s *ModelExtractorService) harvestVehicleImages(html string, offers []models.CandidateOffer) {
	needed := false
	for i := range offers {
		if offers[i].ImageURL == nil {
			needed = true
			break
		}
	}
	if !needed {
		return
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return
	}

	type pageImage struct {
		src string
		hay string
	}
	var images []pageImage
	doc.Find("img").Each(func(i int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || src == "" {
			src, _ = img.Attr("data-src")
		}
		if src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		alt, _ := img.Attr("alt")
		images = append(images, pageImage{
			src: src,
			hay: strings.ToLower(src + " " + alt),
		})
	})

	for i := range offers {
		if offers[i].ImageURL != nil || offers[i].Model == "" {
			continue
		}
		needle := strings.ToLower(strings.ReplaceAll(offers[i].Model, " ", ""))
		for _, img := range images {
			if strings.Contains(strings.ReplaceAll(img.hay, "-", ""), needle) ||
				strings.Contains(img.hay, strings.ToLower(offers[i].Model)) {
				src := img.src
				offers[i].ImageURL = &src
				break
			}
		}
	}
}

// countOfferKeywords counts how many distinct offer indicators appear in
// the text.
func countOfferKeywords(text string) int {
	lower := strings.ToLower(text)
	count := 0
	for _, keyword := range config.OfferKeywords {
		if strings.Contains(lower, keyword) {
			count++
		}
	}
	return count
}

// truncateAtSentence cuts text to at most limit characters, preferring
// the last sentence end in the final quarter of the window.
func truncateAtSentence(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	window := text[:limit]
	if idx := strings.LastIndexAny(window, ".!?"); idx > limit*3/4 {
		return window[:idx+1]
	}
	return window
}
