package jobs

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cardealsai/cardeals-backend/config"
	"github.com/cardealsai/cardeals-backend/services"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

// LinkAuditResult is the verdict for one dealer's specials URL.
type LinkAuditResult struct {
	DealerName string `json:"dealer_name"`
	DealerSlug string `json:"dealer_slug"`
	URL        string `json:"url"`
	Healthy    bool   `json:"healthy"`
	Reason     string `json:"reason,omitempty"`
}

// parkedDomainMarkers appear on lapsed-registration landing pages that
// still answer 200.
var parkedDomainMarkers = []string{
	"domain is for sale",
	"buy this domain",
	"parked free",
	"godaddy.com/domainsearch",
	"this domain may be for sale",
}

// softNotFoundMarkers appear on error pages served with status 200.
var softNotFoundMarkers = []string{
	"page not found",
	"404 error",
	"page you requested could not be found",
	"page you are looking for doesn't exist",
}

// LinkAuditJob verifies that every registry specials URL still serves a
// live offers page. Dealer sites rot quietly: domains lapse, platforms
// migrate, URLs 200 into a soft 404. A dealer that fails the audit has
// its active offers retired so dead pages stop backing live results.
type LinkAuditJob struct {
	registry  []config.DealerSource
	offers    *services.OfferService
	cache     *services.CacheService
	userAgent string
}

// NewLinkAuditJob creates the audit over the dealer registry.
func NewLinkAuditJob(registry []config.DealerSource, offers *services.OfferService, cache *services.CacheService, userAgent string) *LinkAuditJob {
	return &LinkAuditJob{
		registry:  registry,
		offers:    offers,
		cache:     cache,
		userAgent: userAgent,
	}
}

// Run audits every registry URL and deactivates offers behind dead ones.
func (j *LinkAuditJob) Run(ctx context.Context) []LinkAuditResult {
	var results []LinkAuditResult
	deactivatedAny := false

	for _, source := range j.registry {
		select {
		case <-ctx.Done():
			return results
		default:
		}

		result := j.auditURL(source)
		results = append(results, result)

		if result.Healthy {
			continue
		}

		logrus.WithFields(logrus.Fields{
			"dealer": source.Name,
			"url":    source.SpecialsURL,
			"reason": result.Reason,
		}).Warn("Specials URL failed audit")

		dealer, err := j.offers.GetDealerBySlug(ctx, source.Slug)
		if err != nil || dealer == nil {
			continue
		}
		if count, err := j.offers.DeactivateDealerOffers(ctx, dealer.ID); err == nil && count > 0 {
			deactivatedAny = true
			logrus.WithFields(logrus.Fields{
				"dealer":      source.Name,
				"deactivated": count,
			}).Info("Retired offers behind dead specials URL")
		}
	}

	if deactivatedAny {
		j.cache.Clear()
	}

	return results
}

// auditURL makes one audited visit to a specials URL.
func (j *LinkAuditJob) auditURL(source config.DealerSource) LinkAuditResult {
	result := LinkAuditResult{
		DealerName: source.Name,
		DealerSlug: source.Slug,
		URL:        source.SpecialsURL,
	}

	originalHost, err := hostOf(source.SpecialsURL)
	if err != nil {
		result.Reason = "invalid URL: " + err.Error()
		return result
	}

	collector := colly.NewCollector(
		colly.UserAgent(j.userAgent),
		colly.MaxDepth(1),
	)
	collector.SetRequestTimeout(30 * time.Second)

	var (
		statusCode int
		finalHost  string
		body       string
		visitErr   error
	)

	collector.OnResponse(func(response *colly.Response) {
		statusCode = response.StatusCode
		finalHost = response.Request.URL.Hostname()
		body = strings.ToLower(string(response.Body))
	})
	collector.OnError(func(response *colly.Response, err error) {
		if response != nil {
			statusCode = response.StatusCode
		}
		visitErr = err
	})

	if err := collector.Visit(source.SpecialsURL); err != nil {
		result.Reason = "visit failed: " + err.Error()
		return result
	}
	collector.Wait()

	switch {
	case visitErr != nil:
		result.Reason = fmt.Sprintf("request failed (status %d): %v", statusCode, visitErr)
	case statusCode != 200:
		result.Reason = fmt.Sprintf("status %d", statusCode)
	case !sameRegistrableHost(originalHost, finalHost):
		result.Reason = fmt.Sprintf("redirected off-domain to %s", finalHost)
	case containsAny(body, parkedDomainMarkers):
		result.Reason = "parked domain page"
	case containsAny(body, softNotFoundMarkers):
		result.Reason = "soft 404 page"
	case countKeywords(body, config.OfferKeywords) == 0:
		result.Reason = "page carries no offer content"
	default:
		result.Healthy = true
	}

	return result
}

func hostOf(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	return parsed.Hostname(), nil
}

// sameRegistrableHost treats www-prefix changes as the same site but any
// other host change as an off-domain redirect.
func sameRegistrableHost(a, b string) bool {
	return strings.TrimPrefix(a, "www.") == strings.TrimPrefix(b, "www.")
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

func countKeywords(text string, keywords []string) int {
	count := 0
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			count++
		}
	}
	return count
}
