package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cardealsai/cardeals-backend/config"
	"github.com/cardealsai/cardeals-backend/models"
	"github.com/cardealsai/cardeals-backend/services"
	"github.com/cardealsai/cardeals-backend/shared"
	"github.com/sirupsen/logrus"
)

// ScrapeJob orchestrates one ingestion cycle: every registry dealer
// through fetch, extract, validate, reconcile — sequentially, with a
// politeness delay between dealers. Dealer failures are contained; the
// run always completes and always reports.
type ScrapeJob struct {
	config         *config.ScrapeConfig
	registry       []config.DealerSource
	fetcher        *services.FetcherService
	templates      *services.TemplateExtractorService
	modelExtractor *services.ModelExtractorService
	validator      *services.OfferValidator
	offers         *services.OfferService
	cache          *services.CacheService
	rateLimiter    *shared.DealerRateLimiter

	mutex   sync.Mutex
	running bool
}

// NewScrapeJob wires the full ingestion pipeline.
func NewScrapeJob(
	cfg *config.ScrapeConfig,
	registry []config.DealerSource,
	fetcher *services.FetcherService,
	templates *services.TemplateExtractorService,
	modelExtractor *services.ModelExtractorService,
	validator *services.OfferValidator,
	offers *services.OfferService,
	cache *services.CacheService,
) *ScrapeJob {
	if cfg == nil {
		cfg = config.DefaultScrapeConfig()
	}
	return &ScrapeJob{
		config:         cfg,
		registry:       registry,
		fetcher:        fetcher,
		templates:      templates,
		modelExtractor: modelExtractor,
		validator:      validator,
		offers:         offers,
		cache:          cache,
		rateLimiter:    shared.NewDealerRateLimiter(cfg.DelayBetweenDealers),
	}
}

// IsRunning reports whether an ingestion cycle is in progress.
func (j *ScrapeJob) IsRunning() bool {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return j.running
}

// Run executes one full ingestion cycle and returns its report. A second
// concurrent Run returns an error instead of racing the first.
func (j *ScrapeJob) Run(ctx context.Context) (*models.ScrapeRunReport, error) {
	j.mutex.Lock()
	if j.running {
		j.mutex.Unlock()
		return nil, fmt.Errorf("ingestion run already in progress")
	}
	j.running = true
	j.mutex.Unlock()

	defer func() {
		j.mutex.Lock()
		j.running = false
		j.mutex.Unlock()
	}()

	report := &models.ScrapeRunReport{
		StartedAt:    time.Now(),
		TotalDealers: len(j.registry),
	}

	logrus.WithField("dealers", len(j.registry)).Info("Starting ingestion run")

loop:
	for _, source := range j.registry {
		select {
		case <-ctx.Done():
			logrus.Warn("Ingestion run canceled")
			break loop
		default:
		}

		if err := j.rateLimiter.Wait(ctx); err != nil {
			logrus.WithError(err).Warn("Ingestion run canceled")
			break
		}

		result := j.processDealer(ctx, source)
		report.DealerResults = append(report.DealerResults, result)

		if result.Status == models.DealerOutcomeSuccess {
			report.Succeeded++
			report.TotalSaved += result.Saved
		} else {
			report.Failed++
		}
	}

	report.CompletedAt = time.Now()

	if err := j.offers.SaveRunReport(ctx, report); err != nil {
		logrus.WithError(err).Warn("Failed to persist run report")
	}

	// Invalidate unconditionally: even a run that saved nothing may have
	// deactivated offers the cache still serves.
	j.cache.Clear()

	logrus.WithFields(logrus.Fields{
		"succeeded":   report.Succeeded,
		"failed":      report.Failed,
		"total_saved": report.TotalSaved,
		"duration":    report.Duration().Round(time.Second).String(),
	}).Info("Ingestion run complete")

	j.fetcher.Metrics().LogSummary()
	j.modelExtractor.Metrics().LogSummary()

	return report, nil
}

// processDealer runs one dealer through the pipeline under its own
// timeout. Panics from extraction edge cases are recovered into a failed
// result so one dealer can never take down the run.
func (j *ScrapeJob) processDealer(ctx context.Context, source config.DealerSource) (result models.DealerRunResult) {
	result = models.DealerRunResult{
		DealerName: source.Name,
		DealerSlug: source.Slug,
		Status:     models.DealerOutcomeFailed,
	}

	defer func() {
		if r := recover(); r != nil {
			result.Status = models.DealerOutcomeFailed
			result.Error = fmt.Sprintf("panic: %v", r)
			logrus.WithFields(logrus.Fields{
				"dealer": source.Name,
				"panic":  r,
			}).Error("Recovered panic while processing dealer")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, j.config.DealerTimeout)
	defer cancel()

	log := logrus.WithField("dealer", source.Name)
	log.Info("Processing dealer")

	fetched, err := j.fetcher.FetchPage(ctx, source.SpecialsURL)
	if err != nil {
		result.Error = err.Error()
		log.WithError(err).Warn("Fetch failed, skipping dealer until next run")
		return result
	}
	result.FetchedBytes = fetched.ByteLength

	kind := j.templates.Classify(source, fetched.HTML)
	log.WithFields(logrus.Fields{
		"template": kind,
		"strategy": fetched.Strategy,
	}).Info("Classified dealer page")

	var candidates []models.CandidateOffer
	if kind != services.TemplateUnknown {
		candidates = j.templates.ExtractStructured(fetched.HTML, kind, source.SpecialsURL, source.Make)
	}

	// Template miss or a template that yielded nothing both fall through
	// to the model-assisted path.
	if len(candidates) == 0 && j.modelExtractor.Enabled() {
		candidates, err = j.modelExtractor.Extract(ctx, source.Name, fetched.HTML, source.Make)
		if err != nil {
			result.Error = err.Error()
			log.WithError(err).Warn("Model-assisted extraction failed")
			return result
		}
	}
	result.Extracted = len(candidates)

	valid := j.validator.ValidateBatch(source.Name, candidates)
	result.Valid = len(valid)

	dealer, err := j.offers.GetOrCreateDealer(ctx, source)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	reconciled, err := j.offers.ReconcileDealerOffers(ctx, dealer.ID, source.SpecialsURL, valid)
	if err != nil {
		result.Error = err.Error()
		log.WithError(err).Error("Reconciliation failed, prior offers retained")
		return result
	}

	result.Saved = reconciled.Inserted
	result.Deactivated = reconciled.Deactivated
	result.Status = models.DealerOutcomeSuccess

	log.WithFields(logrus.Fields{
		"extracted": result.Extracted,
		"valid":     result.Valid,
		"saved":     result.Saved,
	}).Info("Dealer processed")

	return result
}
