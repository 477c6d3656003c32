package handlers

import (
	"context"

	"github.com/cardealsai/cardeals-backend/jobs"
	"github.com/cardealsai/cardeals-backend/services"
	"github.com/cardealsai/cardeals-backend/shared"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// AdminHandler exposes the operational surface: triggering ingestion,
// inspecting run history, and managing the search cache. Every route is
// gated on the admin token.
type AdminHandler struct {
	Token     string
	Scrape    *jobs.ScrapeJob
	LinkAudit *jobs.LinkAuditJob
	Sweep     *jobs.StaleOfferSweep
	Offers    *services.OfferService
	Cache     *services.CacheService
	Metrics   []*shared.ServiceMetrics
}

func NewAdminHandler(token string, scrape *jobs.ScrapeJob, audit *jobs.LinkAuditJob, sweep *jobs.StaleOfferSweep, offers *services.OfferService, cache *services.CacheService, metrics ...*shared.ServiceMetrics) *AdminHandler {
	return &AdminHandler{
		Token:     token,
		Scrape:    scrape,
		LinkAudit: audit,
		Sweep:     sweep,
		Offers:    offers,
		Cache:     cache,
		Metrics:   metrics,
	}
}

// RequireToken is the middleware guarding admin routes.
func (h *AdminHandler) RequireToken(c *fiber.Ctx) error {
	if h.Token == "" || c.Get("X-Admin-Token") != h.Token {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "unauthorized",
		})
	}
	return c.Next()
}

// TriggerScrape handles POST /api/v1/admin/scrape. The run executes in
// the background; a run already in progress is a conflict, not a queue.
func (h *AdminHandler) TriggerScrape(c *fiber.Ctx) error {
	if h.Scrape.IsRunning() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"error":   "ingestion run already in progress",
		})
	}

	go func() {
		if _, err := h.Scrape.Run(context.Background()); err != nil {
			logrus.WithError(err).Error("Triggered ingestion run failed")
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"message": "ingestion run started",
	})
}

// GetLatestRun handles GET /api/v1/admin/runs/latest.
func (h *AdminHandler) GetLatestRun(c *fiber.Ctx) error {
	report, err := h.Offers.GetLatestRunReport(c.Context())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"error":   "run history temporarily unavailable",
		})
	}
	if report == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "no ingestion run recorded yet",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    report,
	})
}

// RunLinkAudit handles POST /api/v1/admin/audit-links synchronously; the
// audit visits each registry URL once and reports per-dealer verdicts.
func (h *AdminHandler) RunLinkAudit(c *fiber.Ctx) error {
	results := h.LinkAudit.Run(c.Context())
	return c.JSON(fiber.Map{
		"success": true,
		"data":    results,
	})
}

// RunStaleSweep handles POST /api/v1/admin/sweep-stale.
func (h *AdminHandler) RunStaleSweep(c *fiber.Ctx) error {
	deactivated, err := h.Sweep.Run(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"deactivated": deactivated,
	})
}

// GetMetrics handles GET /api/v1/admin/metrics: per-stage success rates
// and latency for the ingestion pipeline.
func (h *AdminHandler) GetMetrics(c *fiber.Ctx) error {
	snapshots := make([]shared.MetricsSnapshot, 0, len(h.Metrics))
	for _, m := range h.Metrics {
		snapshots = append(snapshots, m.Snapshot())
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    snapshots,
	})
}

// GetCacheStats handles GET /api/v1/admin/cache/stats.
func (h *AdminHandler) GetCacheStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.Cache.Stats(),
	})
}

// ClearCache handles DELETE /api/v1/admin/cache.
func (h *AdminHandler) ClearCache(c *fiber.Ctx) error {
	h.Cache.Clear()
	return c.JSON(fiber.Map{
		"success": true,
		"message": "search cache cleared",
	})
}
