package main

import (
	"context"
	"log"
	"time"

	"github.com/cardealsai/cardeals-backend/config"
	"github.com/cardealsai/cardeals-backend/database"
	"github.com/cardealsai/cardeals-backend/handlers"
	"github.com/cardealsai/cardeals-backend/jobs"
	"github.com/cardealsai/cardeals-backend/services"
	"github.com/cardealsai/cardeals-backend/shared"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load config
	cfg := config.LoadConfig()

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	// Connect to database
	if err := database.Connect(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate("database/schema.sql"); err != nil {
		log.Printf("Migration warning: %v", err)
	}

	// Service configuration
	fetcherConfig := config.DefaultFetcherConfig()
	scrapeConfig := config.DefaultScrapeConfig()
	cacheConfig := config.DefaultCacheConfig()
	extractorConfig := config.DefaultExtractorConfig()
	cacheConfig.DefaultTTL = cfg.GetCacheTTL()

	// Core services
	clientFactory := shared.NewHTTPClientFactory(fetcherConfig.RequestTimeout)
	defer clientFactory.CleanupAllClients()
	fetcher := services.NewFetcherService(fetcherConfig, clientFactory)
	templates := services.NewTemplateExtractorService()
	modelExtractor := services.NewModelExtractorService(cfg.OpenAIAPIKey, extractorConfig)
	validator := services.NewOfferValidator()
	offerService := services.NewOfferService(database.DB)

	cacheService := services.NewCacheService(cacheConfig.DefaultTTL, cacheConfig.MaxSize)
	defer cacheService.Stop()
	searchService := services.NewSearchService(offerService, cacheService)
	toolService := services.NewAgentToolService(searchService)

	if !modelExtractor.Enabled() {
		logrus.Warn("OPENAI_API_KEY not set; dealers without a recognized template will yield no offers")
	}

	// Jobs
	scrapeJob := jobs.NewScrapeJob(scrapeConfig, config.DealerRegistry,
		fetcher, templates, modelExtractor, validator, offerService, cacheService)
	staleSweep := jobs.NewStaleOfferSweep(offerService, cacheService, cfg.GetStaleOfferAge())
	linkAudit := jobs.NewLinkAuditJob(config.DealerRegistry, offerService, cacheService, fetcherConfig.UserAgent)

	// Handlers
	offerHandler := handlers.NewOfferHandler(searchService, offerService)
	toolHandler := handlers.NewToolHandler(toolService)
	adminHandler := handlers.NewAdminHandler(cfg.AdminToken, scrapeJob, linkAudit, staleSweep, offerService, cacheService,
		fetcher.Metrics(), modelExtractor.Metrics())
	healthHandler := handlers.NewHealthHandler(cacheService)

	// Background scheduling: ingestion every 6 hours, stale sweep hourly,
	// link audit daily
	go func() {
		scrapeTicker := time.NewTicker(6 * time.Hour)
		sweepTicker := time.NewTicker(1 * time.Hour)
		auditTicker := time.NewTicker(24 * time.Hour)

		for {
			select {
			case <-scrapeTicker.C:
				if _, err := scrapeJob.Run(context.Background()); err != nil {
					logrus.WithError(err).Warn("Scheduled ingestion run skipped")
				}
			case <-sweepTicker.C:
				if _, err := staleSweep.Run(context.Background()); err != nil {
					logrus.WithError(err).Warn("Stale offer sweep failed")
				}
			case <-auditTicker.C:
				linkAudit.Run(context.Background())
			}
		}
	}()

	// Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(logger.New())
	app.Use(cors.New())

	app.Get("/health", healthHandler.GetHealth)

	// Routes
	api := app.Group("/api/v1")

	api.Get("/offers/search", offerHandler.SearchOffers)
	api.Get("/offers/:id", offerHandler.GetOffer)
	api.Get("/dealers", offerHandler.GetDealers)

	api.Get("/agent/tools", toolHandler.GetToolDefinitions)
	api.Post("/agent/search-tool", toolHandler.ExecuteSearchTool)

	admin := api.Group("/admin", adminHandler.RequireToken)
	admin.Post("/scrape", adminHandler.TriggerScrape)
	admin.Get("/runs/latest", adminHandler.GetLatestRun)
	admin.Post("/audit-links", adminHandler.RunLinkAudit)
	admin.Post("/sweep-stale", adminHandler.RunStaleSweep)
	admin.Get("/metrics", adminHandler.GetMetrics)
	admin.Get("/cache/stats", adminHandler.GetCacheStats)
	admin.Delete("/cache", adminHandler.ClearCache)

	logrus.WithField("port", cfg.ServerPort).Info("Starting server")
	log.Fatal(app.Listen(":" + cfg.ServerPort))
}
