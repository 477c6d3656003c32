//go:build ignore

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cardealsai/cardeals-backend/config"
	"github.com/cardealsai/cardeals-backend/database"
	"github.com/cardealsai/cardeals-backend/services"
	"github.com/cardealsai/cardeals-backend/shared"
)

func main() {
	fmt.Printf("CarDeals Health Check - %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Println(strings.Repeat("=", 50))

	cfg := config.LoadConfig()
	healthScore := 0
	totalTests := 3

	// Test 1: Database
	fmt.Print("Database: ")
	if err := database.Connect(cfg.DatabaseURL); err != nil {
		fmt.Printf("FAILED (%v)\n", err)
	} else {
		defer database.Close()
		offerService := services.NewOfferService(database.DB)
		if count, err := offerService.CountActiveOffers(context.Background()); err != nil {
			fmt.Printf("FAILED (%v)\n", err)
		} else {
			fmt.Printf("OK (%d active offers)\n", count)
			healthScore++
		}
	}

	// Test 2: First registry dealer page reachable
	fmt.Print("Dealer page fetch: ")
	fetcherConfig := config.DefaultFetcherConfig()
	factory := shared.NewHTTPClientFactory(fetcherConfig.RequestTimeout)
	fetcher := services.NewFetcherService(fetcherConfig, factory)
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	if result, err := fetcher.FetchPage(ctx, config.DealerRegistry[0].SpecialsURL); err != nil {
		fmt.Printf("FAILED (%v)\n", err)
	} else {
		fmt.Printf("OK (%d bytes via %s)\n", result.ByteLength, result.Strategy)
		healthScore++
	}

	// Test 3: Extraction model configured
	fmt.Print("Model extractor: ")
	extractor := services.NewModelExtractorService(cfg.OpenAIAPIKey, nil)
	if extractor.Enabled() {
		fmt.Println("OK (client configured)")
		healthScore++
	} else {
		fmt.Println("DISABLED (no API key)")
	}

	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Health score: %d/%d\n", healthScore, totalTests)
}
