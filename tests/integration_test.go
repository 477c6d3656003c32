package tests

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/cardealsai/cardeals-backend/config"
	"github.com/cardealsai/cardeals-backend/database"
	"github.com/cardealsai/cardeals-backend/models"
	"github.com/cardealsai/cardeals-backend/services"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// IntegrationTestSuite wires the persistence layer against a real
// Postgres instance.
type IntegrationTestSuite struct {
	db     *sql.DB
	offers *services.OfferService
}

// SetupIntegrationTestSuite connects to the test database, applying the
// schema, or skips the test when none is reachable.
func SetupIntegrationTestSuite(t *testing.T) *IntegrationTestSuite {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://localhost/cardeals_test?sslmode=disable"
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Skipf("Skipping integration tests - database not available: %v", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		t.Skipf("Skipping integration tests - database ping failed: %v", err)
		return nil
	}

	database.DB = db
	if err := database.Migrate("../database/schema.sql"); err != nil {
		t.Fatalf("schema migration failed: %v", err)
	}

	return &IntegrationTestSuite{
		db:     db,
		offers: services.NewOfferService(db),
	}
}

// Teardown removes the suite's test dealers and closes the pool.
func (suite *IntegrationTestSuite) Teardown(t *testing.T) {
	if suite.db == nil {
		return
	}
	_, err := suite.db.Exec(`DELETE FROM offers WHERE dealer_id IN (SELECT id FROM dealers WHERE slug LIKE 'it-%')`)
	assert.NoError(t, err)
	_, err = suite.db.Exec(`DELETE FROM dealers WHERE slug LIKE 'it-%'`)
	assert.NoError(t, err)
	suite.db.Close()
}

func (suite *IntegrationTestSuite) testDealer(t *testing.T, slug string) *models.Dealer {
	dealer, err := suite.offers.GetOrCreateDealer(context.Background(), config.DealerSource{
		Name:        "Integration " + slug,
		Slug:        "it-" + slug,
		Make:        "Toyota",
		City:        "Testville",
		SpecialsURL: "https://example.com/" + slug + "/specials",
		Platform:    "octane",
	})
	require.NoError(t, err)
	return dealer
}

func leaseOffer(model string, payment float64) models.ValidatedOffer {
	term := 36
	down := 2999.0
	return models.ValidatedOffer{
		Year:             time.Now().Year(),
		Make:             "Toyota",
		Model:            model,
		OfferType:        models.OfferTypeLease,
		MonthlyPayment:   &payment,
		DownPayment:      &down,
		TermMonths:       &term,
		Confidence:       0.85,
		ExtractionMethod: models.ExtractionMethodCSS,
		RawExtractedData: []byte(`{"model":"` + model + `"}`),
	}
}

func (suite *IntegrationTestSuite) activeCount(t *testing.T, dealerID uuid.UUID) int {
	var count int
	err := suite.db.QueryRow(
		`SELECT COUNT(*) FROM offers WHERE dealer_id = $1 AND active = TRUE`, dealerID).Scan(&count)
	require.NoError(t, err)
	return count
}

func TestReconcileReplacesActiveGeneration(t *testing.T) {
	suite := SetupIntegrationTestSuite(t)
	if suite == nil {
		return
	}
	defer suite.Teardown(t)

	ctx := context.Background()
	dealer := suite.testDealer(t, "reconcile")
	sourceURL := dealer.SpecialsURL

	first, err := suite.offers.ReconcileDealerOffers(ctx, dealer.ID,
		sourceURL, []models.ValidatedOffer{leaseOffer("Camry", 299), leaseOffer("RAV4", 329)})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)
	assert.Equal(t, 2, suite.activeCount(t, dealer.ID))

	second, err := suite.offers.ReconcileDealerOffers(ctx, dealer.ID,
		sourceURL, []models.ValidatedOffer{leaseOffer("Corolla", 249)})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Deactivated)
	assert.Equal(t, 1, second.Inserted)
	assert.Equal(t, 1, suite.activeCount(t, dealer.ID), "exactly the latest generation is active")
}

func TestReconcileEmptyGenerationDeactivates(t *testing.T) {
	suite := SetupIntegrationTestSuite(t)
	if suite == nil {
		return
	}
	defer suite.Teardown(t)

	ctx := context.Background()
	dealer := suite.testDealer(t, "empty-gen")

	_, err := suite.offers.ReconcileDealerOffers(ctx, dealer.ID,
		dealer.SpecialsURL, []models.ValidatedOffer{leaseOffer("Camry", 299)})
	require.NoError(t, err)

	report, err := suite.offers.ReconcileDealerOffers(ctx, dealer.ID, dealer.SpecialsURL, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deactivated)
	assert.Equal(t, 0, report.Inserted)
	assert.Equal(t, 0, suite.activeCount(t, dealer.ID),
		"a dealer that removed all offers has no active offers")
}

func TestSearchPathAgainstSQLStore(t *testing.T) {
	suite := SetupIntegrationTestSuite(t)
	if suite == nil {
		return
	}
	defer suite.Teardown(t)

	ctx := context.Background()
	dealer := suite.testDealer(t, "search")

	_, err := suite.offers.ReconcileDealerOffers(ctx, dealer.ID, dealer.SpecialsURL,
		[]models.ValidatedOffer{leaseOffer("Camry", 399), leaseOffer("Corolla", 249)})
	require.NoError(t, err)

	search := services.NewSearchService(suite.offers, services.NewCacheService(time.Minute, 50))

	model := "Corolla"
	response, cached, err := search.Search(ctx, models.SearchParams{Model: &model})
	require.NoError(t, err)
	assert.False(t, cached)
	require.Equal(t, 1, response.Total)
	assert.Equal(t, "Corolla", response.Offers[0].Model)
	assert.Equal(t, dealer.Name, response.Offers[0].DealerName)

	_, cached, err = search.Search(ctx, models.SearchParams{Model: &model})
	require.NoError(t, err)
	assert.True(t, cached)
}

func TestFindActiveOffersMatchesModelSubstring(t *testing.T) {
	suite := SetupIntegrationTestSuite(t)
	if suite == nil {
		return
	}
	defer suite.Teardown(t)

	ctx := context.Background()
	dealer := suite.testDealer(t, "substring")

	_, err := suite.offers.ReconcileDealerOffers(ctx, dealer.ID, dealer.SpecialsURL,
		[]models.ValidatedOffer{
			leaseOffer("Corolla", 249),
			leaseOffer("Corolla Cross", 299),
			leaseOffer("RAV4", 329),
		})
	require.NoError(t, err)

	countFor := func(model string) int {
		found, err := suite.offers.FindActiveOffers(ctx, models.SearchParams{Model: &model})
		require.NoError(t, err)
		count := 0
		for _, offer := range found {
			if offer.DealerID == dealer.ID {
				count++
			}
		}
		return count
	}

	assert.Equal(t, 2, countFor("corolla"), "Corolla also matches Corolla Cross, case-insensitively")
	assert.Equal(t, 1, countFor("RAV"), "a model prefix is enough")
	assert.Equal(t, 0, countFor("Tacoma"))
}

func TestGetOfferByIDReturnsRawPayload(t *testing.T) {
	suite := SetupIntegrationTestSuite(t)
	if suite == nil {
		return
	}
	defer suite.Teardown(t)

	ctx := context.Background()
	dealer := suite.testDealer(t, "detail")

	_, err := suite.offers.ReconcileDealerOffers(ctx, dealer.ID, dealer.SpecialsURL,
		[]models.ValidatedOffer{leaseOffer("Camry", 299)})
	require.NoError(t, err)

	listed, err := suite.offers.FindActiveOffers(ctx, models.SearchParams{})
	require.NoError(t, err)

	var offerID uuid.UUID
	for _, row := range listed {
		if row.DealerID == dealer.ID {
			offerID = row.ID
			break
		}
	}
	require.NotEqual(t, uuid.Nil, offerID)

	offer, err := suite.offers.GetOfferByID(ctx, offerID)
	require.NoError(t, err)
	require.NotNil(t, offer)
	assert.NotEmpty(t, offer.RawExtractedData, "detail view carries the extraction payload")
	assert.Contains(t, *offer.SourceURL, dealer.SpecialsURL)

	missing, err := suite.offers.GetOfferByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDeactivateStaleOffers(t *testing.T) {
	suite := SetupIntegrationTestSuite(t)
	if suite == nil {
		return
	}
	defer suite.Teardown(t)

	ctx := context.Background()
	dealer := suite.testDealer(t, "stale")

	_, err := suite.offers.ReconcileDealerOffers(ctx, dealer.ID, dealer.SpecialsURL,
		[]models.ValidatedOffer{leaseOffer("Camry", 299)})
	require.NoError(t, err)

	// Age the row past the staleness window
	_, err = suite.db.Exec(
		`UPDATE offers SET updated_at = NOW() - INTERVAL '80 hours' WHERE dealer_id = $1`, dealer.ID)
	require.NoError(t, err)

	deactivated, err := suite.offers.DeactivateStaleOffers(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deactivated, int64(1))
	assert.Equal(t, 0, suite.activeCount(t, dealer.ID))
}

func TestRunReportRoundTrip(t *testing.T) {
	suite := SetupIntegrationTestSuite(t)
	if suite == nil {
		return
	}
	defer suite.Teardown(t)

	ctx := context.Background()
	report := &models.ScrapeRunReport{
		StartedAt:    time.Now().Add(-time.Minute).UTC().Truncate(time.Second),
		CompletedAt:  time.Now().UTC().Truncate(time.Second),
		TotalDealers: 2,
		Succeeded:    1,
		Failed:       1,
		TotalSaved:   3,
		DealerResults: []models.DealerRunResult{
			{DealerName: "A", DealerSlug: "a", Status: models.DealerOutcomeSuccess, Saved: 3},
			{DealerName: "B", DealerSlug: "b", Status: models.DealerOutcomeFailed, Error: "fetch failed"},
		},
	}

	require.NoError(t, suite.offers.SaveRunReport(ctx, report))

	latest, err := suite.offers.GetLatestRunReport(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, report.TotalSaved, latest.TotalSaved)
	assert.Len(t, latest.DealerResults, 2)
}

// TestReconcileActiveSetProperty checks, across random generation
// sequences, that the active set always equals the latest non-failed
// generation.
func TestReconcileActiveSetProperty(t *testing.T) {
	suite := SetupIntegrationTestSuite(t)
	if suite == nil {
		return
	}
	defer suite.Teardown(t)

	ctx := context.Background()
	dealer := suite.testDealer(t, "property")

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	modelNames := []string{"Camry", "Corolla", "RAV4", "Highlander", "Prius"}

	properties.Property("active set equals the latest generation", prop.ForAll(
		func(sizes []int) bool {
			for _, size := range sizes {
				var generation []models.ValidatedOffer
				for i := 0; i < size; i++ {
					generation = append(generation,
						leaseOffer(modelNames[i%len(modelNames)], float64(200+10*i)))
				}
				report, err := suite.offers.ReconcileDealerOffers(ctx, dealer.ID, dealer.SpecialsURL, generation)
				if err != nil {
					return false
				}
				if report.Inserted != size {
					return false
				}
				if suite.activeCount(t, dealer.ID) != size {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(3, gen.IntRange(0, 5)),
	))

	properties.TestingRun(t)
}
