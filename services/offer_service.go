package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cardealsai/cardeals-backend/config"
	"github.com/cardealsai/cardeals-backend/models"
	"github.com/cardealsai/cardeals-backend/shared"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DealerListing is a dealer row with its live offer count, for the
// public dealer directory.
type DealerListing struct {
	models.Dealer
	ActiveOffers int `json:"active_offers"`
}

// OfferService owns all reads and writes against dealers, offers, and
// run history. The reconciler lives here: the per-dealer active set is
// swapped in one transaction so readers never observe a half-ingested
// dealer.
type OfferService struct {
	db *sql.DB
}

// NewOfferService creates the persistence service over an established
// connection pool.
func NewOfferService(db *sql.DB) *OfferService {
	return &OfferService{db: db}
}

// GetOrCreateDealer upserts a registry entry, keyed by slug. The
// registry is the source of truth for URL and platform, so those fields
// refresh on every run.
func (s *OfferService) GetOrCreateDealer(ctx context.Context, source config.DealerSource) (*models.Dealer, error) {
	query := `
		INSERT INTO dealers (name, slug, make, city, specials_url, platform)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			make = EXCLUDED.make,
			city = EXCLUDED.city,
			specials_url = EXCLUDED.specials_url,
			platform = EXCLUDED.platform,
			updated_at = NOW()
		RETURNING id, name, slug, make, city, state, website, specials_url, phone, platform, active, created_at, updated_at`

	var dealer models.Dealer
	err := s.db.QueryRowContext(ctx, query,
		source.Name, source.Slug, source.Make, source.City, source.SpecialsURL, source.Platform,
	).Scan(
		&dealer.ID, &dealer.Name, &dealer.Slug, &dealer.Make, &dealer.City,
		&dealer.State, &dealer.Website, &dealer.SpecialsURL, &dealer.Phone,
		&dealer.Platform, &dealer.Active, &dealer.CreatedAt, &dealer.UpdatedAt,
	)
	if err != nil {
		return nil, shared.NewReconcileError("get_or_create_dealer",
			fmt.Sprintf("upsert failed for dealer %s", source.Slug), err)
	}

	return &dealer, nil
}

// ReconcileDealerOffers swaps a dealer's active offer set for the new
// generation in one transaction: deactivate everything active, insert
// the new rows. An empty batch is a valid generation and still
// deactivates, because a dealer that removed all offers has no offers.
// On any error the transaction rolls back and the prior set survives.
func (s *OfferService) ReconcileDealerOffers(ctx context.Context, dealerID uuid.UUID, sourceURL string, offers []models.ValidatedOffer) (*models.ReconcileReport, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, shared.NewReconcileError("reconcile", "begin transaction failed", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE offers SET active = FALSE, updated_at = NOW() WHERE dealer_id = $1 AND active = TRUE`,
		dealerID)
	if err != nil {
		return nil, shared.NewReconcileError("reconcile", "deactivation failed", err)
	}
	deactivated, _ := result.RowsAffected()

	insertQuery := `
		INSERT INTO offers (
			dealer_id, year, make, model, trim, offer_type,
			monthly_payment, down_payment, term_months, annual_mileage,
			apr, msrp, selling_price, offer_end_date, disclaimer,
			source_url, image_url, confidence_score, extraction_method,
			raw_extracted_data, active
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,TRUE)`

	inserted := 0
	for _, offer := range offers {
		offerURL := sourceURL
		if offer.SourceAnchor != nil && *offer.SourceAnchor != "" {
			offerURL = sourceURL + "#" + *offer.SourceAnchor
		}

		var endDate interface{}
		if offer.OfferEndDate != nil {
			endDate = *offer.OfferEndDate
		}

		_, err = tx.ExecContext(ctx, insertQuery,
			dealerID, offer.Year, offer.Make, offer.Model, offer.Trim, offer.OfferType,
			offer.MonthlyPayment, offer.DownPayment, offer.TermMonths, offer.AnnualMileage,
			offer.APR, offer.MSRP, offer.SellingPrice, endDate, offer.Disclaimer,
			offerURL, offer.ImageURL, offer.Confidence, offer.ExtractionMethod,
			[]byte(offer.RawExtractedData),
		)
		if err != nil {
			return nil, shared.NewReconcileError("reconcile",
				fmt.Sprintf("insert failed for %d %s %s", offer.Year, offer.Make, offer.Model), err)
		}
		inserted++
	}

	if err = tx.Commit(); err != nil {
		return nil, shared.NewReconcileError("reconcile", "commit failed", err)
	}

	logrus.WithFields(logrus.Fields{
		"dealer_id":   dealerID,
		"deactivated": deactivated,
		"inserted":    inserted,
	}).Info("Reconciled dealer offers")

	return &models.ReconcileReport{Deactivated: int(deactivated), Inserted: inserted}, nil
}

const offerColumns = `
	o.id, o.dealer_id, o.year, o.make, o.model, o.trim, o.offer_type,
	o.monthly_payment, o.down_payment, o.term_months, o.annual_mileage,
	o.apr, o.msrp, o.selling_price, o.offer_end_date, o.disclaimer,
	o.source_url, o.image_url, o.confidence_score, o.extraction_method,
	o.active, o.created_at, o.updated_at, d.name, d.city`

// FindActiveOffers returns the active offers matching the filter tuple,
// joined with dealer display fields. Ordering and limiting are the
// search service's job.
func (s *OfferService) FindActiveOffers(ctx context.Context, params models.SearchParams) ([]models.Offer, error) {
	var conditions []string
	var args []interface{}
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions = append(conditions, "o.active = TRUE")
	// Make and model match as case-insensitive substrings: "Corolla"
	// finds "Corolla Cross", "RAV" finds "RAV4".
	if params.Make != nil {
		conditions = append(conditions, "o.make ILIKE "+arg("%"+*params.Make+"%"))
	}
	if params.Model != nil {
		conditions = append(conditions, "o.model ILIKE "+arg("%"+*params.Model+"%"))
	}
	if params.OfferType != nil {
		conditions = append(conditions, "o.offer_type = "+arg(strings.ToLower(*params.OfferType)))
	}
	if params.MaxMonthlyPayment != nil {
		conditions = append(conditions, "o.monthly_payment <= "+arg(*params.MaxMonthlyPayment))
	}
	if params.MaxDownPayment != nil {
		conditions = append(conditions, "o.down_payment <= "+arg(*params.MaxDownPayment))
	}
	if params.MinTermMonths != nil {
		conditions = append(conditions, "o.term_months >= "+arg(*params.MinTermMonths))
	}
	if params.MaxTermMonths != nil {
		conditions = append(conditions, "o.term_months <= "+arg(*params.MaxTermMonths))
	}

	query := "SELECT " + offerColumns + `
		FROM offers o
		JOIN dealers d ON d.id = o.dealer_id
		WHERE ` + strings.Join(conditions, " AND ")

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, shared.NewServiceUnavailableError("OfferService", "find_active_offers", err)
	}
	defer rows.Close()

	var offers []models.Offer
	for rows.Next() {
		offer, err := scanOffer(rows, false)
		if err != nil {
			return nil, shared.NewServiceUnavailableError("OfferService", "find_active_offers", err)
		}
		offers = append(offers, *offer)
	}

	return offers, rows.Err()
}

// GetOfferByID fetches one offer with its raw extraction payload for
// inspection, active or not.
func (s *OfferService) GetOfferByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	query := "SELECT " + offerColumns + `, o.raw_extracted_data
		FROM offers o
		JOIN dealers d ON d.id = o.dealer_id
		WHERE o.id = $1`

	row := s.db.QueryRowContext(ctx, query, id)
	offer, err := scanOffer(row, true)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, shared.NewServiceUnavailableError("OfferService", "get_offer_by_id", err)
	}
	return offer, nil
}

// ListDealers returns all dealers with their active offer counts.
func (s *OfferService) ListDealers(ctx context.Context) ([]DealerListing, error) {
	query := `
		SELECT d.id, d.name, d.slug, d.make, d.city, d.state, d.website,
		       d.specials_url, d.phone, d.platform, d.active, d.created_at, d.updated_at,
		       COUNT(o.id) FILTER (WHERE o.active) AS active_offers
		FROM dealers d
		LEFT JOIN offers o ON o.dealer_id = d.id
		GROUP BY d.id
		ORDER BY d.name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, shared.NewServiceUnavailableError("OfferService", "list_dealers", err)
	}
	defer rows.Close()

	var listings []DealerListing
	for rows.Next() {
		var listing DealerListing
		err := rows.Scan(
			&listing.ID, &listing.Name, &listing.Slug, &listing.Make, &listing.City,
			&listing.State, &listing.Website, &listing.SpecialsURL, &listing.Phone,
			&listing.Platform, &listing.Active, &listing.CreatedAt, &listing.UpdatedAt,
			&listing.ActiveOffers,
		)
		if err != nil {
			return nil, shared.NewServiceUnavailableError("OfferService", "list_dealers", err)
		}
		listings = append(listings, listing)
	}

	return listings, rows.Err()
}

// GetDealerBySlug fetches one dealer from the registry-backed table.
func (s *OfferService) GetDealerBySlug(ctx context.Context, slug string) (*models.Dealer, error) {
	query := `
		SELECT id, name, slug, make, city, state, website, specials_url,
		       phone, platform, active, created_at, updated_at
		FROM dealers WHERE slug = $1`

	var dealer models.Dealer
	err := s.db.QueryRowContext(ctx, query, slug).Scan(
		&dealer.ID, &dealer.Name, &dealer.Slug, &dealer.Make, &dealer.City,
		&dealer.State, &dealer.Website, &dealer.SpecialsURL, &dealer.Phone,
		&dealer.Platform, &dealer.Active, &dealer.CreatedAt, &dealer.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, shared.NewServiceUnavailableError("OfferService", "get_dealer_by_slug", err)
	}
	return &dealer, nil
}

// DeactivateStaleOffers retires active offers not refreshed since the
// cutoff. Covers dealers that drop out of the registry or fail every
// run; their offers must not advertise forever.
func (s *OfferService) DeactivateStaleOffers(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := s.db.ExecContext(ctx,
		`UPDATE offers SET active = FALSE, updated_at = NOW() WHERE active = TRUE AND updated_at < $1`,
		cutoff)
	if err != nil {
		return 0, shared.NewReconcileError("deactivate_stale", "stale sweep failed", err)
	}

	affected, _ := result.RowsAffected()
	if affected > 0 {
		logrus.WithFields(logrus.Fields{
			"deactivated": affected,
			"cutoff":      cutoff.Format(time.RFC3339),
		}).Info("Deactivated stale offers")
	}
	return affected, nil
}

// DeactivateDealerOffers retires a single dealer's active set outside a
// reconciliation, used when a specials URL audit finds the page dead.
func (s *OfferService) DeactivateDealerOffers(ctx context.Context, dealerID uuid.UUID) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE offers SET active = FALSE, updated_at = NOW() WHERE dealer_id = $1 AND active = TRUE`,
		dealerID)
	if err != nil {
		return 0, shared.NewReconcileError("deactivate_dealer", "dealer deactivation failed", err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

// CountActiveOffers returns the size of the live offer set.
func (s *OfferService) CountActiveOffers(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM offers WHERE active = TRUE`).Scan(&count)
	if err != nil {
		return 0, shared.NewServiceUnavailableError("OfferService", "count_active_offers", err)
	}
	return count, nil
}

// SaveRunReport persists the aggregate record of one ingestion run.
func (s *OfferService) SaveRunReport(ctx context.Context, report *models.ScrapeRunReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling run report: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scrape_runs (started_at, completed_at, total_dealers, succeeded, failed, total_saved, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		report.StartedAt, report.CompletedAt, report.TotalDealers,
		report.Succeeded, report.Failed, report.TotalSaved, payload)
	if err != nil {
		return shared.NewReconcileError("save_run_report", "run report insert failed", err)
	}
	return nil
}

// GetLatestRunReport returns the most recent ingestion run, or nil when
// no run has completed yet.
func (s *OfferService) GetLatestRunReport(ctx context.Context) (*models.ScrapeRunReport, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM scrape_runs ORDER BY created_at DESC LIMIT 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, shared.NewServiceUnavailableError("OfferService", "get_latest_run_report", err)
	}

	var report models.ScrapeRunReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("unmarshaling run report: %w", err)
	}
	return &report, nil
}

// LogSearch records one search for analytics. Failures are logged and
// swallowed; analytics never breaks a search.
func (s *OfferService) LogSearch(ctx context.Context, entry models.SearchLog) {
	payload, err := json.Marshal(entry.Params)
	if err != nil {
		return
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO search_logs (params, results_count, cached) VALUES ($1, $2, $3)`,
		payload, entry.ResultsCount, entry.Cached)
	if err != nil {
		logrus.WithError(err).Warn("Failed to write search log")
	}
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOffer(row rowScanner, withRaw bool) (*models.Offer, error) {
	var offer models.Offer
	var endDate sql.NullTime
	var raw []byte

	dest := []interface{}{
		&offer.ID, &offer.DealerID, &offer.Year, &offer.Make, &offer.Model,
		&offer.Trim, &offer.OfferType, &offer.MonthlyPayment, &offer.DownPayment,
		&offer.TermMonths, &offer.AnnualMileage, &offer.APR, &offer.MSRP,
		&offer.SellingPrice, &endDate, &offer.Disclaimer, &offer.SourceURL,
		&offer.ImageURL, &offer.ConfidenceScore, &offer.ExtractionMethod,
		&offer.Active, &offer.CreatedAt, &offer.UpdatedAt,
		&offer.DealerName, &offer.DealerCity,
	}
	if withRaw {
		dest = append(dest, &raw)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if endDate.Valid {
		iso := endDate.Time.Format("2006-01-02")
		offer.OfferEndDate = &iso
	}
	if withRaw && len(raw) > 0 {
		offer.RawExtractedData = json.RawMessage(raw)
	}

	return &offer, nil
}
