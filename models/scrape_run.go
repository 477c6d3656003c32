package models

import "time"

// Dealer outcome statuses within a scrape run.
const (
	DealerOutcomeSuccess = "success"
	DealerOutcomeFailed  = "failed"
)

// DealerRunResult is the tagged outcome of one dealer's pipeline pass.
// A dealer failure is contained here; it never aborts the run.
type DealerRunResult struct {
	DealerName   string `json:"dealer_name"`
	DealerSlug   string `json:"dealer_slug"`
	Status       string `json:"status"`
	FetchedBytes int    `json:"fetched_bytes"`
	Extracted    int    `json:"extracted"`
	Valid        int    `json:"valid"`
	Saved        int    `json:"saved"`
	Deactivated  int    `json:"deactivated"`
	Error        string `json:"error,omitempty"`
}

// ScrapeRunReport aggregates the per-dealer outcomes of one orchestration
// cycle. Emitted once per run for operational tooling.
type ScrapeRunReport struct {
	StartedAt     time.Time         `json:"started_at"`
	CompletedAt   time.Time         `json:"completed_at"`
	DealerResults []DealerRunResult `json:"dealer_results"`
	TotalDealers  int               `json:"total_dealers"`
	Succeeded     int               `json:"succeeded"`
	Failed        int               `json:"failed"`
	TotalSaved    int               `json:"total_saved"`
}

// Duration returns the wall-clock duration of the run.
func (r *ScrapeRunReport) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}
