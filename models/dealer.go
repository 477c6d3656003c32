package models

import (
	"time"

	"github.com/google/uuid"
)

// Dealer represents a dealership whose specials page we ingest offers from.
// Dealers come from the configured registry and are created on first
// successful reconciliation; they are never deleted within a run.
type Dealer struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Make        string    `json:"make"`
	City        *string   `json:"city"`
	State       string    `json:"state"`
	Website     *string   `json:"website"`
	SpecialsURL string    `json:"specials_url"`
	Phone       *string   `json:"phone"`
	Platform    *string   `json:"platform"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
