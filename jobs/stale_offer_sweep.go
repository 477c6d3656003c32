package jobs

import (
	"context"
	"time"

	"github.com/cardealsai/cardeals-backend/services"
	"github.com/sirupsen/logrus"
)

// StaleOfferSweep retires active offers that have not been refreshed by
// any ingestion run within the configured window. It is the safety net
// for dealers that keep failing or drop out of the registry.
type StaleOfferSweep struct {
	offers *services.OfferService
	cache  *services.CacheService
	maxAge time.Duration
}

// NewStaleOfferSweep creates the sweep with the configured maximum age.
func NewStaleOfferSweep(offers *services.OfferService, cache *services.CacheService, maxAge time.Duration) *StaleOfferSweep {
	return &StaleOfferSweep{offers: offers, cache: cache, maxAge: maxAge}
}

// Run deactivates stale offers and invalidates the search cache when
// anything changed.
func (s *StaleOfferSweep) Run(ctx context.Context) (int64, error) {
	deactivated, err := s.offers.DeactivateStaleOffers(ctx, s.maxAge)
	if err != nil {
		return 0, err
	}

	if deactivated > 0 {
		s.cache.Clear()
	}

	logrus.WithFields(logrus.Fields{
		"deactivated": deactivated,
		"max_age":     s.maxAge.String(),
	}).Info("Stale offer sweep complete")

	return deactivated, nil
}
