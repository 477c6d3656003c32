package shared

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DealerRateLimiter spaces outbound requests against dealer sites. The
// ingestion pipeline is sequential on purpose; this enforces the
// politeness gap between consecutive dealers.
type DealerRateLimiter struct {
	minimumDelay    time.Duration
	lastRequestTime time.Time
	mutex           sync.Mutex
	requestCount    int64
}

// NewDealerRateLimiter creates a limiter with the given minimum delay
// between consecutive requests.
func NewDealerRateLimiter(minimumDelay time.Duration) *DealerRateLimiter {
	return &DealerRateLimiter{
		minimumDelay:    minimumDelay,
		lastRequestTime: time.Now().Add(-minimumDelay),
	}
}

// Wait blocks until the minimum delay has elapsed since the previous
// request, or until ctx is cancelled.
func (limiter *DealerRateLimiter) Wait(ctx context.Context) error {
	limiter.mutex.Lock()
	elapsed := time.Since(limiter.lastRequestTime)
	var remaining time.Duration
	if elapsed < limiter.minimumDelay {
		remaining = limiter.minimumDelay - elapsed
	}
	limiter.mutex.Unlock()

	if remaining > 0 {
		logrus.WithFields(logrus.Fields{
			"component":       "DealerRateLimiter",
			"remaining_delay": remaining,
		}).Debug("Enforcing inter-dealer delay")

		select {
		case <-time.After(remaining):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	limiter.mutex.Lock()
	limiter.lastRequestTime = time.Now()
	limiter.requestCount++
	limiter.mutex.Unlock()
	return nil
}

// RequestCount returns the total number of requests the limiter has gated.
func (limiter *DealerRateLimiter) RequestCount() int64 {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	return limiter.requestCount
}
