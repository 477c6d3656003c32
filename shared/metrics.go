package shared

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ServiceMetrics tracks success rates, latency, and named counters for
// one pipeline stage. Every instance is owned by the service it
// measures; the orchestrator logs summaries after each ingestion run.
type ServiceMetrics struct {
	serviceName string

	totalRequests      int64
	successfulRequests int64
	failedRequests     int64

	totalDuration time.Duration
	minDuration   time.Duration
	maxDuration   time.Duration

	counters    map[string]int64
	lastUpdated time.Time

	mutex sync.RWMutex
}

// MetricsSnapshot is a point-in-time copy of one service's metrics,
// safe to serialize.
type MetricsSnapshot struct {
	ServiceName        string           `json:"service_name"`
	TotalRequests      int64            `json:"total_requests"`
	SuccessfulRequests int64            `json:"successful_requests"`
	FailedRequests     int64            `json:"failed_requests"`
	SuccessRate        float64          `json:"success_rate_percent"`
	AverageDuration    string           `json:"average_duration"`
	MinDuration        string           `json:"min_duration"`
	MaxDuration        string           `json:"max_duration"`
	Counters           map[string]int64 `json:"counters"`
	LastUpdated        time.Time        `json:"last_updated"`
}

// NewServiceMetrics creates a metrics tracker for the named service.
func NewServiceMetrics(serviceName string) *ServiceMetrics {
	return &ServiceMetrics{
		serviceName: serviceName,
		counters:    make(map[string]int64),
		lastUpdated: time.Now(),
	}
}

// RecordRequest records one operation with its outcome and duration.
func (m *ServiceMetrics) RecordRequest(success bool, duration time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.totalRequests++
	m.totalDuration += duration
	if m.minDuration == 0 || duration < m.minDuration {
		m.minDuration = duration
	}
	if duration > m.maxDuration {
		m.maxDuration = duration
	}

	if success {
		m.successfulRequests++
	} else {
		m.failedRequests++
	}

	m.lastUpdated = time.Now()
}

// IncrementCounter bumps a named counter, creating it on first use.
func (m *ServiceMetrics) IncrementCounter(key string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.counters[key]++
	m.lastUpdated = time.Now()
}

// Counter returns the current value of a named counter.
func (m *ServiceMetrics) Counter(key string) int64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.counters[key]
}

// SuccessRate returns the success rate as a percentage.
func (m *ServiceMetrics) SuccessRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.successRateLocked()
}

func (m *ServiceMetrics) successRateLocked() float64 {
	if m.totalRequests == 0 {
		return 0.0
	}
	return float64(m.successfulRequests) / float64(m.totalRequests) * 100.0
}

// Snapshot returns a consistent copy of the current metrics.
func (m *ServiceMetrics) Snapshot() MetricsSnapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	countersCopy := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		countersCopy[k] = v
	}

	average := time.Duration(0)
	if m.totalRequests > 0 {
		average = time.Duration(int64(m.totalDuration) / m.totalRequests)
	}

	return MetricsSnapshot{
		ServiceName:        m.serviceName,
		TotalRequests:      m.totalRequests,
		SuccessfulRequests: m.successfulRequests,
		FailedRequests:     m.failedRequests,
		SuccessRate:        m.successRateLocked(),
		AverageDuration:    average.Round(time.Millisecond).String(),
		MinDuration:        m.minDuration.Round(time.Millisecond).String(),
		MaxDuration:        m.maxDuration.Round(time.Millisecond).String(),
		Counters:           countersCopy,
		LastUpdated:        m.lastUpdated,
	}
}

// LogSummary logs the current metrics at info level.
func (m *ServiceMetrics) LogSummary() {
	snapshot := m.Snapshot()

	logrus.WithFields(logrus.Fields{
		"service_name":        snapshot.ServiceName,
		"total_requests":      snapshot.TotalRequests,
		"successful_requests": snapshot.SuccessfulRequests,
		"failed_requests":     snapshot.FailedRequests,
		"success_rate":        snapshot.SuccessRate,
		"average_duration":    snapshot.AverageDuration,
		"min_duration":        snapshot.MinDuration,
		"max_duration":        snapshot.MaxDuration,
		"counters":            snapshot.Counters,
	}).Info("Service metrics summary")
}

// Reset zeroes every metric, keeping the service name.
func (m *ServiceMetrics) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.totalRequests = 0
	m.successfulRequests = 0
	m.failedRequests = 0
	m.totalDuration = 0
	m.minDuration = 0
	m.maxDuration = 0
	m.counters = make(map[string]int64)
	m.lastUpdated = time.Now()
}
