package shared

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordRequestTracksRates(t *testing.T) {
	m := NewServiceMetrics("FetcherService")

	m.RecordRequest(true, 10*time.Millisecond)
	m.RecordRequest(true, 30*time.Millisecond)
	m.RecordRequest(false, 50*time.Millisecond)

	snapshot := m.Snapshot()
	assert.Equal(t, int64(3), snapshot.TotalRequests)
	assert.Equal(t, int64(2), snapshot.SuccessfulRequests)
	assert.Equal(t, int64(1), snapshot.FailedRequests)
	assert.InDelta(t, 66.67, snapshot.SuccessRate, 0.01)
	assert.Equal(t, "10ms", snapshot.MinDuration)
	assert.Equal(t, "50ms", snapshot.MaxDuration)
	assert.Equal(t, "30ms", snapshot.AverageDuration)
}

func TestMetricsCounters(t *testing.T) {
	m := NewServiceMetrics("FetcherService")

	m.IncrementCounter("browser_fallbacks")
	m.IncrementCounter("browser_fallbacks")
	m.IncrementCounter("http_retries")

	assert.Equal(t, int64(2), m.Counter("browser_fallbacks"))
	assert.Equal(t, int64(1), m.Counter("http_retries"))
	assert.Equal(t, int64(0), m.Counter("never_touched"))
}

func TestMetricsSnapshotIsDetached(t *testing.T) {
	m := NewServiceMetrics("ModelExtractorService")
	m.IncrementCounter("parse_failures")

	snapshot := m.Snapshot()
	m.IncrementCounter("parse_failures")

	assert.Equal(t, int64(1), snapshot.Counters["parse_failures"], "snapshot must not track later updates")
	assert.Equal(t, int64(2), m.Counter("parse_failures"))
}

func TestMetricsReset(t *testing.T) {
	m := NewServiceMetrics("FetcherService")
	m.RecordRequest(true, time.Millisecond)
	m.IncrementCounter("http_success")

	m.Reset()

	snapshot := m.Snapshot()
	assert.Equal(t, int64(0), snapshot.TotalRequests)
	assert.Empty(t, snapshot.Counters)
	assert.Equal(t, "FetcherService", snapshot.ServiceName)
}

func TestMetricsConcurrentRecording(t *testing.T) {
	m := NewServiceMetrics("FetcherService")

	var wg sync.WaitGroup
	for worker := 0; worker < 10; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.RecordRequest(i%2 == 0, time.Millisecond)
				m.IncrementCounter("http_success")
			}
		}()
	}
	wg.Wait()

	snapshot := m.Snapshot()
	require.Equal(t, int64(1000), snapshot.TotalRequests)
	assert.Equal(t, int64(1000), snapshot.Counters["http_success"])
	assert.Equal(t, int64(500), snapshot.SuccessfulRequests)
}
