package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModerationObserveCountsByLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewModeration(reg)

	m.Observe("volunteer", "approve", OutcomeOK, 10*time.Millisecond)
	m.Observe("volunteer", "approve", OutcomeOK, 20*time.Millisecond)
	m.Observe("volunteer", "approve", OutcomeConflict, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("volunteer", "approve", OutcomeOK)))
	assert.Equal(t, 1.0, m.OperationCount("volunteer", "approve", OutcomeConflict))
	assert.Equal(t, 0.0, m.OperationCount("speaker", "approve", OutcomeOK))

	count, err := testutil.GatherAndCount(reg, "flames_moderation_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestModerationNotified(t *testing.T) {
	m := NewModeration(prometheus.NewRegistry())

	m.Notified("approval", true)
	m.Notified("approval", false)
	m.Notified("approval", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("approval", OutcomeOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.notifications.WithLabelValues("approval", OutcomeError)))
}

func TestNilCollectorsAreNoops(t *testing.T) {
	var m *Moderation
	var h *HTTP

	assert.NotPanics(t, func() {
		m.Observe("partner", "delete", OutcomeOK, time.Second)
		m.Notified("welcome", true)
		h.Observe("GET", "/api/health", 200, time.Millisecond)
	})
	assert.Equal(t, 0.0, m.OperationCount("partner", "delete", OutcomeOK))
}

func TestHTTPObserve(t *testing.T) {
	h := NewHTTP(prometheus.NewRegistry())

	h.Observe("POST", "/api/contact", 201, time.Millisecond)
	h.Observe("POST", "/api/contact", 429, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.requests.WithLabelValues("POST", "/api/contact", "201")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.requests.WithLabelValues("POST", "/api/contact", "429")))
}

func TestNewModerationTwiceOnSameRegistryPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewModeration(reg)
	assert.Panics(t, func() { NewModeration(reg) })
}
