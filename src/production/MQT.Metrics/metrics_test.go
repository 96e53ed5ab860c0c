package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.MessagesReceived.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.MessagesReceived))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.MessagesReceived))
}

func TestObserveStore(t *testing.T) {
	m := NewMetrics()
	m.ObserveStore("upsert_latest", nil)
	m.ObserveStore("upsert_latest", nil)
	m.ObserveStore("upsert_latest", errors.New("timeout"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StoreOperations.WithLabelValues("upsert_latest", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperations.WithLabelValues("upsert_latest", "error")))
}

func TestHandler_ExposesNamespace(t *testing.T) {
	m := NewMetrics()
	m.MessagesDropped.WithLabelValues(ReasonDecode).Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `telemetry_messages_dropped_total{reason="decode"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
