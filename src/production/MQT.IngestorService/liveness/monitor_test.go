package liveness

import (
	"context"
	"errors"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	logger "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Logger"
	metrics "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Metrics"
	testutil "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Testutil"
)

func TestMonitor_PingsOnInterval(t *testing.T) {
	repo := testutil.NewMemoryRepository(10, 10)
	mon := NewMonitor(repo, 10*time.Millisecond, time.Second, metrics.NewMetrics(), logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx) }()

	require.Eventually(t, func() bool { return repo.Pings() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
	assert.True(t, mon.Status().Healthy)
}

func TestMonitor_FailuresAreSwallowed(t *testing.T) {
	repo := testutil.NewMemoryRepository(10, 10)
	repo.FailOn("Ping", errors.New("no reachable servers"))
	m := metrics.NewMetrics()
	mon := NewMonitor(repo, 10*time.Millisecond, time.Second, m, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mon.Run(ctx)

	require.Eventually(t, func() bool { return mon.Status().ConsecutiveFailures >= 2 }, time.Second, 5*time.Millisecond)
	st := mon.Status()
	assert.False(t, st.Healthy)
	assert.Equal(t, "no reachable servers", st.LastError)

	repo.FailOn("Ping", nil)
	require.Eventually(t, func() bool { return mon.Status().Healthy }, time.Second, 5*time.Millisecond)
	assert.Zero(t, mon.Status().ConsecutiveFailures)
	assert.GreaterOrEqual(t, promtest.ToFloat64(m.LivenessChecks.WithLabelValues("error")), 2.0)
}

type slowPinger struct{}

func (slowPinger) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (slowPinger) EnsureSchema(context.Context) error { return nil }

func TestMonitor_CheckHonorsTimeout(t *testing.T) {
	mon := NewMonitor(slowPinger{}, time.Hour, 20*time.Millisecond, metrics.NewMetrics(), logger.NewNop())

	start := time.Now()
	st := mon.Check(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, st.Healthy)
	assert.Contains(t, st.LastError, "deadline")
}

func countCalls(repo *testutil.MemoryRepository, op string) int {
	n := 0
	for _, c := range repo.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

func TestMonitor_RetriesPendingSchemaUntilItSucceeds(t *testing.T) {
	repo := testutil.NewMemoryRepository(10, 10)
	repo.FailOn("Ping", errors.New("connection refused"))
	mon := NewMonitor(repo, time.Hour, time.Second, metrics.NewMetrics(), logger.NewNop())
	mon.RequireSchema()
	ctx := context.Background()

	st := mon.Check(ctx)
	assert.True(t, st.SchemaPending)
	assert.Zero(t, countCalls(repo, "EnsureSchema"), "no schema attempt while the store is down")

	repo.FailOn("Ping", nil)
	repo.FailOn("EnsureSchema", errors.New("not primary"))
	st = mon.Check(ctx)
	assert.True(t, st.Healthy)
	assert.True(t, st.SchemaPending)
	assert.Equal(t, 1, countCalls(repo, "EnsureSchema"))

	repo.FailOn("EnsureSchema", nil)
	st = mon.Check(ctx)
	assert.False(t, st.SchemaPending)
	assert.Equal(t, 2, countCalls(repo, "EnsureSchema"))

	mon.Check(ctx)
	assert.Equal(t, 2, countCalls(repo, "EnsureSchema"), "schema is not re-run once ensured")
}
