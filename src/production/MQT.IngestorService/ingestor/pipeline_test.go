package mqtingestor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	classifier "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Classifier"
	metrics "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Metrics"
	mqtmodels "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Models"
	testutil "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Testutil"
)

const (
	device   = mqtmodels.DefaultDeviceID
	location = mqtmodels.DefaultLocation
)

func newTestPipeline(historyLimit, readingLimit int) (*Pipeline, *testutil.MemoryRepository) {
	repo := testutil.NewMemoryRepository(historyLimit, readingLimit)
	return NewPipeline(repo, metrics.NewMetrics()), repo
}

func inbound(payload string) Inbound {
	return Inbound{Topic: "krishimithr/sensor/data", Payload: []byte(payload), ReceivedAt: time.Now().UTC()}
}

func TestPipeline_EndToEndExample(t *testing.T) {
	p, repo := newTestPipeline(100, 50)

	out, err := p.Process(context.Background(), inbound(`{"temperature": 30.5, "CO2_ppm": 1200, "TDS": 650, "motor": "true"}`))
	require.NoError(t, err)
	assert.Equal(t, 6, out.Writes)

	state, ok := repo.Latest(device, location)
	require.True(t, ok)
	assert.Equal(t, classifier.AirPoor, state.AirQualityStatus)
	assert.Equal(t, classifier.WaterModerate, state.WaterQuality)
	assert.True(t, state.MotorOn)
	assert.Equal(t, "true", *state.MotorState)
	assert.Nil(t, state.Humidity)
	assert.Equal(t, 30.5, *state.Temperature)
	assert.NotEmpty(t, state.IngestID)

	tds := repo.History("tds_data", device, location)
	require.Len(t, tds, 1)
	assert.Equal(t, 650.0, tds[0].Value)
	assert.Equal(t, mqtmodels.UnitPPM, tds[0].Unit)
	assert.Equal(t, classifier.WaterModerate, tds[0].WaterQuality)

	temp := repo.History("temperature_data", device, location)
	require.Len(t, temp, 1)
	assert.Equal(t, mqtmodels.UnitCelsius, temp[0].Unit)
	assert.Empty(t, temp[0].WaterQuality)

	assert.Empty(t, repo.History("humidity_data", device, location))
	assert.Len(t, repo.ReadingHistory(device, location), 1)

	relays := repo.RelayLogs()
	require.Len(t, relays, 1)
	assert.True(t, relays[0].MotorOn)
	assert.Nil(t, relays[0].HVState)
}

func TestPipeline_IdempotentLatest(t *testing.T) {
	p, repo := newTestPipeline(100, 50)
	ctx := context.Background()

	_, err := p.Process(ctx, inbound(`{"temperature": 21, "humidity": 70, "motor": "true"}`))
	require.NoError(t, err)
	_, err = p.Process(ctx, inbound(`{"temperature": 21, "motor": "false"}`))
	require.NoError(t, err)

	assert.Equal(t, 1, repo.LatestCount())

	state, ok := repo.Latest(device, location)
	require.True(t, ok)
	assert.Nil(t, state.Humidity, "stale field must not survive a replacement")
	assert.False(t, state.MotorOn)
}

func TestPipeline_SeparateScopes(t *testing.T) {
	p, repo := newTestPipeline(100, 50)
	ctx := context.Background()

	_, err := p.Process(ctx, inbound(`{"device_id": "a", "location": "north", "temperature": 20}`))
	require.NoError(t, err)
	_, err = p.Process(ctx, inbound(`{"device_id": "a", "location": "south", "temperature": 22}`))
	require.NoError(t, err)

	assert.Equal(t, 2, repo.LatestCount())
	assert.Len(t, repo.History("temperature_data", "a", "north"), 1)
	assert.Len(t, repo.History("temperature_data", "a", "south"), 1)
}

func TestPipeline_RetentionKeepsNewest(t *testing.T) {
	const limit = 5
	p, repo := newTestPipeline(limit, limit)
	ctx := context.Background()

	for i := 1; i <= limit+5; i++ {
		_, err := p.Process(ctx, inbound(fmt.Sprintf(`{"temperature": %d}`, i)))
		require.NoError(t, err)
	}

	series := repo.History("temperature_data", device, location)
	require.Len(t, series, limit)
	for i, rec := range series {
		assert.Equal(t, float64(limit+1+i), rec.Value)
	}
	assert.Len(t, repo.ReadingHistory(device, location), limit)
}

func TestPipeline_NoRelayLogWithoutRelayFields(t *testing.T) {
	p, repo := newTestPipeline(100, 50)

	out, err := p.Process(context.Background(), inbound(`{"humidity": 50}`))
	require.NoError(t, err)
	assert.Equal(t, 3, out.Writes)
	assert.Empty(t, repo.RelayLogs())
}

func TestPipeline_DecodeError(t *testing.T) {
	p, repo := newTestPipeline(100, 50)

	_, err := p.Process(context.Background(), inbound(`temperature=30`))
	require.Error(t, err)
	assert.Equal(t, KindDecode, KindOf(err))
	assert.Empty(t, repo.Calls())
}

func TestPipeline_StopsAtFirstStoreFailure(t *testing.T) {
	p, repo := newTestPipeline(100, 50)
	repo.FailOn("AppendHistory", errors.New("socket timeout"))

	out, err := p.Process(context.Background(), inbound(`{"temperature": 30, "humidity": 40, "motor": "true"}`))
	require.Error(t, err)
	assert.Equal(t, KindStore, KindOf(err))
	assert.Equal(t, 2, out.Writes)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "append_history:temperature", se.Stage)

	assert.Equal(t, []string{"UpsertLatest", "AppendReadingHistory", "AppendHistory"}, repo.Calls())
	assert.Empty(t, repo.RelayLogs())
}

type panickingRepo struct {
	*testutil.MemoryRepository
}

func (panickingRepo) UpsertLatest(context.Context, mqtmodels.LatestState) error {
	panic("nil map write")
}

func TestPipeline_RecoversPanics(t *testing.T) {
	repo := panickingRepo{testutil.NewMemoryRepository(10, 10)}
	p := NewPipeline(repo, metrics.NewMetrics())

	_, err := p.Process(context.Background(), inbound(`{"temperature": 30}`))
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Contains(t, err.Error(), "nil map write")
}

func TestKindOf_ForeignError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindStore, KindOf(fmt.Errorf("wrapped: %w", &StageError{Kind: KindStore, Stage: "x", Err: errors.New("y")})))
}
