package interfaces

import (
	"context"

	mqtmodels "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Models"
)

// TelemetryRepository owns the durable telemetry collections.
//
// UpsertLatest replaces the single document for (device_id, location).
// AppendHistory and AppendReadingHistory insert one record and then trim the
// series for that (device_id, location) back to its retention cap.
// AppendRelayLog is a plain append with no cap.
type TelemetryRepository interface {
	EnsureSchema(ctx context.Context) error
	UpsertLatest(ctx context.Context, state mqtmodels.LatestState) error
	AppendHistory(ctx context.Context, family mqtmodels.MetricFamily, rec mqtmodels.HistoryRecord) error
	AppendReadingHistory(ctx context.Context, state mqtmodels.LatestState) error
	AppendRelayLog(ctx context.Context, entry mqtmodels.RelayLog) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
