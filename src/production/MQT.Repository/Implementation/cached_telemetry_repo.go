package implementation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	logger "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Repository/Interfaces"
)

// CachedTelemetryRepository mirrors every accepted latest state into Redis
// for dashboards. The durable store stays the source of truth, so cache
// failures are logged and never fail the write.
type CachedTelemetryRepository struct {
	interfaces.TelemetryRepository
	rdb    *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

func NewCachedTelemetryRepository(inner interfaces.TelemetryRepository, rdb *redis.Client, ttl time.Duration, log *logger.Logger) *CachedTelemetryRepository {
	return &CachedTelemetryRepository{
		TelemetryRepository: inner,
		rdb:                 rdb,
		ttl:                 ttl,
		logger:              log.WithComponent("cache"),
	}
}

// LatestKey is the Redis key holding the current state for a device/location
func LatestKey(deviceID, location string) string {
	return fmt.Sprintf("telemetry:latest:%s:%s", deviceID, location)
}

func (r *CachedTelemetryRepository) UpsertLatest(ctx context.Context, state mqtmodels.LatestState) error {
	if err := r.TelemetryRepository.UpsertLatest(ctx, state); err != nil {
		return err
	}

	body, err := json.Marshal(state)
	if err != nil {
		r.logger.Logger.Warn().Err(err).Msg("Failed to encode latest state for cache")
		return nil
	}
	key := LatestKey(state.DeviceID, state.Location)
	if err := r.rdb.Set(ctx, key, body, r.ttl).Err(); err != nil {
		r.logger.Logger.Warn().Err(err).Str("key", key).Msg("Failed to mirror latest state to Redis")
	}
	return nil
}

func (r *CachedTelemetryRepository) Close(ctx context.Context) error {
	if err := r.rdb.Close(); err != nil {
		r.logger.Logger.Warn().Err(err).Msg("Error closing Redis client")
	}
	return r.TelemetryRepository.Close(ctx)
}
