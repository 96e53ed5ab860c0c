package health

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	config "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Config"
)

// ConnectRedisWithTimeout creates the latest-state mirror client and pings it
func ConnectRedisWithTimeout(ctx context.Context, cfg config.CacheConfig, timeout time.Duration) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: timeout,
	})

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("unable to ping Redis at %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}
