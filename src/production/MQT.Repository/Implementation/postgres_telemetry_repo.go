package implementation

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	mqtmodels "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Models"
)

// PostgresTelemetryRepository keeps the same collections as tables with a JSONB
// document column, so API readers see identical field names on either backend.
type PostgresTelemetryRepository struct {
	pool         *pgxpool.Pool
	opTimeout    time.Duration
	historyLimit int
	readingLimit int
}

func NewPostgresTelemetryRepository(pool *pgxpool.Pool, opTimeout time.Duration, historyLimit, readingLimit int) *PostgresTelemetryRepository {
	return &PostgresTelemetryRepository{
		pool:         pool,
		opTimeout:    opTimeout,
		historyLimit: historyLimit,
		readingLimit: readingLimit,
	}
}

func (r *PostgresTelemetryRepository) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 4*r.opTimeout)
	defer cancel()

	stmts := []string{fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			device_id TEXT NOT NULL,
			location  TEXT NOT NULL,
			ts        TIMESTAMPTZ NOT NULL,
			doc       JSONB NOT NULL,
			PRIMARY KEY (device_id, location)
		)`, table(mqtmodels.LatestCollection))}

	series := append(mqtmodels.HistoryCollections(), mqtmodels.RelayLogCollection)
	for _, name := range series {
		stmts = append(stmts,
			fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					id        BIGSERIAL PRIMARY KEY,
					device_id TEXT NOT NULL,
					location  TEXT NOT NULL,
					ts        TIMESTAMPTZ NOT NULL,
					doc       JSONB NOT NULL
				)`, table(name)),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (device_id, location, ts DESC, id DESC)`,
				pgx.Identifier{name + "_scope_idx"}.Sanitize(), table(name)),
		)
	}

	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (r *PostgresTelemetryRepository) UpsertLatest(ctx context.Context, state mqtmodels.LatestState) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (device_id, location, ts, doc)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (device_id, location)
		DO UPDATE SET ts = EXCLUDED.ts, doc = EXCLUDED.doc
	`, table(mqtmodels.LatestCollection))

	if _, err := r.pool.Exec(ctx, query, state.DeviceID, state.Location, state.Timestamp, state); err != nil {
		return fmt.Errorf("upsert %s: %w", mqtmodels.LatestCollection, err)
	}
	return nil
}

func (r *PostgresTelemetryRepository) AppendHistory(ctx context.Context, family mqtmodels.MetricFamily, rec mqtmodels.HistoryRecord) error {
	return r.appendCapped(ctx, family.Collection, rec.DeviceID, rec.Location, rec.Timestamp, rec, r.historyLimit)
}

func (r *PostgresTelemetryRepository) AppendReadingHistory(ctx context.Context, state mqtmodels.LatestState) error {
	return r.appendCapped(ctx, mqtmodels.ReadingHistoryCollection, state.DeviceID, state.Location, state.Timestamp, state, r.readingLimit)
}

func (r *PostgresTelemetryRepository) AppendRelayLog(ctx context.Context, entry mqtmodels.RelayLog) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	query := fmt.Sprintf(`INSERT INTO %s (device_id, location, ts, doc) VALUES ($1, $2, $3, $4)`, table(mqtmodels.RelayLogCollection))
	if _, err := r.pool.Exec(ctx, query, entry.DeviceID, entry.Location, entry.Timestamp, entry); err != nil {
		return fmt.Errorf("insert %s: %w", mqtmodels.RelayLogCollection, err)
	}
	return nil
}

// appendCapped runs insert and trim in one transaction
func (r *PostgresTelemetryRepository) appendCapped(ctx context.Context, name, deviceID, location string, ts time.Time, doc interface{}, limit int) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	insert := fmt.Sprintf(`INSERT INTO %s (device_id, location, ts, doc) VALUES ($1, $2, $3, $4)`, table(name))
	trim := fmt.Sprintf(`
		DELETE FROM %[1]s WHERE id IN (
			SELECT id FROM %[1]s
			WHERE device_id = $1 AND location = $2
			ORDER BY ts DESC, id DESC
			OFFSET $3
		)`, table(name))

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insert, deviceID, location, ts, doc); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		if _, err := tx.Exec(ctx, trim, deviceID, location, limit); err != nil {
			return fmt.Errorf("trim: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append %s: %w", name, err)
	}
	return nil
}

func (r *PostgresTelemetryRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	return r.pool.Ping(ctx)
}

func (r *PostgresTelemetryRepository) Close(_ context.Context) error {
	r.pool.Close()
	return nil
}

func table(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
