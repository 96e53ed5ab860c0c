package implementation

import (
	"context"
	"fmt"
	"time"

	mqtmodels "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoTelemetryRepository stores telemetry in MongoDB collections
type MongoTelemetryRepository struct {
	db           *mongo.Database
	opTimeout    time.Duration
	historyLimit int
	readingLimit int
}

func NewMongoTelemetryRepository(db *mongo.Database, opTimeout time.Duration, historyLimit, readingLimit int) *MongoTelemetryRepository {
	return &MongoTelemetryRepository{
		db:           db,
		opTimeout:    opTimeout,
		historyLimit: historyLimit,
		readingLimit: readingLimit,
	}
}

func (r *MongoTelemetryRepository) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 4*r.opTimeout)
	defer cancel()

	latest := mongo.IndexModel{
		Keys:    bson.D{{Key: "device_id", Value: 1}, {Key: "location", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("device_location_unique"),
	}
	if _, err := r.db.Collection(mqtmodels.LatestCollection).Indexes().CreateOne(ctx, latest); err != nil {
		return fmt.Errorf("create index on %s: %w", mqtmodels.LatestCollection, err)
	}

	series := mongo.IndexModel{
		Keys: bson.D{
			{Key: "device_id", Value: 1},
			{Key: "location", Value: 1},
			{Key: "timestamp", Value: -1},
		},
		Options: options.Index().SetName("device_location_timestamp"),
	}
	collections := append(mqtmodels.HistoryCollections(), mqtmodels.RelayLogCollection)
	for _, name := range collections {
		if _, err := r.db.Collection(name).Indexes().CreateOne(ctx, series); err != nil {
			return fmt.Errorf("create index on %s: %w", name, err)
		}
	}
	return nil
}

// UpsertLatest replaces the current document for the reading's key.
// The unique index makes concurrent first inserts race on E11000; the loser retries as an update.
func (r *MongoTelemetryRepository) UpsertLatest(ctx context.Context, state mqtmodels.LatestState) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	coll := r.db.Collection(mqtmodels.LatestCollection)
	filter := scopeFilter(state.DeviceID, state.Location)
	opts := options.Replace().SetUpsert(true)

	_, err := coll.ReplaceOne(ctx, filter, state, opts)
	if mongo.IsDuplicateKeyError(err) {
		_, err = coll.ReplaceOne(ctx, filter, state, opts)
	}
	if err != nil {
		return fmt.Errorf("upsert %s: %w", mqtmodels.LatestCollection, err)
	}
	return nil
}

func (r *MongoTelemetryRepository) AppendHistory(ctx context.Context, family mqtmodels.MetricFamily, rec mqtmodels.HistoryRecord) error {
	return r.appendCapped(ctx, family.Collection, rec, rec.DeviceID, rec.Location, r.historyLimit)
}

func (r *MongoTelemetryRepository) AppendReadingHistory(ctx context.Context, state mqtmodels.LatestState) error {
	return r.appendCapped(ctx, mqtmodels.ReadingHistoryCollection, state, state.DeviceID, state.Location, r.readingLimit)
}

func (r *MongoTelemetryRepository) AppendRelayLog(ctx context.Context, entry mqtmodels.RelayLog) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	if _, err := r.db.Collection(mqtmodels.RelayLogCollection).InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("insert %s: %w", mqtmodels.RelayLogCollection, err)
	}
	return nil
}

// appendCapped inserts doc and deletes everything past the newest limit
// documents for the scope. A crash between the two steps leaves an overshoot
// that the next append for the same scope removes.
func (r *MongoTelemetryRepository) appendCapped(ctx context.Context, collection string, doc interface{}, deviceID, location string, limit int) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	coll := r.db.Collection(collection)
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert %s: %w", collection, err)
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(limit)).
		SetProjection(bson.M{"_id": 1})

	cur, err := coll.Find(ctx, scopeFilter(deviceID, location), findOpts)
	if err != nil {
		return fmt.Errorf("find excess %s: %w", collection, err)
	}
	var excess []struct {
		ID interface{} `bson:"_id"`
	}
	if err := cur.All(ctx, &excess); err != nil {
		return fmt.Errorf("read excess %s: %w", collection, err)
	}
	if len(excess) == 0 {
		return nil
	}

	ids := make(bson.A, 0, len(excess))
	for _, e := range excess {
		ids = append(ids, e.ID)
	}
	if _, err := coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		return fmt.Errorf("trim %s: %w", collection, err)
	}
	return nil
}

func (r *MongoTelemetryRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	return r.db.Client().Ping(ctx, readpref.Primary())
}

func (r *MongoTelemetryRepository) Close(ctx context.Context) error {
	return r.db.Client().Disconnect(ctx)
}

func scopeFilter(deviceID, location string) bson.D {
	return bson.D{{Key: "device_id", Value: deviceID}, {Key: "location", Value: location}}
}
