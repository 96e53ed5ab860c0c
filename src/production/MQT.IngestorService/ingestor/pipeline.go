package mqtingestor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	classifier "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Classifier"
	metrics "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Metrics"
	mqtmodels "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Models"
	normalizer "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Normalizer"
	interfaces "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Repository/Interfaces"
)

// Inbound is one raw message handed over by a bus transport
type Inbound struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// Outcome describes a fully processed message
type Outcome struct {
	State    mqtmodels.LatestState
	Rejected []string
	Writes   int
}

// Pipeline runs Normalize, Classify and the store writes for one message
type Pipeline struct {
	repo    interfaces.TelemetryRepository
	metrics *metrics.Metrics
	newID   func() string
}

func NewPipeline(repo interfaces.TelemetryRepository, m *metrics.Metrics) *Pipeline {
	return &Pipeline{repo: repo, metrics: m, newID: uuid.NewString}
}

// Process handles one message. Writes happen in order and stop at the first
// store failure: latest state, aggregate history, each present metric
// series, then the relay log when the message carried relay fields.
func (p *Pipeline) Process(ctx context.Context, in Inbound) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Kind: KindInternal, Stage: "process", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	reading, rejected, err := normalizer.Parse(in.Payload, in.ReceivedAt)
	if err != nil {
		return out, &StageError{Kind: KindDecode, Stage: "decode", Err: err}
	}

	class := classifier.Classify(reading)
	state := mqtmodels.NewLatestState(reading, class, p.newID())
	out = Outcome{State: state, Rejected: rejected}

	if err := p.write(ctx, &out, "upsert_latest", func(ctx context.Context) error {
		return p.repo.UpsertLatest(ctx, state)
	}); err != nil {
		return out, err
	}

	if err := p.write(ctx, &out, "append_reading_history", func(ctx context.Context) error {
		return p.repo.AppendReadingHistory(ctx, state)
	}); err != nil {
		return out, err
	}

	for _, family := range mqtmodels.MetricFamilies {
		v := family.Value(reading)
		if v == nil {
			continue
		}
		rec := mqtmodels.HistoryRecord{
			Value:     *v,
			Unit:      family.Unit,
			Timestamp: reading.ReceivedAt,
			DeviceID:  reading.DeviceID,
			Location:  reading.Location,
		}
		if family.Name == "tds" {
			rec.WaterQuality = class.WaterQuality
		}
		if err := p.write(ctx, &out, "append_history:"+family.Name, func(ctx context.Context) error {
			return p.repo.AppendHistory(ctx, family, rec)
		}); err != nil {
			return out, err
		}
	}

	if reading.HasRelay() {
		entry := mqtmodels.NewRelayLog(state)
		if err := p.write(ctx, &out, "append_relay_log", func(ctx context.Context) error {
			return p.repo.AppendRelayLog(ctx, entry)
		}); err != nil {
			return out, err
		}
	}

	return out, nil
}

func (p *Pipeline) write(ctx context.Context, out *Outcome, stage string, fn func(context.Context) error) error {
	err := fn(ctx)
	p.metrics.ObserveStore(storeOp(stage), err)
	if err != nil {
		return &StageError{Kind: KindStore, Stage: stage, Err: err}
	}
	out.Writes++
	return nil
}

// storeOp strips the family suffix so the metric label set stays small
func storeOp(stage string) string {
	op, _, _ := strings.Cut(stage, ":")
	return op
}
