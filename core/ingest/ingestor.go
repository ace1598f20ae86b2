// Package ingest turns inbound telemetry messages into usage records. The
// pipeline never raises: every failure path is logged and absorbed so that a
// single bad message cannot halt the stream.
package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kurnia-dev/smartenergy/core/budget"
	"github.com/kurnia-dev/smartenergy/core/events"
	"github.com/kurnia-dev/smartenergy/core/logger"
	"github.com/kurnia-dev/smartenergy/core/metrics"
	"github.com/kurnia-dev/smartenergy/core/model"
	"github.com/kurnia-dev/smartenergy/core/store"
	"github.com/kurnia-dev/smartenergy/internal/eventbus"
)

// deviceLocks serializes the read-latest/compute-delta/append sequence per
// device. Two near-simultaneous messages for one device would otherwise both
// read the same "last record" and double- or under-count the delta.
type deviceLocks struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func (d *deviceLocks) lock(id uint) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.locks == nil {
		d.locks = make(map[uint]*sync.Mutex)
	}
	l, ok := d.locks[id]
	if !ok {
		l = &sync.Mutex{}
		d.locks[id] = l
	}
	return l
}

// Ingestor processes (topic, payload) pairs from the transport.
type Ingestor struct {
	store    store.Store
	enforcer *budget.Enforcer
	bus      eventbus.EventBus
	sink     metrics.Sink
	log      logger.Logger
	now      func() time.Time
	locks    deviceLocks
}

// NewIngestor creates an Ingestor. The enforcer, bus and sink may each be nil
// to disable budget enforcement, live fan-out or metrics.
func NewIngestor(st store.Store, enf *budget.Enforcer, bus eventbus.EventBus, sink metrics.Sink, log logger.Logger) *Ingestor {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Ingestor{store: st, enforcer: enf, bus: bus, sink: sink, log: log, now: time.Now}
}

// Handle runs the full ingestion pipeline for one inbound message. It is safe
// to call concurrently from transport callback goroutines.
func (in *Ingestor) Handle(ctx context.Context, topic string, payload []byte) {
	tel, res := parsePayload(payload)
	if res == parsedMalformed {
		in.log.Warnf("non-JSON payload on %q, discarded", topic)
		in.discard(metrics.DiscardMalformed)
		return
	}

	// Resolve the device live from storage; the topic may belong to a
	// device deleted after subscribing.
	dev, err := in.store.DeviceByTelemetryTopic(ctx, topic)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			in.log.Warnf("no device for topic %q, discarded", topic)
		} else {
			in.log.Errorf("resolve device for %q: %v", topic, err)
		}
		in.discard(metrics.DiscardUnknownTopic)
		return
	}

	switch res {
	case parsedCommandEcho:
		in.log.Debugf("command echo from %s, ignored", dev.Name)
		in.discard(metrics.DiscardCommandEcho)
		return
	case parsedInvalid:
		in.log.Warnf("invalid telemetry from %s, discarded", dev.Name)
		in.discard(metrics.DiscardInvalidFields)
		return
	}

	rec, err := in.persist(ctx, dev, tel)
	if err != nil {
		in.log.Errorf("persist reading from %s: %v", dev.Name, err)
		return
	}

	total, err := in.store.SumDeltasSince(ctx, startOfDay(in.now()))
	if err != nil {
		in.log.Errorf("sum daily deltas: %v", err)
		return
	}

	if in.enforcer != nil {
		if err := in.enforcer.Evaluate(ctx, total); err != nil {
			in.log.Errorf("budget evaluation: %v", err)
		}
	}

	in.fanout(ctx, dev, rec, total)
}

// persist computes the energy delta under the device's lock and appends the
// record. Delta is clamped at zero so a counter regression (device reset)
// never produces negative consumption.
func (in *Ingestor) persist(ctx context.Context, dev model.Device, tel Telemetry) (model.UsageRecord, error) {
	l := in.locks.lock(dev.ID)
	l.Lock()
	defer l.Unlock()

	delta := 0.0
	last, err := in.store.LatestUsage(ctx, dev.ID)
	switch {
	case err == nil:
		if d := tel.Energy - last.Energy; d > 0 {
			delta = d
		}
	case errors.Is(err, store.ErrNotFound):
		// First record for this device, delta stays zero.
	default:
		return model.UsageRecord{}, err
	}

	rec := model.UsageRecord{
		DeviceID:    dev.ID,
		Volt:        tel.Volt,
		Ampere:      tel.Ampere,
		Watt:        tel.Watt,
		Energy:      tel.Energy,
		EnergyDelta: delta,
		Timestamp:   in.now(),
	}
	if err := in.store.AppendUsage(ctx, &rec); err != nil {
		return model.UsageRecord{}, err
	}
	return rec, nil
}

// fanout emits the per-reading and aggregate events. Failures here never
// affect ingestion or enforcement.
func (in *Ingestor) fanout(ctx context.Context, dev model.Device, rec model.UsageRecord, total float64) {
	scheduleActive := false
	if scheds, err := in.store.ActiveSchedules(ctx, dev.ID); err == nil {
		scheduleActive = len(scheds) > 0
	}

	if in.bus != nil {
		in.bus.Publish(events.Reading{
			DeviceID:       dev.ID,
			DeviceName:     dev.Name,
			Volt:           rec.Volt,
			Ampere:         rec.Ampere,
			Watt:           rec.Watt,
			Energy:         rec.Energy,
			EnergyDelta:    rec.EnergyDelta,
			Timestamp:      events.FormatTimestamp(rec.Timestamp),
			ScheduleActive: scheduleActive,
			Priority:       dev.Priority,
		})
		in.bus.Publish(events.NewDailyTotal(total))
	}

	if err := in.sink.RecordReading(metrics.ReadingEvent{
		DeviceID:   dev.ID,
		DeviceName: dev.Name,
		Priority:   dev.Priority,
		Volt:       rec.Volt,
		Ampere:     rec.Ampere,
		Watt:       rec.Watt,
		Energy:     rec.Energy,
		Delta:      rec.EnergyDelta,
		Time:       rec.Timestamp,
	}); err != nil {
		in.log.Warnf("record reading metric: %v", err)
	}
	if err := in.sink.RecordDailyTotal(total); err != nil {
		in.log.Warnf("record daily total metric: %v", err)
	}
}

func (in *Ingestor) discard(reason string) {
	if err := in.sink.RecordDiscard(reason); err != nil {
		in.log.Warnf("record discard metric: %v", err)
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
