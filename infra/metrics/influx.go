package metrics

import (
	"context"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kurnia-dev/smartenergy/core/metrics"
	"github.com/kurnia-dev/smartenergy/infra/logger"
)

// InfluxSink writes usage readings and control commands to InfluxDB as time
// series, using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

var _ coremetrics.Sink = (*InfluxSink)(nil)

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(cfg coremetrics.Config) *InfluxSink {
	client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// when the health check fails, so a missing time-series backend never blocks
// the controller.
func NewInfluxSinkWithFallback(cfg coremetrics.Config) coremetrics.Sink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close shuts down the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) RecordReading(ev coremetrics.ReadingEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("device_usage").
		AddTag("device_id", strconv.FormatUint(uint64(ev.DeviceID), 10)).
		AddTag("device", ev.DeviceName).
		AddTag("priority", string(ev.Priority)).
		AddField("volt", ev.Volt).
		AddField("ampere", ev.Ampere).
		AddField("watt", ev.Watt).
		AddField("energy", ev.Energy).
		AddField("energy_delta", ev.Delta).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordDiscard(reason string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("telemetry_discard").
		AddTag("reason", reason).
		AddField("count", 1).
		SetTime(time.Now())
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordCommand(ev coremetrics.CommandEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("control_command").
		AddTag("device_id", strconv.FormatUint(uint64(ev.DeviceID), 10)).
		AddTag("device", ev.DeviceName).
		AddTag("state", string(ev.State)).
		AddTag("source", ev.Source).
		AddTag("published", strconv.FormatBool(ev.Published)).
		AddField("count", 1).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordDailyTotal(kwh float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("daily_total").
		AddField("kwh", kwh).
		SetTime(time.Now())
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordShed(tier string, devices int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("budget_shed").
		AddTag("tier", tier).
		AddField("devices", devices).
		SetTime(time.Now())
	return s.writeAPI.WritePoint(ctx, p)
}
