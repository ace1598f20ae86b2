package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kurnia-dev/smartenergy/core/metrics"
)

// PromSink records controller activity in Prometheus metrics.
type PromSink struct {
	readings   *prometheus.CounterVec
	discards   *prometheus.CounterVec
	commands   *prometheus.CounterVec
	sheds      *prometheus.CounterVec
	power      *prometheus.GaugeVec
	dailyTotal prometheus.Gauge
}

// NewPromSink registers controller metrics on the default Prometheus
// registerer. The metrics server is started separately.
func NewPromSink(cfg coremetrics.Config) (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	readings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_readings_total",
		Help: "Total number of ingested telemetry readings",
	}, []string{"device", "priority"})
	discards := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_discards_total",
		Help: "Total number of discarded inbound messages",
	}, []string{"reason"})
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "control_commands_total",
		Help: "Total number of status changes issued through the dispatcher",
	}, []string{"device", "state", "source", "published"})
	sheds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "budget_shed_events_total",
		Help: "Total number of budget shedding evaluations that fired a tier",
	}, []string{"tier"})
	power := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "device_power_watts",
		Help: "Last reported instantaneous power per device",
	}, []string{"device"})
	dailyTotal := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "energy_daily_total_kwh",
		Help: "Running energy consumption total for the current day",
	})

	s := &PromSink{
		readings:   readings,
		discards:   discards,
		commands:   commands,
		sheds:      sheds,
		power:      power,
		dailyTotal: dailyTotal,
	}
	for _, c := range []prometheus.Collector{readings, discards, commands, sheds, power, dailyTotal} {
		if err := register(reg, c, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// register tolerates double registration so that tests and restarts reusing
// the default registerer do not fail.
func register(reg prometheus.Registerer, c prometheus.Collector, s *PromSink) error {
	err := reg.Register(c)
	if err == nil {
		return nil
	}
	are, ok := err.(prometheus.AlreadyRegisteredError)
	if !ok {
		return err
	}
	switch existing := are.ExistingCollector.(type) {
	case *prometheus.CounterVec:
		switch c {
		case s.readings:
			s.readings = existing
		case s.discards:
			s.discards = existing
		case s.commands:
			s.commands = existing
		case s.sheds:
			s.sheds = existing
		}
	case *prometheus.GaugeVec:
		s.power = existing
	case prometheus.Gauge:
		s.dailyTotal = existing
	}
	return nil
}

func (s *PromSink) RecordReading(ev coremetrics.ReadingEvent) error {
	s.readings.WithLabelValues(ev.DeviceName, string(ev.Priority)).Inc()
	s.power.WithLabelValues(ev.DeviceName).Set(ev.Watt)
	return nil
}

func (s *PromSink) RecordDiscard(reason string) error {
	s.discards.WithLabelValues(reason).Inc()
	return nil
}

func (s *PromSink) RecordCommand(ev coremetrics.CommandEvent) error {
	s.commands.WithLabelValues(ev.DeviceName, string(ev.State), ev.Source, strconv.FormatBool(ev.Published)).Inc()
	return nil
}

func (s *PromSink) RecordDailyTotal(kwh float64) error {
	s.dailyTotal.Set(kwh)
	return nil
}

func (s *PromSink) RecordShed(tier string, _ int) error {
	s.sheds.WithLabelValues(tier).Inc()
	return nil
}
