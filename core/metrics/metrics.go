package metrics

import (
	"time"

	"github.com/kurnia-dev/smartenergy/core/model"
)

// ReadingEvent is recorded for every persisted usage record.
type ReadingEvent struct {
	DeviceID   uint
	DeviceName string
	Priority   model.Priority
	Volt       float64
	Ampere     float64
	Watt       float64
	Energy     float64
	Delta      float64
	Time       time.Time
}

// CommandEvent is recorded for every status change flowing through the
// dispatcher.
type CommandEvent struct {
	DeviceID   uint
	DeviceName string
	State      model.Status
	// Source identifies which control path issued the command.
	Source string
	// Published is false when the device has no control topic or the
	// transport publish failed.
	Published bool
	Time      time.Time
}

// Sink records controller activity for observability purposes. Sinks must be
// safe for concurrent use; recording failures are the sink's own problem and
// never abort the operation being observed.
type Sink interface {
	RecordReading(ev ReadingEvent) error
	RecordDiscard(reason string) error
	RecordCommand(ev CommandEvent) error
	RecordDailyTotal(kwh float64) error
	RecordShed(tier string, devices int) error
}

// Discard reasons used across the ingestion pipeline.
const (
	DiscardMalformed     = "malformed"
	DiscardUnknownTopic  = "unknown_topic"
	DiscardCommandEcho   = "command_echo"
	DiscardInvalidFields = "invalid_fields"
)

// NopSink ignores everything.
type NopSink struct{}

func (NopSink) RecordReading(ReadingEvent) error { return nil }
func (NopSink) RecordDiscard(string) error       { return nil }
func (NopSink) RecordCommand(CommandEvent) error { return nil }
func (NopSink) RecordDailyTotal(float64) error   { return nil }
func (NopSink) RecordShed(string, int) error     { return nil }

// MultiSink fans records out to multiple sinks, returning the first error.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink { return &MultiSink{Sinks: sinks} }

func (m *MultiSink) RecordReading(ev ReadingEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordReading(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordDiscard(reason string) error {
	for _, s := range m.Sinks {
		if err := s.RecordDiscard(reason); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordCommand(ev CommandEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordCommand(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordDailyTotal(kwh float64) error {
	for _, s := range m.Sinks {
		if err := s.RecordDailyTotal(kwh); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordShed(tier string, devices int) error {
	for _, s := range m.Sinks {
		if err := s.RecordShed(tier, devices); err != nil {
			return err
		}
	}
	return nil
}
