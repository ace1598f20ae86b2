// Package events declares the live fan-out payloads pushed to observers after
// each successful ingestion. Fan-out is a pure side channel: it never feeds
// back into control decisions, and a missing or slow observer must not affect
// ingestion, enforcement or scheduling.
package events

import (
	"strconv"
	"time"

	"github.com/kurnia-dev/smartenergy/core/model"
)

// Reading is emitted once per persisted usage record.
type Reading struct {
	DeviceID       uint           `json:"device_id"`
	DeviceName     string         `json:"device_name"`
	Volt           float64        `json:"volt"`
	Ampere         float64        `json:"ampere"`
	Watt           float64        `json:"watt"`
	Energy         float64        `json:"energy"`
	EnergyDelta    float64        `json:"energy_delta"`
	Timestamp      string         `json:"timestamp"`
	ScheduleActive bool           `json:"schedule_active"`
	Priority       model.Priority `json:"priority,omitempty"`
}

// DailyTotal carries the running consumption total for the current calendar
// day, formatted to two decimals for display.
type DailyTotal struct {
	TotalKWh float64 `json:"total_kwh"`
	Total    string  `json:"total"`
}

// NewDailyTotal builds a DailyTotal from a raw kWh figure.
func NewDailyTotal(kwh float64) DailyTotal {
	return DailyTotal{TotalKWh: kwh, Total: strconv.FormatFloat(kwh, 'f', 2, 64)}
}

// FormatTimestamp renders an event timestamp the way observers expect it.
func FormatTimestamp(t time.Time) string { return t.Format(time.RFC3339) }
