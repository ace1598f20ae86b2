package model

import "time"

// UsageRecord is one ingested telemetry reading. Records are append-only:
// they are never updated and are removed only when their device is deleted.
type UsageRecord struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	DeviceID uint      `gorm:"index" json:"device_id"`
	Volt     float64   `json:"volt"`
	Ampere   float64   `json:"ampere"`
	Watt     float64   `json:"watt"`
	// Energy is the cumulative counter as reported by the device.
	Energy float64 `json:"energy"`
	// EnergyDelta is the consumption since the previous record for the same
	// device, clamped at zero when the counter regresses (device reset).
	EnergyDelta float64   `json:"energy_delta"`
	Timestamp   time.Time `gorm:"index" json:"timestamp"`
}
