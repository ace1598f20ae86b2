// Package store defines the persistence gateway consumed by the controller
// core. The core holds no authoritative copy of any entity: every decision
// point re-reads current state through this interface so that out-of-process
// writers (the CRUD frontend, other tooling) are always observed.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kurnia-dev/smartenergy/core/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence contract required by the controller.
type Store interface {
	// Devices

	CreateDevice(ctx context.Context, d *model.Device) error
	Device(ctx context.Context, id uint) (model.Device, error)
	// DeviceByTelemetryTopic resolves the device owning an inbound topic.
	DeviceByTelemetryTopic(ctx context.Context, topic string) (model.Device, error)
	Devices(ctx context.Context) ([]model.Device, error)
	UpdateDevice(ctx context.Context, d *model.Device) error
	// UpdateDeviceStatus persists a new status without touching other fields.
	UpdateDeviceStatus(ctx context.Context, id uint, st model.Status) error
	// DeleteDevice removes the device together with its usage history and
	// schedule rows.
	DeleteDevice(ctx context.Context, id uint) error

	// Usage history (append-only)

	AppendUsage(ctx context.Context, r *model.UsageRecord) error
	// LatestUsage returns the most recent record for the device.
	LatestUsage(ctx context.Context, deviceID uint) (model.UsageRecord, error)
	// SumDeltasSince totals energy deltas across all devices with a
	// timestamp at or after the cutoff.
	SumDeltasSince(ctx context.Context, cutoff time.Time) (float64, error)

	// Budget limits

	CreateLimit(ctx context.Context, l *model.EnergyLimit) error
	// ActiveLimit returns the limit whose window contains now, preferring
	// the most recently started window when several overlap.
	ActiveLimit(ctx context.Context, now time.Time) (model.EnergyLimit, error)

	// Schedules

	CreateSchedule(ctx context.Context, s *model.Schedule) error
	// ActiveSchedules returns the device's schedule rows with the active
	// flag set, regardless of their window.
	ActiveSchedules(ctx context.Context, deviceID uint) ([]model.Schedule, error)
	// SchedulesInWindow returns every active schedule row whose on-window
	// contains now.
	SchedulesInWindow(ctx context.Context, now time.Time) ([]model.Schedule, error)
}
