package model

import "time"

// Status is the on/off state of a device as last commanded by the controller.
// It reflects controller intent, not a confirmed acknowledgment from the
// device itself.
type Status string

const (
	StatusOn  Status = "ON"
	StatusOff Status = "OFF"
)

// ParseStatus validates a raw command value. Only "ON" and "OFF" are accepted.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusOn, StatusOff:
		return Status(s), true
	default:
		return "", false
	}
}

// Priority classifies a device for load shedding under budget pressure.
// An empty value means the device has no tier and is never matched by one.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Device is a power-metered endpoint identified by its telemetry topic.
// Devices without a control topic can be observed but never commanded.
type Device struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `json:"name"`
	TelemetryTopic string    `gorm:"uniqueIndex;size:255" json:"telemetry_topic"`
	ControlTopic   string    `gorm:"size:255" json:"control_topic,omitempty"`
	Priority       Priority  `gorm:"size:16" json:"priority,omitempty"`
	RatedWatts     float64   `json:"rated_watts"`
	Status         Status    `gorm:"size:8" json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Controllable reports whether the device can receive commands over MQTT.
func (d Device) Controllable() bool { return d.ControlTopic != "" }
