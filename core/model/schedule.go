package model

import "time"

// Schedule binds a device to an on-window [TurnOn, TurnOff). A device with no
// active schedule rows is exempt from all automatic control: neither the
// budget enforcer nor the reconciler will ever touch it.
type Schedule struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	DeviceID uint      `gorm:"index" json:"device_id"`
	TurnOn   time.Time `json:"turn_on"`
	TurnOff  time.Time `json:"turn_off"`
	Active   bool      `json:"active"`
}

// InWindow reports whether t falls inside the schedule's on-window.
func (s Schedule) InWindow(t time.Time) bool {
	return !t.Before(s.TurnOn) && t.Before(s.TurnOff)
}
