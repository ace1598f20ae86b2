package model

import "time"

// EnergyLimit is a named budget rule: a kWh threshold that applies while
// now() falls inside [StartAt, EndAt). When several windows overlap, the most
// recently started one wins.
type EnergyLimit struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `json:"name"`
	StartAt      time.Time `gorm:"index" json:"start_at"`
	EndAt        time.Time `json:"end_at"`
	ThresholdKWh float64   `json:"threshold_kwh"`
}

// Contains reports whether t falls inside the limit's validity window.
func (l EnergyLimit) Contains(t time.Time) bool {
	return !t.Before(l.StartAt) && t.Before(l.EndAt)
}
