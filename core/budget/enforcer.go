// Package budget enforces the daily energy budget by priority-tiered load
// shedding. The enforcer only ever turns devices off; bringing a device back
// on is exclusively the schedule reconciler's job, so the two control paths
// cannot fight over the same device within one evaluation.
package budget

import (
	"context"
	"errors"
	"time"

	"github.com/kurnia-dev/smartenergy/core/control"
	"github.com/kurnia-dev/smartenergy/core/logger"
	"github.com/kurnia-dev/smartenergy/core/metrics"
	"github.com/kurnia-dev/smartenergy/core/model"
	"github.com/kurnia-dev/smartenergy/core/store"
)

// Tier is one shedding level. Tiers are evaluated high-to-low severity and
// exactly one fires per evaluation.
type Tier struct {
	Name       string
	MinPercent float64
	Priorities []model.Priority
}

// Shedding tiers, most severe first.
var tiers = []Tier{
	{Name: "all", MinPercent: 100, Priorities: []model.Priority{model.PriorityHigh, model.PriorityMedium, model.PriorityLow}},
	{Name: "most", MinPercent: 80, Priorities: []model.Priority{model.PriorityMedium, model.PriorityLow}},
	{Name: "some", MinPercent: 60, Priorities: []model.Priority{model.PriorityLow}},
}

func matchTier(percent float64) (Tier, bool) {
	for _, t := range tiers {
		if percent >= t.MinPercent {
			return t, true
		}
	}
	return Tier{}, false
}

func (t Tier) includes(p model.Priority) bool {
	for _, tp := range t.Priorities {
		if tp == p {
			return true
		}
	}
	return false
}

// Enforcer evaluates today's consumption against the active limit.
type Enforcer struct {
	store store.Store
	disp  *control.Dispatcher
	sink  metrics.Sink
	log   logger.Logger
	now   func() time.Time
}

// NewEnforcer creates an Enforcer. A nil sink disables metrics.
func NewEnforcer(st store.Store, disp *control.Dispatcher, sink metrics.Sink, log logger.Logger) *Enforcer {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Enforcer{store: st, disp: disp, sink: sink, log: log, now: time.Now}
}

// Evaluate compares today's accumulated deltas against the active limit and
// sheds the matching tier. totalKWh is the running daily total computed by
// the caller (the ingestor already has it in hand). Devices without an active
// schedule row are exempt unconditionally.
func (e *Enforcer) Evaluate(ctx context.Context, totalKWh float64) error {
	now := e.now()

	limit, err := e.store.ActiveLimit(ctx, now)
	if errors.Is(err, store.ErrNotFound) {
		return nil // no active window, no enforcement
	}
	if err != nil {
		return err
	}
	if limit.ThresholdKWh <= 0 {
		e.log.Warnf("limit %q has non-positive threshold, skipping", limit.Name)
		return nil
	}

	percent := totalKWh / limit.ThresholdKWh * 100
	tier, ok := matchTier(percent)
	if !ok {
		return nil
	}
	e.log.Infof("budget at %.1f%% of %q (%.2f/%.2f kWh), shedding tier %s",
		percent, limit.Name, totalKWh, limit.ThresholdKWh, tier.Name)

	devices, err := e.store.Devices(ctx)
	if err != nil {
		return err
	}

	shed := 0
	for _, dev := range devices {
		scheds, err := e.store.ActiveSchedules(ctx, dev.ID)
		if err != nil {
			e.log.Errorf("schedules for %s: %v", dev.Name, err)
			continue
		}
		if len(scheds) == 0 {
			// No schedule means no automatic control of any kind.
			e.log.Debugf("%s has no active schedule, exempt from budget control", dev.Name)
			continue
		}
		if !tier.includes(dev.Priority) || dev.Status != model.StatusOn {
			continue
		}
		if err := e.disp.Set(ctx, dev, model.StatusOff, control.SourceBudget); err != nil {
			e.log.Errorf("shed %s: %v", dev.Name, err)
			continue
		}
		shed++
	}

	if err := e.sink.RecordShed(tier.Name, shed); err != nil {
		e.log.Warnf("record shed metric: %v", err)
	}
	return nil
}
