// Package schedule drives devices toward their scheduled on/off state. The
// reconciler is the only component that ever turns a device back on after it
// has been shed by the budget enforcer.
package schedule

import (
	"context"
	"time"

	"github.com/kurnia-dev/smartenergy/core/control"
	"github.com/kurnia-dev/smartenergy/core/logger"
	"github.com/kurnia-dev/smartenergy/core/model"
	"github.com/kurnia-dev/smartenergy/core/store"
)

// DefaultInterval is the reconciliation period when none is configured.
const DefaultInterval = time.Minute

// Reconciler periodically compares each scheduled device's stored status with
// the state its schedule windows imply and issues corrective commands.
type Reconciler struct {
	store    store.Store
	disp     *control.Dispatcher
	log      logger.Logger
	interval time.Duration
	now      func() time.Time
}

// NewReconciler creates a Reconciler ticking at the given interval.
func NewReconciler(st store.Store, disp *control.Dispatcher, interval time.Duration, log logger.Logger) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reconciler{store: st, disp: disp, log: log, interval: interval, now: time.Now}
}

// Run ticks until the context is cancelled. Tick failures are logged and the
// loop keeps running.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				r.log.Errorf("reconcile tick: %v", err)
			}
		}
	}
}

// Tick performs one reconciliation pass. Commands are issued only on a
// mismatch between stored status and the scheduled state, so a tick where
// everything matches publishes nothing.
func (r *Reconciler) Tick(ctx context.Context) error {
	now := r.now()

	inWindow, err := r.store.SchedulesInWindow(ctx, now)
	if err != nil {
		return err
	}
	shouldBeOn := make(map[uint]bool, len(inWindow))
	for _, s := range inWindow {
		shouldBeOn[s.DeviceID] = true
	}

	devices, err := r.store.Devices(ctx)
	if err != nil {
		return err
	}

	for _, dev := range devices {
		scheds, err := r.store.ActiveSchedules(ctx, dev.ID)
		if err != nil {
			r.log.Errorf("schedules for %s: %v", dev.Name, err)
			continue
		}
		if len(scheds) == 0 {
			// Unscheduled devices answer only to manual commands.
			r.log.Debugf("%s has no active schedule, skipped", dev.Name)
			continue
		}

		want := model.StatusOff
		if shouldBeOn[dev.ID] {
			want = model.StatusOn
		}
		if dev.Status == want {
			continue
		}
		if err := r.disp.Set(ctx, dev, want, control.SourceSchedule); err != nil {
			r.log.Errorf("reconcile %s to %s: %v", dev.Name, want, err)
		}
	}
	return nil
}
