// Package discovery keeps the transport subscribed to every device's
// telemetry topic. Polling the device list is the sole mechanism for picking
// up devices created after process start: device creation happens in an
// external CRUD frontend the controller never hears from directly.
package discovery

import (
	"context"
	"time"

	"github.com/kurnia-dev/smartenergy/core/logger"
	"github.com/kurnia-dev/smartenergy/core/mqtt"
	"github.com/kurnia-dev/smartenergy/core/store"
)

// DefaultInterval is the refresh period when none is configured.
const DefaultInterval = time.Minute

// Refresher periodically re-subscribes to all device telemetry topics.
type Refresher struct {
	store    store.Store
	conn     mqtt.Conn
	handler  mqtt.HandlerFunc
	log      logger.Logger
	interval time.Duration
}

// NewRefresher creates a Refresher that routes inbound messages to handler.
func NewRefresher(st store.Store, conn mqtt.Conn, handler mqtt.HandlerFunc, interval time.Duration, log logger.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Refresher{store: st, conn: conn, handler: handler, log: log, interval: interval}
}

// Run refreshes once immediately, then on every tick until the context is
// cancelled.
func (r *Refresher) Run(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil {
		r.log.Errorf("initial subscribe pass: %v", err)
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.log.Errorf("subscribe refresh: %v", err)
			}
		}
	}
}

// Refresh lists all devices and ensures a subscription for each telemetry
// topic. The transport treats re-subscribing as a no-op, so the pass runs
// blindly over the full list. Devices without a topic are reported once per
// pass and skipped.
func (r *Refresher) Refresh(ctx context.Context) error {
	devices, err := r.store.Devices(ctx)
	if err != nil {
		return err
	}
	for _, dev := range devices {
		if dev.TelemetryTopic == "" {
			r.log.Warnf("device %q has no telemetry topic", dev.Name)
			continue
		}
		if err := r.conn.Subscribe(dev.TelemetryTopic, r.handler); err != nil {
			r.log.Errorf("subscribe %s (%s): %v", dev.TelemetryTopic, dev.Name, err)
		}
	}
	return nil
}
