// Package control owns the single code path through which a device's status
// ever changes. Persisting the status and publishing the control command stay
// consistent because every caller (budget enforcer, schedule reconciler,
// manual toggle) goes through the Dispatcher.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kurnia-dev/smartenergy/core/logger"
	"github.com/kurnia-dev/smartenergy/core/metrics"
	"github.com/kurnia-dev/smartenergy/core/model"
	"github.com/kurnia-dev/smartenergy/core/mqtt"
	"github.com/kurnia-dev/smartenergy/core/store"
)

// Command sources, recorded with every status change.
const (
	SourceManual   = "manual"
	SourceBudget   = "budget"
	SourceSchedule = "schedule"
)

// ControlMessage is the payload published on a device's control topic.
type ControlMessage struct {
	Command string `json:"command"`
}

// Dispatcher persists status changes and publishes the matching control
// command.
type Dispatcher struct {
	store store.Store
	conn  mqtt.Conn
	sink  metrics.Sink
	log   logger.Logger
}

// NewDispatcher creates a Dispatcher. A nil sink disables metrics.
func NewDispatcher(st store.Store, conn mqtt.Conn, sink metrics.Sink, log logger.Logger) *Dispatcher {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Dispatcher{store: st, conn: conn, sink: sink, log: log}
}

// Set persists the new status for the device and, when the device carries a
// control topic, publishes the command. The persisted status is never rolled
// back: a publish failure is returned to the caller but the stored state
// keeps reflecting controller intent.
func (d *Dispatcher) Set(ctx context.Context, dev model.Device, state model.Status, source string) error {
	if err := d.store.UpdateDeviceStatus(ctx, dev.ID, state); err != nil {
		return fmt.Errorf("persist status %s for device %d: %w", state, dev.ID, err)
	}

	if !dev.Controllable() {
		d.log.Debugw("status persisted without publish", map[string]any{
			"device": dev.Name, "state": string(state), "source": source,
		})
		d.record(dev, state, source, false)
		return nil
	}

	payload, err := json.Marshal(ControlMessage{Command: string(state)})
	if err != nil {
		return fmt.Errorf("encode control message: %w", err)
	}
	if err := d.conn.Publish(dev.ControlTopic, payload); err != nil {
		d.log.Errorf("publish %s to %s (%s): %v", state, dev.ControlTopic, dev.Name, err)
		d.record(dev, state, source, false)
		return fmt.Errorf("publish %s to %s: %w", state, dev.ControlTopic, err)
	}

	d.log.Infof("[%s] %s -> %s (%s)", source, state, dev.ControlTopic, dev.Name)
	d.record(dev, state, source, true)
	return nil
}

func (d *Dispatcher) record(dev model.Device, state model.Status, source string, published bool) {
	err := d.sink.RecordCommand(metrics.CommandEvent{
		DeviceID:   dev.ID,
		DeviceName: dev.Name,
		State:      state,
		Source:     source,
		Published:  published,
		Time:       time.Now(),
	})
	if err != nil {
		d.log.Warnf("record command metric: %v", err)
	}
}
