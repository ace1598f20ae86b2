package discovery

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/kurnia-dev/smartenergy/core/model"
	"github.com/kurnia-dev/smartenergy/core/store"
	"github.com/kurnia-dev/smartenergy/infra/logger"
	"github.com/kurnia-dev/smartenergy/infra/mqtt"
)

func TestRefreshSubscribesAllTopics(t *testing.T) {
	st := store.NewMemStore()
	conn := mqtt.NewMockConn()
	ctx := context.Background()

	for _, topic := range []string{"tele/a", "tele/b"} {
		dev := model.Device{Name: topic, TelemetryTopic: topic}
		if err := st.CreateDevice(ctx, &dev); err != nil {
			t.Fatalf("seed device: %v", err)
		}
	}
	// Topic-less device must be skipped without failing the pass.
	broken := model.Device{Name: "broken"}
	if err := st.CreateDevice(ctx, &broken); err != nil {
		t.Fatalf("seed device: %v", err)
	}

	r := NewRefresher(st, conn, func(string, []byte) {}, time.Minute, logger.NopLogger{})
	if err := r.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	subs := conn.Subscriptions()
	sort.Strings(subs)
	if len(subs) != 2 || subs[0] != "tele/a" || subs[1] != "tele/b" {
		t.Fatalf("subscriptions = %v", subs)
	}
}

func TestRefreshPicksUpNewDevices(t *testing.T) {
	st := store.NewMemStore()
	conn := mqtt.NewMockConn()
	ctx := context.Background()

	r := NewRefresher(st, conn, func(string, []byte) {}, time.Minute, logger.NopLogger{})
	if err := r.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if n := len(conn.Subscriptions()); n != 0 {
		t.Fatalf("subscriptions before any device: %d", n)
	}

	// Device created after startup by an out-of-process writer.
	dev := model.Device{Name: "late", TelemetryTopic: "tele/late"}
	if err := st.CreateDevice(ctx, &dev); err != nil {
		t.Fatalf("seed device: %v", err)
	}

	if err := r.Refresh(ctx); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	subs := conn.Subscriptions()
	if len(subs) != 1 || subs[0] != "tele/late" {
		t.Fatalf("subscriptions = %v", subs)
	}
}

func TestRefreshIsIdempotent(t *testing.T) {
	st := store.NewMemStore()
	conn := mqtt.NewMockConn()
	ctx := context.Background()

	dev := model.Device{Name: "a", TelemetryTopic: "tele/a"}
	if err := st.CreateDevice(ctx, &dev); err != nil {
		t.Fatalf("seed device: %v", err)
	}

	r := NewRefresher(st, conn, func(string, []byte) {}, time.Minute, logger.NopLogger{})
	for i := 0; i < 3; i++ {
		if err := r.Refresh(ctx); err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
	}
	if n := len(conn.Subscriptions()); n != 1 {
		t.Fatalf("subscriptions = %d, want 1", n)
	}
}
