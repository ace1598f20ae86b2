package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kurnia-dev/smartenergy/core/metrics"
	"github.com/kurnia-dev/smartenergy/core/model"
)

func TestPromSinkRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordReading(coremetrics.ReadingEvent{
		DeviceName: "fridge",
		Priority:   model.PriorityHigh,
		Watt:       120,
		Time:       time.Now(),
	}))
	require.NoError(t, sink.RecordReading(coremetrics.ReadingEvent{
		DeviceName: "fridge",
		Priority:   model.PriorityHigh,
		Watt:       135,
		Time:       time.Now(),
	}))
	require.NoError(t, sink.RecordDiscard(coremetrics.DiscardMalformed))
	require.NoError(t, sink.RecordCommand(coremetrics.CommandEvent{
		DeviceName: "fridge",
		State:      model.StatusOff,
		Source:     "budget",
		Published:  true,
		Time:       time.Now(),
	}))
	require.NoError(t, sink.RecordDailyTotal(4.25))
	require.NoError(t, sink.RecordShed("some", 2))

	ps := sink.(*PromSink)
	assert.InDelta(t, 2, testutil.ToFloat64(ps.readings.WithLabelValues("fridge", "high")), 1e-9)
	assert.InDelta(t, 135, testutil.ToFloat64(ps.power.WithLabelValues("fridge")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(ps.discards.WithLabelValues("malformed")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(ps.commands.WithLabelValues("fridge", "OFF", "budget", "true")), 1e-9)
	assert.InDelta(t, 4.25, testutil.ToFloat64(ps.dailyTotal), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(ps.sheds.WithLabelValues("some")), 1e-9)
}

func TestPromSinkDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	require.NoError(t, err)

	// A second sink on the same registry reuses the existing collectors.
	again, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	require.NoError(t, err)
	require.NoError(t, again.RecordDiscard(coremetrics.DiscardCommandEcho))
}
