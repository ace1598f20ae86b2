package devices

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurnia-dev/smartenergy/core/control"
	"github.com/kurnia-dev/smartenergy/core/model"
	"github.com/kurnia-dev/smartenergy/core/store"
	"github.com/kurnia-dev/smartenergy/infra/logger"
	inframqtt "github.com/kurnia-dev/smartenergy/infra/mqtt"
)

type fixture struct {
	store *store.MemStore
	conn  *inframqtt.MockConn
	mux   *http.ServeMux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemStore()
	conn := inframqtt.NewMockConn()
	disp := control.NewDispatcher(st, conn, nil, logger.NopLogger{})
	mux := http.NewServeMux()
	NewHandler(st, disp, logger.NopLogger{}).Register(mux)
	return &fixture{store: st, conn: conn, mux: mux}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) addDevice(t *testing.T, dev model.Device) model.Device {
	t.Helper()
	require.NoError(t, f.store.CreateDevice(context.Background(), &dev))
	return dev
}

func TestListDevices(t *testing.T) {
	f := newFixture(t)
	f.addDevice(t, model.Device{Name: "fridge", TelemetryTopic: "tele/fridge"})
	f.addDevice(t, model.Device{Name: "fan", TelemetryTopic: "tele/fan"})

	rec := f.do(t, http.MethodGet, "/api/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []model.Device
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "fridge", got[0].Name)
}

func TestCreateDevice(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/devices",
		`{"name":"heater","telemetry_topic":"tele/heater","control_topic":"ctrl/heater","priority":"low"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var got model.Device
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.NotZero(t, got.ID)
	assert.Equal(t, model.StatusOff, got.Status)

	rec = f.do(t, http.MethodPost, "/api/devices", `{"name":"no-topic"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAndDeleteDevice(t *testing.T) {
	f := newFixture(t)
	dev := f.addDevice(t, model.Device{Name: "fridge", TelemetryTopic: "tele/fridge"})

	rec := f.do(t, http.MethodGet, "/api/devices/1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/devices/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/devices/1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := f.store.Device(context.Background(), dev.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLatestUsage(t *testing.T) {
	f := newFixture(t)
	dev := f.addDevice(t, model.Device{Name: "fridge", TelemetryTopic: "tele/fridge"})

	rec := f.do(t, http.MethodGet, "/api/devices/1/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, f.store.AppendUsage(context.Background(), &model.UsageRecord{DeviceID: dev.ID, Energy: 12.5}))
	rec = f.do(t, http.MethodGet, "/api/devices/1/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.UsageRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 12.5, got.Energy)
}

func TestManualCommand(t *testing.T) {
	f := newFixture(t)
	f.addDevice(t, model.Device{
		Name:           "fridge",
		TelemetryTopic: "tele/fridge",
		ControlTopic:   "ctrl/fridge",
		Status:         model.StatusOff,
	})

	rec := f.do(t, http.MethodPost, "/api/devices/1/command", `{"state":"ON"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	dev, err := f.store.Device(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOn, dev.Status)

	pubs := f.conn.Published()
	require.Len(t, pubs, 1)
	assert.Equal(t, "ctrl/fridge", pubs[0].Topic)
	assert.JSONEq(t, `{"command":"ON"}`, string(pubs[0].Payload))
}

func TestManualCommandRejectsUnknownState(t *testing.T) {
	f := newFixture(t)
	f.addDevice(t, model.Device{Name: "fridge", TelemetryTopic: "tele/fridge", ControlTopic: "ctrl/fridge"})

	for _, state := range []string{"on", "off", "TOGGLE", ""} {
		rec := f.do(t, http.MethodPost, "/api/devices/1/command", `{"state":"`+state+`"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "state %q", state)
	}
	assert.Empty(t, f.conn.Published())
}

func TestManualCommandRequiresControlTopic(t *testing.T) {
	f := newFixture(t)
	f.addDevice(t, model.Device{Name: "sensor", TelemetryTopic: "tele/sensor"})

	rec := f.do(t, http.MethodPost, "/api/devices/1/command", `{"state":"ON"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.conn.Published())
}

func TestManualCommandUnknownDevice(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/devices/42/command", `{"state":"OFF"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestManualCommandPublishFailureKeepsStatus(t *testing.T) {
	f := newFixture(t)
	f.addDevice(t, model.Device{
		Name:           "fridge",
		TelemetryTopic: "tele/fridge",
		ControlTopic:   "ctrl/fridge",
		Status:         model.StatusOn,
	})
	f.conn.FailTopics["ctrl/fridge"] = true

	rec := f.do(t, http.MethodPost, "/api/devices/1/command", `{"state":"OFF"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	// Intent is persisted even though delivery failed.
	dev, err := f.store.Device(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOff, dev.Status)
}
