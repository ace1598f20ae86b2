// Package devices exposes the device inventory and the manual control entry
// point over HTTP. Handlers are thin: resolution and state changes run through
// the same store and dispatcher the automatic control paths use.
package devices

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/kurnia-dev/smartenergy/core/control"
	"github.com/kurnia-dev/smartenergy/core/logger"
	"github.com/kurnia-dev/smartenergy/core/model"
	"github.com/kurnia-dev/smartenergy/core/store"
)

// Handler serves the /api/devices routes.
type Handler struct {
	store store.Store
	disp  *control.Dispatcher
	log   logger.Logger
}

// NewHandler creates the device API handler.
func NewHandler(st store.Store, disp *control.Dispatcher, log logger.Logger) *Handler {
	return &Handler{store: st, disp: disp, log: log}
}

// Register mounts the routes on the given mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/devices", h.list)
	mux.HandleFunc("POST /api/devices", h.create)
	mux.HandleFunc("GET /api/devices/{id}", h.get)
	mux.HandleFunc("DELETE /api/devices/{id}", h.delete)
	mux.HandleFunc("GET /api/devices/{id}/latest", h.latest)
	mux.HandleFunc("POST /api/devices/{id}/command", h.command)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func deviceID(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	devs, err := h.store.Devices(r.Context())
	if err != nil {
		h.log.Errorf("list devices: %v", err)
		writeError(w, http.StatusInternalServerError, "list devices")
		return
	}
	writeJSON(w, http.StatusOK, devs)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var dev model.Device
	if err := json.NewDecoder(r.Body).Decode(&dev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if dev.TelemetryTopic == "" {
		writeError(w, http.StatusBadRequest, "telemetry_topic is required")
		return
	}
	dev.ID = 0
	if dev.Status == "" {
		dev.Status = model.StatusOff
	}
	if err := h.store.CreateDevice(r.Context(), &dev); err != nil {
		h.log.Errorf("create device %s: %v", dev.Name, err)
		writeError(w, http.StatusInternalServerError, "create device")
		return
	}
	writeJSON(w, http.StatusCreated, dev)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid device id")
		return
	}
	dev, err := h.store.Device(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid device id")
		return
	}
	err := h.store.DeleteDevice(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "delete device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) latest(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid device id")
		return
	}
	if _, err := h.store.Device(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	rec, err := h.store.LatestUsage(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no usage recorded")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get usage")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type commandRequest struct {
	State string `json:"state"`
}

// command is the manual control entry point. Only the literal states "ON" and
// "OFF" are accepted, and devices without a control topic are rejected before
// any state is touched.
func (h *Handler) command(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid device id")
		return
	}
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	state, ok := model.ParseStatus(req.State)
	if !ok {
		writeError(w, http.StatusBadRequest, "state must be ON or OFF")
		return
	}

	dev, err := h.store.Device(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get device")
		return
	}
	if !dev.Controllable() {
		writeError(w, http.StatusBadRequest, "device has no control topic")
		return
	}

	if err := h.disp.Set(r.Context(), dev, state, control.SourceManual); err != nil {
		// The status may already be persisted; the caller needs to know the
		// command did not reach the device.
		h.log.Errorf("manual command %s for device %d: %v", state, id, err)
		writeError(w, http.StatusBadGateway, "command not delivered")
		return
	}
	dev.Status = state
	writeJSON(w, http.StatusOK, dev)
}
