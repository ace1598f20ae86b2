package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kurnia-dev/smartenergy/core/model"
)

// MemStore is an in-memory Store implementation. It backs unit tests and
// small ad-hoc deployments; production setups use the GORM store.
type MemStore struct {
	mu        sync.Mutex
	devices   map[uint]model.Device
	usage     []model.UsageRecord
	limits    map[uint]model.EnergyLimit
	schedules map[uint]model.Schedule

	nextDevice   uint
	nextUsage    uint
	nextLimit    uint
	nextSchedule uint
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		devices:   make(map[uint]model.Device),
		limits:    make(map[uint]model.EnergyLimit),
		schedules: make(map[uint]model.Schedule),
	}
}

func (m *MemStore) CreateDevice(_ context.Context, d *model.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextDevice++
	d.ID = m.nextDevice
	now := time.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	m.devices[d.ID] = *d
	return nil
}

func (m *MemStore) Device(_ context.Context, id uint) (model.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return model.Device{}, ErrNotFound
	}
	return d, nil
}

func (m *MemStore) DeviceByTelemetryTopic(_ context.Context, topic string) (model.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.TelemetryTopic == topic {
			return d, nil
		}
	}
	return model.Device{}, ErrNotFound
}

func (m *MemStore) Devices(_ context.Context) ([]model.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) UpdateDevice(_ context.Context, d *model.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[d.ID]; !ok {
		return ErrNotFound
	}
	d.UpdatedAt = time.Now()
	m.devices[d.ID] = *d
	return nil
}

func (m *MemStore) UpdateDeviceStatus(_ context.Context, id uint, st model.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return ErrNotFound
	}
	d.Status = st
	d.UpdatedAt = time.Now()
	m.devices[id] = d
	return nil
}

func (m *MemStore) DeleteDevice(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[id]; !ok {
		return ErrNotFound
	}
	delete(m.devices, id)
	kept := m.usage[:0]
	for _, r := range m.usage {
		if r.DeviceID != id {
			kept = append(kept, r)
		}
	}
	m.usage = kept
	for sid, s := range m.schedules {
		if s.DeviceID == id {
			delete(m.schedules, sid)
		}
	}
	return nil
}

func (m *MemStore) AppendUsage(_ context.Context, r *model.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextUsage++
	r.ID = m.nextUsage
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	m.usage = append(m.usage, *r)
	return nil
}

func (m *MemStore) LatestUsage(_ context.Context, deviceID uint) (model.UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest model.UsageRecord
	found := false
	for _, r := range m.usage {
		if r.DeviceID != deviceID {
			continue
		}
		if !found || r.Timestamp.After(latest.Timestamp) ||
			(r.Timestamp.Equal(latest.Timestamp) && r.ID > latest.ID) {
			latest = r
			found = true
		}
	}
	if !found {
		return model.UsageRecord{}, ErrNotFound
	}
	return latest, nil
}

func (m *MemStore) SumDeltasSince(_ context.Context, cutoff time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, r := range m.usage {
		if !r.Timestamp.Before(cutoff) {
			total += r.EnergyDelta
		}
	}
	return total, nil
}

func (m *MemStore) CreateLimit(_ context.Context, l *model.EnergyLimit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLimit++
	l.ID = m.nextLimit
	m.limits[l.ID] = *l
	return nil
}

func (m *MemStore) ActiveLimit(_ context.Context, now time.Time) (model.EnergyLimit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best model.EnergyLimit
	found := false
	for _, l := range m.limits {
		if !l.Contains(now) {
			continue
		}
		if !found || l.StartAt.After(best.StartAt) {
			best = l
			found = true
		}
	}
	if !found {
		return model.EnergyLimit{}, ErrNotFound
	}
	return best, nil
}

func (m *MemStore) CreateSchedule(_ context.Context, s *model.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSchedule++
	s.ID = m.nextSchedule
	m.schedules[s.ID] = *s
	return nil
}

func (m *MemStore) ActiveSchedules(_ context.Context, deviceID uint) ([]model.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Schedule
	for _, s := range m.schedules {
		if s.DeviceID == deviceID && s.Active {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) SchedulesInWindow(_ context.Context, now time.Time) ([]model.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Schedule
	for _, s := range m.schedules {
		if s.Active && s.InWindow(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
