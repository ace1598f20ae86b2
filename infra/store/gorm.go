// Package store implements the persistence gateway with GORM. Postgres is
// the production driver; the pure-Go sqlite driver backs tests and single-box
// deployments.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kurnia-dev/smartenergy/core/model"
	corestore "github.com/kurnia-dev/smartenergy/core/store"
)

// Config defines the database connection parameters.
type Config struct {
	// Driver is "postgres" or "sqlite".
	Driver string `json:"driver"`
	// DSN is the driver-specific connection string; for sqlite it is the
	// database file path.
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `json:"conn_max_lifetime_minutes"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "sqlite"
	}
	if c.DSN == "" && c.Driver == "sqlite" {
		c.DSN = "smartenergy.db"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	switch c.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown store driver %q", c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("dsn is required")
	}
	return nil
}

// GormStore implements the core store contract on a relational database.
type GormStore struct {
	db *gorm.DB
}

var _ corestore.Store = (*GormStore)(nil)

// Open connects to the configured database and runs migrations.
func Open(cfg Config) (*GormStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	if err := db.AutoMigrate(
		&model.Device{},
		&model.UsageRecord{},
		&model.EnergyLimit{},
		&model.Schedule{},
	); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return corestore.ErrNotFound
	}
	return err
}

func (g *GormStore) CreateDevice(ctx context.Context, d *model.Device) error {
	return g.db.WithContext(ctx).Create(d).Error
}

func (g *GormStore) Device(ctx context.Context, id uint) (model.Device, error) {
	var d model.Device
	err := g.db.WithContext(ctx).First(&d, id).Error
	return d, wrapNotFound(err)
}

func (g *GormStore) DeviceByTelemetryTopic(ctx context.Context, topic string) (model.Device, error) {
	var d model.Device
	err := g.db.WithContext(ctx).Where("telemetry_topic = ?", topic).First(&d).Error
	return d, wrapNotFound(err)
}

func (g *GormStore) Devices(ctx context.Context) ([]model.Device, error) {
	var out []model.Device
	err := g.db.WithContext(ctx).Order("id").Find(&out).Error
	return out, err
}

func (g *GormStore) UpdateDevice(ctx context.Context, d *model.Device) error {
	res := g.db.WithContext(ctx).Model(&model.Device{}).Where("id = ?", d.ID).Updates(map[string]any{
		"name":            d.Name,
		"telemetry_topic": d.TelemetryTopic,
		"control_topic":   d.ControlTopic,
		"priority":        d.Priority,
		"rated_watts":     d.RatedWatts,
		"status":          d.Status,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return corestore.ErrNotFound
	}
	return nil
}

func (g *GormStore) UpdateDeviceStatus(ctx context.Context, id uint, st model.Status) error {
	res := g.db.WithContext(ctx).Model(&model.Device{}).Where("id = ?", id).Update("status", st)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return corestore.ErrNotFound
	}
	return nil
}

// DeleteDevice removes the device and cascades to its usage history and
// schedule rows in one transaction.
func (g *GormStore) DeleteDevice(ctx context.Context, id uint) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&model.Device{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return corestore.ErrNotFound
		}
		if err := tx.Where("device_id = ?", id).Delete(&model.UsageRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("device_id = ?", id).Delete(&model.Schedule{}).Error
	})
}

func (g *GormStore) AppendUsage(ctx context.Context, r *model.UsageRecord) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	return g.db.WithContext(ctx).Create(r).Error
}

func (g *GormStore) LatestUsage(ctx context.Context, deviceID uint) (model.UsageRecord, error) {
	var rec model.UsageRecord
	err := g.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("timestamp DESC").Order("id DESC").
		First(&rec).Error
	return rec, wrapNotFound(err)
}

func (g *GormStore) SumDeltasSince(ctx context.Context, cutoff time.Time) (float64, error) {
	var total float64
	err := g.db.WithContext(ctx).
		Model(&model.UsageRecord{}).
		Select("COALESCE(SUM(energy_delta), 0)").
		Where("timestamp >= ?", cutoff).
		Scan(&total).Error
	return total, err
}

func (g *GormStore) CreateLimit(ctx context.Context, l *model.EnergyLimit) error {
	return g.db.WithContext(ctx).Create(l).Error
}

func (g *GormStore) ActiveLimit(ctx context.Context, now time.Time) (model.EnergyLimit, error) {
	var l model.EnergyLimit
	err := g.db.WithContext(ctx).
		Where("start_at <= ? AND end_at > ?", now, now).
		Order("start_at DESC").
		First(&l).Error
	return l, wrapNotFound(err)
}

func (g *GormStore) CreateSchedule(ctx context.Context, s *model.Schedule) error {
	return g.db.WithContext(ctx).Create(s).Error
}

func (g *GormStore) ActiveSchedules(ctx context.Context, deviceID uint) ([]model.Schedule, error) {
	var out []model.Schedule
	err := g.db.WithContext(ctx).
		Where("device_id = ? AND active = ?", deviceID, true).
		Order("id").
		Find(&out).Error
	return out, err
}

func (g *GormStore) SchedulesInWindow(ctx context.Context, now time.Time) ([]model.Schedule, error) {
	var out []model.Schedule
	err := g.db.WithContext(ctx).
		Where("turn_on <= ? AND turn_off > ? AND active = ?", now, now, true).
		Order("id").
		Find(&out).Error
	return out, err
}
