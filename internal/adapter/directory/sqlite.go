package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/internal/core/ports"
)

type backendRow struct {
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Pinned       domain.PinnedProperties `gorm:"serializer:json"`
	ID           string                  `gorm:"primaryKey"`
	Name         string
	Host         string
	Dialect      string
	HealthCheck  domain.HealthCheckRecipe `gorm:"serializer:json"`
	Port         int
	Capabilities domain.Capabilities `gorm:"serializer:json"`
	TLS          bool
}

func (backendRow) TableName() string { return "backends" }

type frontendRow struct {
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Pinned         domain.PinnedProperties `gorm:"serializer:json"`
	ID             string                  `gorm:"primaryKey"`
	Name           string
	Hostname       string `gorm:"index"`
	LoadBalancing  string
	StickyHeader   string
	Backends       []string `gorm:"serializer:json"`
	RequiredModels []string `gorm:"serializer:json"`
	Timeout        time.Duration
	Capabilities   domain.Capabilities `gorm:"serializer:json"`
	StickySessions bool
	AllowRetries   bool
}

func (frontendRow) TableName() string { return "frontends" }

// OpenSQLite opens the directory database and migrates its tables.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening directory database %s: %w", path, err)
	}
	if err := db.AutoMigrate(&backendRow{}, &frontendRow{}); err != nil {
		return nil, fmt.Errorf("migrating directory database: %w", err)
	}
	return db, nil
}

type SQLiteBackendDirectory struct {
	db *gorm.DB
}

func NewSQLiteBackendDirectory(db *gorm.DB) *SQLiteBackendDirectory {
	return &SQLiteBackendDirectory{db: db}
}

func (d *SQLiteBackendDirectory) GetAll(ctx context.Context) ([]*domain.Backend, error) {
	var rows []backendRow
	if err := d.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing backends: %w", err)
	}
	out := make([]*domain.Backend, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (d *SQLiteBackendDirectory) Get(ctx context.Context, id string) (*domain.Backend, error) {
	var row backendRow
	err := d.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrBackendNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading backend %s: %w", id, err)
	}
	return row.toDomain(), nil
}

func (d *SQLiteBackendDirectory) Create(ctx context.Context, backend *domain.Backend) error {
	if err := backend.Validate(); err != nil {
		return err
	}
	row := backendRowFrom(backend)
	err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("saving backend %s: %w", backend.ID, err)
	}
	return nil
}

func (d *SQLiteBackendDirectory) Delete(ctx context.Context, id string) (bool, error) {
	res := d.db.WithContext(ctx).Delete(&backendRow{}, "id = ?", id)
	if res.Error != nil {
		return false, fmt.Errorf("deleting backend %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

type SQLiteFrontendDirectory struct {
	db       *gorm.DB
	backends ports.BackendDirectory
}

func NewSQLiteFrontendDirectory(db *gorm.DB, backends ports.BackendDirectory) *SQLiteFrontendDirectory {
	return &SQLiteFrontendDirectory{db: db, backends: backends}
}

func (d *SQLiteFrontendDirectory) GetAll(ctx context.Context) ([]*domain.Frontend, error) {
	var rows []frontendRow
	if err := d.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing frontends: %w", err)
	}
	out := make([]*domain.Frontend, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (d *SQLiteFrontendDirectory) Get(ctx context.Context, id string) (*domain.Frontend, error) {
	var row frontendRow
	err := d.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrFrontendNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading frontend %s: %w", id, err)
	}
	return row.toDomain(), nil
}

func (d *SQLiteFrontendDirectory) Create(ctx context.Context, frontend *domain.Frontend) error {
	if err := frontend.Validate(); err != nil {
		return err
	}
	if err := validateMembers(ctx, d.backends, frontend); err != nil {
		return err
	}
	row := frontendRowFrom(frontend)
	err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("saving frontend %s: %w", frontend.ID, err)
	}
	return nil
}

func (d *SQLiteFrontendDirectory) Delete(ctx context.Context, id string) (bool, error) {
	res := d.db.WithContext(ctx).Delete(&frontendRow{}, "id = ?", id)
	if res.Error != nil {
		return false, fmt.Errorf("deleting frontend %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (d *SQLiteFrontendDirectory) FindByHost(ctx context.Context, host string) (*domain.Frontend, error) {
	all, err := d.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return matchHost(all, host)
}

func backendRowFrom(b *domain.Backend) backendRow {
	return backendRow{
		ID:           b.ID,
		Name:         b.Name,
		Host:         b.Host,
		Port:         b.Port,
		TLS:          b.TLS,
		Dialect:      b.Dialect.String(),
		HealthCheck:  b.HealthCheck,
		Capabilities: b.Capabilities,
		Pinned:       b.Pinned,
	}
}

func (r *backendRow) toDomain() *domain.Backend {
	return &domain.Backend{
		ID:           r.ID,
		Name:         r.Name,
		Host:         r.Host,
		Port:         r.Port,
		TLS:          r.TLS,
		Dialect:      domain.Dialect(r.Dialect),
		HealthCheck:  r.HealthCheck,
		Capabilities: r.Capabilities,
		Pinned:       r.Pinned,
	}
}

func frontendRowFrom(f *domain.Frontend) frontendRow {
	return frontendRow{
		ID:             f.ID,
		Name:           f.Name,
		Hostname:       f.Hostname,
		LoadBalancing:  string(f.LoadBalancing),
		Backends:       f.Backends,
		RequiredModels: f.RequiredModels,
		StickySessions: f.StickySessions,
		StickyHeader:   f.StickyHeader,
		Timeout:        f.Timeout,
		AllowRetries:   f.AllowRetries,
		Capabilities:   f.Capabilities,
		Pinned:         f.Pinned,
	}
}

func (r *frontendRow) toDomain() *domain.Frontend {
	return &domain.Frontend{
		ID:             r.ID,
		Name:           r.Name,
		Hostname:       r.Hostname,
		LoadBalancing:  domain.LoadBalancingMode(r.LoadBalancing),
		Backends:       r.Backends,
		RequiredModels: r.RequiredModels,
		StickySessions: r.StickySessions,
		StickyHeader:   r.StickyHeader,
		Timeout:        r.Timeout,
		AllowRetries:   r.AllowRetries,
		Capabilities:   r.Capabilities,
		Pinned:         r.Pinned,
	}
}
