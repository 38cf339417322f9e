package zone

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for zone config persistence.
type Repository interface {
	// GetByID retrieves a config by ID.
	// Returns ErrConfigNotFound if the config does not exist.
	GetByID(ctx context.Context, id string) (*Config, error)

	// ListByDevice returns every config for a device record key.
	ListByDevice(ctx context.Context, deviceKey string) ([]Config, error)

	// ListActiveByDevice returns the configs for a device record key that
	// are enabled and not paused.
	ListActiveByDevice(ctx context.Context, deviceKey string) ([]Config, error)

	// Create validates and inserts a config, assigning its ID.
	// Returns ErrConfigExists if the device already drives the zone.
	Create(ctx context.Context, c *Config) error

	// Update validates and writes every mutable field of c.
	// Returns ErrConfigNotFound if the config does not exist.
	Update(ctx context.Context, c *Config) error

	// UpdateCurrentVolume records the volume last applied to the zone.
	// Returns ErrConfigNotFound if the config does not exist.
	UpdateCurrentVolume(ctx context.Context, id string, volume int) error

	// Delete removes a config.
	// Returns ErrConfigNotFound if the config does not exist.
	Delete(ctx context.Context, id string) error
}

const selectColumns = `
	SELECT id, device_id, soundtrack_account_id, soundtrack_account_name,
		soundtrack_zone_id, soundtrack_zone_name, is_enabled, is_paused,
		min_volume, max_volume, quiet_threshold_db, loud_threshold_db,
		smoothing_factor, sustain_count, current_volume, created_at, updated_at
	FROM zone_configs`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a config by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Config, error) {
	c, err := scanConfig(r.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("querying zone config: %w", err)
	}
	return c, nil
}

// ListByDevice returns every config for a device.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceKey string) ([]Config, error) {
	return r.queryConfigs(ctx, selectColumns+" WHERE device_id = ? ORDER BY created_at, id", deviceKey)
}

// ListActiveByDevice returns the enabled, unpaused configs for a device.
func (r *SQLiteRepository) ListActiveByDevice(ctx context.Context, deviceKey string) ([]Config, error) {
	return r.queryConfigs(ctx,
		selectColumns+" WHERE device_id = ? AND is_enabled = 1 AND is_paused = 0 ORDER BY created_at, id",
		deviceKey)
}

// Create validates and inserts a config.
func (r *SQLiteRepository) Create(ctx context.Context, c *Config) error {
	if err := c.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Second)
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO zone_configs (
			id, device_id, soundtrack_account_id, soundtrack_account_name,
			soundtrack_zone_id, soundtrack_zone_name, is_enabled, is_paused,
			min_volume, max_volume, quiet_threshold_db, loud_threshold_db,
			smoothing_factor, sustain_count, current_volume, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.DeviceKey,
		c.SoundtrackAccountID,
		c.SoundtrackAccountName,
		c.SoundtrackZoneID,
		c.SoundtrackZoneName,
		boolToInt(c.IsEnabled),
		boolToInt(c.IsPaused),
		c.MinVolume,
		c.MaxVolume,
		c.QuietThresholdDB,
		c.LoudThresholdDB,
		c.SmoothingFactor,
		c.SustainCount,
		nullableInt(c.CurrentVolume),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		switch {
		case isConstraintError(err, "UNIQUE"):
			return ErrConfigExists
		case isConstraintError(err, "FOREIGN KEY"):
			return ErrUnknownDevice
		}
		return fmt.Errorf("inserting zone config: %w", err)
	}
	return nil
}

// Update validates and writes the mutable fields of c.
func (r *SQLiteRepository) Update(ctx context.Context, c *Config) error {
	if err := c.Validate(); err != nil {
		return err
	}

	c.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	result, err := r.db.ExecContext(ctx, `
		UPDATE zone_configs SET
			soundtrack_account_name = ?, soundtrack_zone_name = ?,
			is_enabled = ?, is_paused = ?,
			min_volume = ?, max_volume = ?,
			quiet_threshold_db = ?, loud_threshold_db = ?,
			smoothing_factor = ?, sustain_count = ?, updated_at = ?
		WHERE id = ?`,
		c.SoundtrackAccountName,
		c.SoundtrackZoneName,
		boolToInt(c.IsEnabled),
		boolToInt(c.IsPaused),
		c.MinVolume,
		c.MaxVolume,
		c.QuietThresholdDB,
		c.LoudThresholdDB,
		c.SmoothingFactor,
		c.SustainCount,
		c.UpdatedAt.Format(time.RFC3339),
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("updating zone config: %w", err)
	}
	return requireAffected(result)
}

// UpdateCurrentVolume records the volume last applied to the zone.
func (r *SQLiteRepository) UpdateCurrentVolume(ctx context.Context, id string, volume int) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE zone_configs SET current_volume = ?, updated_at = ? WHERE id = ?",
		volume, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("updating current volume: %w", err)
	}
	return requireAffected(result)
}

// Delete removes a config.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM zone_configs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting zone config: %w", err)
	}
	return requireAffected(result)
}

func (r *SQLiteRepository) queryConfigs(ctx context.Context, query string, args ...any) ([]Config, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying zone configs: %w", err)
	}
	defer rows.Close()

	configs := []Config{}
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning zone config: %w", err)
		}
		configs = append(configs, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating zone configs: %w", err)
	}
	return configs, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(scanner rowScanner) (*Config, error) {
	var c Config
	var isEnabled, isPaused int
	var currentVolume sql.NullInt64
	var createdAt, updatedAt string

	err := scanner.Scan(
		&c.ID,
		&c.DeviceKey,
		&c.SoundtrackAccountID,
		&c.SoundtrackAccountName,
		&c.SoundtrackZoneID,
		&c.SoundtrackZoneName,
		&isEnabled,
		&isPaused,
		&c.MinVolume,
		&c.MaxVolume,
		&c.QuietThresholdDB,
		&c.LoudThresholdDB,
		&c.SmoothingFactor,
		&c.SustainCount,
		&currentVolume,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.IsEnabled = isEnabled != 0
	c.IsPaused = isPaused != 0
	if currentVolume.Valid {
		v := int(currentVolume.Int64)
		c.CurrentVolume = &v
	}

	var parseErr error
	if c.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt); parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	if c.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt); parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}
	return &c, nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrConfigNotFound
	}
	return nil
}

// isConstraintError checks for a SQLite constraint violation of the given
// kind ("UNIQUE", "FOREIGN KEY").
func isConstraintError(err error, kind string) bool {
	return err != nil && strings.Contains(err.Error(), kind+" constraint failed")
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
