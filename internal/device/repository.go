package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for device persistence operations.
type Repository interface {
	// GetByID retrieves a device by its record key.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// GetByIdentity retrieves a device by its hardware identity.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByIdentity(ctx context.Context, identity string) (*Device, error)

	// List retrieves all devices ordered by name.
	List(ctx context.Context) ([]Device, error)

	// Register records a registration from the hardware: the device is
	// created if new, marked online and its last-seen time set to now.
	// Firmware and accountID only overwrite stored values when non-empty.
	Register(ctx context.Context, identity, firmware, accountID string) (*Device, error)

	// SetOnline updates the online flag and last-seen time.
	// Returns ErrDeviceNotFound if the device does not exist.
	SetOnline(ctx context.Context, identity string, online bool) error

	// Upsert creates a device for identity or renames an existing one.
	Upsert(ctx context.Context, identity, name string) (*Device, error)

	// Update writes the operator-editable fields: name, paused flag and
	// account association.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, d *Device) error

	// Delete removes a device and its zone configurations.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error
}

const selectColumns = `
	SELECT id, device_id, name, firmware, is_online, is_paused, last_seen,
		soundtrack_account_id, created_at, updated_at
	FROM devices`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// GetByID retrieves a device by its record key.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	return r.getOne(ctx, selectColumns+" WHERE id = ?", id)
}

// GetByIdentity retrieves a device by its hardware identity.
func (r *SQLiteRepository) GetByIdentity(ctx context.Context, identity string) (*Device, error) {
	return r.getOne(ctx, selectColumns+" WHERE device_id = ?", identity)
}

// List retrieves all devices ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+" ORDER BY name, device_id")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Register upserts the device and marks it online.
func (r *SQLiteRepository) Register(ctx context.Context, identity, firmware, accountID string) (*Device, error) {
	if err := ValidateIdentity(identity); err != nil {
		return nil, err
	}

	now := r.timestamp()
	query := `
		INSERT INTO devices (
			id, device_id, name, firmware, is_online, is_paused, last_seen,
			soundtrack_account_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, 1, 0, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			is_online = 1,
			last_seen = excluded.last_seen,
			firmware = CASE WHEN excluded.firmware = '' THEN devices.firmware ELSE excluded.firmware END,
			soundtrack_account_id = COALESCE(excluded.soundtrack_account_id, devices.soundtrack_account_id),
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		uuid.NewString(),
		identity,
		identity,
		firmware,
		now,
		nullableString(accountID),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("registering device: %w", err)
	}

	return r.GetByIdentity(ctx, identity)
}

// SetOnline updates the online flag and last-seen time.
func (r *SQLiteRepository) SetOnline(ctx context.Context, identity string, online bool) error {
	now := r.timestamp()
	result, err := r.db.ExecContext(ctx,
		"UPDATE devices SET is_online = ?, last_seen = ?, updated_at = ? WHERE device_id = ?",
		boolToInt(online), now, now, identity,
	)
	if err != nil {
		return fmt.Errorf("updating device presence: %w", err)
	}
	return requireAffected(result)
}

// Upsert creates a device for identity or renames an existing one.
func (r *SQLiteRepository) Upsert(ctx context.Context, identity, name string) (*Device, error) {
	if err := ValidateIdentity(identity); err != nil {
		return nil, err
	}
	if name == "" {
		name = identity
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	now := r.timestamp()
	query := `
		INSERT INTO devices (id, device_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at`

	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), identity, name, now, now); err != nil {
		return nil, fmt.Errorf("upserting device: %w", err)
	}
	return r.GetByIdentity(ctx, identity)
}

// Update writes the operator-editable fields.
func (r *SQLiteRepository) Update(ctx context.Context, d *Device) error {
	if err := ValidateName(d.Name); err != nil {
		return err
	}

	updatedAt := r.now().UTC().Truncate(time.Second)
	result, err := r.db.ExecContext(ctx, `
		UPDATE devices SET name = ?, is_paused = ?, soundtrack_account_id = ?, updated_at = ?
		WHERE id = ?`,
		d.Name,
		boolToInt(d.IsPaused),
		nullableString(d.AccountID()),
		updatedAt.Format(time.RFC3339),
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}
	d.UpdatedAt = updatedAt
	return nil
}

// Delete removes a device. Zone configs cascade via the foreign key.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireAffected(result)
}

func (r *SQLiteRepository) getOne(ctx context.Context, query string, arg string) (*Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device: %w", err)
	}
	return d, nil
}

func (r *SQLiteRepository) timestamp() string {
	return r.now().UTC().Format(time.RFC3339)
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var isOnline, isPaused int
	var lastSeen, accountID sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&d.DeviceID,
		&d.Name,
		&d.Firmware,
		&isOnline,
		&isPaused,
		&lastSeen,
		&accountID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.IsOnline = isOnline != 0
	d.IsPaused = isPaused != 0
	if accountID.Valid {
		d.SoundtrackAccountID = &accountID.String
	}
	if lastSeen.Valid {
		if t, err := time.Parse(time.RFC3339, lastSeen.String); err == nil {
			d.LastSeen = &t
		}
	}

	var parseErr error
	if d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt); parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	if d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt); parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}
	return &d, nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// nullableString maps "" to SQL NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
