package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DeviceRepository struct {
	pool *pgxpool.Pool
}

func NewDeviceRepository(db *database.DB) *DeviceRepository {
	return &DeviceRepository{pool: db.Pool}
}

const deviceColumns = `id, account_id, fingerprint, device_type, browser, browser_version, os, os_version,
	last_used_ip, first_seen_at, last_seen_at, total_logins, is_trusted, is_active`

func scanDeviceRow(row rowScanner) (*models.Device, error) {
	var d models.Device

	err := row.Scan(
		&d.ID, &d.AccountID, &d.Fingerprint, &d.DeviceType, &d.Browser, &d.BrowserVersion, &d.OS, &d.OSVersion,
		&d.LastUsedIP, &d.FirstSeenAt, &d.LastSeenAt, &d.TotalLogins, &d.IsTrusted, &d.IsActive,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &d, nil
}

func scanDeviceRows(rows pgx.Rows) ([]*models.Device, error) {
	defer rows.Close()

	devices := make([]*models.Device, 0)
	for rows.Next() {
		d, err := scanDeviceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device rows: %w", err)
	}

	return devices, nil
}

func (r *DeviceRepository) GetByID(ctx context.Context, id string) (*models.Device, error) {
	return scanDeviceRow(r.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id))
}

func (r *DeviceRepository) GetByFingerprint(ctx context.Context, accountID, fingerprint string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE account_id = $1 AND fingerprint = $2`
	return scanDeviceRow(r.pool.QueryRow(ctx, query, accountID, fingerprint))
}

func (r *DeviceRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE account_id = $1 ORDER BY last_seen_at DESC`

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}

	return scanDeviceRows(rows)
}

// Create inserts a first sighting. A concurrent insert of the same
// (account_id, fingerprint) returns models.ErrConflict.
func (r *DeviceRepository) Create(ctx context.Context, d *models.Device) (*models.Device, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}

	query := `
		INSERT INTO devices (id, account_id, fingerprint, device_type, browser, browser_version, os, os_version,
		                     last_used_ip, first_seen_at, last_seen_at, total_logins, is_trusted, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + deviceColumns

	return scanDeviceRow(r.pool.QueryRow(ctx, query,
		d.ID, d.AccountID, d.Fingerprint, d.DeviceType, d.Browser, d.BrowserVersion, d.OS, d.OSVersion,
		d.LastUsedIP, d.FirstSeenAt, d.LastSeenAt, d.TotalLogins, d.IsTrusted, d.IsActive,
	))
}

// RecordSighting bumps the counters of a known device and reactivates it if it was revoked
func (r *DeviceRepository) RecordSighting(ctx context.Context, id, ip string, seenAt time.Time) (*models.Device, error) {
	query := `
		UPDATE devices
		SET last_seen_at = $2, last_used_ip = $3, total_logins = total_logins + 1, is_active = TRUE
		WHERE id = $1
		RETURNING ` + deviceColumns

	return scanDeviceRow(r.pool.QueryRow(ctx, query, id, seenAt, ip))
}

// SetTrusted elevates an active device to trusted
func (r *DeviceRepository) SetTrusted(ctx context.Context, accountID, fingerprint string) (*models.Device, error) {
	query := `
		UPDATE devices SET is_trusted = TRUE
		WHERE account_id = $1 AND fingerprint = $2 AND is_active = TRUE
		RETURNING ` + deviceColumns

	return scanDeviceRow(r.pool.QueryRow(ctx, query, accountID, fingerprint))
}

// Deactivate revokes a device: it stays on record but loses trust
func (r *DeviceRepository) Deactivate(ctx context.Context, id string) (*models.Device, error) {
	query := `
		UPDATE devices SET is_active = FALSE, is_trusted = FALSE
		WHERE id = $1
		RETURNING ` + deviceColumns

	return scanDeviceRow(r.pool.QueryRow(ctx, query, id))
}

func (r *DeviceRepository) DeleteInactive(ctx context.Context, lastSeenBefore time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM devices WHERE last_seen_at < $1`, lastSeenBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to delete inactive devices: %w", err)
	}
	return tag.RowsAffected(), nil
}
