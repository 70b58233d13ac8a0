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
	"github.com/lib/pq"
)

// SecurityEventRepository is the append-only security event log
type SecurityEventRepository struct {
	pool *pgxpool.Pool
}

func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{pool: db.Pool}
}

const securityEventColumns = `id, account_id, event_type, ip_address, country, city, device_type, browser, os,
	is_successful, is_suspicious, suspicious_reason, created_at, extra`

func scanSecurityEventRow(row rowScanner) (*models.SecurityEvent, error) {
	var e models.SecurityEvent

	err := row.Scan(
		&e.ID, &e.AccountID, &e.EventType, &e.IPAddress, &e.Country, &e.City, &e.DeviceType, &e.Browser, &e.OS,
		&e.IsSuccessful, &e.IsSuspicious, &e.SuspiciousReason, &e.CreatedAt, &e.Extra,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &e, nil
}

func scanSecurityEventRows(rows pgx.Rows) ([]*models.SecurityEvent, error) {
	defer rows.Close()

	events := make([]*models.SecurityEvent, 0)
	for rows.Next() {
		e, err := scanSecurityEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security event rows: %w", err)
	}

	return events, nil
}

func (r *SecurityEventRepository) Create(ctx context.Context, e *models.SecurityEvent) (*models.SecurityEvent, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO security_events (id, account_id, event_type, ip_address, country, city, device_type, browser, os,
		                             is_successful, is_suspicious, suspicious_reason, created_at, extra)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + securityEventColumns

	created, err := scanSecurityEventRow(r.pool.QueryRow(ctx, query,
		e.ID, e.AccountID, e.EventType, e.IPAddress, e.Country, e.City, e.DeviceType, e.Browser, e.OS,
		e.IsSuccessful, e.IsSuspicious, e.SuspiciousReason, e.CreatedAt, e.Extra,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create security event: %w", err)
	}

	return created, nil
}

// ListSince returns events created at or after since, newest first. When more than
// limit events qualify the oldest are the ones left out.
func (r *SecurityEventRepository) ListSince(ctx context.Context, since time.Time, limit int) ([]*models.SecurityEvent, error) {
	query := `
		SELECT ` + securityEventColumns + `
		FROM security_events
		WHERE created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}

	return scanSecurityEventRows(rows)
}

// ListSuspicious returns events already flagged, newest first
func (r *SecurityEventRepository) ListSuspicious(ctx context.Context, since time.Time, limit int) ([]*models.SecurityEvent, error) {
	query := `
		SELECT ` + securityEventColumns + `
		FROM security_events
		WHERE is_suspicious = TRUE AND created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query suspicious events: %w", err)
	}

	return scanSecurityEventRows(rows)
}

// ListSuccessfulLogins returns the account's successful logins since the given time, newest first
func (r *SecurityEventRepository) ListSuccessfulLogins(ctx context.Context, accountID string, since time.Time, limit int) ([]*models.SecurityEvent, error) {
	query := `
		SELECT ` + securityEventColumns + `
		FROM security_events
		WHERE account_id = $1 AND event_type = $2 AND is_successful = TRUE AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT $4
	`

	rows, err := r.pool.Query(ctx, query, accountID, models.EventTypeLoginSuccess, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query login history: %w", err)
	}

	return scanSecurityEventRows(rows)
}

func (r *SecurityEventRepository) CountFailedLogins(ctx context.Context, accountID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM security_events
		WHERE account_id = $1 AND event_type = $2 AND is_successful = FALSE AND created_at >= $3
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, accountID, models.EventTypeLoginFailed, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count failed logins: %w", err)
	}
	return count, nil
}

// MarkSuspicious flags one event. Only the suspicious fields are ever updated.
func (r *SecurityEventRepository) MarkSuspicious(ctx context.Context, id, reason string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE security_events SET is_suspicious = TRUE, suspicious_reason = $2 WHERE id = $1`, id, reason)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// MarkSuspiciousBatch flags many events with the same reason in one statement
func (r *SecurityEventRepository) MarkSuspiciousBatch(ctx context.Context, ids []string, reason string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE security_events SET is_suspicious = TRUE, suspicious_reason = $2 WHERE id = ANY($1::uuid[])`,
		pq.Array(ids), reason,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark suspicious events: %w", err)
	}
	return tag.RowsAffected(), nil
}
