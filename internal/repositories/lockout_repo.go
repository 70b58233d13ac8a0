package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/jackc/pgx/v5"
)

// LockoutRepository persists per-account lockout records
type LockoutRepository struct {
	db *database.DB
}

func NewLockoutRepository(db *database.DB) *LockoutRepository {
	return &LockoutRepository{db: db}
}

const lockoutColumns = `account_id, failed_attempts, last_attempt_at, locked_until, lockout_reason, last_ip, last_user_agent, updated_at`

func scanLockoutRow(row rowScanner) (*models.LockoutRecord, error) {
	var rec models.LockoutRecord

	err := row.Scan(
		&rec.AccountID, &rec.FailedAttempts, &rec.LastAttemptAt, &rec.LockedUntil,
		&rec.LockoutReason, &rec.LastIP, &rec.LastUserAgent, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &rec, nil
}

// Get returns the lockout record or models.ErrNotFound
func (r *LockoutRepository) Get(ctx context.Context, accountID string) (*models.LockoutRecord, error) {
	query := `SELECT ` + lockoutColumns + ` FROM account_lockouts WHERE account_id = $1`
	return scanLockoutRow(r.db.Pool.QueryRow(ctx, query, accountID))
}

// Update is a read-modify-write of one record in a single transaction. mutate receives
// a zero record (with AccountID set) when none exists yet. An existing row is locked
// until commit so concurrent failures are not lost.
func (r *LockoutRepository) Update(ctx context.Context, accountID string, mutate func(*models.LockoutRecord)) (*models.LockoutRecord, error) {
	var result *models.LockoutRecord

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		current, err := scanLockoutRow(tx.QueryRow(ctx,
			`SELECT `+lockoutColumns+` FROM account_lockouts WHERE account_id = $1 FOR UPDATE`, accountID))

		exists := true
		if errors.Is(err, models.ErrNotFound) {
			exists = false
			current = &models.LockoutRecord{AccountID: accountID}
		} else if err != nil {
			return fmt.Errorf("failed to read lockout record: %w", err)
		}

		mutate(current)

		args := []interface{}{
			accountID, current.FailedAttempts, current.LastAttemptAt, current.LockedUntil,
			current.LockoutReason, current.LastIP, current.LastUserAgent,
		}
		if exists {
			result, err = scanLockoutRow(tx.QueryRow(ctx, `
				UPDATE account_lockouts
				SET failed_attempts = $2, last_attempt_at = $3, locked_until = $4, lockout_reason = $5,
				    last_ip = $6, last_user_agent = $7, updated_at = NOW()
				WHERE account_id = $1
				RETURNING `+lockoutColumns, args...))
		} else {
			result, err = scanLockoutRow(tx.QueryRow(ctx, `
				INSERT INTO account_lockouts (account_id, failed_attempts, last_attempt_at, locked_until, lockout_reason, last_ip, last_user_agent, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
				RETURNING `+lockoutColumns, args...))
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
