package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/jackc/pgx/v5"
)

// WindowCounterRepository stores sliding-window counters in PostgreSQL
type WindowCounterRepository struct {
	db *database.DB
}

func NewWindowCounterRepository(db *database.DB) *WindowCounterRepository {
	return &WindowCounterRepository{db: db}
}

const windowCounterColumns = `identifier, category, count, window_start_at, last_attempt_at, blocked_until`

func scanWindowCounterRow(row rowScanner) (*models.WindowCounter, error) {
	var c models.WindowCounter

	err := row.Scan(&c.Identifier, &c.Category, &c.Count, &c.WindowStartAt, &c.LastAttemptAt, &c.BlockedUntil)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &c, nil
}

// Get returns the counter or models.ErrNotFound
func (r *WindowCounterRepository) Get(ctx context.Context, identifier, category string) (*models.WindowCounter, error) {
	query := `SELECT ` + windowCounterColumns + ` FROM window_counters WHERE identifier = $1 AND category = $2`
	return scanWindowCounterRow(r.db.Pool.QueryRow(ctx, query, identifier, category))
}

// Update reads the counter, applies mutate and writes it back in one transaction.
// A missing row is passed to mutate as a zero counter and inserted. An existing row is
// locked for the transaction; two concurrent first inserts surface as models.ErrConflict.
func (r *WindowCounterRepository) Update(ctx context.Context, identifier, category string, mutate func(*models.WindowCounter)) (*models.WindowCounter, error) {
	var result *models.WindowCounter

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `SELECT ` + windowCounterColumns + ` FROM window_counters WHERE identifier = $1 AND category = $2 FOR UPDATE`
		current, err := scanWindowCounterRow(tx.QueryRow(ctx, query, identifier, category))

		exists := true
		if errors.Is(err, models.ErrNotFound) {
			exists = false
			current = &models.WindowCounter{Identifier: identifier, Category: category}
		} else if err != nil {
			return fmt.Errorf("failed to read window counter: %w", err)
		}

		mutate(current)

		if exists {
			result, err = scanWindowCounterRow(tx.QueryRow(ctx, `
				UPDATE window_counters
				SET count = $3, window_start_at = $4, last_attempt_at = $5, blocked_until = $6
				WHERE identifier = $1 AND category = $2
				RETURNING `+windowCounterColumns,
				identifier, category, current.Count, current.WindowStartAt, current.LastAttemptAt, current.BlockedUntil,
			))
		} else {
			result, err = scanWindowCounterRow(tx.QueryRow(ctx, `
				INSERT INTO window_counters (identifier, category, count, window_start_at, last_attempt_at, blocked_until)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING `+windowCounterColumns,
				identifier, category, current.Count, current.WindowStartAt, current.LastAttemptAt, current.BlockedUntil,
			))
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Block persists blocked_until only on the row for the same window. A missing or
// rolled row is not touched.
func (r *WindowCounterRepository) Block(ctx context.Context, identifier, category string, windowStart, blockedUntil time.Time) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE window_counters SET blocked_until = $4
		WHERE identifier = $1 AND category = $2 AND window_start_at = $3 AND blocked_until IS NULL`,
		identifier, category, windowStart, blockedUntil,
	)
	if err != nil {
		return false, fmt.Errorf("failed to block window counter: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteStale removes counters whose window started before cutoff
func (r *WindowCounterRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM window_counters WHERE window_start_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale window counters: %w", err)
	}
	return tag.RowsAffected(), nil
}
