package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ResetTokenRepository persists hashed password-reset tokens
type ResetTokenRepository struct {
	db *database.DB
}

func NewResetTokenRepository(db *database.DB) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

const resetTokenColumns = `id, account_id, token_hash, created_at, expires_at, used, ip_address, user_agent`

func scanResetTokenRow(row rowScanner) (*models.ResetToken, error) {
	var t models.ResetToken

	err := row.Scan(&t.ID, &t.AccountID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.Used, &t.IPAddress, &t.UserAgent)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &t, nil
}

// CreateReplacingLive marks every unused token of the account as used and inserts
// the new one in the same transaction, so at most one live token exists.
func (r *ResetTokenRepository) CreateReplacingLive(ctx context.Context, token *models.ResetToken) (*models.ResetToken, error) {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}

	var created *models.ResetToken
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE password_reset_tokens SET used = TRUE WHERE account_id = $1 AND used = FALSE`,
			token.AccountID,
		); err != nil {
			return fmt.Errorf("failed to invalidate previous tokens: %w", err)
		}

		var err error
		created, err = scanResetTokenRow(tx.QueryRow(ctx, `
			INSERT INTO password_reset_tokens (id, account_id, token_hash, created_at, expires_at, used, ip_address, user_agent)
			VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)
			RETURNING `+resetTokenColumns,
			token.ID, token.AccountID, token.TokenHash, token.CreatedAt, token.ExpiresAt, token.IPAddress, token.UserAgent,
		))
		return err
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// GetByHash returns the token row or models.ErrNotFound
func (r *ResetTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*models.ResetToken, error) {
	query := `SELECT ` + resetTokenColumns + ` FROM password_reset_tokens WHERE token_hash = $1`
	return scanResetTokenRow(r.db.Pool.QueryRow(ctx, query, tokenHash))
}

// MarkUsed flips used only while the token is still valid at now. It returns
// models.ErrNotFound when no row qualified, which makes redemption single-use.
func (r *ResetTokenRepository) MarkUsed(ctx context.Context, tokenHash string, now time.Time) (*models.ResetToken, error) {
	query := `
		UPDATE password_reset_tokens SET used = TRUE
		WHERE token_hash = $1 AND used = FALSE AND expires_at >= $2
		RETURNING ` + resetTokenColumns

	return scanResetTokenRow(r.db.Pool.QueryRow(ctx, query, tokenHash, now))
}

func (r *ResetTokenRepository) InvalidateAll(ctx context.Context, accountID string) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE password_reset_tokens SET used = TRUE WHERE account_id = $1 AND used = FALSE`, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate reset tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ResetTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM password_reset_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired reset tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
