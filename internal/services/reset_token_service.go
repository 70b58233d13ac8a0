package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/pkg/auth"
)

// ResetTokenRepository persists hashed reset tokens
type ResetTokenRepository interface {
	CreateReplacingLive(ctx context.Context, token *models.ResetToken) (*models.ResetToken, error)
	GetByHash(ctx context.Context, tokenHash string) (*models.ResetToken, error)
	MarkUsed(ctx context.Context, tokenHash string, now time.Time) (*models.ResetToken, error)
	InvalidateAll(ctx context.Context, accountID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ResetTokenService issues and redeems single-use password-reset tokens.
// Only the SHA-256 of a token is stored; the plaintext leaves through Issue once.
type ResetTokenService struct {
	repo   ResetTokenRepository
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
	random io.Reader
}

func NewResetTokenService(repo ResetTokenRepository, ttl time.Duration, logger *slog.Logger) *ResetTokenService {
	return &ResetTokenService{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Issue creates a token for the account and invalidates every earlier unused one
func (s *ResetTokenService) Issue(ctx context.Context, accountID, ipAddress, userAgent string) (string, error) {
	token, err := auth.GenerateToken(s.random, auth.ResetTokenBytes)
	if err != nil {
		return "", err
	}

	now := s.now()
	_, err = s.repo.CreateReplacingLive(ctx, &models.ResetToken{
		AccountID: accountID,
		TokenHash: auth.HashToken(token),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
	if err != nil {
		return "", fmt.Errorf("failed to store reset token: %w", err)
	}

	s.logger.InfoContext(ctx, "password reset token issued",
		slog.String("account_id", accountID),
		slog.Time("expires_at", now.Add(s.ttl)),
	)
	return token, nil
}

// wellFormed rejects values that could never have been issued, before any lookup
func wellFormed(token string) bool {
	return auth.DecodedTokenLength(token) == auth.ResetTokenBytes
}

// GetValid returns the token if it is unused and unexpired.
// Every failure is reported as models.ErrInvalidResetToken.
func (s *ResetTokenService) GetValid(ctx context.Context, token string) (*models.ResetToken, error) {
	if !wellFormed(token) {
		return nil, models.ErrInvalidResetToken
	}

	rec, err := s.repo.GetByHash(ctx, auth.HashToken(token))
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.ErrorContext(ctx, "failed to look up reset token", slog.Any("error", err))
		}
		return nil, models.ErrInvalidResetToken
	}

	if !rec.IsValid(s.now()) {
		return nil, models.ErrInvalidResetToken
	}
	return rec, nil
}

// Redeem burns a valid token and returns it. The conditional update makes the
// second of two concurrent redemptions fail.
func (s *ResetTokenService) Redeem(ctx context.Context, token string) (*models.ResetToken, error) {
	if !wellFormed(token) {
		return nil, models.ErrInvalidResetToken
	}

	rec, err := s.repo.MarkUsed(ctx, auth.HashToken(token), s.now())
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.ErrorContext(ctx, "failed to redeem reset token", slog.Any("error", err))
		}
		return nil, models.ErrInvalidResetToken
	}
	return rec, nil
}

// MarkUsed burns a valid token
func (s *ResetTokenService) MarkUsed(ctx context.Context, token string) error {
	_, err := s.Redeem(ctx, token)
	return err
}

// InvalidateAll burns every unused token of the account
func (s *ResetTokenService) InvalidateAll(ctx context.Context, accountID string) error {
	n, err := s.repo.InvalidateAll(ctx, accountID)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "reset tokens invalidated",
			slog.String("account_id", accountID),
			slog.Int64("count", n),
		)
	}
	return nil
}

// CleanupExpired deletes tokens past their expiry
func (s *ResetTokenService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}
