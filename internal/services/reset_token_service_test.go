package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResetTokens(repo ResetTokenRepository, clock *fakeClock) *ResetTokenService {
	svc := NewResetTokenService(repo, time.Hour, testLogger())
	svc.now = clock.Now
	return svc
}

func TestResetTokenService_IssueStoresOnlyHash(t *testing.T) {
	repo := &memResetTokenRepo{}
	svc := newTestResetTokens(repo, newFakeClock(testEpoch))

	token, err := svc.Issue(context.Background(), "acct-1", "10.0.0.1", "ua")
	require.NoError(t, err)

	assert.Equal(t, auth.ResetTokenBytes, auth.DecodedTokenLength(token))
	require.Len(t, repo.tokens, 1)
	assert.Equal(t, auth.HashToken(token), repo.tokens[0].TokenHash)
	assert.NotContains(t, repo.tokens[0].TokenHash, token)
	assert.Equal(t, testEpoch.Add(time.Hour), repo.tokens[0].ExpiresAt)
}

func TestResetTokenService_SingleUse(t *testing.T) {
	svc := newTestResetTokens(&memResetTokenRepo{}, newFakeClock(testEpoch))
	ctx := context.Background()

	token, err := svc.Issue(ctx, "acct-1", "10.0.0.1", "ua")
	require.NoError(t, err)

	rec, err := svc.GetValid(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", rec.AccountID)

	require.NoError(t, svc.MarkUsed(ctx, token))

	_, err = svc.GetValid(ctx, token)
	assert.ErrorIs(t, err, models.ErrInvalidResetToken)

	err = svc.MarkUsed(ctx, token)
	assert.ErrorIs(t, err, models.ErrInvalidResetToken)
}

func TestResetTokenService_NewIssueInvalidatesPrevious(t *testing.T) {
	clock := newFakeClock(testEpoch)
	repo := &memResetTokenRepo{}
	svc := newTestResetTokens(repo, clock)
	ctx := context.Background()

	first, err := svc.Issue(ctx, "acct-1", "10.0.0.1", "ua")
	require.NoError(t, err)
	second, err := svc.Issue(ctx, "acct-1", "10.0.0.1", "ua")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, 1, repo.liveCount("acct-1", clock.Now()))

	_, err = svc.GetValid(ctx, first)
	assert.ErrorIs(t, err, models.ErrInvalidResetToken)

	_, err = svc.GetValid(ctx, second)
	assert.NoError(t, err)
}

func TestResetTokenService_OtherAccountsUnaffected(t *testing.T) {
	clock := newFakeClock(testEpoch)
	repo := &memResetTokenRepo{}
	svc := newTestResetTokens(repo, clock)
	ctx := context.Background()

	_, err := svc.Issue(ctx, "acct-1", "", "")
	require.NoError(t, err)
	_, err = svc.Issue(ctx, "acct-2", "", "")
	require.NoError(t, err)

	assert.Equal(t, 1, repo.liveCount("acct-1", clock.Now()))
	assert.Equal(t, 1, repo.liveCount("acct-2", clock.Now()))
}

func TestResetTokenService_Expiry(t *testing.T) {
	clock := newFakeClock(testEpoch)
	svc := newTestResetTokens(&memResetTokenRepo{}, clock)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "acct-1", "", "")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = svc.GetValid(ctx, token)
	assert.NoError(t, err, "valid up to and including expiry")

	clock.Advance(time.Second)
	_, err = svc.GetValid(ctx, token)
	assert.ErrorIs(t, err, models.ErrInvalidResetToken)

	_, err = svc.Redeem(ctx, token)
	assert.ErrorIs(t, err, models.ErrInvalidResetToken)
}

func TestResetTokenService_RejectsMalformedAndUnknown(t *testing.T) {
	svc := newTestResetTokens(&memResetTokenRepo{}, newFakeClock(testEpoch))
	ctx := context.Background()

	unknown, err := auth.GenerateToken(nil, auth.ResetTokenBytes)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"not base64", "!!!not-a-token!!!"},
		{"too short", "c2hvcnQ"},
		{"too long", strings.Repeat("A", 64)},
		{"well formed but unknown", unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GetValid(ctx, tt.token)
			assert.ErrorIs(t, err, models.ErrInvalidResetToken)

			_, err = svc.Redeem(ctx, tt.token)
			assert.ErrorIs(t, err, models.ErrInvalidResetToken)
		})
	}
}

func TestResetTokenService_StoreErrorsCollapseToInvalid(t *testing.T) {
	repo := &memResetTokenRepo{}
	svc := newTestResetTokens(repo, newFakeClock(testEpoch))
	ctx := context.Background()

	token, err := svc.Issue(ctx, "acct-1", "", "")
	require.NoError(t, err)

	repo.err = errors.New("connection refused")

	_, err = svc.GetValid(ctx, token)
	assert.ErrorIs(t, err, models.ErrInvalidResetToken)

	_, err = svc.Issue(ctx, "acct-1", "", "")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrInvalidResetToken)
}

func TestResetTokenService_InvalidateAll(t *testing.T) {
	clock := newFakeClock(testEpoch)
	repo := &memResetTokenRepo{}
	svc := newTestResetTokens(repo, clock)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "acct-1", "", "")
	require.NoError(t, err)

	require.NoError(t, svc.InvalidateAll(ctx, "acct-1"))

	assert.Equal(t, 0, repo.liveCount("acct-1", clock.Now()))
	_, err = svc.GetValid(ctx, token)
	assert.ErrorIs(t, err, models.ErrInvalidResetToken)
}

func TestResetTokenService_CleanupExpired(t *testing.T) {
	clock := newFakeClock(testEpoch)
	repo := &memResetTokenRepo{}
	svc := newTestResetTokens(repo, clock)
	ctx := context.Background()

	_, err := svc.Issue(ctx, "acct-1", "", "")
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)
	_, err = svc.Issue(ctx, "acct-2", "", "")
	require.NoError(t, err)

	clock.Advance(45 * time.Minute)
	n, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), n)
	require.Len(t, repo.tokens, 1)
	assert.Equal(t, "acct-2", repo.tokens[0].AccountID)
}
