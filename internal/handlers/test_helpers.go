package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/services"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithURLParams attaches chi route parameters to a request
func WithURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// DiscardLogger returns a logger that drops everything
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockLoginEvaluator implements LoginEvaluator for testing
type MockLoginEvaluator struct {
	EvaluateFunc func(ctx context.Context, email, password, ip, userAgent string) (*models.LoginDecision, error)
}

func (m *MockLoginEvaluator) Evaluate(ctx context.Context, email, password, ip, userAgent string) (*models.LoginDecision, error) {
	if m.EvaluateFunc == nil {
		return &models.LoginDecision{Outcome: models.LoginOutcomeDenied}, nil
	}
	return m.EvaluateFunc(ctx, email, password, ip, userAgent)
}

// MockPasswordResetService implements PasswordResetServiceInterface for testing
type MockPasswordResetService struct {
	RequestFunc  func(ctx context.Context, email, ip, userAgent string) (services.RateLimitResult, error)
	ValidateFunc func(ctx context.Context, token string) error
	CompleteFunc func(ctx context.Context, token, newPassword, ip, userAgent string) error
}

func (m *MockPasswordResetService) Request(ctx context.Context, email, ip, userAgent string) (services.RateLimitResult, error) {
	if m.RequestFunc == nil {
		return services.RateLimitResult{Allowed: true}, nil
	}
	return m.RequestFunc(ctx, email, ip, userAgent)
}

func (m *MockPasswordResetService) Validate(ctx context.Context, token string) error {
	if m.ValidateFunc == nil {
		return models.ErrInvalidResetToken
	}
	return m.ValidateFunc(ctx, token)
}

func (m *MockPasswordResetService) Complete(ctx context.Context, token, newPassword, ip, userAgent string) error {
	if m.CompleteFunc == nil {
		return models.ErrInvalidResetToken
	}
	return m.CompleteFunc(ctx, token, newPassword, ip, userAgent)
}

// MockLockoutService implements LockoutServiceInterface for testing
type MockLockoutService struct {
	StatusFunc  func(ctx context.Context, accountID string) models.LockoutStatus
	LockoutFunc func(ctx context.Context, accountID string, duration time.Duration, reason string) (*models.LockoutStatus, error)
	UnlockFunc  func(ctx context.Context, accountID string) (*models.LockoutStatus, error)
}

func (m *MockLockoutService) Status(ctx context.Context, accountID string) models.LockoutStatus {
	if m.StatusFunc == nil {
		return models.LockoutStatus{AccountID: accountID}
	}
	return m.StatusFunc(ctx, accountID)
}

func (m *MockLockoutService) Lockout(ctx context.Context, accountID string, duration time.Duration, reason string) (*models.LockoutStatus, error) {
	if m.LockoutFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.LockoutFunc(ctx, accountID, duration, reason)
}

func (m *MockLockoutService) Unlock(ctx context.Context, accountID string) (*models.LockoutStatus, error) {
	if m.UnlockFunc == nil {
		return &models.LockoutStatus{AccountID: accountID}, nil
	}
	return m.UnlockFunc(ctx, accountID)
}

// MockDeviceService implements DeviceServiceInterface for testing
type MockDeviceService struct {
	ListForAccountFunc func(ctx context.Context, accountID string) ([]*models.Device, error)
	MarkTrustedFunc    func(ctx context.Context, accountID, fingerprint string) (*models.Device, error)
	RevokeFunc         func(ctx context.Context, deviceID string) (*models.Device, error)
}

func (m *MockDeviceService) ListForAccount(ctx context.Context, accountID string) ([]*models.Device, error) {
	if m.ListForAccountFunc == nil {
		return nil, nil
	}
	return m.ListForAccountFunc(ctx, accountID)
}

func (m *MockDeviceService) MarkTrusted(ctx context.Context, accountID, fingerprint string) (*models.Device, error) {
	if m.MarkTrustedFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.MarkTrustedFunc(ctx, accountID, fingerprint)
}

func (m *MockDeviceService) Revoke(ctx context.Context, deviceID string) (*models.Device, error) {
	if m.RevokeFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.RevokeFunc(ctx, deviceID)
}

// MockAuditAnalyzer implements AuditAnalyzerInterface for testing
type MockAuditAnalyzer struct {
	FindSuspiciousFunc func(ctx context.Context, windowDays int) ([]*models.SecurityEvent, error)
	ListFlaggedFunc    func(ctx context.Context, windowDays int) ([]*models.SecurityEvent, error)
	AnalyzeFunc        func(ctx context.Context, windowDays int) (*services.AnalysisReport, error)
	MarkSuspiciousFunc func(ctx context.Context, eventID, reason string) error
}

func (m *MockAuditAnalyzer) FindSuspicious(ctx context.Context, windowDays int) ([]*models.SecurityEvent, error) {
	if m.FindSuspiciousFunc == nil {
		return nil, nil
	}
	return m.FindSuspiciousFunc(ctx, windowDays)
}

func (m *MockAuditAnalyzer) ListFlagged(ctx context.Context, windowDays int) ([]*models.SecurityEvent, error) {
	if m.ListFlaggedFunc == nil {
		return nil, nil
	}
	return m.ListFlaggedFunc(ctx, windowDays)
}

func (m *MockAuditAnalyzer) Analyze(ctx context.Context, windowDays int) (*services.AnalysisReport, error) {
	if m.AnalyzeFunc == nil {
		return &services.AnalysisReport{WindowDays: windowDays}, nil
	}
	return m.AnalyzeFunc(ctx, windowDays)
}

func (m *MockAuditAnalyzer) MarkSuspicious(ctx context.Context, eventID, reason string) error {
	if m.MarkSuspiciousFunc == nil {
		return nil
	}
	return m.MarkSuspiciousFunc(ctx, eventID, reason)
}

// MockHealthChecker implements HealthChecker for testing
type MockHealthChecker struct {
	Err   error
	Stats database.PoolStats
}

func (m *MockHealthChecker) HealthCheck(context.Context) error {
	return m.Err
}

func (m *MockHealthChecker) PoolStats() database.PoolStats {
	return m.Stats
}
