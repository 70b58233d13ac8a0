package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/handlers"
	"github.com/BradenHooton/sentinel/internal/middleware"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

const testAdminKey = "0123456789abcdef0123456789abcdef"

func newTestRouter(publicPerMinute int) http.Handler {
	logger := handlers.DiscardLogger()
	router := chi.NewRouter()
	RegisterRoutes(router, Handlers{
		Login: handlers.NewLoginHandler(&handlers.MockLoginEvaluator{}, nil, logger),
		Reset: handlers.NewPasswordResetHandler(&handlers.MockPasswordResetService{}, nil, logger),
		Lockout: handlers.NewLockoutHandler(&handlers.MockLockoutService{
			StatusFunc: func(ctx context.Context, accountID string) models.LockoutStatus {
				return models.LockoutStatus{AccountID: accountID}
			},
		}, logger),
		Devices: handlers.NewDeviceHandler(&handlers.MockDeviceService{}, logger),
		Audit:   handlers.NewAuditHandler(&handlers.MockAuditAnalyzer{}, logger),
		Health:  handlers.NewHealthHandler(&handlers.MockHealthChecker{}, logger),
	}, middleware.RateLimitConfig{RequestsPerMinute: publicPerMinute}, testAdminKey)
	return router
}

func TestRoutes_AdminRequiresKey(t *testing.T) {
	router := newTestRouter(100)

	tests := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{"no key", "", http.StatusUnauthorized},
		{"wrong key", "nope", http.StatusUnauthorized},
		{"valid key", testAdminKey, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/security/admin/accounts/acct-1/lockout", nil)
			if tt.key != "" {
				req.Header.Set(auth.AdminKeyHeader, tt.key)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"account_id":"acct-1"`)
			}
		})
	}
}

func TestRoutes_HealthIsOpen(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(1).ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutes_PublicEndpointsShareOneLimiter(t *testing.T) {
	router := newTestRouter(2)
	post := func(path string) int {
		req := httptest.NewRequest("POST", path, strings.NewReader(`{"token":"abc"}`))
		req.RemoteAddr = "198.51.100.9:4000"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusBadRequest, post("/security/reset/validate"))
	assert.Equal(t, http.StatusBadRequest, post("/security/reset/validate"))
	assert.Equal(t, http.StatusTooManyRequests, post("/security/reset/complete"))
}
