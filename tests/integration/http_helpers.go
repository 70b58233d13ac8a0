//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/handlers"
	middlewareCustom "github.com/BradenHooton/sentinel/internal/middleware"
	"github.com/BradenHooton/sentinel/internal/repositories"
	"github.com/BradenHooton/sentinel/internal/routes"
	"github.com/BradenHooton/sentinel/internal/services"
)

// TestAdminKey authenticates admin requests against the test server
const TestAdminKey = "integration-admin-key-0123456789abcdef"

// SentEmail represents a captured email message
type SentEmail struct {
	To      string
	Subject string
	Body    string
}

// MockResetMailer captures reset emails for test assertions
type MockResetMailer struct {
	SentEmails []SentEmail
	mu         sync.Mutex
}

func (m *MockResetMailer) SendPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SentEmails = append(m.SentEmails, SentEmail{
		To:      email,
		Subject: "Reset your password",
		Body:    "Reset token: " + token,
	})
	return nil
}

// GetLastEmail returns the most recent email sent
func (m *MockResetMailer) GetLastEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.SentEmails) == 0 {
		return nil
	}
	last := m.SentEmails[len(m.SentEmails)-1]
	return &last
}

// TestServer is the full HTTP stack backed by a real database
type TestServer struct {
	Server *httptest.Server
	DB     *database.DB
	Mailer *MockResetMailer
}

// NewTestServer wires every service the way cmd/api does, with email captured
// and response padding disabled
func NewTestServer(db *database.DB) *TestServer {
	logger := discardLogger()
	mailer := &MockResetMailer{}

	accountRepo := repositories.NewAccountRepository(db)
	eventRepo := repositories.NewSecurityEventRepository(db)
	auditService := services.NewAuditService(eventRepo, logger)

	lockoutService := services.NewLockoutService(repositories.NewLockoutRepository(db), auditService, services.LockoutConfig{
		Enabled:           true,
		MaxFailedAttempts: 5,
		Window:            15 * time.Minute,
		Duration:          15 * time.Minute,
	}, logger)
	rateLimitService := services.NewRateLimitService(repositories.NewWindowCounterRepository(db), services.RateLimitConfig{
		EmailMax: 3,
		IPMax:    5,
		Window:   time.Hour,
	}, logger)
	tokenService := services.NewResetTokenService(repositories.NewResetTokenRepository(db), time.Hour, logger)
	deviceService := services.NewDeviceService(repositories.NewDeviceRepository(db), auditService, logger)
	riskService := services.NewRiskService(accountRepo, eventRepo, deviceService, services.StaticLocationResolver{}, services.RiskConfig{
		ResolverTimeout:  time.Second,
		UnusualHourStart: 2,
		UnusualHourEnd:   6,
		FailureLookback:  7 * 24 * time.Hour,
		FailureThreshold: 3,
		NewAccountAge:    7 * 24 * time.Hour,
		HistoryLookback:  90 * 24 * time.Hour,
	}, logger)
	analyzer := services.NewAuditAnalyzer(eventRepo, services.NopNotifier{}, services.AuditAnalyzerConfig{
		RuleCap:       100,
		TotalCap:      500,
		MaxScan:       10000,
		OffHoursStart: 2,
		OffHoursEnd:   6,
	}, logger)

	timing := auth.NewTimingDelay(auth.TimingConfig{})
	loginService := services.NewLoginService(accountRepo, lockoutService, riskService, deviceService, auditService, services.NopNotifier{}, timing, logger)
	resetService := services.NewPasswordResetService(accountRepo, rateLimitService, tokenService, lockoutService,
		mailer, auditService, timing, time.Hour, logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)

	routes.RegisterRoutes(r, routes.Handlers{
		Login:   handlers.NewLoginHandler(loginService, nil, logger),
		Reset:   handlers.NewPasswordResetHandler(resetService, nil, logger),
		Lockout: handlers.NewLockoutHandler(lockoutService, logger),
		Devices: handlers.NewDeviceHandler(deviceService, logger),
		Audit:   handlers.NewAuditHandler(analyzer, logger),
		Health:  handlers.NewHealthHandler(db, logger),
	}, middlewareCustom.RateLimitConfig{RequestsPerMinute: 1000}, TestAdminKey)

	return &TestServer{
		Server: httptest.NewServer(r),
		DB:     db,
		Mailer: mailer,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// AdminRequest makes a request carrying the admin key
func (ts *TestServer) AdminRequest(method, path string, body interface{}) (*http.Response, error) {
	return ts.Request(method, path, body, map[string]string{auth.AdminKeyHeader: TestAdminKey})
}

// ParseJSONResponse parses JSON response body into target
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// GetErrorMessage extracts the message from an error response
func GetErrorMessage(resp *http.Response) (string, error) {
	var errResp map[string]interface{}
	if err := ParseJSONResponse(resp, &errResp); err != nil {
		return "", err
	}
	msg, _ := errResp["message"].(string)
	return msg, nil
}
