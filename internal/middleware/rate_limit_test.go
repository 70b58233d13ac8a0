package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	"github.com/stretchr/testify/assert"
)

func serveFrom(h http.Handler, remoteAddr, forwardedFor string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/security/reset/request", nil)
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimitByIP_BlocksAfterLimit(t *testing.T) {
	h := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 3})(okHandler())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serveFrom(h, "203.0.113.10:1000", "").Code)
	}

	w := serveFrom(h, "203.0.113.10:1000", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")

	assert.Equal(t, http.StatusOK, serveFrom(h, "203.0.113.11:1000", "").Code, "other clients are unaffected")
}

func TestRateLimitByIP_SpoofedHeaderDoesNotEvadeLimit(t *testing.T) {
	h := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 2, IPConfig: pkghttp.NewIPConfig([]string{"10.0.0.0/8"})})(okHandler())

	assert.Equal(t, http.StatusOK, serveFrom(h, "203.0.113.10:1000", "1.1.1.1").Code)
	assert.Equal(t, http.StatusOK, serveFrom(h, "203.0.113.10:1000", "2.2.2.2").Code)
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(h, "203.0.113.10:1000", "3.3.3.3").Code)
}

func TestRateLimitByIP_TrustedProxyKeysOnForwardedClient(t *testing.T) {
	h := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 1, IPConfig: pkghttp.NewIPConfig([]string{"10.0.0.0/8"})})(okHandler())

	assert.Equal(t, http.StatusOK, serveFrom(h, "10.0.0.5:1000", "198.51.100.1").Code)
	assert.Equal(t, http.StatusOK, serveFrom(h, "10.0.0.5:1000", "198.51.100.2").Code)
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(h, "10.0.0.5:1000", "198.51.100.1").Code)
}
