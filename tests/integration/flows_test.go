//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func login(t *testing.T, ts *TestServer, email, password string) *http.Response {
	t.Helper()
	resp, err := ts.Request("POST", "/security/login/evaluate", loginBody{Email: email, Password: password}, nil)
	require.NoError(t, err)
	return resp
}

func seedAccount(t *testing.T, suffix string) string {
	t.Helper()
	email := TestAccountEmail(suffix)
	_, err := SeedAccount(context.Background(), testDB.Pool, email, TestPassword, time.Now().AddDate(0, -1, 0))
	require.NoError(t, err)
	return email
}

func TestPasswordResetFlow(t *testing.T) {
	resetDatabase(t)
	ts := NewTestServer(testDB.DB)
	defer ts.Close()
	email := seedAccount(t, "reset")

	resp, err := ts.Request("POST", "/security/reset/request", map[string]string{"email": email}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	sent := ts.Mailer.GetLastEmail()
	require.NotNil(t, sent)
	assert.Equal(t, email, sent.To)
	token := ExtractTokenFromEmail(sent.Body)
	require.NotEmpty(t, token)

	resp, err = ts.Request("POST", "/security/reset/validate", map[string]string{"token": token}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	const newPassword = "Another-Secret-99"
	complete := map[string]string{"token": token, "new_password": newPassword}
	resp, err = ts.Request("POST", "/security/reset/complete", complete, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = ts.Request("POST", "/security/reset/complete", complete, nil)
	require.NoError(t, err)
	msg, err := GetErrorMessage(resp)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid or expired token", msg)

	resp = login(t, ts, email, TestPassword)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "old password no longer works")

	resp = login(t, ts, email, newPassword)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPasswordResetRequest_RateLimitedPerEmail(t *testing.T) {
	resetDatabase(t)
	ts := NewTestServer(testDB.DB)
	defer ts.Close()
	email := TestAccountEmail("nobody")

	for i := 0; i < 3; i++ {
		resp, err := ts.Request("POST", "/security/reset/request", map[string]string{"email": email}, nil)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusAccepted, resp.StatusCode, "request %d", i+1)
	}

	resp, err := ts.Request("POST", "/security/reset/request", map[string]string{"email": email}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	msg, err := GetErrorMessage(resp)
	require.NoError(t, err)
	assert.Contains(t, msg, "Please try again in")
	assert.Empty(t, ts.Mailer.SentEmails, "unknown email never gets mail")
}

func TestLoginLockoutAndAdminUnlock(t *testing.T) {
	resetDatabase(t)
	ts := NewTestServer(testDB.DB)
	defer ts.Close()
	email := seedAccount(t, "lockout")

	for i := 0; i < 4; i++ {
		resp := login(t, ts, email, "wrong-password")
		resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	resp := login(t, ts, email, "wrong-password")
	resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode, "fifth failure locks")

	resp = login(t, ts, email, TestPassword)
	resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode, "correct password is refused while locked")

	var accountID string
	require.NoError(t, testDB.Pool.QueryRow(context.Background(), `SELECT id FROM accounts WHERE email = $1`, email).Scan(&accountID))

	resp, err := ts.AdminRequest("POST", "/security/admin/accounts/"+accountID+"/unlock", nil)
	require.NoError(t, err)
	var status map[string]interface{}
	require.NoError(t, ParseJSONResponse(resp, &status))
	assert.Equal(t, false, status["is_locked_out"])

	resp = login(t, ts, email, TestPassword)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	events, err := testDB.CountRows(context.Background(), "security_events", "account_id = $1 AND event_type = 'account_unlocked'", accountID)
	require.NoError(t, err)
	assert.Equal(t, 1, events)
}

func TestDeviceTrustRemovesNewDeviceFactor(t *testing.T) {
	resetDatabase(t)
	ts := NewTestServer(testDB.DB)
	defer ts.Close()
	email := seedAccount(t, "device")

	var first map[string]interface{}
	require.NoError(t, ParseJSONResponse(login(t, ts, email, TestPassword), &first))
	assert.Contains(t, first["risk"].(map[string]interface{})["risk_factors"], "New device")

	accountID := first["account_id"].(string)
	resp, err := ts.AdminRequest("GET", "/security/admin/accounts/"+accountID+"/devices", nil)
	require.NoError(t, err)
	var list struct {
		Devices []struct {
			Fingerprint string `json:"fingerprint"`
		} `json:"devices"`
	}
	require.NoError(t, ParseJSONResponse(resp, &list))
	require.Len(t, list.Devices, 1)

	resp, err = ts.AdminRequest("POST", "/security/admin/accounts/"+accountID+"/devices/trust",
		map[string]string{"fingerprint": list.Devices[0].Fingerprint})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var second map[string]interface{}
	require.NoError(t, ParseJSONResponse(login(t, ts, email, TestPassword), &second))
	assert.NotContains(t, second["risk"].(map[string]interface{})["risk_factors"], "New device")
}

func TestAuditAnalyzeFlagsCredentialStuffing(t *testing.T) {
	resetDatabase(t)
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	for i := 0; i < 6; i++ {
		resp := login(t, ts, TestAccountEmail("stuffing"), "guess")
		resp.Body.Close()
	}

	resp, err := ts.AdminRequest("POST", "/security/admin/audit/analyze?days=1", nil)
	require.NoError(t, err)
	var report map[string]interface{}
	require.NoError(t, ParseJSONResponse(resp, &report))
	assert.EqualValues(t, 6, report["flagged"])

	resp, err = ts.AdminRequest("GET", "/security/admin/audit/flagged?days=1", nil)
	require.NoError(t, err)
	var flagged map[string]interface{}
	require.NoError(t, ParseJSONResponse(resp, &flagged))
	assert.EqualValues(t, 6, flagged["count"])
}

func TestAdminRoutesRejectMissingKey(t *testing.T) {
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	resp, err := ts.Request("GET", "/security/admin/audit/flagged", nil, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
