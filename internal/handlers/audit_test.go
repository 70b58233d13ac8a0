package handlers_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/sentinel/internal/handlers"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/services"
	"github.com/stretchr/testify/assert"
)

func TestAuditSuspicious_WindowFromQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantDays int
	}{
		{"default", "", 7},
		{"explicit", "?days=30", 30},
		{"clamped", "?days=365", 90},
		{"garbage", "?days=abc", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotDays int
			reason := "credential stuffing"
			mock := &handlers.MockAuditAnalyzer{
				FindSuspiciousFunc: func(ctx context.Context, windowDays int) ([]*models.SecurityEvent, error) {
					gotDays = windowDays
					return []*models.SecurityEvent{{ID: "e-1", IsSuspicious: true, SuspiciousReason: &reason}}, nil
				},
			}

			w := httptest.NewRecorder()
			handlers.NewAuditHandler(mock, handlers.DiscardLogger()).Suspicious(w,
				httptest.NewRequest("GET", "/security/admin/audit/suspicious"+tt.query, nil))

			var resp handlers.EventListResponse
			handlers.AssertJSONResponse(t, w, 200, &resp)
			assert.Equal(t, tt.wantDays, gotDays)
			assert.Equal(t, tt.wantDays, resp.WindowDays)
			assert.Equal(t, 1, resp.Count)
		})
	}
}

func TestAuditFlagged_EmptyIsArray(t *testing.T) {
	w := httptest.NewRecorder()
	handlers.NewAuditHandler(&handlers.MockAuditAnalyzer{}, handlers.DiscardLogger()).Flagged(w,
		httptest.NewRequest("GET", "/security/admin/audit/flagged", nil))

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), `"events":[]`)
}

func TestAuditAnalyze(t *testing.T) {
	mock := &handlers.MockAuditAnalyzer{
		AnalyzeFunc: func(ctx context.Context, windowDays int) (*services.AnalysisReport, error) {
			return &services.AnalysisReport{WindowDays: windowDays, Scanned: 8, Flagged: 7, Accounts: []string{"acct-1"}}, nil
		},
	}

	w := httptest.NewRecorder()
	handlers.NewAuditHandler(mock, handlers.DiscardLogger()).Analyze(w,
		httptest.NewRequest("POST", "/security/admin/audit/analyze?days=14", nil))

	var resp services.AnalysisReport
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, 14, resp.WindowDays)
	assert.Equal(t, 7, resp.Flagged)
}

func TestAuditMarkSuspicious(t *testing.T) {
	const eventID = "0e9b6c38-51a2-4d3c-8f0e-7a1b2c3d4e5f"

	tests := []struct {
		name       string
		body       interface{}
		err        error
		wantStatus int
	}{
		{"marked", handlers.MarkSuspiciousRequest{Reason: "manual review"}, nil, 204},
		{"missing reason", handlers.MarkSuspiciousRequest{}, nil, 400},
		{"invalid id", handlers.MarkSuspiciousRequest{Reason: "x"}, fmt.Errorf("invalid event id: %w", models.ErrBadRequest), 400},
		{"unknown event", handlers.MarkSuspiciousRequest{Reason: "x"}, models.ErrNotFound, 404},
		{"store failure", handlers.MarkSuspiciousRequest{Reason: "x"}, fmt.Errorf("boom"), 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotID, gotReason string
			mock := &handlers.MockAuditAnalyzer{
				MarkSuspiciousFunc: func(ctx context.Context, id, reason string) error {
					gotID, gotReason = id, reason
					return tt.err
				},
			}
			req := handlers.WithURLParams(
				handlers.NewTestRequest(t, "POST", "/security/admin/audit/events/"+eventID+"/suspicious", tt.body),
				map[string]string{"eventID": eventID})

			w := httptest.NewRecorder()
			handlers.NewAuditHandler(mock, handlers.DiscardLogger()).MarkSuspicious(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == 204 {
				assert.Equal(t, eventID, gotID)
				assert.Equal(t, "manual review", gotReason)
			}
		})
	}
}
