package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/services"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	"github.com/go-chi/chi/v5"
)

const (
	defaultWindowDays = 7
	maxWindowDays     = 90
)

// AuditAnalyzerInterface is the read and mark surface of the audit analyzer
type AuditAnalyzerInterface interface {
	FindSuspicious(ctx context.Context, windowDays int) ([]*models.SecurityEvent, error)
	ListFlagged(ctx context.Context, windowDays int) ([]*models.SecurityEvent, error)
	Analyze(ctx context.Context, windowDays int) (*services.AnalysisReport, error)
	MarkSuspicious(ctx context.Context, eventID, reason string) error
}

// AuditHandler handles admin audit requests
type AuditHandler struct {
	analyzer AuditAnalyzerInterface
	logger   *slog.Logger
}

func NewAuditHandler(analyzer AuditAnalyzerInterface, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{analyzer: analyzer, logger: logger}
}

type EventListResponse struct {
	Events     []*models.SecurityEvent `json:"events"`
	Count      int                     `json:"count"`
	WindowDays int                     `json:"window_days"`
}

type MarkSuspiciousRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Suspicious handles GET /security/admin/audit/suspicious?days=N
func (h *AuditHandler) Suspicious(w http.ResponseWriter, r *http.Request) {
	h.listEvents(w, r, h.analyzer.FindSuspicious)
}

// Flagged handles GET /security/admin/audit/flagged?days=N
func (h *AuditHandler) Flagged(w http.ResponseWriter, r *http.Request) {
	h.listEvents(w, r, h.analyzer.ListFlagged)
}

func (h *AuditHandler) listEvents(w http.ResponseWriter, r *http.Request, list func(context.Context, int) ([]*models.SecurityEvent, error)) {
	days := pkghttp.QueryInt(r, "days", defaultWindowDays, maxWindowDays)

	events, err := list(r.Context(), days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []*models.SecurityEvent{}
	}
	pkghttp.WriteJSON(w, http.StatusOK, EventListResponse{Events: events, Count: len(events), WindowDays: days})
}

// Analyze handles POST /security/admin/audit/analyze?days=N
func (h *AuditHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	days := pkghttp.QueryInt(r, "days", defaultWindowDays, maxWindowDays)

	report, err := h.analyzer.Analyze(r.Context(), days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, report)
}

// MarkSuspicious handles POST /security/admin/audit/events/{eventID}/suspicious
func (h *AuditHandler) MarkSuspicious(w http.ResponseWriter, r *http.Request) {
	var req MarkSuspiciousRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.analyzer.MarkSuspicious(r.Context(), chi.URLParam(r, "eventID"), req.Reason); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuditHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, err.Error())
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "event not found")
	default:
		h.logger.ErrorContext(r.Context(), "audit operation failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
