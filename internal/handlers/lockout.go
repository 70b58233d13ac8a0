package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	"github.com/go-chi/chi/v5"
)

// LockoutServiceInterface is the administrative view of the lockout engine
type LockoutServiceInterface interface {
	Status(ctx context.Context, accountID string) models.LockoutStatus
	Lockout(ctx context.Context, accountID string, duration time.Duration, reason string) (*models.LockoutStatus, error)
	Unlock(ctx context.Context, accountID string) (*models.LockoutStatus, error)
}

// LockoutHandler handles admin lockout requests
type LockoutHandler struct {
	service LockoutServiceInterface
	logger  *slog.Logger
}

func NewLockoutHandler(service LockoutServiceInterface, logger *slog.Logger) *LockoutHandler {
	return &LockoutHandler{service: service, logger: logger}
}

// LockAccountRequest locks an account for up to a week
type LockAccountRequest struct {
	DurationMinutes int    `json:"duration_minutes" validate:"required,gte=1,lte=10080"`
	Reason          string `json:"reason" validate:"required,max=255"`
}

// GetStatus handles GET /security/admin/accounts/{accountID}/lockout
func (h *LockoutHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if accountID == "" {
		pkghttp.WriteBadRequest(w, "account id is required")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, h.service.Status(r.Context(), accountID))
}

// Lock handles POST /security/admin/accounts/{accountID}/lock
func (h *LockoutHandler) Lock(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	var req LockAccountRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	status, err := h.service.Lockout(r.Context(), accountID, time.Duration(req.DurationMinutes)*time.Minute, req.Reason)
	if err != nil {
		h.writeError(w, r, "lock", err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, status)
}

// Unlock handles POST /security/admin/accounts/{accountID}/unlock
func (h *LockoutHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Unlock(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, r, "unlock", err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, status)
}

func (h *LockoutHandler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, models.ErrBadRequest) {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	h.logger.ErrorContext(r.Context(), "lockout operation failed",
		slog.String("operation", op),
		slog.Any("error", err),
	)
	pkghttp.WriteInternalError(w, "Internal server error")
}
