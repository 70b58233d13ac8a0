package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/services"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

// PasswordResetServiceInterface defines the reset flow used by the handler
type PasswordResetServiceInterface interface {
	Request(ctx context.Context, email, ip, userAgent string) (services.RateLimitResult, error)
	Validate(ctx context.Context, token string) error
	Complete(ctx context.Context, token, newPassword, ip, userAgent string) error
}

// PasswordResetHandler handles the public password reset endpoints
type PasswordResetHandler struct {
	service  PasswordResetServiceInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

func NewPasswordResetHandler(service PasswordResetServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *PasswordResetHandler {
	return &PasswordResetHandler{service: service, ipConfig: ipConfig, logger: logger}
}

type ResetRequestRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

type ResetValidateRequest struct {
	Token string `json:"token" validate:"required,max=128"`
}

type ResetCompleteRequest struct {
	Token       string `json:"token" validate:"required,max=128"`
	NewPassword string `json:"new_password" validate:"required,max=128"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

const resetRequestedMessage = "If an account exists for that email, a reset link has been sent."

// Request handles POST /security/reset/request
func (h *PasswordResetHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req ResetRequestRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	result, err := h.service.Request(r.Context(), req.Email, ip, r.UserAgent())
	switch {
	case errors.Is(err, models.ErrRateLimitExceeded):
		pkghttp.WriteTooManyRequests(w, result.Message, result.RetryAfter)
	case err != nil:
		h.logger.ErrorContext(r.Context(), "password reset request failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	default:
		pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{Message: resetRequestedMessage})
	}
}

// Validate handles POST /security/reset/validate without consuming the token
func (h *PasswordResetHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ResetValidateRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.service.Validate(r.Context(), req.Token); err != nil {
		h.writeResetError(w, r, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Token is valid"})
}

// Complete handles POST /security/reset/complete
func (h *PasswordResetHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req ResetCompleteRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	if err := h.service.Complete(r.Context(), req.Token, req.NewPassword, ip, r.UserAgent()); err != nil {
		h.writeResetError(w, r, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Password has been reset"})
}

func (h *PasswordResetHandler) writeResetError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidResetToken):
		pkghttp.WriteBadRequest(w, models.ErrInvalidResetToken.Error())
	case errors.Is(err, models.ErrBadRequest):
		// Password policy failures carry their reasons ahead of the sentinel
		msg := strings.TrimSuffix(err.Error(), ": "+models.ErrBadRequest.Error())
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "bad_request", "Password does not meet requirements", msg)
	default:
		h.logger.ErrorContext(r.Context(), "password reset failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
