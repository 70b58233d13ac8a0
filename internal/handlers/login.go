package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

// LoginEvaluator decides a login attempt end to end
type LoginEvaluator interface {
	Evaluate(ctx context.Context, email, password, ip, userAgent string) (*models.LoginDecision, error)
}

// LoginHandler exposes login evaluation to the identity front end
type LoginHandler struct {
	service  LoginEvaluator
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

func NewLoginHandler(service LoginEvaluator, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *LoginHandler {
	return &LoginHandler{service: service, ipConfig: ipConfig, logger: logger}
}

// LoginRequest represents the request body for login evaluation
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=128"`
}

// Evaluate handles POST /security/login/evaluate.
// Denied attempts get one generic 401 whatever the cause.
func (h *LoginHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	decision, err := h.service.Evaluate(r.Context(), req.Email, req.Password, ip, r.UserAgent())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "login evaluation failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	switch decision.Outcome {
	case models.LoginOutcomeDenied:
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	case models.LoginOutcomeLocked:
		var retry time.Duration
		if decision.RetryAfter != nil {
			retry = *decision.RetryAfter
		}
		pkghttp.WriteTooManyRequests(w, "Too many failed login attempts. Please try again later.", retry)
	default:
		pkghttp.WriteJSON(w, http.StatusOK, decision)
	}
}
