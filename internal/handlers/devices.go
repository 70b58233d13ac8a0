package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// DeviceServiceInterface is the administrative view of the device registry
type DeviceServiceInterface interface {
	ListForAccount(ctx context.Context, accountID string) ([]*models.Device, error)
	MarkTrusted(ctx context.Context, accountID, fingerprint string) (*models.Device, error)
	Revoke(ctx context.Context, deviceID string) (*models.Device, error)
}

// DeviceHandler handles admin device requests
type DeviceHandler struct {
	service DeviceServiceInterface
	logger  *slog.Logger
}

func NewDeviceHandler(service DeviceServiceInterface, logger *slog.Logger) *DeviceHandler {
	return &DeviceHandler{service: service, logger: logger}
}

type TrustDeviceRequest struct {
	Fingerprint string `json:"fingerprint" validate:"required,len=64,hexadecimal"`
}

type DeviceListResponse struct {
	Devices []*models.Device `json:"devices"`
	Count   int              `json:"count"`
}

// List handles GET /security/admin/accounts/{accountID}/devices
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	devices, err := h.service.ListForAccount(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if devices == nil {
		devices = []*models.Device{}
	}
	pkghttp.WriteJSON(w, http.StatusOK, DeviceListResponse{Devices: devices, Count: len(devices)})
}

// Trust handles POST /security/admin/accounts/{accountID}/devices/trust
func (h *DeviceHandler) Trust(w http.ResponseWriter, r *http.Request) {
	var req TrustDeviceRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	device, err := h.service.MarkTrusted(r.Context(), chi.URLParam(r, "accountID"), req.Fingerprint)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, device)
}

// Revoke handles DELETE /security/admin/devices/{deviceID}
func (h *DeviceHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	if _, err := uuid.Parse(deviceID); err != nil {
		pkghttp.WriteBadRequest(w, "invalid device id")
		return
	}

	device, err := h.service.Revoke(r.Context(), deviceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, device)
}

func (h *DeviceHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "device not found")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "device operation failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
