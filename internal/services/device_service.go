package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
)

// DeviceRepository persists remembered devices
type DeviceRepository interface {
	GetByID(ctx context.Context, id string) (*models.Device, error)
	GetByFingerprint(ctx context.Context, accountID, fingerprint string) (*models.Device, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.Device, error)
	Create(ctx context.Context, device *models.Device) (*models.Device, error)
	RecordSighting(ctx context.Context, id, ip string, seenAt time.Time) (*models.Device, error)
	SetTrusted(ctx context.Context, accountID, fingerprint string) (*models.Device, error)
	Deactivate(ctx context.Context, id string) (*models.Device, error)
	DeleteInactive(ctx context.Context, lastSeenBefore time.Time) (int64, error)
}

// DeviceService remembers client devices per account and tracks their trust
type DeviceService struct {
	repo   DeviceRepository
	events EventRecorder
	logger *slog.Logger
	now    func() time.Time
}

func NewDeviceService(repo DeviceRepository, events EventRecorder, logger *slog.Logger) *DeviceService {
	if events == nil {
		events = NopEventRecorder{}
	}
	return &DeviceService{
		repo:   repo,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// GetOrCreate records a sighting of the device, inserting it on first sight.
// Losing a race on the first insert falls back to updating the winner's row.
func (s *DeviceService) GetOrCreate(ctx context.Context, accountID, userAgent, ip string) (*models.Device, error) {
	fingerprint := Fingerprint(userAgent, ip)
	now := s.now()

	existing, err := s.repo.GetByFingerprint(ctx, accountID, fingerprint)
	if err == nil {
		return s.repo.RecordSighting(ctx, existing.ID, ip, now)
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up device: %w", err)
	}

	info := ParseUserAgent(userAgent)
	created, err := s.repo.Create(ctx, &models.Device{
		AccountID:      accountID,
		Fingerprint:    fingerprint,
		DeviceType:     info.DeviceType,
		Browser:        info.Browser,
		BrowserVersion: info.BrowserVersion,
		OS:             info.OS,
		OSVersion:      info.OSVersion,
		LastUsedIP:     ip,
		FirstSeenAt:    now,
		LastSeenAt:     now,
		TotalLogins:    1,
		IsActive:       true,
	})
	if errors.Is(err, models.ErrConflict) {
		existing, err = s.repo.GetByFingerprint(ctx, accountID, fingerprint)
		if err != nil {
			return nil, fmt.Errorf("failed to load concurrently created device: %w", err)
		}
		return s.repo.RecordSighting(ctx, existing.ID, ip, now)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	s.logger.InfoContext(ctx, "new device registered",
		slog.String("account_id", accountID),
		slog.String("device_type", info.DeviceType),
		slog.String("browser", info.Browser),
		slog.String("os", info.OS),
	)
	return created, nil
}

// IsTrusted reports whether an active device with this fingerprint is trusted for the account
func (s *DeviceService) IsTrusted(ctx context.Context, accountID, fingerprint string) (bool, error) {
	d, err := s.repo.GetByFingerprint(ctx, accountID, fingerprint)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return d.IsActive && d.IsTrusted, nil
}

// MarkTrusted elevates a known device. Trust only goes up here; Revoke is the way down.
func (s *DeviceService) MarkTrusted(ctx context.Context, accountID, fingerprint string) (*models.Device, error) {
	before, err := s.repo.GetByFingerprint(ctx, accountID, fingerprint)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.SetTrusted(ctx, accountID, fingerprint)
	if err != nil {
		return nil, err
	}

	s.events.Record(ctx, &models.SecurityEvent{
		AccountID:    accountRef(accountID),
		EventType:    models.EventTypeDeviceTrusted,
		IPAddress:    updated.LastUsedIP,
		DeviceType:   updated.DeviceType,
		Browser:      updated.Browser,
		OS:           updated.OS,
		IsSuccessful: true,
		CreatedAt:    s.now(),
		Extra:        models.ChangesMetadata(models.DiffDevice(before, updated)),
	})
	return updated, nil
}

// Revoke deactivates a device and drops its trust
func (s *DeviceService) Revoke(ctx context.Context, deviceID string) (*models.Device, error) {
	before, err := s.repo.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.Deactivate(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	s.events.Record(ctx, &models.SecurityEvent{
		AccountID:    accountRef(updated.AccountID),
		EventType:    models.EventTypeDeviceRevoked,
		IPAddress:    updated.LastUsedIP,
		DeviceType:   updated.DeviceType,
		Browser:      updated.Browser,
		OS:           updated.OS,
		IsSuccessful: true,
		CreatedAt:    s.now(),
		Extra:        models.ChangesMetadata(models.DiffDevice(before, updated)),
	})
	return updated, nil
}

func (s *DeviceService) ListForAccount(ctx context.Context, accountID string) ([]*models.Device, error) {
	return s.repo.ListByAccount(ctx, accountID)
}

// CleanupInactive deletes devices not seen for daysInactive days
func (s *DeviceService) CleanupInactive(ctx context.Context, daysInactive int) (int64, error) {
	if daysInactive <= 0 {
		return 0, fmt.Errorf("days inactive must be positive: %w", models.ErrBadRequest)
	}
	cutoff := s.now().AddDate(0, 0, -daysInactive)
	return s.repo.DeleteInactive(ctx, cutoff)
}
