package services

import (
	"context"
	"log/slog"

	"github.com/BradenHooton/sentinel/internal/models"
)

// SecurityEventWriter persists security events
type SecurityEventWriter interface {
	Create(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error)
}

// EventRecorder is the sink every security component reports to
type EventRecorder interface {
	Record(ctx context.Context, event *models.SecurityEvent)
}

// AuditService handles security events with dual-write pattern (slog + database)
type AuditService struct {
	repo   SecurityEventWriter
	logger *slog.Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(repo SecurityEventWriter, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		logger: logger,
	}
}

// Record logs the event immediately and then persists it. Persistence failures
// are logged and never reach the caller.
func (s *AuditService) Record(ctx context.Context, event *models.SecurityEvent) {
	attrs := []any{
		slog.String("event_type", event.EventType),
		slog.String("account_id", event.AccountKey()),
		slog.String("ip_address", event.IPAddress),
		slog.Bool("successful", event.IsSuccessful),
	}
	if len(event.Extra) > 0 {
		attrs = append(attrs, slog.Any("extra", event.Extra))
	}

	// Dual-write: immediate slog output
	if event.IsSuccessful {
		s.logger.InfoContext(ctx, "security event", attrs...)
	} else {
		s.logger.WarnContext(ctx, "security event", attrs...)
	}

	if _, err := s.repo.Create(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist security event",
			slog.String("event_type", event.EventType),
			slog.Any("error", err),
		)
	}
}

// NopEventRecorder discards events. Used where no event log is configured.
type NopEventRecorder struct{}

func (NopEventRecorder) Record(context.Context, *models.SecurityEvent) {}

func accountRef(accountID string) *string {
	if accountID == "" {
		return nil
	}
	return &accountID
}
