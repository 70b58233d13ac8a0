package services

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"github.com/BradenHooton/sentinel/internal/models"
)

// Notifier receives fire-and-forget security notifications. Implementations
// must not fail the caller; delivery problems are logged.
type Notifier interface {
	NotifyUnusualActivity(ctx context.Context, accountID, description, ip string, location *models.Location)
}

// NopNotifier discards notifications
type NopNotifier struct{}

func (NopNotifier) NotifyUnusualActivity(context.Context, string, string, string, *models.Location) {}

// EmailNotifier emails the account owner about unusual activity
type EmailNotifier struct {
	accounts AccountReader
	mailer   MailSender
	logger   *slog.Logger
}

func NewEmailNotifier(accounts AccountReader, mailer MailSender, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		accounts: accounts,
		mailer:   mailer,
		logger:   logger,
	}
}

func (n *EmailNotifier) NotifyUnusualActivity(ctx context.Context, accountID, description, ip string, location *models.Location) {
	account, err := n.accounts.GetByID(ctx, accountID)
	if err != nil {
		n.logger.WarnContext(ctx, "unusual activity notification skipped",
			slog.String("account_id", accountID),
			slog.Any("error", err),
		)
		return
	}

	where := location.Describe()
	htmlBody := fmt.Sprintf(`<p>We noticed unusual activity on your account.</p>
<p><strong>%s</strong></p>
<p>IP address: %s<br>Location: %s</p>
<p>If this was not you, reset your password and review your trusted devices.</p>`,
		html.EscapeString(description), html.EscapeString(ip), html.EscapeString(where))
	textBody := fmt.Sprintf("We noticed unusual activity on your account.\n\n%s\n\nIP address: %s\nLocation: %s\n\n"+
		"If this was not you, reset your password and review your trusted devices.\n", description, ip, where)

	if err := n.mailer.Send(ctx, account.Email, "Unusual activity on your account", htmlBody, textBody); err != nil {
		n.logger.ErrorContext(ctx, "failed to send unusual activity notification",
			slog.String("account_id", accountID),
			slog.Any("error", err),
		)
	}
}
