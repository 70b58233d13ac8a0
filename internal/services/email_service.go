package services

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// MailSender delivers one message
type MailSender interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
}

// ResetMailer delivers password-reset links
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error
}

// sesAPI is the part of the SES client used here
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESMailer sends emails using AWS SES
type SESMailer struct {
	client      sesAPI
	fromAddress string
	baseURL     string
	logger      *slog.Logger
}

// NewSESMailer creates a mailer from the default AWS credential chain
func NewSESMailer(ctx context.Context, region, fromAddress, baseURL string, logger *slog.Logger) (*SESMailer, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESMailer{
		client:      ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		baseURL:     baseURL,
		logger:      logger,
	}, nil
}

func (m *SESMailer) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(m.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	}

	result, err := m.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.InfoContext(ctx, "email sent",
		slog.String("subject", subject),
		slog.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}

// SendPasswordReset emails the reset link. The token appears only in the message body.
func (m *SESMailer) SendPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", m.baseURL, token)
	minutes := int(time.Until(expiresAt).Round(time.Minute).Minutes())

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <h1>Reset your password</h1>
  <p>We received a request to reset the password for your account.</p>
  <p><a href="%s">Choose a new password</a></p>
  <p>This link expires in %d minutes and can be used once.</p>
  <p>If you did not ask for this, you can ignore this email. Your password will not change.</p>
</body>
</html>
`, html.EscapeString(link), minutes)

	textBody := fmt.Sprintf(`Reset your password

We received a request to reset the password for your account. Open this link to choose a new password:

%s

This link expires in %d minutes and can be used once.
If you did not ask for this, you can ignore this email. Your password will not change.
`, link, minutes)

	return m.Send(ctx, email, "Reset your password", htmlBody, textBody)
}

// NopMailer drops every message. Used when email delivery is disabled.
type NopMailer struct {
	Logger *slog.Logger
}

func (n NopMailer) Send(ctx context.Context, to, subject, _, _ string) error {
	if n.Logger != nil {
		n.Logger.DebugContext(ctx, "email delivery disabled, message dropped", slog.String("subject", subject))
	}
	return nil
}

func (n NopMailer) SendPasswordReset(ctx context.Context, _, _ string, _ time.Time) error {
	return n.Send(ctx, "", "Reset your password", "", "")
}
