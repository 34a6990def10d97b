package notifications

import (
	"context"

	"go.uber.org/zap"
)

// EmailMessage is a single transactional email with a plain text and an HTML body.
type EmailMessage struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// EmailSender delivers transactional email.
type EmailSender interface {
	SendEmail(ctx context.Context, message EmailMessage) error
}

// LoggingEmailSender records messages in the log instead of delivering them.
// It stands in for SendGrid when no API key is configured.
type LoggingEmailSender struct {
	logger *zap.Logger
}

// NewLoggingEmailSender builds a LoggingEmailSender.
func NewLoggingEmailSender(logger *zap.Logger) *LoggingEmailSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingEmailSender{logger: logger}
}

func (sender *LoggingEmailSender) SendEmail(ctx context.Context, message EmailMessage) error {
	sender.logger.Info("email_delivery_disabled",
		zap.String("recipient", message.To),
		zap.String("subject", message.Subject),
	)
	return nil
}
