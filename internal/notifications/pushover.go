package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gregdel/pushover"
	"go.uber.org/zap"
)

var ErrMissingPushoverCredentials = errors.New("missing_pushover_credentials")

// PushNotification is an operator alert.
type PushNotification struct {
	Title   string
	Message string
	Urgent  bool
}

// PushNotifier delivers operator alerts.
type PushNotifier interface {
	Notify(ctx context.Context, notification PushNotification) error
}

// PushoverConfig identifies the Pushover application and the receiving user.
type PushoverConfig struct {
	AppToken string
	UserKey  string
}

// PushoverNotifier sends alerts through the Pushover API.
type PushoverNotifier struct {
	client    *pushover.Pushover
	recipient *pushover.Recipient
}

// NewPushoverNotifier requires both the app token and the user key.
func NewPushoverNotifier(config PushoverConfig) (*PushoverNotifier, error) {
	appToken := strings.TrimSpace(config.AppToken)
	userKey := strings.TrimSpace(config.UserKey)
	if appToken == "" || userKey == "" {
		return nil, ErrMissingPushoverCredentials
	}
	return &PushoverNotifier{
		client:    pushover.New(appToken),
		recipient: pushover.NewRecipient(userKey),
	}, nil
}

func (notifier *PushoverNotifier) Notify(ctx context.Context, notification PushNotification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, sendErr := notifier.client.SendMessage(buildPushoverMessage(notification), notifier.recipient); sendErr != nil {
		return fmt.Errorf("pushover send: %w", sendErr)
	}
	return nil
}

func buildPushoverMessage(notification PushNotification) *pushover.Message {
	message := pushover.NewMessageWithTitle(notification.Message, notification.Title)
	message.Priority = pushover.PriorityNormal
	if notification.Urgent {
		message.Priority = pushover.PriorityHigh
	}
	return message
}

// LoggingPushNotifier logs alerts when Pushover is not configured.
type LoggingPushNotifier struct {
	logger *zap.Logger
}

func NewLoggingPushNotifier(logger *zap.Logger) *LoggingPushNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingPushNotifier{logger: logger}
}

func (notifier *LoggingPushNotifier) Notify(ctx context.Context, notification PushNotification) error {
	notifier.logger.Info("push_delivery_disabled",
		zap.String("title", notification.Title),
		zap.Bool("urgent", notification.Urgent),
	)
	return nil
}

// ApplicationReceived alerts operators about a new accelerator application.
func ApplicationReceived(firstName string, lastName string, email string, role string) PushNotification {
	return PushNotification{
		Title:   "AggieX Application",
		Message: fmt.Sprintf("New AggieX application from %s %s (%s) - %s", firstName, lastName, email, role),
		Urgent:  true,
	}
}

// AdminLoginAttempt alerts operators about an admin sign in. Failures are urgent.
func AdminLoginAttempt(success bool, ip string, username string) PushNotification {
	if success {
		return PushNotification{
			Title:   "Admin Login Success",
			Message: fmt.Sprintf("Successful admin login from %s - Username: %s", ip, username),
		}
	}
	return PushNotification{
		Title:   "Admin Login Failed",
		Message: fmt.Sprintf("Failed admin login attempt from %s - Username: %s", ip, username),
		Urgent:  true,
	}
}
