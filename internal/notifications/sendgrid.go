package notifications

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	defaultSendGridHost     = "https://api.sendgrid.com"
	sendGridMailEndpoint    = "/v3/mail/send"
	defaultSenderAddress    = "team@aggiex.org"
	defaultSenderName       = "AggieX"
	sendGridResponseExcerpt = 256
)

var (
	ErrMissingSendGridAPIKey = errors.New("missing_sendgrid_api_key")
	ErrMissingRecipient      = errors.New("missing_email_recipient")
	ErrEmailRejected         = errors.New("email_rejected")
)

// SendGridConfig holds the credentials and sender identity for the SendGrid v3 API.
type SendGridConfig struct {
	APIKey      string
	FromAddress string
	FromName    string
	// Host overrides the API host, mainly for tests.
	Host string
}

// SendGridSender delivers email through the SendGrid v3 mail/send endpoint.
type SendGridSender struct {
	apiKey string
	from   *mail.Email
	host   string
}

// NewSendGridSender validates the configuration and builds a SendGridSender.
func NewSendGridSender(config SendGridConfig) (*SendGridSender, error) {
	apiKey := strings.TrimSpace(config.APIKey)
	if apiKey == "" {
		return nil, ErrMissingSendGridAPIKey
	}
	fromAddress := strings.TrimSpace(config.FromAddress)
	if fromAddress == "" {
		fromAddress = defaultSenderAddress
	}
	fromName := strings.TrimSpace(config.FromName)
	if fromName == "" {
		fromName = defaultSenderName
	}
	host := strings.TrimRight(strings.TrimSpace(config.Host), "/")
	if host == "" {
		host = defaultSendGridHost
	}
	return &SendGridSender{
		apiKey: apiKey,
		from:   mail.NewEmail(fromName, fromAddress),
		host:   host,
	}, nil
}

func (sender *SendGridSender) SendEmail(ctx context.Context, message EmailMessage) error {
	recipient := strings.TrimSpace(message.To)
	if recipient == "" {
		return ErrMissingRecipient
	}

	payload := mail.NewSingleEmail(sender.from, message.Subject, mail.NewEmail("", recipient), message.Text, message.HTML)
	request := sendgrid.GetRequest(sender.apiKey, sendGridMailEndpoint, sender.host)
	request.Method = http.MethodPost
	request.Body = mail.GetRequestBody(payload)

	response, requestErr := sendgrid.MakeRequestWithContext(ctx, request)
	if requestErr != nil {
		return fmt.Errorf("sendgrid request: %w", requestErr)
	}
	if response.StatusCode >= http.StatusBadRequest {
		body := response.Body
		if len(body) > sendGridResponseExcerpt {
			body = body[:sendGridResponseExcerpt]
		}
		return fmt.Errorf("%w: status %d: %s", ErrEmailRejected, response.StatusCode, body)
	}
	return nil
}
