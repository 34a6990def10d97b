package verification

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aggiex/accelerator/internal/model"
	"github.com/aggiex/accelerator/internal/notifications"
	"github.com/aggiex/accelerator/internal/storage"
	"github.com/aggiex/accelerator/internal/task"
)

const (
	tokenByteLength      = 32
	defaultTokenLifetime = 24 * time.Hour
	verifyPathSegment    = "/verify/"

	confirmationJobName = "confirmation_email"

	EmailOutcomeSent   = "sent"
	EmailOutcomeFailed = "failed"
)

var (
	ErrMissingVerificationFields = errors.New("missing_verification_fields")
	ErrInvalidToken              = errors.New("invalid_verification_token")
	ErrTokenExpired              = errors.New("verification_token_expired")
	ErrVerificationEmailFailed   = errors.New("verification_email_failed")
)

// ContactRepository is the slice of the contact store the workflow writes through.
type ContactRepository interface {
	UpsertContact(ctx context.Context, input storage.ContactUpsert) (storage.UpsertResult, error)
	FindByVerificationToken(ctx context.Context, token string) (model.Contact, error)
	MarkVerified(ctx context.Context, contactID string, token string) (model.Contact, error)
	DeleteContact(ctx context.Context, contactID string) error
}

// EmailRecorder observes each send attempt by template name.
type EmailRecorder func(templateName string, outcome string)

type Config struct {
	FrontendURL   string
	TokenLifetime time.Duration
}

type IssueRequest struct {
	Email     string
	FirstName string
	Source    string
}

type IssueResult struct {
	Email string
}

type RedeemResult struct {
	Email  string
	Source string
}

// Workflow issues verification tokens by email and redeems them.
type Workflow struct {
	contacts      ContactRepository
	sender        notifications.EmailSender
	jobs          task.Submitter
	frontendURL   string
	tokenLifetime time.Duration
	now           func() time.Time
	newToken      func() (string, error)
	recordEmail   EmailRecorder
	logger        *zap.Logger
}

func NewWorkflow(config Config, contacts ContactRepository, sender notifications.EmailSender, jobs task.Submitter, logger *zap.Logger) *Workflow {
	tokenLifetime := config.TokenLifetime
	if tokenLifetime <= 0 {
		tokenLifetime = defaultTokenLifetime
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = notifications.NewLoggingEmailSender(logger)
	}
	return &Workflow{
		contacts:      contacts,
		sender:        sender,
		jobs:          jobs,
		frontendURL:   strings.TrimRight(strings.TrimSpace(config.FrontendURL), "/"),
		tokenLifetime: tokenLifetime,
		now:           time.Now,
		newToken:      newVerificationToken,
		recordEmail:   func(string, string) {},
		logger:        logger,
	}
}

func (workflow *Workflow) WithClock(now func() time.Time) *Workflow {
	if now != nil {
		workflow.now = now
	}
	return workflow
}

func (workflow *Workflow) WithEmailRecorder(recorder EmailRecorder) *Workflow {
	if recorder != nil {
		workflow.recordEmail = recorder
	}
	return workflow
}

// VerificationURL is the frontend page that redeems token.
func (workflow *Workflow) VerificationURL(token string) string {
	return workflow.frontendURL + verifyPathSegment + token
}

// Issue stores a fresh token on the contact for request.Email and emails the verification link.
// When the email cannot be sent, a contact created by this call is removed again.
func (workflow *Workflow) Issue(ctx context.Context, request IssueRequest) (IssueResult, error) {
	email := model.NormalizeEmail(request.Email)
	source := strings.TrimSpace(request.Source)
	if email == "" || source == "" {
		return IssueResult{}, ErrMissingVerificationFields
	}

	token, tokenErr := workflow.newToken()
	if tokenErr != nil {
		return IssueResult{}, tokenErr
	}
	issuedAt := workflow.now().UTC()

	upsert := storage.ContactUpsert{
		Email:  email,
		Source: source,
		Verification: &storage.VerificationIssue{
			Token:     token,
			ExpiresAt: issuedAt.Add(workflow.tokenLifetime),
			SentAt:    issuedAt,
		},
	}
	if firstName := strings.TrimSpace(request.FirstName); firstName != "" {
		upsert.FirstName = &firstName
	}
	result, upsertErr := workflow.contacts.UpsertContact(ctx, upsert)
	if upsertErr != nil {
		return IssueResult{}, upsertErr
	}

	welcome := SelectTemplates(source).Welcome
	sendErr := workflow.send(ctx, welcome, result.Contact, workflow.VerificationURL(token))
	if sendErr != nil {
		workflow.logger.Error("verification_email_failed", zap.String("template", welcome.Name()), zap.Error(sendErr))
		if result.Created {
			if deleteErr := workflow.contacts.DeleteContact(ctx, result.Contact.ID); deleteErr != nil {
				workflow.logger.Error("verification_contact_cleanup_failed", zap.String("contact_id", result.Contact.ID), zap.Error(deleteErr))
			}
		}
		return IssueResult{}, fmt.Errorf("%w: %v", ErrVerificationEmailFailed, sendErr)
	}

	return IssueResult{Email: result.Contact.Email}, nil
}

// Redeem marks the contact holding token as verified and queues the confirmation email.
// An expired token is left in place.
func (workflow *Workflow) Redeem(ctx context.Context, token string) (RedeemResult, error) {
	if token == "" {
		return RedeemResult{}, ErrInvalidToken
	}
	contact, findErr := workflow.contacts.FindByVerificationToken(ctx, token)
	if errors.Is(findErr, storage.ErrContactNotFound) {
		return RedeemResult{}, ErrInvalidToken
	}
	if findErr != nil {
		return RedeemResult{}, findErr
	}

	if contact.VerificationExpires != nil && workflow.now().After(*contact.VerificationExpires) {
		return RedeemResult{}, ErrTokenExpired
	}

	verified, markErr := workflow.contacts.MarkVerified(ctx, contact.ID, token)
	if errors.Is(markErr, storage.ErrContactNotFound) {
		return RedeemResult{}, ErrInvalidToken
	}
	if markErr != nil {
		return RedeemResult{}, markErr
	}

	workflow.queueConfirmation(verified)
	return RedeemResult{Email: verified.Email, Source: verified.Source}, nil
}

func (workflow *Workflow) queueConfirmation(contact model.Contact) {
	if workflow.jobs == nil {
		return
	}
	confirmed := SelectTemplates(contact.Source).Confirmed
	workflow.jobs.Submit(task.Job{
		Name: confirmationJobName,
		Run: func(ctx context.Context) error {
			return workflow.send(ctx, confirmed, contact, "")
		},
	})
}

func (workflow *Workflow) send(ctx context.Context, emailTemplate EmailTemplate, contact model.Contact, verificationURL string) error {
	rendered, renderErr := emailTemplate.Render(contact.FirstName, verificationURL)
	if renderErr != nil {
		workflow.recordEmail(emailTemplate.Name(), EmailOutcomeFailed)
		return renderErr
	}
	sendErr := workflow.sender.SendEmail(ctx, notifications.EmailMessage{
		To:      contact.Email,
		Subject: rendered.Subject,
		Text:    rendered.Text,
		HTML:    rendered.HTML,
	})
	if sendErr != nil {
		workflow.recordEmail(emailTemplate.Name(), EmailOutcomeFailed)
		return sendErr
	}
	workflow.recordEmail(emailTemplate.Name(), EmailOutcomeSent)
	return nil
}

func newVerificationToken() (string, error) {
	buffer := make([]byte, tokenByteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("generate verification token: %w", err)
	}
	return hex.EncodeToString(buffer), nil
}
