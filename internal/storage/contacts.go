package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aggiex/accelerator/internal/model"
)

const (
	activeContactWindow = 30 * 24 * time.Hour

	columnFirstName            = "first_name"
	columnLastName             = "last_name"
	columnSource               = "source"
	columnInterests            = "interests"
	columnNewsletterSubscribed = "newsletter_subscribed"
	columnPodcastNotifications = "podcast_notifications"
	columnEmailVerified        = "email_verified"
	columnVerificationToken    = "verification_token"
	columnVerificationExpires  = "verification_expires"
	columnVerificationSentAt   = "verification_sent_at"
	columnLastEngagement       = "last_engagement"
	columnUpdatedAt            = "updated_at"
)

var (
	ErrContactNotFound     = errors.New("contact_not_found")
	ErrMissingContactEmail = errors.New("missing_contact_email")
)

// ContactUpsert describes a get-or-create of a contact keyed by email.
// Nil optional fields keep the stored value on update and take the default on create.
type ContactUpsert struct {
	Email                string
	FirstName            *string
	LastName             *string
	Source               string
	Interests            []string
	// DefaultInterests seed a new contact and never overwrite an existing one.
	DefaultInterests     []string
	NewsletterSubscribed *bool
	PodcastNotifications *bool
	Verification         *VerificationIssue
}

// VerificationIssue is a freshly generated verification token. Writing one resets email_verified.
type VerificationIssue struct {
	Token     string
	ExpiresAt time.Time
	SentAt    time.Time
}

// UpsertResult carries the stored contact and whether this call inserted it.
type UpsertResult struct {
	Contact model.Contact
	Created bool
}

// SourceCount is the number of contacts sharing a source tag.
type SourceCount struct {
	Source string `json:"source"`
	Count  int64  `json:"count"`
}

// ContactAnalytics summarizes the contact table for the admin dashboard.
type ContactAnalytics struct {
	TotalContacts         int64         `json:"totalContacts"`
	NewsletterSubscribers int64         `json:"newsletterSubscribers"`
	PodcastSubscribers    int64         `json:"podcastSubscribers"`
	ActiveContacts        int64         `json:"activeContacts"`
	SourceBreakdown       []SourceCount `json:"sourceBreakdown"`
}

// ContactStore persists contacts. It is the only writer of the contacts table.
type ContactStore struct {
	database *gorm.DB
	now      func() time.Time
}

// NewContactStore builds a ContactStore on the provided database.
func NewContactStore(database *gorm.DB) *ContactStore {
	return &ContactStore{database: database, now: time.Now}
}

// WithClock overrides the time source used for engagement timestamps.
func (store *ContactStore) WithClock(now func() time.Time) *ContactStore {
	if now != nil {
		store.now = now
	}
	return store
}

// UpsertContact inserts or updates the contact for input.Email in a single statement.
// Two concurrent calls for the same email resolve on the unique email index, so at most one row exists.
func (store *ContactStore) UpsertContact(ctx context.Context, input ContactUpsert) (UpsertResult, error) {
	email := model.NormalizeEmail(input.Email)
	if email == "" {
		return UpsertResult{}, ErrMissingContactEmail
	}

	now := store.now().UTC()
	candidate := model.Contact{
		ID:                   NewID(),
		Email:                email,
		Source:               strings.TrimSpace(input.Source),
		Interests:            []string{},
		NewsletterSubscribed: true,
		PodcastNotifications: true,
		LastEngagement:       now,
		Status:               model.ContactStatusActive,
	}
	updateColumns := []string{columnLastEngagement, columnUpdatedAt}

	if input.FirstName != nil {
		candidate.FirstName = strings.TrimSpace(*input.FirstName)
		updateColumns = append(updateColumns, columnFirstName)
	}
	if input.LastName != nil {
		candidate.LastName = strings.TrimSpace(*input.LastName)
		updateColumns = append(updateColumns, columnLastName)
	}
	if candidate.Source != "" {
		updateColumns = append(updateColumns, columnSource)
	}
	if input.DefaultInterests != nil {
		candidate.Interests = append([]string{}, input.DefaultInterests...)
	}
	if input.Interests != nil {
		candidate.Interests = append([]string{}, input.Interests...)
		updateColumns = append(updateColumns, columnInterests)
	}
	if input.NewsletterSubscribed != nil {
		candidate.NewsletterSubscribed = *input.NewsletterSubscribed
		updateColumns = append(updateColumns, columnNewsletterSubscribed)
	}
	if input.PodcastNotifications != nil {
		candidate.PodcastNotifications = *input.PodcastNotifications
		updateColumns = append(updateColumns, columnPodcastNotifications)
	}
	if input.Verification != nil {
		token := input.Verification.Token
		expiresAt := input.Verification.ExpiresAt.UTC()
		sentAt := input.Verification.SentAt.UTC()
		candidate.VerificationToken = &token
		candidate.VerificationExpires = &expiresAt
		candidate.VerificationSentAt = &sentAt
		candidate.EmailVerified = false
		updateColumns = append(updateColumns, columnVerificationToken, columnVerificationExpires, columnVerificationSentAt, columnEmailVerified)
	}

	upsertErr := store.database.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns(updateColumns),
		}).
		Create(&candidate).Error
	if upsertErr != nil {
		return UpsertResult{}, fmt.Errorf("storage: upsert contact: %w", upsertErr)
	}

	stored, findErr := store.FindByEmail(ctx, email)
	if findErr != nil {
		return UpsertResult{}, findErr
	}

	return UpsertResult{Contact: stored, Created: stored.ID == candidate.ID}, nil
}

// FindByEmail loads the contact for a normalized email.
func (store *ContactStore) FindByEmail(ctx context.Context, email string) (model.Contact, error) {
	var contact model.Contact
	findErr := store.database.WithContext(ctx).First(&contact, "email = ?", model.NormalizeEmail(email)).Error
	if errors.Is(findErr, gorm.ErrRecordNotFound) {
		return model.Contact{}, ErrContactNotFound
	}
	if findErr != nil {
		return model.Contact{}, fmt.Errorf("storage: find contact: %w", findErr)
	}
	return contact, nil
}

// FindByVerificationToken loads the contact holding token. Matching is exact.
func (store *ContactStore) FindByVerificationToken(ctx context.Context, token string) (model.Contact, error) {
	if token == "" {
		return model.Contact{}, ErrContactNotFound
	}
	var contact model.Contact
	findErr := store.database.WithContext(ctx).First(&contact, "verification_token = ?", token).Error
	if errors.Is(findErr, gorm.ErrRecordNotFound) {
		return model.Contact{}, ErrContactNotFound
	}
	if findErr != nil {
		return model.Contact{}, fmt.Errorf("storage: find contact by token: %w", findErr)
	}
	return contact, nil
}

// MarkVerified flips email_verified and clears the token fields, provided the contact still holds token.
// A contact whose token was already consumed reports ErrContactNotFound.
func (store *ContactStore) MarkVerified(ctx context.Context, contactID string, token string) (model.Contact, error) {
	now := store.now().UTC()
	result := store.database.WithContext(ctx).
		Model(&model.Contact{}).
		Where("id = ? AND verification_token = ?", contactID, token).
		Updates(map[string]any{
			columnEmailVerified:       true,
			columnVerificationToken:   nil,
			columnVerificationExpires: nil,
			columnLastEngagement:      now,
		})
	if result.Error != nil {
		return model.Contact{}, fmt.Errorf("storage: mark contact verified: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return model.Contact{}, ErrContactNotFound
	}

	var contact model.Contact
	if findErr := store.database.WithContext(ctx).First(&contact, "id = ?", contactID).Error; findErr != nil {
		return model.Contact{}, fmt.Errorf("storage: reload verified contact: %w", findErr)
	}
	return contact, nil
}

// DeleteContact hard-deletes a contact. Only used to compensate a failed verification send.
func (store *ContactStore) DeleteContact(ctx context.Context, contactID string) error {
	if err := store.database.WithContext(ctx).Delete(&model.Contact{}, "id = ?", contactID).Error; err != nil {
		return fmt.Errorf("storage: delete contact: %w", err)
	}
	return nil
}

// Analytics counts contacts by subscription, recent engagement and source.
func (store *ContactStore) Analytics(ctx context.Context) (ContactAnalytics, error) {
	database := store.database.WithContext(ctx)
	var analytics ContactAnalytics

	if err := database.Model(&model.Contact{}).Count(&analytics.TotalContacts).Error; err != nil {
		return ContactAnalytics{}, fmt.Errorf("storage: count contacts: %w", err)
	}
	if err := database.Model(&model.Contact{}).Where("newsletter_subscribed = ?", true).Count(&analytics.NewsletterSubscribers).Error; err != nil {
		return ContactAnalytics{}, fmt.Errorf("storage: count newsletter subscribers: %w", err)
	}
	if err := database.Model(&model.Contact{}).Where("podcast_notifications = ?", true).Count(&analytics.PodcastSubscribers).Error; err != nil {
		return ContactAnalytics{}, fmt.Errorf("storage: count podcast subscribers: %w", err)
	}

	activeSince := store.now().UTC().Add(-activeContactWindow)
	if err := database.Model(&model.Contact{}).
		Where("status = ? AND last_engagement >= ?", model.ContactStatusActive, activeSince).
		Count(&analytics.ActiveContacts).Error; err != nil {
		return ContactAnalytics{}, fmt.Errorf("storage: count active contacts: %w", err)
	}

	breakdown := make([]SourceCount, 0)
	if err := database.Model(&model.Contact{}).
		Select("source, COUNT(*) as count").
		Group("source").
		Order("source").
		Scan(&breakdown).Error; err != nil {
		return ContactAnalytics{}, fmt.Errorf("storage: group contacts by source: %w", err)
	}
	analytics.SourceBreakdown = breakdown

	return analytics, nil
}
