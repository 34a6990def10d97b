package model

import "time"

const (
	ContactStatusActive      = "active"
	ApplicationStatusPending = "pending"
)

// Contact is a person record keyed by normalized email. It tracks subscription
// preferences and email verification state.
type Contact struct {
	ID                   string     `gorm:"primaryKey;size:36" json:"id"`
	Email                string     `gorm:"not null;size:320;uniqueIndex" json:"email"`
	FirstName            string     `gorm:"size:200" json:"firstName"`
	LastName             string     `gorm:"size:200" json:"lastName"`
	Source               string     `gorm:"not null;size:32;index" json:"source"`
	Interests            []string   `gorm:"serializer:json" json:"interests"`
	NewsletterSubscribed bool       `gorm:"not null" json:"newsletterSubscribed"`
	PodcastNotifications bool       `gorm:"not null" json:"podcastNotifications"`
	EmailVerified        bool       `gorm:"not null" json:"emailVerified"`
	VerificationToken    *string    `gorm:"size:64;uniqueIndex" json:"-"`
	VerificationExpires  *time.Time `json:"verificationExpires"`
	VerificationSentAt   *time.Time `json:"verificationSentAt"`
	LastEngagement       time.Time  `gorm:"not null;index" json:"lastEngagement"`
	Status               string     `gorm:"not null;size:16;index" json:"status"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Application is the one-per-email record of a submitted accelerator application.
type Application struct {
	ID          string      `gorm:"primaryKey;size:36" json:"id"`
	FirstName   string      `gorm:"not null;size:50" json:"firstName"`
	LastName    string      `gorm:"not null;size:50" json:"lastName"`
	Email       string      `gorm:"not null;size:100;uniqueIndex" json:"email"`
	Affiliation Affiliation `gorm:"not null;size:32" json:"affiliation"`
	Role        Role        `gorm:"not null;size:32" json:"role"`
	Message     *string     `gorm:"size:2000" json:"message"`
	Status      string      `gorm:"not null;size:16;index" json:"status"`
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"createdAt"`
}
