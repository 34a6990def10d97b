package model

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	ContactSourceApplication = "application"
	ContactSourcePodcast     = "podcast"
	ContactSourceNewsletter  = "newsletter"

	nameMaxLength    = 50
	emailMaxLength   = 100
	messageMaxLength = 2000

	fieldFirstName   = "firstName"
	fieldLastName    = "lastName"
	fieldEmail       = "email"
	fieldAffiliation = "affiliation"
	fieldRole        = "role"
	fieldMessage     = "message"
)

// ErrInvalidIntake is the root of every validation failure.
var ErrInvalidIntake = errors.New("invalid_intake")

var emailExpression = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidationError names the first rule a submission violated.
type ValidationError struct {
	Field   string
	Message string
}

func (validationError *ValidationError) Error() string {
	return validationError.Message
}

func (validationError *ValidationError) Unwrap() error {
	return ErrInvalidIntake
}

func newValidationError(field string, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ApplicationInput holds the raw values of an application form post.
type ApplicationInput struct {
	FirstName            string
	LastName             string
	Email                string
	Affiliation          string
	Role                 string
	Message              string
	NewsletterSubscribed *bool
	PodcastNotifications *bool
}

// ApplicationSubmission is an application that passed validation, with normalized fields.
type ApplicationSubmission struct {
	FirstName            string
	LastName             string
	Email                string
	Affiliation          Affiliation
	Role                 Role
	Message              *string
	NewsletterSubscribed bool
	PodcastNotifications bool
}

// ValidateApplication checks an application form post and stops at the first violation.
func ValidateApplication(input ApplicationInput) (ApplicationSubmission, error) {
	firstName := strings.TrimSpace(input.FirstName)
	lastName := strings.TrimSpace(input.LastName)
	email := strings.TrimSpace(input.Email)
	if firstName == "" || lastName == "" || email == "" || strings.TrimSpace(input.Affiliation) == "" || strings.TrimSpace(input.Role) == "" {
		return ApplicationSubmission{}, newValidationError("", "Missing required fields")
	}

	if err := ValidateEmail(email); err != nil {
		return ApplicationSubmission{}, err
	}

	if utf8.RuneCountInString(firstName) > nameMaxLength {
		return ApplicationSubmission{}, newValidationError(fieldFirstName, "First name too long")
	}
	if utf8.RuneCountInString(lastName) > nameMaxLength {
		return ApplicationSubmission{}, newValidationError(fieldLastName, "Last name too long")
	}
	if utf8.RuneCountInString(email) > emailMaxLength {
		return ApplicationSubmission{}, newValidationError(fieldEmail, "Email too long")
	}

	message := strings.TrimSpace(input.Message)
	if utf8.RuneCountInString(message) > messageMaxLength {
		return ApplicationSubmission{}, newValidationError(fieldMessage, "Message too long")
	}

	affiliation, affiliationErr := ParseAffiliation(input.Affiliation)
	if affiliationErr != nil {
		return ApplicationSubmission{}, newValidationError(fieldAffiliation, "Invalid affiliation")
	}
	role, roleErr := ParseRole(input.Role)
	if roleErr != nil {
		return ApplicationSubmission{}, newValidationError(fieldRole, "Invalid role")
	}

	submission := ApplicationSubmission{
		FirstName:            firstName,
		LastName:             lastName,
		Email:                NormalizeEmail(email),
		Affiliation:          affiliation,
		Role:                 role,
		NewsletterSubscribed: boolOrDefault(input.NewsletterSubscribed, true),
		PodcastNotifications: boolOrDefault(input.PodcastNotifications, true),
	}
	if message != "" {
		submission.Message = &message
	}
	return submission, nil
}

// ValidateEmail reports whether email has the local@domain.tld shape. No deliverability check is made.
func ValidateEmail(email string) error {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return newValidationError(fieldEmail, "Email is required")
	}
	if !emailExpression.MatchString(trimmed) {
		return newValidationError(fieldEmail, "Invalid email format")
	}
	return nil
}

// NormalizeEmail is the key used for every contact and application lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func boolOrDefault(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}
