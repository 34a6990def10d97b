package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/aggiex/accelerator/internal/model"
)

// ErrDuplicateApplication reports an application already on file for the email.
var ErrDuplicateApplication = errors.New("duplicate_application")

// ApplicationStore persists accelerator applications, one per email.
type ApplicationStore struct {
	database *gorm.DB
}

// NewApplicationStore builds an ApplicationStore on the provided database.
func NewApplicationStore(database *gorm.DB) *ApplicationStore {
	return &ApplicationStore{database: database}
}

// ExistsForEmail reports whether an application was already submitted with email.
func (store *ApplicationStore) ExistsForEmail(ctx context.Context, email string) (bool, error) {
	var application model.Application
	findErr := store.database.WithContext(ctx).
		Select("id").
		First(&application, "email = ?", model.NormalizeEmail(email)).Error
	if errors.Is(findErr, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if findErr != nil {
		return false, fmt.Errorf("storage: find application: %w", findErr)
	}
	return true, nil
}

// CreateApplication inserts a pending application. The unique email index rejects a second
// application for the same email, reported as ErrDuplicateApplication. Callers that must act
// before the insert check ExistsForEmail first.
func (store *ApplicationStore) CreateApplication(ctx context.Context, submission model.ApplicationSubmission) (model.Application, error) {
	email := model.NormalizeEmail(submission.Email)
	application := model.Application{
		ID:          NewID(),
		FirstName:   submission.FirstName,
		LastName:    submission.LastName,
		Email:       email,
		Affiliation: submission.Affiliation,
		Role:        submission.Role,
		Message:     submission.Message,
		Status:      model.ApplicationStatusPending,
	}
	if createErr := store.database.WithContext(ctx).Create(&application).Error; createErr != nil {
		if raced, _ := store.ExistsForEmail(ctx, email); raced {
			return model.Application{}, ErrDuplicateApplication
		}
		return model.Application{}, fmt.Errorf("storage: create application: %w", createErr)
	}

	return application, nil
}

// CountApplications returns the number of stored applications.
func (store *ApplicationStore) CountApplications(ctx context.Context) (int64, error) {
	var count int64
	if err := store.database.WithContext(ctx).Model(&model.Application{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("storage: count applications: %w", err)
	}
	return count, nil
}
