package storage

import (
	"gorm.io/gorm"

	"github.com/aggiex/accelerator/internal/model"
)

// AutoMigrate runs database migrations for the storage layer models.
func AutoMigrate(database *gorm.DB) error {
	if err := database.AutoMigrate(&model.Contact{}, &model.Application{}); err != nil {
		return err
	}
	return backfillContactStatuses(database)
}

// Rows written before status tracking existed count as active.
func backfillContactStatuses(database *gorm.DB) error {
	return database.Model(&model.Contact{}).
		Where("status IS NULL OR TRIM(status) = ''").
		Update("status", model.ContactStatusActive).Error
}
