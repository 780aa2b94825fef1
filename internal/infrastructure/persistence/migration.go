package persistence

import (
	"gorm.io/gorm"

	"github.com/blingsync/backend/internal/infrastructure/persistence/models"
)

// AutoMigrate creates or updates the schema for all persistence models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.TenantConnectionModel{},
		&models.TokenRecordModel{},
		&models.JobModel{},
		&models.EventRecordModel{},
		&models.WebhookRecordModel{},
		&models.ProductPriceModel{},
		&models.PriceHistoryModel{},
		&models.PriceRuleModel{},
	)
}
