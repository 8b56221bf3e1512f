package database

import (
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"pos-backend/internal/config"
	"pos-backend/internal/models"
)

var DB *gorm.DB

func Init(cfg *config.Config) {
	var err error

	DB, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		logrus.WithError(err).Fatal("database connection failed")
	}

	if err := Migrate(DB); err != nil {
		logrus.WithError(err).Fatal("migration failed")
	}

	logrus.Info("database connected, migration complete")
}

// Migrate runs AutoMigrate for every model. Exported so tests can build the
// same schema on an in-memory database.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Branch{},
		&models.User{},
		&models.ProductCategory{},
		&models.Product{},
		&models.Customer{},
		&models.Floor{},
		&models.DiningTable{},
		&models.Invoice{},
		&models.InvoiceItem{},
		&models.Payment{},
		&models.StockActivity{},
		&models.AuditLog{},
	)
}
