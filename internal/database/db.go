package database

import (
	"fmt"

	"prs/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewConnection opens the postgres pool through GORM and migrates the schema.
func NewConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates every table the API owns.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.User{},
		&model.Vendor{},
		&model.Product{},
		&model.Request{},
		&model.LineItem{},
		&model.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("auto-migrate models: %w", err)
	}
	return nil
}
