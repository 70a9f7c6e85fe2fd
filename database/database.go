package database

import (
	"errors"
	"fmt"
	"reflect"

	"gorm.io/gorm"

	"stocks-simulator/models"
)

var (
	ErrInvalidBatchSize = errors.New("invalid batch size")
	ErrInvalidData      = errors.New("invalid data, expected slice")
	ErrUserNotFound     = errors.New("user not found")
	ErrEmailTaken       = errors.New("an account with this email already exists")
)

// AutoMigrate creates or updates the schema for every model.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Holding{},
		&models.Transaction{},
		&models.Watchlist{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// CreateInBatches inserts a slice of models in chunks of batchSize inside a
// single transaction.
func CreateInBatches(db *gorm.DB, data interface{}, batchSize int) error {
	if batchSize <= 0 {
		return ErrInvalidBatchSize
	}

	slice := reflect.ValueOf(data)
	if slice.Kind() != reflect.Slice {
		return ErrInvalidData
	}

	total := slice.Len()
	if total == 0 {
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		for i := 0; i < total; i += batchSize {
			end := i + batchSize
			if end > total {
				end = total
			}

			chunk := slice.Slice(i, end).Interface()
			if err := tx.Create(chunk).Error; err != nil {
				return fmt.Errorf("batch insert failed: %w", err)
			}
		}
		return nil
	})
}
