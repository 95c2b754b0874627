package db

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/homeauth/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the local SQLite database and runs migrations.
func InitDB(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	// Auto-migrate all models
	if err := db.AutoMigrate(&models.LoggedAccount{}, &models.Setting{}, &models.LoginAttempt{}); err != nil {
		return nil, fmt.Errorf("migrate cache database: %w", err)
	}

	// Ensure API key exists (generate on first run)
	if err := ensureAPIKey(db); err != nil {
		return nil, err
	}

	return db, nil
}

// ensureAPIKey generates the local API key if not exists
func ensureAPIKey(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Setting{}).Where("key = ?", models.SettingAPIKey).Count(&count).Error; err != nil {
		return fmt.Errorf("read api key: %w", err)
	}
	if count > 0 {
		return nil
	}

	apiKey, err := newAPIKey()
	if err != nil {
		return err
	}
	if err := db.Create(&models.Setting{Key: models.SettingAPIKey, Value: apiKey}).Error; err != nil {
		return fmt.Errorf("store api key: %w", err)
	}
	slog.Info("generated local api key", "operation", "ensure_api_key")
	return nil
}

// GetAPIKey retrieves the API key from database
func GetAPIKey(db *gorm.DB) string {
	var setting models.Setting
	db.Where("key = ?", models.SettingAPIKey).Limit(1).Find(&setting)
	return setting.Value
}

// RegenerateAPIKey replaces the API key and returns the new value.
func RegenerateAPIKey(db *gorm.DB) (string, error) {
	apiKey, err := newAPIKey()
	if err != nil {
		return "", err
	}
	if err := db.Model(&models.Setting{}).Where("key = ?", models.SettingAPIKey).Update("value", apiKey).Error; err != nil {
		return "", fmt.Errorf("store api key: %w", err)
	}
	slog.Info("regenerated local api key", "operation", "regenerate_api_key")
	return apiKey, nil
}

// newAPIKey returns sk-<32 hex chars>.
func newAPIKey() (string, error) {
	keyBytes := make([]byte, 16)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return "sk-" + hex.EncodeToString(keyBytes), nil
}
