// Package directory is the remote account directory: the canonical
// "accounts" collection keyed by internal id and queried by external id.
package directory

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/homeauth/internal/config"
	"github.com/pysugar/homeauth/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// accountRecord is the stored shape of a domain.Account. Nested structures
// are JSON columns so both backends share one schema.
type accountRecord struct {
	ID           string               `gorm:"primaryKey"`
	ExternalID   string               `gorm:"uniqueIndex;not null"`
	DisplayName  string               `gorm:"not null"`
	Email        string               `gorm:"index"`
	AvatarURL    string
	AuthMethods  []domain.AuthMethod  `gorm:"type:text;serializer:json"`
	ProviderAuth *domain.ProviderAuth `gorm:"type:text;serializer:json"`
	FaceAuth     *domain.FaceAuth     `gorm:"type:text;serializer:json"`
	DeviceInfo   *domain.DeviceInfo   `gorm:"type:text;serializer:json"`
	CreatedAt    time.Time            `gorm:"autoCreateTime:false"`
	UpdatedAt    time.Time
}

func (accountRecord) TableName() string {
	return "accounts"
}

func (r accountRecord) toDomain() domain.Account {
	return domain.Account{
		ID:           r.ID,
		ExternalID:   r.ExternalID,
		DisplayName:  r.DisplayName,
		Email:        r.Email,
		AvatarURL:    r.AvatarURL,
		AuthMethods:  r.AuthMethods,
		ProviderAuth: r.ProviderAuth,
		FaceAuth:     r.FaceAuth,
		CreatedAt:    r.CreatedAt,
		DeviceInfo:   r.DeviceInfo,
	}
}

// Open connects to the directory backend and migrates the accounts table.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case config.DriverPostgres:
		dialector = postgres.Open(dsn)
	case config.DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported directory driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open directory: %w", err)
	}
	if err := db.AutoMigrate(&accountRecord{}); err != nil {
		return nil, fmt.Errorf("migrate directory: %w", err)
	}
	return db, nil
}
