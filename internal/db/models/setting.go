package models

import "time"

// Setting keys.
const (
	SettingAPIKey = "api_key"
)

// Setting is a key/value row for local service settings.
type Setting struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

// TableName pins the table name.
func (Setting) TableName() string {
	return "settings"
}
