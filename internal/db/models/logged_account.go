package models

// LoggedAccount is one locally cached session. Nested structures are stored
// as JSON text and timestamps as ISO-8601 strings; at most one row has
// IsActive set.
type LoggedAccount struct {
	ID           string  `gorm:"column:id;primaryKey" json:"id"`
	Name         string  `gorm:"column:name;not null" json:"name"`
	Email        string  `gorm:"column:email;not null" json:"email"`
	Image        string  `gorm:"column:image" json:"image"`
	AuthMethods  string  `gorm:"column:authMethods;not null" json:"authMethods"`
	ProviderAuth *string `gorm:"column:providerAuth" json:"providerAuth,omitempty"`
	FaceAuth     *string `gorm:"column:faceAuth" json:"faceAuth,omitempty"`
	CreatedAt    string  `gorm:"column:createdAt;not null;autoCreateTime:false" json:"createdAt"`
	LastLogin    string  `gorm:"column:lastLogin;not null;index" json:"lastLogin"`
	IsActive     bool    `gorm:"column:isActive;type:integer;not null;default:0" json:"isActive"`
}

// TableName pins the table name shared with earlier app versions.
func (LoggedAccount) TableName() string {
	return "logged_accounts"
}
