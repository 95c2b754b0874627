package models

// LoginAttempt records the outcome of one reconciliation attempt
type LoginAttempt struct {
	ID         string `gorm:"primaryKey" json:"id"`
	Timestamp  int64  `gorm:"index" json:"timestamp"` // unix millis
	Intent     string `gorm:"index" json:"intent"`
	Outcome    string `gorm:"index" json:"outcome"`
	ExternalID string `json:"external_id,omitempty"`
	AccountID  string `json:"account_id,omitempty"`
	Prompt     string `json:"prompt,omitempty"`
	Duration   int64  `json:"duration"` // milliseconds
	Error      string `json:"error,omitempty"`
}

// AttemptStats holds aggregated counters for login attempts
type AttemptStats struct {
	TotalAttempts int64 `json:"total_attempts"`
	SignedIn      int64 `json:"signed_in"`
	Silent        int64 `json:"silent"` // cancelled or declined
	Failed        int64 `json:"failed"`
}
