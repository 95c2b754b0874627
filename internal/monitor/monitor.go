package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/homeauth/internal/db/models"
	"github.com/pysugar/homeauth/internal/session"
	"github.com/pysugar/homeauth/internal/util"
	"gorm.io/gorm"
)

const (
	// MaxMemoryAttempts limits the in-memory attempt cache
	MaxMemoryAttempts = 100
	// MaxErrorLength limits stored error text
	MaxErrorLength = 2048
)

// AttemptMonitor keeps an audit trail of reconciliation attempts
type AttemptMonitor struct {
	db *gorm.DB
	wg sync.WaitGroup

	// In-memory cache for recent attempts (thread-safe)
	recent   []models.LoginAttempt
	recentMu sync.RWMutex

	// In-memory stats (updated atomically)
	total    atomic.Int64
	signedIn atomic.Int64
	silent   atomic.Int64
	failed   atomic.Int64
}

// NewAttemptMonitor creates a new AttemptMonitor instance
func NewAttemptMonitor(db *gorm.DB) *AttemptMonitor {
	am := &AttemptMonitor{
		db:     db,
		recent: make([]models.LoginAttempt, 0, MaxMemoryAttempts),
	}

	// Auto-migrate the LoginAttempt table
	if err := db.AutoMigrate(&models.LoginAttempt{}); err != nil {
		slog.Error("failed to migrate login_attempts table", "operation", "monitor_init", "error", err)
	}

	// Load initial stats from DB
	am.loadStatsFromDB()
	return am
}

// Record stores an attempt (async persistence, non-blocking)
func (am *AttemptMonitor) Record(_ context.Context, attempt models.LoginAttempt) {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	if attempt.Timestamp == 0 {
		attempt.Timestamp = time.Now().UnixMilli()
	}
	attempt.Error = util.Truncate(attempt.Error, MaxErrorLength)

	am.total.Add(1)
	switch attempt.Outcome {
	case session.OutcomeSignedIn:
		am.signedIn.Add(1)
	case session.OutcomeCancelled, session.OutcomeDeclined:
		am.silent.Add(1)
	default:
		am.failed.Add(1)
	}

	am.recentMu.Lock()
	am.recent = append([]models.LoginAttempt{attempt}, am.recent...)
	if len(am.recent) > MaxMemoryAttempts {
		am.recent = am.recent[:MaxMemoryAttempts]
	}
	am.recentMu.Unlock()

	// Async save to DB
	am.wg.Add(1)
	go func(entry models.LoginAttempt) {
		defer am.wg.Done()
		if err := am.db.Create(&entry).Error; err != nil {
			slog.Warn("failed to persist login attempt", "operation", "record_attempt", "error", err)
		}
	}(attempt)
}

// Flush waits for pending writes.
func (am *AttemptMonitor) Flush() {
	am.wg.Wait()
}

// Recent returns the newest attempts with an optional time filter, falling
// back to memory when the database is unavailable.
func (am *AttemptMonitor) Recent(limit int, sinceMinutes int) []models.LoginAttempt {
	if limit <= 0 {
		limit = MaxMemoryAttempts
	}

	var attempts []models.LoginAttempt
	query := am.db.Order("timestamp DESC").Limit(limit)
	if sinceMinutes > 0 {
		sinceTime := time.Now().Add(-time.Duration(sinceMinutes) * time.Minute).UnixMilli()
		query = query.Where("timestamp >= ?", sinceTime)
	}

	if err := query.Find(&attempts).Error; err != nil {
		slog.Warn("failed to read login attempts, using memory", "operation", "recent_attempts", "error", err)
		am.recentMu.RLock()
		defer am.recentMu.RUnlock()
		if limit > len(am.recent) {
			limit = len(am.recent)
		}
		out := make([]models.LoginAttempt, limit)
		copy(out, am.recent[:limit])
		return out
	}
	return attempts
}

// Page returns attempts with pagination and an optional search filter
func (am *AttemptMonitor) Page(page, pageSize int, search string) ([]models.LoginAttempt, int64) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = MaxMemoryAttempts
	}

	var attempts []models.LoginAttempt
	var total int64

	query := am.db.Model(&models.LoginAttempt{})
	if search != "" {
		pattern := "%" + search + "%"
		query = query.Where("intent LIKE ? OR outcome LIKE ? OR external_id LIKE ? OR error LIKE ?",
			pattern, pattern, pattern, pattern)
	}

	query.Count(&total)

	offset := (page - 1) * pageSize
	if err := query.Order("timestamp DESC").Offset(offset).Limit(pageSize).Find(&attempts).Error; err != nil {
		slog.Warn("failed to page login attempts", "operation", "page_attempts", "error", err)
		return nil, 0
	}
	return attempts, total
}

// Stats returns aggregated attempt counters
func (am *AttemptMonitor) Stats() models.AttemptStats {
	return models.AttemptStats{
		TotalAttempts: am.total.Load(),
		SignedIn:      am.signedIn.Load(),
		Silent:        am.silent.Load(),
		Failed:        am.failed.Load(),
	}
}

// Clear removes all attempts from memory and database
func (am *AttemptMonitor) Clear() error {
	am.Flush()

	am.recentMu.Lock()
	am.recent = am.recent[:0]
	am.recentMu.Unlock()

	am.total.Store(0)
	am.signedIn.Store(0)
	am.silent.Store(0)
	am.failed.Store(0)

	if err := am.db.Exec("DELETE FROM login_attempts").Error; err != nil {
		slog.Error("failed to clear login attempts", "operation", "clear_attempts", "error", err)
		return err
	}
	slog.Info("login attempts cleared", "operation", "clear_attempts")
	return nil
}

// loadStatsFromDB loads initial statistics from database
func (am *AttemptMonitor) loadStatsFromDB() {
	var total, signedIn, silent int64

	am.db.Model(&models.LoginAttempt{}).Count(&total)
	am.db.Model(&models.LoginAttempt{}).Where("outcome = ?", session.OutcomeSignedIn).Count(&signedIn)
	am.db.Model(&models.LoginAttempt{}).Where("outcome IN ?", []string{session.OutcomeCancelled, session.OutcomeDeclined}).Count(&silent)

	am.total.Store(total)
	am.signedIn.Store(signedIn)
	am.silent.Store(silent)
	am.failed.Store(total - signedIn - silent)

	slog.Debug("loaded attempt stats", "operation", "monitor_init", "total", total, "signed_in", signedIn, "silent", silent)
}
