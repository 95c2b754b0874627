package db

import (
	"context"
	"fmt"
	"time"

	"github.com/pysugar/homeauth/internal/db/models"
	"github.com/pysugar/homeauth/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionCache persists the locally signed-in accounts. At most one row is
// active; every write path that activates a row clears the others in the
// same transaction.
type SessionCache struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewSessionCache wraps an open cache database.
func NewSessionCache(db *gorm.DB) *SessionCache {
	return &SessionCache{db: db, nowFn: time.Now}
}

// UpsertActive stores acct as the single active session.
func (c *SessionCache) UpsertActive(ctx context.Context, acct domain.Account) error {
	row, err := EncodeAccount(acct, c.nowFn())
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCacheWriteFailed, err)
	}

	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !tx.Migrator().HasTable(&models.LoggedAccount{}) {
			if err := tx.Migrator().CreateTable(&models.LoggedAccount{}); err != nil {
				return err
			}
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&row).Error; err != nil {
			return err
		}
		return tx.Model(&models.LoggedAccount{}).
			Where("id <> ?", row.ID).
			Update("isActive", false).Error
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCacheWriteFailed, err)
	}
	return nil
}

// GetActive returns the active row, or nil when nobody is signed in.
func (c *SessionCache) GetActive(ctx context.Context) (*models.LoggedAccount, error) {
	var rows []models.LoggedAccount
	if err := c.db.WithContext(ctx).
		Where("isActive = ?", true).
		Order("lastLogin DESC").
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read active session: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ListAll returns every cached account, most recent login first.
func (c *SessionCache) ListAll(ctx context.Context) ([]models.LoggedAccount, error) {
	var rows []models.LoggedAccount
	if err := c.db.WithContext(ctx).Order("lastLogin DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list cached sessions: %w", err)
	}
	return rows, nil
}

// ClearAll deletes every cached account.
func (c *SessionCache) ClearAll(ctx context.Context) error {
	if err := c.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&models.LoggedAccount{}).Error; err != nil {
		return fmt.Errorf("clear cached sessions: %w", err)
	}
	return nil
}

// Remove deletes one cached account. Removing an unknown id is a no-op.
func (c *SessionCache) Remove(ctx context.Context, id string) error {
	if err := c.db.WithContext(ctx).Where("id = ?", id).Delete(&models.LoggedAccount{}).Error; err != nil {
		return fmt.Errorf("remove cached session %s: %w", id, err)
	}
	return nil
}

// TouchLastLogin bumps lastLogin to now.
func (c *SessionCache) TouchLastLogin(ctx context.Context, id string) error {
	return c.touch(c.db.WithContext(ctx), id)
}

func (c *SessionCache) touch(tx *gorm.DB, id string) error {
	res := tx.Model(&models.LoggedAccount{}).
		Where("id = ?", id).
		Update("lastLogin", formatTimestamp(c.nowFn()))
	if res.Error != nil {
		return fmt.Errorf("touch cached session %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: cached session %s", domain.ErrNotFound, id)
	}
	return nil
}

// SetActive switches the active session to id and touches its lastLogin.
func (c *SessionCache) SetActive(ctx context.Context, id string) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := c.touch(tx, id); err != nil {
			return err
		}
		if err := tx.Model(&models.LoggedAccount{}).
			Session(&gorm.Session{AllowGlobalUpdate: true}).
			Update("isActive", false).Error; err != nil {
			return fmt.Errorf("demote cached sessions: %w", err)
		}
		if err := tx.Model(&models.LoggedAccount{}).Where("id = ?", id).Update("isActive", true).Error; err != nil {
			return fmt.Errorf("activate cached session %s: %w", id, err)
		}
		return nil
	})
}
