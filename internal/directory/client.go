package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/homeauth/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultTimeout bounds every directory call.
const DefaultTimeout = 10 * time.Second

// Client performs account CRUD against the directory. Errors are mapped
// onto domain.ErrDirectoryReadFailed / domain.ErrDirectoryWriteFailed.
type Client struct {
	db      *gorm.DB
	timeout time.Duration
	nowFn   func() time.Time
	newID   func() string
}

// NewClient wraps an opened directory database.
func NewClient(db *gorm.DB, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		db:      db,
		timeout: timeout,
		nowFn:   time.Now,
		newID:   uuid.NewString,
	}
}

// FindByExternalID returns the account holding externalID, or nil when
// there is none.
func (c *Client) FindByExternalID(ctx context.Context, externalID string) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var recs []accountRecord
	if err := c.db.WithContext(ctx).Where("external_id = ?", externalID).Limit(1).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("%w: find by external id: %v", domain.ErrDirectoryReadFailed, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	acct := recs[0].toDomain()
	return &acct, nil
}

// Create inserts a new account unless one with the same external id already
// exists, in which case it returns domain.ErrDuplicateExternalID.
func (c *Client) Create(ctx context.Context, draft domain.AccountDraft) (domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rec := accountRecord{
		ID:           c.newID(),
		ExternalID:   draft.ExternalID,
		DisplayName:  draft.DisplayName,
		Email:        draft.Email,
		AvatarURL:    draft.AvatarURL,
		AuthMethods:  domain.MergeAuthMethods(nil, draft.AuthMethods),
		ProviderAuth: draft.ProviderAuth,
		DeviceInfo:   draft.DeviceInfo,
		CreatedAt:    c.nowFn().UTC(),
	}

	res := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_id"}}, DoNothing: true}).
		Create(&rec)
	if res.Error != nil {
		return domain.Account{}, fmt.Errorf("%w: create: %v", domain.ErrDirectoryWriteFailed, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.Account{}, fmt.Errorf("%w: %s", domain.ErrDuplicateExternalID, draft.ExternalID)
	}
	return rec.toDomain(), nil
}

// Fetch loads an account by internal id.
func (c *Client) Fetch(ctx context.Context, id string) (domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rec, err := c.load(c.db.WithContext(ctx), id)
	if err != nil {
		return domain.Account{}, fmt.Errorf("%w: %w", domain.ErrDirectoryReadFailed, err)
	}
	return rec.toDomain(), nil
}

// Update applies a partial patch. Auth methods are merged, never replaced.
func (c *Client) Update(ctx context.Context, id string, patch domain.AccountPatch) (domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out accountRecord
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := c.load(tx, id)
		if err != nil {
			return err
		}
		applyPatch(&rec, patch)
		if err := tx.Save(&rec).Error; err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return domain.Account{}, fmt.Errorf("%w: update %s: %w", domain.ErrDirectoryWriteFailed, id, err)
	}
	return out.toDomain(), nil
}

// Delete removes an account by internal id.
func (c *Client) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res := c.db.WithContext(ctx).Where("id = ?", id).Delete(&accountRecord{})
	if res.Error != nil {
		return fmt.Errorf("%w: delete %s: %v", domain.ErrDirectoryWriteFailed, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %w: account %s", domain.ErrDirectoryWriteFailed, domain.ErrNotFound, id)
	}
	return nil
}

// List returns every account, oldest first.
func (c *Client) List(ctx context.Context) ([]domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var recs []accountRecord
	if err := c.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("%w: list: %v", domain.ErrDirectoryReadFailed, err)
	}
	out := make([]domain.Account, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// ObserveAll polls the directory every interval and emits the full account
// list whenever it changes, starting with the current snapshot. The channel
// closes when ctx is done; call again to resubscribe.
func (c *Client) ObserveAll(ctx context.Context, interval time.Duration) <-chan []domain.Account {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	out := make(chan []domain.Account, 1)

	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last []byte
		for {
			accounts, err := c.List(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("directory poll failed", "operation", "observe_all", "error", err)
			} else if fp, _ := json.Marshal(accounts); last == nil || !bytes.Equal(fp, last) {
				last = fp
				select {
				case out <- accounts:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out
}

func (c *Client) load(db *gorm.DB, id string) (accountRecord, error) {
	var recs []accountRecord
	if err := db.Where("id = ?", id).Limit(1).Find(&recs).Error; err != nil {
		return accountRecord{}, err
	}
	if len(recs) == 0 {
		return accountRecord{}, fmt.Errorf("%w: account %s", domain.ErrNotFound, id)
	}
	return recs[0], nil
}

func applyPatch(rec *accountRecord, patch domain.AccountPatch) {
	if patch.DisplayName != nil {
		rec.DisplayName = *patch.DisplayName
	}
	if patch.Email != nil {
		rec.Email = *patch.Email
	}
	if patch.AvatarURL != nil {
		rec.AvatarURL = *patch.AvatarURL
	}
	if len(patch.AuthMethods) > 0 {
		rec.AuthMethods = domain.MergeAuthMethods(rec.AuthMethods, patch.AuthMethods)
	}
	if patch.ProviderAuth != nil {
		rec.ProviderAuth = patch.ProviderAuth
	}
	if patch.FaceAuth != nil {
		rec.FaceAuth = patch.FaceAuth
	}
	if patch.DeviceInfo != nil {
		rec.DeviceInfo = patch.DeviceInfo
	}
}
