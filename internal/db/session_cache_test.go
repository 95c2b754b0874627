package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pysugar/homeauth/internal/db/models"
	"github.com/pysugar/homeauth/internal/domain"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	return db
}

func newTestCache(t *testing.T) *SessionCache {
	t.Helper()
	cache := NewSessionCache(newTestDB(t))
	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	cache.nowFn = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return cache
}

func testAccount(id string) domain.Account {
	verified := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	return domain.Account{
		ID:          id,
		ExternalID:  "g-" + id,
		DisplayName: "User " + id,
		Email:       id + "@example.com",
		AvatarURL:   "https://example.com/" + id + ".png",
		AuthMethods: []domain.AuthMethod{domain.AuthMethodGoogle},
		ProviderAuth: &domain.ProviderAuth{
			Email:          id + "@example.com",
			ProviderID:     "g-" + id,
			Verified:       true,
			LastVerifiedAt: &verified,
		},
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestUpsertActive_OnlyLatestIsActive(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)

	if err := cache.UpsertActive(ctx, testAccount("a")); err != nil {
		t.Fatalf("upsert A: %v", err)
	}
	if err := cache.UpsertActive(ctx, testAccount("b")); err != nil {
		t.Fatalf("upsert B: %v", err)
	}

	var active []models.LoggedAccount
	if err := cache.db.Where("isActive = ?", true).Find(&active).Error; err != nil {
		t.Fatalf("query active rows: %v", err)
	}
	if len(active) != 1 || active[0].ID != "b" {
		t.Fatalf("expected only b active, got %+v", active)
	}

	got, err := cache.GetActive(ctx)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if got == nil || got.ID != "b" {
		t.Fatalf("GetActive = %+v, want b", got)
	}
}

func TestUpsertActive_ReplacesExistingRow(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)

	acct := testAccount("a")
	if err := cache.UpsertActive(ctx, acct); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	acct.DisplayName = "Renamed"
	acct.AuthMethods = []domain.AuthMethod{domain.AuthMethodGoogle, domain.AuthMethodFace}
	if err := cache.UpsertActive(ctx, acct); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	rows, err := cache.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Name != "Renamed" || !rows[0].IsActive {
		t.Fatalf("row not replaced: %+v", rows[0])
	}
}

func TestGetActive_EmptyCache(t *testing.T) {
	got, err := newTestCache(t).GetActive(context.Background())
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestListAll_OrderedByLastLogin(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := cache.UpsertActive(ctx, testAccount(id)); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}
	if err := cache.TouchLastLogin(ctx, "a"); err != nil {
		t.Fatalf("TouchLastLogin: %v", err)
	}

	rows, err := cache.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	var ids []string
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "c" || ids[2] != "b" {
		t.Fatalf("unexpected order: %v", ids)
	}
}

func TestSetActive(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)
	for _, id := range []string{"a", "b"} {
		if err := cache.UpsertActive(ctx, testAccount(id)); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	if err := cache.SetActive(ctx, "a"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	got, err := cache.GetActive(ctx)
	if err != nil || got == nil || got.ID != "a" {
		t.Fatalf("GetActive after SetActive = %+v, %v", got, err)
	}

	if err := cache.SetActive(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// A failed switch leaves the previous active row alone.
	got, _ = cache.GetActive(ctx)
	if got == nil || got.ID != "a" {
		t.Fatalf("active row changed after failed SetActive: %+v", got)
	}
}

func TestRemoveAndClearAll(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)
	for _, id := range []string{"a", "b"} {
		if err := cache.UpsertActive(ctx, testAccount(id)); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	if err := cache.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	rows, _ := cache.ListAll(ctx)
	if len(rows) != 1 || rows[0].ID != "b" {
		t.Fatalf("unexpected rows after Remove: %+v", rows)
	}

	if err := cache.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	got, err := cache.GetActive(ctx)
	if err != nil || got != nil {
		t.Fatalf("GetActive after ClearAll = %+v, %v", got, err)
	}
}

func TestTouchLastLogin_Missing(t *testing.T) {
	err := newTestCache(t).TouchLastLogin(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAPIKey_GeneratedOnceAndRegenerated(t *testing.T) {
	db := newTestDB(t)
	first := GetAPIKey(db)
	if len(first) != 35 || first[:3] != "sk-" {
		t.Fatalf("unexpected api key %q", first)
	}
	if err := ensureAPIKey(db); err != nil {
		t.Fatalf("ensureAPIKey: %v", err)
	}
	if GetAPIKey(db) != first {
		t.Fatal("api key changed on second ensure")
	}

	next, err := RegenerateAPIKey(db)
	if err != nil {
		t.Fatalf("RegenerateAPIKey: %v", err)
	}
	if next == first || GetAPIKey(db) != next {
		t.Fatalf("regenerate did not persist: first=%s next=%s stored=%s", first, next, GetAPIKey(db))
	}
}
