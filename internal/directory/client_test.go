package directory

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/pysugar/homeauth/internal/config"
	"github.com/pysugar/homeauth/internal/domain"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	db, err := Open(config.DriverSQLite, filepath.Join(t.TempDir(), "directory.db"))
	if err != nil {
		t.Fatalf("failed to open directory: %v", err)
	}
	c := NewClient(db, time.Second)
	seq := 0
	c.newID = func() string {
		seq++
		return fmt.Sprintf("acct-%d", seq)
	}
	c.nowFn = func() time.Time {
		return time.Date(2025, 1, 1, 0, 0, seq, 0, time.UTC)
	}
	return c
}

func draft(externalID string) domain.AccountDraft {
	return domain.AccountDraft{
		ExternalID:  externalID,
		DisplayName: "Lan Nguyen",
		Email:       "lan@example.com",
		AuthMethods: []domain.AuthMethod{domain.AuthMethodGoogle},
		ProviderAuth: &domain.ProviderAuth{
			Email:      "lan@example.com",
			ProviderID: externalID,
			Verified:   true,
		},
	}
}

func TestCreateAndFind(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	got, err := c.FindByExternalID(ctx, "g-1")
	if err != nil || got != nil {
		t.Fatalf("FindByExternalID on empty = %+v, %v", got, err)
	}

	created, err := c.Create(ctx, draft("g-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != "acct-1" || created.CreatedAt.IsZero() {
		t.Fatalf("unexpected created account: %+v", created)
	}

	got, err = c.FindByExternalID(ctx, "g-1")
	if err != nil {
		t.Fatalf("FindByExternalID: %v", err)
	}
	if got == nil || got.ID != created.ID || got.ProviderAuth == nil || got.ProviderAuth.ProviderID != "g-1" {
		t.Fatalf("unexpected account: %+v", got)
	}
}

func TestCreate_DuplicateExternalID(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	if _, err := c.Create(ctx, draft("g-1")); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	_, err := c.Create(ctx, draft("g-1"))
	if !errors.Is(err, domain.ErrDuplicateExternalID) {
		t.Fatalf("expected ErrDuplicateExternalID, got %v", err)
	}

	all, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 account, got %d", len(all))
	}
}

func TestUpdate_MergesAuthMethods(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	d := draft("g-1")
	d.AuthMethods = []domain.AuthMethod{domain.AuthMethodFace}
	created, err := c.Create(ctx, d)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	name := "Lan N."
	updated, err := c.Update(ctx, created.ID, domain.AccountPatch{
		DisplayName: &name,
		AuthMethods: []domain.AuthMethod{domain.AuthMethodGoogle},
		DeviceInfo:  &domain.DeviceInfo{DeviceID: "dev-1", OSName: "linux"},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.DisplayName != name {
		t.Errorf("DisplayName = %q", updated.DisplayName)
	}
	if !updated.HasAuthMethod(domain.AuthMethodFace) || !updated.HasAuthMethod(domain.AuthMethodGoogle) {
		t.Errorf("auth methods not merged: %v", updated.AuthMethods)
	}

	fetched, err := c.Fetch(ctx, created.ID)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if fetched.DeviceInfo == nil || fetched.DeviceInfo.DeviceID != "dev-1" {
		t.Errorf("device info not persisted: %+v", fetched.DeviceInfo)
	}
	if !fetched.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", created.CreatedAt, fetched.CreatedAt)
	}
}

func TestMissingIDs(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	_, err := c.Fetch(ctx, "nope")
	if !errors.Is(err, domain.ErrNotFound) || !errors.Is(err, domain.ErrDirectoryReadFailed) {
		t.Fatalf("Fetch missing: %v", err)
	}
	_, err = c.Update(ctx, "nope", domain.AccountPatch{})
	if !errors.Is(err, domain.ErrNotFound) || !errors.Is(err, domain.ErrDirectoryWriteFailed) {
		t.Fatalf("Update missing: %v", err)
	}
	err = c.Delete(ctx, "nope")
	if !errors.Is(err, domain.ErrNotFound) || !errors.Is(err, domain.ErrDirectoryWriteFailed) {
		t.Fatalf("Delete missing: %v", err)
	}
}

func TestCancelledContextIsReadFailure(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.FindByExternalID(ctx, "g-1"); !errors.Is(err, domain.ErrDirectoryReadFailed) {
		t.Fatalf("expected ErrDirectoryReadFailed, got %v", err)
	}
}

func TestObserveAll(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := c.ObserveAll(ctx, 20*time.Millisecond)

	first := receive(t, ch)
	if len(first) != 0 {
		t.Fatalf("expected empty initial snapshot, got %d", len(first))
	}

	if _, err := c.Create(context.Background(), draft("g-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	next := receive(t, ch)
	if len(next) != 1 || next[0].ExternalID != "g-1" {
		t.Fatalf("unexpected snapshot: %+v", next)
	}

	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after cancel")
		}
	}
}

func receive(t *testing.T, ch <-chan []domain.Account) []domain.Account {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return nil
}
