package session

import (
	"testing"
	"time"

	"github.com/pysugar/homeauth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextSnapshot(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "channel closed")
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return Snapshot{}
}

func TestState_SubscribeSeesChanges(t *testing.T) {
	s := NewState()
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	assert.Nil(t, nextSnapshot(t, ch).Account)

	s.Set(&domain.Account{ID: "a"})
	snap := nextSnapshot(t, ch)
	require.NotNil(t, snap.Account)
	assert.Equal(t, "a", snap.Account.ID)

	s.Clear()
	assert.Nil(t, nextSnapshot(t, ch).Account)
	assert.Nil(t, s.Current())
}

func TestState_SlowSubscriberGetsLatest(t *testing.T) {
	s := NewState()
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	s.Set(&domain.Account{ID: "a"})
	s.Set(&domain.Account{ID: "b"})

	snap := nextSnapshot(t, ch)
	require.NotNil(t, snap.Account)
	assert.Equal(t, "b", snap.Account.ID)
}

func TestState_CurrentIsACopy(t *testing.T) {
	s := NewState()
	acct := &domain.Account{ID: "a", DisplayName: "Lan"}
	s.Set(acct)
	acct.DisplayName = "changed"

	got := s.Current()
	assert.Equal(t, "Lan", got.DisplayName)
	got.DisplayName = "mutated"
	assert.Equal(t, "Lan", s.Current().DisplayName)
}

func TestState_UnsubscribeClosesChannel(t *testing.T) {
	s := NewState()
	ch, unsubscribe := s.Subscribe()
	<-ch
	unsubscribe()
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok)
	s.Set(&domain.Account{ID: "a"})
}
