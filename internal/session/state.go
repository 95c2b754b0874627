package session

import (
	"sync"
	"time"

	"github.com/pysugar/homeauth/internal/domain"
)

// Snapshot is one observed value of the session state. A nil Account means
// signed out.
type Snapshot struct {
	Account *domain.Account
	At      time.Time
}

// State holds the current in-memory session. It is owned by the app root
// and handed to whoever needs it.
type State struct {
	mu      sync.RWMutex
	current *domain.Account
	subs    map[int]chan Snapshot
	nextSub int
	nowFn   func() time.Time
}

// NewState returns a signed-out state.
func NewState() *State {
	return &State{
		subs:  make(map[int]chan Snapshot),
		nowFn: time.Now,
	}
}

// Current returns a copy of the signed-in account, or nil.
func (s *State) Current() *domain.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	acct := *s.current
	return &acct
}

// Set replaces the current account and notifies subscribers.
func (s *State) Set(acct *domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acct != nil {
		copied := *acct
		acct = &copied
	}
	s.current = acct
	snap := Snapshot{Account: acct, At: s.nowFn()}
	for _, ch := range s.subs {
		publish(ch, snap)
	}
}

// Clear signs the state out.
func (s *State) Clear() {
	s.Set(nil)
}

// Subscribe returns a channel that receives the current snapshot followed by
// every change. Slow subscribers only see the latest snapshot. The returned
// func unsubscribes and closes the channel.
func (s *State) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, 1)
	s.subs[id] = ch
	ch <- Snapshot{Account: s.current, At: s.nowFn()}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// publish replaces any unread snapshot with snap.
func publish(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
