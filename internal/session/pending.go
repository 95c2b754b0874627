package session

import (
	"context"
	"sync"
	"time"

	"github.com/pysugar/homeauth/internal/domain"
)

// Prompt identifies which confirmation the user is asked for.
type Prompt string

const (
	// PromptCreateAccount asks a user who tried to log in whether to create
	// a new account.
	PromptCreateAccount Prompt = "create_account"
	// PromptLogInInstead asks a user who tried to sign up whether to log in
	// to the existing account.
	PromptLogInInstead Prompt = "log_in_instead"
)

// Message is the question shown to the user.
func (p Prompt) Message() string {
	switch p {
	case PromptCreateAccount:
		return "No account is linked to this Google account yet. Create one now?"
	case PromptLogInInstead:
		return "An account already exists for this Google account. Log in instead?"
	default:
		return ""
	}
}

// PendingConfirmation is handed to the caller when reconciliation needs the
// user's answer before it can continue.
type PendingConfirmation struct {
	Token     string    `json:"token"`
	Prompt    Prompt    `json:"prompt"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Pending is the suspended attempt stored under a confirmation token.
type Pending struct {
	Token     string                `json:"token"`
	Prompt    Prompt                `json:"prompt"`
	Intent    domain.Intent         `json:"intent"`
	Foreign   domain.ForeignAccount `json:"foreign"`
	Existing  *domain.Account       `json:"existing,omitempty"`
	StartedAt time.Time             `json:"startedAt"`
	ExpiresAt time.Time             `json:"expiresAt"`
}

// PendingStore keeps suspended attempts until they are resolved or expire.
// Get and Take return nil for unknown or expired tokens. Take removes the
// entry atomically, so a token is handed out at most once across every
// engine sharing the store.
type PendingStore interface {
	Put(ctx context.Context, token string, p Pending, ttl time.Duration) error
	Get(ctx context.Context, token string) (*Pending, error)
	Take(ctx context.Context, token string) (*Pending, error)
	Delete(ctx context.Context, token string) error
}

// MemoryPendingStore is the in-process PendingStore.
type MemoryPendingStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	nowFn   func() time.Time
}

type memoryEntry struct {
	pending   Pending
	expiresAt time.Time
}

func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{
		entries: make(map[string]memoryEntry),
		nowFn:   time.Now,
	}
}

func (s *MemoryPendingStore) Put(_ context.Context, token string, p Pending, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn()
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}
	s.entries[token] = memoryEntry{pending: p, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryPendingStore) Get(_ context.Context, token string) (*Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[token]
	if !ok {
		return nil, nil
	}
	if !s.nowFn().Before(e.expiresAt) {
		delete(s.entries, token)
		return nil, nil
	}
	p := e.pending
	return &p, nil
}

func (s *MemoryPendingStore) Take(_ context.Context, token string) (*Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[token]
	if !ok {
		return nil, nil
	}
	delete(s.entries, token)
	if !s.nowFn().Before(e.expiresAt) {
		return nil, nil
	}
	p := e.pending
	return &p, nil
}

func (s *MemoryPendingStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, token)
	return nil
}
