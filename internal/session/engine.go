// Package session reconciles an OAuth identity with the account directory
// and keeps the single local session in step with it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/homeauth/internal/db"
	"github.com/pysugar/homeauth/internal/db/models"
	"github.com/pysugar/homeauth/internal/domain"
)

// DefaultPendingTTL is how long a confirmation token stays valid.
const DefaultPendingTTL = 5 * time.Minute

// Attempt outcomes as recorded by Recorders.
const (
	OutcomeSignedIn  = "signed_in"
	OutcomeCancelled = "cancelled"
	OutcomeDeclined  = "declined"
	OutcomeFailed    = "failed"
)

// Provider is the OAuth identity provider.
type Provider interface {
	SignIn(ctx context.Context) domain.SignInResult
	SignOut(ctx context.Context) error
}

// Directory is the remote account directory.
type Directory interface {
	FindByExternalID(ctx context.Context, externalID string) (*domain.Account, error)
	Create(ctx context.Context, draft domain.AccountDraft) (domain.Account, error)
}

// Cache is the local session cache.
type Cache interface {
	UpsertActive(ctx context.Context, acct domain.Account) error
	GetActive(ctx context.Context) (*models.LoggedAccount, error)
	ClearAll(ctx context.Context) error
}

// DeviceSource yields best-effort device metadata; it never fails.
type DeviceSource interface {
	Cached(ctx context.Context) domain.DeviceInfo
}

// Recorder observes finished attempts.
type Recorder interface {
	Record(ctx context.Context, attempt models.LoginAttempt)
}

// Confirmer answers a pending confirmation on behalf of the user.
type Confirmer interface {
	Confirm(ctx context.Context, p PendingConfirmation) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, p PendingConfirmation) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, p PendingConfirmation) (bool, error) {
	return f(ctx, p)
}

// Outcome is the result of Begin or Resolve. On success exactly one of
// Account and Pending is set. CacheErr reports a signed-in account whose
// local cache write failed.
type Outcome struct {
	Account  *domain.Account      `json:"account,omitempty"`
	Pending  *PendingConfirmation `json:"pending,omitempty"`
	CacheErr error                `json:"-"`
}

// Options wires an Engine.
type Options struct {
	Provider   Provider
	Directory  Directory
	Cache      Cache
	Device     DeviceSource
	State      *State
	Pending    PendingStore
	PendingTTL time.Duration
	Recorders  []Recorder
	Logger     *slog.Logger
}

// Engine runs identity reconciliation. One attempt may be in flight per
// engine at a time, including while it waits on a confirmation.
type Engine struct {
	provider   Provider
	directory  Directory
	cache      Cache
	device     DeviceSource
	state      *State
	pending    PendingStore
	pendingTTL time.Duration
	recorders  []Recorder
	log        *slog.Logger
	nowFn      func() time.Time
	newToken   func() string

	mu            sync.Mutex
	busy          bool
	waitingToken  string
	waitingExpiry time.Time
}

// attempt tracks one reconciliation for recording.
type attempt struct {
	intent     domain.Intent
	startedAt  time.Time
	externalID string
	prompt     Prompt
}

func NewEngine(opts Options) *Engine {
	e := &Engine{
		provider:   opts.Provider,
		directory:  opts.Directory,
		cache:      opts.Cache,
		device:     opts.Device,
		state:      opts.State,
		pending:    opts.Pending,
		pendingTTL: opts.PendingTTL,
		recorders:  opts.Recorders,
		log:        opts.Logger,
		nowFn:      time.Now,
		newToken:   uuid.NewString,
	}
	if e.state == nil {
		e.state = NewState()
	}
	if e.pending == nil {
		e.pending = NewMemoryPendingStore()
	}
	if e.pendingTTL <= 0 {
		e.pendingTTL = DefaultPendingTTL
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e
}

// State exposes the session state the engine maintains.
func (e *Engine) State() *State {
	return e.state
}

// Begin starts a reconciliation for intent. It returns either the signed-in
// account or a pending confirmation that must be passed to Resolve.
func (e *Engine) Begin(ctx context.Context, intent domain.Intent) (Outcome, error) {
	if _, err := domain.ParseIntent(string(intent)); err != nil {
		return Outcome{}, err
	}
	if err := e.acquire(ctx); err != nil {
		return Outcome{}, err
	}

	at := &attempt{intent: intent, startedAt: e.nowFn()}
	out, err := e.begin(ctx, at)
	if err == nil && out.Pending != nil {
		return out, nil
	}
	e.release()
	e.finishAttempt(ctx, at, out, err)
	return out, err
}

// Resolve answers the confirmation identified by token. Declining ends the
// attempt with domain.ErrDeclined and no side effects.
func (e *Engine) Resolve(ctx context.Context, token string, accepted bool) (Outcome, error) {
	p, err := e.claim(ctx, token)
	if err != nil {
		return Outcome{}, err
	}

	at := &attempt{intent: p.Intent, startedAt: p.StartedAt, externalID: p.Foreign.ID, prompt: p.Prompt}
	out, err := e.resolve(ctx, p, accepted)
	e.release()
	e.finishAttempt(ctx, at, out, err)
	return out, err
}

// Reconcile drives Begin and Resolve to completion, asking confirmer when
// the user must choose.
func (e *Engine) Reconcile(ctx context.Context, intent domain.Intent, confirmer Confirmer) (Outcome, error) {
	out, err := e.Begin(ctx, intent)
	for err == nil && out.Pending != nil {
		token := out.Pending.Token
		accepted, cerr := confirmer.Confirm(ctx, *out.Pending)
		if cerr != nil {
			// Free the guard before reporting the confirmer's error.
			if _, rerr := e.Resolve(context.WithoutCancel(ctx), token, false); rerr != nil && !errors.Is(rerr, domain.ErrDeclined) {
				e.log.Warn("failed to abandon confirmation", "operation", "reconcile", "error", rerr)
			}
			return Outcome{}, cerr
		}
		out, err = e.Resolve(ctx, token, accepted)
	}
	return out, err
}

func (e *Engine) begin(ctx context.Context, at *attempt) (Outcome, error) {
	device := e.device.Cached(ctx)

	res := e.provider.SignIn(ctx)
	switch res.Type {
	case domain.SignInSuccess:
	case domain.SignInCancelled:
		return Outcome{}, domain.ErrUserCancelled
	default:
		return Outcome{}, fmt.Errorf("%w: %v", domain.ErrProviderFailure, res.Err)
	}
	foreign := res.Account
	at.externalID = foreign.ID

	existing, err := e.directory.FindByExternalID(ctx, foreign.ID)
	if err != nil {
		return Outcome{}, asKind(err, domain.ErrDirectoryReadFailed)
	}

	switch {
	case at.intent == domain.IntentLogin && existing != nil:
		return e.acceptLogin(ctx, *existing), nil
	case at.intent == domain.IntentLogin:
		return e.suspend(ctx, at, PromptCreateAccount, foreign, nil)
	case existing != nil:
		return e.suspend(ctx, at, PromptLogInInstead, foreign, existing)
	default:
		return e.createAccount(ctx, foreign, device)
	}
}

func (e *Engine) resolve(ctx context.Context, p *Pending, accepted bool) (Outcome, error) {
	if !accepted {
		return Outcome{}, domain.ErrDeclined
	}
	switch p.Prompt {
	case PromptCreateAccount:
		return e.createAccount(ctx, p.Foreign, e.device.Cached(ctx))
	case PromptLogInInstead:
		if p.Existing == nil {
			return Outcome{}, fmt.Errorf("%w: pending login without account", domain.ErrDirectoryReadFailed)
		}
		return e.acceptLogin(ctx, *p.Existing), nil
	default:
		return Outcome{}, fmt.Errorf("%w: prompt %q", domain.ErrUnknownConfirmation, p.Prompt)
	}
}

// suspend stores the attempt and hands a confirmation token back.
func (e *Engine) suspend(ctx context.Context, at *attempt, prompt Prompt, foreign domain.ForeignAccount, existing *domain.Account) (Outcome, error) {
	now := e.nowFn()
	p := Pending{
		Token:     e.newToken(),
		Prompt:    prompt,
		Intent:    at.intent,
		Foreign:   foreign,
		Existing:  existing,
		StartedAt: at.startedAt,
		ExpiresAt: now.Add(e.pendingTTL),
	}
	if err := e.pending.Put(ctx, p.Token, p, e.pendingTTL); err != nil {
		return Outcome{}, fmt.Errorf("store confirmation: %w", err)
	}

	e.mu.Lock()
	e.waitingToken = p.Token
	e.waitingExpiry = p.ExpiresAt
	e.mu.Unlock()

	at.prompt = prompt
	e.log.Info("confirmation required", "operation", "reconcile", "intent", at.intent, "prompt", prompt)
	return Outcome{Pending: &PendingConfirmation{
		Token:     p.Token,
		Prompt:    prompt,
		Message:   prompt.Message(),
		ExpiresAt: p.ExpiresAt,
	}}, nil
}

// acceptLogin activates the directory record as fetched. Logging in never
// writes to the directory.
func (e *Engine) acceptLogin(ctx context.Context, acct domain.Account) Outcome {
	return e.activate(ctx, acct)
}

// createAccount creates the account for foreign. Losing a create race to
// another device continues as a login on the winner's record.
func (e *Engine) createAccount(ctx context.Context, foreign domain.ForeignAccount, device domain.DeviceInfo) (Outcome, error) {
	draft := domain.AccountDraft{
		ExternalID:   foreign.ID,
		DisplayName:  foreign.DisplayName(),
		Email:        foreign.Email,
		AvatarURL:    foreign.PhotoURL,
		AuthMethods:  []domain.AuthMethod{domain.AuthMethodGoogle},
		ProviderAuth: providerAuthFor(foreign, e.nowFn()),
	}
	if !device.IsZero() {
		draft.DeviceInfo = &device
	}

	acct, err := e.directory.Create(ctx, draft)
	if errors.Is(err, domain.ErrDuplicateExternalID) {
		winner, rerr := e.directory.FindByExternalID(ctx, foreign.ID)
		if rerr != nil {
			return Outcome{}, asKind(rerr, domain.ErrDirectoryReadFailed)
		}
		if winner == nil {
			return Outcome{}, fmt.Errorf("%w: %v", domain.ErrDirectoryWriteFailed, err)
		}
		e.log.Info("account created concurrently, continuing as login", "operation", "reconcile", "account_id", winner.ID)
		return e.acceptLogin(ctx, *winner), nil
	}
	if err != nil {
		return Outcome{}, asKind(err, domain.ErrDirectoryWriteFailed)
	}
	e.log.Info("account created", "operation", "reconcile", "account_id", acct.ID)
	return e.activate(ctx, acct), nil
}

// activate writes the local cache and publishes the session. A cache
// failure is reported on the outcome; the user is still signed in.
func (e *Engine) activate(ctx context.Context, acct domain.Account) Outcome {
	out := Outcome{Account: &acct}
	if err := e.cache.UpsertActive(ctx, acct); err != nil {
		out.CacheErr = asKind(err, domain.ErrCacheWriteFailed)
		e.log.Error("failed to cache session", "operation", "reconcile", "account_id", acct.ID, "error", err)
	}
	e.state.Set(&acct)
	return out
}

// Resume restores the session from the local cache without touching the
// network. Any problem degrades to "no session".
func (e *Engine) Resume(ctx context.Context) *domain.Account {
	row, err := e.cache.GetActive(ctx)
	if err != nil {
		e.log.Warn("failed to read cached session", "operation", "resume", "error", err)
		return nil
	}
	if row == nil {
		return nil
	}
	acct, err := db.DecodeAccount(*row)
	if err != nil {
		e.log.Warn("discarding corrupt cached session", "operation", "resume", "account_id", row.ID, "error", err)
		return nil
	}
	e.state.Set(&acct)
	e.log.Info("session resumed", "operation", "resume", "account_id", acct.ID)
	return &acct
}

// SignOut ends the provider session, clears the cache and the state.
func (e *Engine) SignOut(ctx context.Context) error {
	if err := e.provider.SignOut(ctx); err != nil {
		e.log.Warn("provider sign-out failed", "operation", "sign_out", "error", err)
	}
	err := e.cache.ClearAll(ctx)
	e.state.Clear()
	if err != nil {
		return asKind(err, domain.ErrCacheWriteFailed)
	}
	e.log.Info("signed out", "operation", "sign_out")
	return nil
}

// DeviceInfo returns the memoized device metadata.
func (e *Engine) DeviceInfo(ctx context.Context) domain.DeviceInfo {
	return e.device.Cached(ctx)
}

// acquire takes the reentrancy guard. A waiting attempt no longer holds it
// once its token has expired or was claimed through a shared store.
func (e *Engine) acquire(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.busy {
		if e.waitingToken == "" {
			return domain.ErrReconcileInProgress
		}
		if e.nowFn().Before(e.waitingExpiry) {
			p, err := e.pending.Get(ctx, e.waitingToken)
			if err != nil {
				e.log.Warn("failed to check pending confirmation", "operation", "reconcile", "error", err)
				return domain.ErrReconcileInProgress
			}
			if p != nil {
				return domain.ErrReconcileInProgress
			}
			e.log.Info("confirmation resolved elsewhere", "operation", "reconcile")
		} else if err := e.pending.Delete(ctx, e.waitingToken); err != nil {
			e.log.Warn("failed to drop expired confirmation", "operation", "reconcile", "error", err)
		}
	}
	e.busy = true
	e.waitingToken = ""
	return nil
}

func (e *Engine) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = false
	e.waitingToken = ""
}

// claim consumes token from the pending store. The token may belong to this
// engine or to another one sharing the store. The guard stays held while the
// claimed attempt resumes.
func (e *Engine) claim(ctx context.Context, token string) (*Pending, error) {
	if token == "" {
		return nil, domain.ErrUnknownConfirmation
	}

	e.mu.Lock()
	if e.busy && e.waitingToken != token {
		e.mu.Unlock()
		if p, err := e.pending.Get(ctx, token); err == nil && p != nil {
			return nil, domain.ErrReconcileInProgress
		}
		return nil, domain.ErrUnknownConfirmation
	}
	e.busy = true
	e.waitingToken = ""
	e.mu.Unlock()

	p, err := e.pending.Take(ctx, token)
	if err == nil && (p == nil || !e.nowFn().Before(p.ExpiresAt)) {
		err = domain.ErrUnknownConfirmation
	}
	if err != nil {
		e.release()
		if errors.Is(err, domain.ErrUnknownConfirmation) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUnknownConfirmation, err)
	}
	return p, nil
}

func (e *Engine) finishAttempt(ctx context.Context, at *attempt, out Outcome, err error) {
	rec := models.LoginAttempt{
		ID:         uuid.NewString(),
		Timestamp:  at.startedAt.UnixMilli(),
		Intent:     string(at.intent),
		ExternalID: at.externalID,
		Prompt:     string(at.prompt),
		Duration:   e.nowFn().Sub(at.startedAt).Milliseconds(),
	}

	switch {
	case err == nil:
		rec.Outcome = OutcomeSignedIn
		rec.AccountID = out.Account.ID
		if out.CacheErr != nil {
			rec.Error = out.CacheErr.Error()
		}
		e.log.Info("signed in", "operation", "reconcile", "intent", at.intent, "outcome", rec.Outcome, "account_id", rec.AccountID)
	case errors.Is(err, domain.ErrUserCancelled):
		rec.Outcome = OutcomeCancelled
		e.log.Info("sign-in cancelled", "operation", "reconcile", "intent", at.intent, "outcome", rec.Outcome)
	case errors.Is(err, domain.ErrDeclined):
		rec.Outcome = OutcomeDeclined
		e.log.Info("confirmation declined", "operation", "reconcile", "intent", at.intent, "outcome", rec.Outcome)
	default:
		rec.Outcome = OutcomeFailed
		rec.Error = err.Error()
		e.log.Error("reconciliation failed", "operation", "reconcile", "intent", at.intent, "outcome", rec.Outcome, "error", err)
	}

	for _, r := range e.recorders {
		r.Record(ctx, rec)
	}
}

func providerAuthFor(foreign domain.ForeignAccount, now time.Time) *domain.ProviderAuth {
	verifiedAt := now.UTC()
	return &domain.ProviderAuth{
		Email:          foreign.Email,
		ProviderID:     foreign.ID,
		Verified:       foreign.EmailVerified,
		LastVerifiedAt: &verifiedAt,
	}
}

// asKind makes sure err matches kind.
func asKind(err, kind error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %v", kind, err)
}
