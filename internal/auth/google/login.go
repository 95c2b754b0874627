package google

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/pysugar/homeauth/internal/domain"
	"github.com/pysugar/homeauth/internal/util"
	"golang.org/x/oauth2"
)

// newStateToken returns a fresh CSRF state for one sign-in attempt.
func newStateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// authCodeOptions always asks for offline access; forcing consent makes
// Google issue a new refresh token.
func authCodeOptions(forceRotation bool) []oauth2.AuthCodeOption {
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if forceRotation {
		opts = append(opts, oauth2.ApprovalForce)
	}
	return opts
}

type userInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// SignIn runs one interactive sign-in. Closing the consent screen, letting
// the callback wait run out or cancelling ctx yields SignInCancelled, logged
// with its reason; every other problem is a failure.
func (p *Provider) SignIn(ctx context.Context) domain.SignInResult {
	if !p.Configured() {
		return failure(errors.New("google client id not configured"))
	}

	state, err := newStateToken()
	if err != nil {
		return failure(fmt.Errorf("generate state: %w", err))
	}

	port, results, shutdown, err := startCallbackServer(p.opts.CallbackPort, state)
	if err != nil {
		return failure(err)
	}
	defer shutdown()

	p.mu.Lock()
	forceRotation := p.forceRotation
	p.mu.Unlock()

	conf := p.oauthConfig(fmt.Sprintf("http://127.0.0.1:%d/oauth-callback", port))
	authURL := conf.AuthCodeURL(state, authCodeOptions(forceRotation)...)
	slog.Info("waiting for google sign-in", "operation", "sign_in", "url", authURL)
	if err := p.opts.OpenBrowser(authURL); err != nil {
		slog.Warn("could not open browser, open the url manually", "operation", "sign_in", "error", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.opts.CallbackTimeout)
	defer cancel()

	var res callbackResult
	select {
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return cancelled("context_cancelled")
		}
		return cancelled("callback_timeout", "timeout", p.opts.CallbackTimeout)
	case res = <-results:
	}
	if res.denied {
		return cancelled("access_denied")
	}
	if res.err != nil {
		return failure(res.err)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.opts.HTTPClient)
	token, err := conf.Exchange(ctx, res.code)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled("context_cancelled")
		}
		return failure(fmt.Errorf("token exchange failed: %w", err))
	}

	info, err := p.fetchUserInfo(ctx, conf.Client(ctx, token))
	if err != nil {
		if ctx.Err() != nil {
			return cancelled("context_cancelled")
		}
		return failure(err)
	}

	p.mu.Lock()
	p.token = token
	p.mu.Unlock()

	return domain.SignInResult{
		Type: domain.SignInSuccess,
		Account: domain.ForeignAccount{
			ID:            info.ID,
			GivenName:     info.GivenName,
			FamilyName:    info.FamilyName,
			Email:         info.Email,
			PhotoURL:      info.Picture,
			EmailVerified: info.VerifiedEmail,
		},
	}
}

// cancelled ends a sign-in that got no usable answer from the user.
func cancelled(reason string, attrs ...any) domain.SignInResult {
	args := append([]any{"operation", "sign_in", "reason", reason}, attrs...)
	slog.Info("sign-in cancelled", args...)
	return domain.SignInResult{Type: domain.SignInCancelled}
}

// SignOut revokes the held token, best effort, and forgets it.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	token := p.token
	p.token = nil
	p.mu.Unlock()

	if token == nil {
		return nil
	}
	value := token.RefreshToken
	if value == "" {
		value = token.AccessToken
	}

	form := url.Values{"token": {value}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.opts.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke token: status %d: %s", resp.StatusCode, util.BodySnippet(resp.Body))
	}
	return nil
}

func (p *Provider) fetchUserInfo(ctx context.Context, client *http.Client) (userInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.opts.UserInfoURL, nil)
	if err != nil {
		return userInfo{}, fmt.Errorf("build user info request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return userInfo{}, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return userInfo{}, fmt.Errorf("user info status %d: %s", resp.StatusCode, util.BodySnippet(resp.Body))
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return userInfo{}, fmt.Errorf("failed to decode user info: %w", err)
	}
	if info.ID == "" {
		return userInfo{}, errors.New("user info missing id")
	}
	return info, nil
}

func failure(err error) domain.SignInResult {
	return domain.SignInResult{Type: domain.SignInFailure, Err: err}
}
