package google

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pysugar/homeauth/internal/domain"
	"golang.org/x/oauth2"
)

type fakeGoogle struct {
	srv     *httptest.Server
	revoked atomic.Value
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	f := &fakeGoogle{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"g-123","email":"lan@example.com","verified_email":true,"given_name":"Lan","family_name":"Nguyen","picture":"https://example.com/lan.png"}`))
	})
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		f.revoked.Store(r.PostForm.Get("token"))
		w.WriteHeader(http.StatusOK)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

// browserReturning simulates the consent screen by calling the redirect URL
// with the given query parameters. The state parameter is echoed unless
// overridden.
func browserReturning(t *testing.T, params url.Values, sawURL *string) func(string) error {
	return func(authURL string) error {
		if sawURL != nil {
			*sawURL = authURL
		}
		u, err := url.Parse(authURL)
		if err != nil {
			t.Errorf("bad auth url: %v", err)
			return err
		}
		q := url.Values{}
		for k, v := range params {
			q[k] = v
		}
		if q.Get("state") == "" {
			q.Set("state", u.Query().Get("state"))
		}
		callback := u.Query().Get("redirect_uri") + "?" + q.Encode()
		go func() {
			resp, err := http.Get(callback)
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}
}

func newTestProvider(f *fakeGoogle, open func(string) error) *Provider {
	p := NewProvider(Options{
		CallbackTimeout: 5 * time.Second,
		Endpoint:        oauth2.Endpoint{AuthURL: f.srv.URL + "/auth", TokenURL: f.srv.URL + "/token"},
		UserInfoURL:     f.srv.URL + "/userinfo",
		RevokeURL:       f.srv.URL + "/revoke",
		HTTPClient:      f.srv.Client(),
		OpenBrowser:     open,
	})
	p.Configure("client-1.apps.googleusercontent.com", true)
	return p
}

func TestSignIn_Success(t *testing.T) {
	f := newFakeGoogle(t)
	var authURL string
	p := newTestProvider(f, browserReturning(t, url.Values{"code": {"good-code"}}, &authURL))

	res := p.SignIn(context.Background())
	if res.Type != domain.SignInSuccess {
		t.Fatalf("expected success, got %s: %v", res.Type, res.Err)
	}
	if res.Account.ID != "g-123" || res.Account.Email != "lan@example.com" || !res.Account.EmailVerified {
		t.Fatalf("unexpected account: %+v", res.Account)
	}
	if res.Account.DisplayName() != "Lan Nguyen" {
		t.Fatalf("DisplayName() = %q", res.Account.DisplayName())
	}
	if !strings.Contains(authURL, "access_type=offline") || !strings.Contains(authURL, "prompt=consent") {
		t.Fatalf("auth url missing offline/consent params: %s", authURL)
	}

	if err := p.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if got, _ := f.revoked.Load().(string); got != "rt-1" {
		t.Fatalf("revoked token = %q, want rt-1", got)
	}
	if err := p.SignOut(context.Background()); err != nil {
		t.Fatalf("second SignOut should be a no-op, got %v", err)
	}
}

func TestSignIn_NoForcedConsent(t *testing.T) {
	f := newFakeGoogle(t)
	var authURL string
	p := newTestProvider(f, browserReturning(t, url.Values{"code": {"good-code"}}, &authURL))
	p.Configure("client-1.apps.googleusercontent.com", false)

	if res := p.SignIn(context.Background()); res.Type != domain.SignInSuccess {
		t.Fatalf("expected success, got %s: %v", res.Type, res.Err)
	}
	if strings.Contains(authURL, "prompt=consent") {
		t.Fatalf("consent should not be forced: %s", authURL)
	}
}

func TestSignIn_AccessDeniedIsCancelled(t *testing.T) {
	f := newFakeGoogle(t)
	p := newTestProvider(f, browserReturning(t, url.Values{"error": {"access_denied"}}, nil))

	logs := captureLogs(t)
	if res := p.SignIn(context.Background()); res.Type != domain.SignInCancelled {
		t.Fatalf("expected cancelled, got %s: %v", res.Type, res.Err)
	}
	if !strings.Contains(logs.String(), `"reason":"access_denied"`) {
		t.Fatalf("denial not logged with its reason: %s", logs.String())
	}
}

func TestSignIn_ContextCancelled(t *testing.T) {
	f := newFakeGoogle(t)
	ctx, cancel := context.WithCancel(context.Background())
	p := newTestProvider(f, func(string) error {
		cancel()
		return nil
	})

	if res := p.SignIn(ctx); res.Type != domain.SignInCancelled {
		t.Fatalf("expected cancelled, got %s: %v", res.Type, res.Err)
	}
}

type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// captureLogs routes the default logger into a buffer for one test.
func captureLogs(t *testing.T) *logBuffer {
	t.Helper()
	buf := &logBuffer{}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return buf
}

func TestSignIn_CallbackTimeoutIsCancelled(t *testing.T) {
	logs := captureLogs(t)
	f := newFakeGoogle(t)
	p := newTestProvider(f, func(string) error { return nil })
	p.opts.CallbackTimeout = 50 * time.Millisecond

	if res := p.SignIn(context.Background()); res.Type != domain.SignInCancelled {
		t.Fatalf("expected cancelled, got %s: %v", res.Type, res.Err)
	}
	out := logs.String()
	if !strings.Contains(out, `"reason":"callback_timeout"`) || !strings.Contains(out, `"level":"INFO"`) {
		t.Fatalf("timeout not logged with its reason: %s", out)
	}
}

func TestSignIn_Failures(t *testing.T) {
	tests := []struct {
		name   string
		params url.Values
	}{
		{name: "bad state", params: url.Values{"code": {"good-code"}, "state": {"forged"}}},
		{name: "exchange rejected", params: url.Values{"code": {"bad-code"}}},
		{name: "provider error", params: url.Values{"error": {"server_error"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeGoogle(t)
			p := newTestProvider(f, browserReturning(t, tt.params, nil))
			res := p.SignIn(context.Background())
			if res.Type != domain.SignInFailure || res.Err == nil {
				t.Fatalf("expected failure, got %s: %v", res.Type, res.Err)
			}
		})
	}
}

func TestSignIn_Unconfigured(t *testing.T) {
	p := NewProvider(Options{})
	if res := p.SignIn(context.Background()); res.Type != domain.SignInFailure {
		t.Fatalf("expected failure, got %s", res.Type)
	}
}
