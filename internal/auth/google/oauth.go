package google

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"
)

// Scopes needed to identify the signed-in user.
var Scopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

const (
	// DefaultCallbackPort is the preferred loopback callback port.
	DefaultCallbackPort = 51121
	// DefaultCallbackTimeout is how long to wait for the OAuth callback.
	DefaultCallbackTimeout = 5 * time.Minute

	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	defaultRevokeURL   = "https://oauth2.googleapis.com/revoke"
)

// Options holds the provider's static wiring. Zero values select Google's
// production endpoints.
type Options struct {
	ClientSecret    string
	CallbackPort    int
	CallbackTimeout time.Duration
	Endpoint        oauth2.Endpoint
	UserInfoURL     string
	RevokeURL       string
	HTTPClient      *http.Client
	OpenBrowser     func(url string) error
}

// Provider signs users in with Google over a loopback redirect.
type Provider struct {
	opts Options

	mu            sync.Mutex
	clientID      string
	forceRotation bool
	token         *oauth2.Token
}

// NewProvider creates an unconfigured provider; call Configure before
// SignIn.
func NewProvider(opts Options) *Provider {
	if opts.CallbackPort <= 0 {
		opts.CallbackPort = DefaultCallbackPort
	}
	if opts.CallbackTimeout <= 0 {
		opts.CallbackTimeout = DefaultCallbackTimeout
	}
	if opts.Endpoint.AuthURL == "" {
		opts.Endpoint = googleOAuth.Endpoint
	}
	if opts.UserInfoURL == "" {
		opts.UserInfoURL = defaultUserInfoURL
	}
	if opts.RevokeURL == "" {
		opts.RevokeURL = defaultRevokeURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = OpenBrowser
	}
	return &Provider{opts: opts}
}

// Configure sets the OAuth web client id and whether every sign-in must
// re-prompt for consent to rotate the refresh token.
func (p *Provider) Configure(webClientID string, forceRefreshTokenRotation bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = strings.TrimSpace(webClientID)
	p.forceRotation = forceRefreshTokenRotation
}

// Configured reports whether a client id has been set.
func (p *Provider) Configured() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientID != ""
}

// oauthConfig returns the OAuth2 config for one redirect URL.
func (p *Provider) oauthConfig(redirectURL string) *oauth2.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &oauth2.Config{
		ClientID:     p.clientID,
		ClientSecret: p.opts.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     p.opts.Endpoint,
	}
}
