// Package domain holds the account, device and session shapes shared by the
// directory, the local cache and the reconciliation engine.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// AuthMethod is a way an account can authenticate.
type AuthMethod string

const (
	AuthMethodGoogle AuthMethod = "google"

	// AuthMethodFace is reserved; it is never written by reconciliation but
	// must survive every read/write path untouched.
	AuthMethodFace AuthMethod = "face"
)

// ParseAuthMethod validates a stored auth method value.
func ParseAuthMethod(raw string) (AuthMethod, error) {
	switch m := AuthMethod(raw); m {
	case AuthMethodGoogle, AuthMethodFace:
		return m, nil
	default:
		return "", fmt.Errorf("unknown auth method %q", raw)
	}
}

// MergeAuthMethods returns the union of current and added, preserving the
// order of first appearance.
func MergeAuthMethods(current, added []AuthMethod) []AuthMethod {
	seen := make(map[AuthMethod]bool, len(current)+len(added))
	out := make([]AuthMethod, 0, len(current)+len(added))
	for _, m := range append(append([]AuthMethod{}, current...), added...) {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// ProviderAuth is the per-provider verification record, overwritten on every
// successful sign-in with that provider.
type ProviderAuth struct {
	Email          string     `json:"email"`
	ProviderID     string     `json:"providerId"`
	Verified       bool       `json:"verified"`
	LastVerifiedAt *time.Time `json:"lastVerifiedAt"`
}

// FaceEmbedding is one enrolled face vector.
type FaceEmbedding struct {
	ID        string    `json:"id"`
	Vector    []float64 `json:"vector"`
	CreatedAt time.Time `json:"createdAt"`
}

// FaceAuth holds face enrollment data.
type FaceAuth struct {
	Embeddings     []FaceEmbedding `json:"embeddings"`
	LastVerifiedAt *time.Time      `json:"lastVerifiedAt"`
}

// Location is IP-derived geolocation. Every field is optional.
type Location struct {
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	Address    string   `json:"address,omitempty"`
	City       string   `json:"city,omitempty"`
	Country    string   `json:"country,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Region     string   `json:"region,omitempty"`
}

// DeviceInfo is best-effort device and network metadata. Absent fields are
// valid.
type DeviceInfo struct {
	DeviceID   string    `json:"deviceId,omitempty"`
	Brand      string    `json:"brand,omitempty"`
	Model      string    `json:"model,omitempty"`
	OSName     string    `json:"osName,omitempty"`
	OSVersion  string    `json:"osVersion,omitempty"`
	AppVersion string    `json:"appVersion,omitempty"`
	IsEmulator bool      `json:"isEmulator"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	Location   *Location `json:"location,omitempty"`
}

// IsZero reports whether no field was collected.
func (d DeviceInfo) IsZero() bool {
	return d.DeviceID == "" && d.Brand == "" && d.Model == "" && d.OSName == "" &&
		d.OSVersion == "" && d.AppVersion == "" && !d.IsEmulator && d.IPAddress == "" && d.Location == nil
}

// Account is the canonical directory record.
type Account struct {
	ID           string        `json:"id"`
	ExternalID   string        `json:"externalId"`
	DisplayName  string        `json:"displayName"`
	Email        string        `json:"email"`
	AvatarURL    string        `json:"avatarUrl"`
	AuthMethods  []AuthMethod  `json:"authMethods"`
	ProviderAuth *ProviderAuth `json:"providerAuth,omitempty"`
	FaceAuth     *FaceAuth     `json:"faceAuth,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	DeviceInfo   *DeviceInfo   `json:"deviceInfo,omitempty"`
}

// HasAuthMethod reports whether m is enabled on the account.
func (a Account) HasAuthMethod(m AuthMethod) bool {
	for _, have := range a.AuthMethods {
		if have == m {
			return true
		}
	}
	return false
}

// AccountDraft is the input to a directory create. ID and CreatedAt are
// assigned by the directory.
type AccountDraft struct {
	ExternalID   string
	DisplayName  string
	Email        string
	AvatarURL    string
	AuthMethods  []AuthMethod
	ProviderAuth *ProviderAuth
	DeviceInfo   *DeviceInfo
}

// AccountPatch is a partial update. Nil fields are left unchanged and
// AuthMethods is merged into the existing set, never replacing it.
type AccountPatch struct {
	DisplayName  *string
	Email        *string
	AvatarURL    *string
	AuthMethods  []AuthMethod
	ProviderAuth *ProviderAuth
	FaceAuth     *FaceAuth
	DeviceInfo   *DeviceInfo
}

// IsEmpty reports whether the patch changes nothing.
func (p AccountPatch) IsEmpty() bool {
	return p.DisplayName == nil && p.Email == nil && p.AvatarURL == nil && len(p.AuthMethods) == 0 &&
		p.ProviderAuth == nil && p.FaceAuth == nil && p.DeviceInfo == nil
}

// ForeignAccount is what the OAuth provider returns on a successful sign-in.
type ForeignAccount struct {
	ID            string `json:"id"`
	GivenName     string `json:"givenName"`
	FamilyName    string `json:"familyName"`
	Email         string `json:"email"`
	PhotoURL      string `json:"photoUrl"`
	EmailVerified bool   `json:"emailVerified"`
}

// DisplayName joins given and family names, falling back to the email.
func (f ForeignAccount) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(f.GivenName) + " " + strings.TrimSpace(f.FamilyName))
	if name == "" {
		return f.Email
	}
	return name
}

// SignInResultType enumerates provider sign-in outcomes.
type SignInResultType string

const (
	SignInSuccess   SignInResultType = "success"
	SignInCancelled SignInResultType = "cancelled"
	SignInFailure   SignInResultType = "failure"
)

// SignInResult is the provider's answer to a sign-in request. Err is only
// meaningful for SignInFailure.
type SignInResult struct {
	Type    SignInResultType
	Account ForeignAccount
	Err     error
}

// Intent is the caller's stated goal for a reconciliation attempt.
type Intent string

const (
	IntentLogin  Intent = "login"
	IntentSignup Intent = "signup"
)

// ParseIntent validates an intent string.
func ParseIntent(raw string) (Intent, error) {
	switch i := Intent(strings.ToLower(strings.TrimSpace(raw))); i {
	case IntentLogin, IntentSignup:
		return i, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidIntent, raw)
	}
}
