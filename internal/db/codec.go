package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pysugar/homeauth/internal/db/models"
	"github.com/pysugar/homeauth/internal/domain"
)

// timestampLayout is fixed-width so lastLogin sorts lexically.
const timestampLayout = "2006-01-02T15:04:05.000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// EncodeAccount flattens an account into its cache row, marked active with
// lastLogin set to now.
func EncodeAccount(acct domain.Account, now time.Time) (models.LoggedAccount, error) {
	methods := acct.AuthMethods
	if methods == nil {
		methods = []domain.AuthMethod{}
	}
	rawMethods, err := json.Marshal(methods)
	if err != nil {
		return models.LoggedAccount{}, fmt.Errorf("encode authMethods: %w", err)
	}

	row := models.LoggedAccount{
		ID:          acct.ID,
		Name:        acct.DisplayName,
		Email:       acct.Email,
		Image:       acct.AvatarURL,
		AuthMethods: string(rawMethods),
		CreatedAt:   formatTimestamp(acct.CreatedAt),
		LastLogin:   formatTimestamp(now),
		IsActive:    true,
	}
	if acct.ProviderAuth != nil {
		raw, err := json.Marshal(acct.ProviderAuth)
		if err != nil {
			return models.LoggedAccount{}, fmt.Errorf("encode providerAuth: %w", err)
		}
		s := string(raw)
		row.ProviderAuth = &s
	}
	if acct.FaceAuth != nil {
		raw, err := json.Marshal(acct.FaceAuth)
		if err != nil {
			return models.LoggedAccount{}, fmt.Errorf("encode faceAuth: %w", err)
		}
		s := string(raw)
		row.FaceAuth = &s
	}
	return row, nil
}

// DecodeAccount rebuilds an account from its cache row. Any malformed field
// yields ErrDeserializationFailed. The external id is recovered from the
// provider record; device info is not cached.
func DecodeAccount(row models.LoggedAccount) (domain.Account, error) {
	acct := domain.Account{
		ID:          row.ID,
		DisplayName: row.Name,
		Email:       row.Email,
		AvatarURL:   row.Image,
	}

	var rawMethods []string
	if err := json.Unmarshal([]byte(row.AuthMethods), &rawMethods); err != nil {
		return domain.Account{}, fmt.Errorf("%w: authMethods: %v", domain.ErrDeserializationFailed, err)
	}
	for _, raw := range rawMethods {
		m, err := domain.ParseAuthMethod(raw)
		if err != nil {
			return domain.Account{}, fmt.Errorf("%w: %v", domain.ErrDeserializationFailed, err)
		}
		acct.AuthMethods = append(acct.AuthMethods, m)
	}

	if row.ProviderAuth != nil && *row.ProviderAuth != "" {
		var pa domain.ProviderAuth
		if err := json.Unmarshal([]byte(*row.ProviderAuth), &pa); err != nil {
			return domain.Account{}, fmt.Errorf("%w: providerAuth: %v", domain.ErrDeserializationFailed, err)
		}
		acct.ProviderAuth = &pa
		acct.ExternalID = pa.ProviderID
	}
	if row.FaceAuth != nil && *row.FaceAuth != "" {
		var fa domain.FaceAuth
		if err := json.Unmarshal([]byte(*row.FaceAuth), &fa); err != nil {
			return domain.Account{}, fmt.Errorf("%w: faceAuth: %v", domain.ErrDeserializationFailed, err)
		}
		acct.FaceAuth = &fa
	}

	createdAt, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
	if err != nil {
		return domain.Account{}, fmt.Errorf("%w: createdAt: %v", domain.ErrDeserializationFailed, err)
	}
	acct.CreatedAt = createdAt
	return acct, nil
}
