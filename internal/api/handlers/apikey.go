package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/pysugar/homeauth/internal/db"
	"gorm.io/gorm"
)

// GetAPIKeyHandler returns the masked local API key
// GET /api/config/apikey
func GetAPIKeyHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"api_key": MaskAPIKey(db.GetAPIKey(database)),
			"masked":  true,
		})
	}
}

// RegenerateAPIKeyHandler rotates the local API key and returns it once in
// clear.
// POST /api/config/apikey/regenerate
func RegenerateAPIKeyHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey, err := db.RegenerateAPIKey(database)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to regenerate API key")
			return
		}
		slog.Info("regenerated API key", "operation", "regenerate_api_key", "api_key", MaskAPIKey(apiKey))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"api_key": apiKey,
			"masked":  false,
		})
	}
}

// MaskAPIKey keeps the prefix and the last four characters.
func MaskAPIKey(apiKey string) string {
	if len(apiKey) <= 10 {
		return "***"
	}
	return apiKey[:6] + strings.Repeat("*", len(apiKey)-10) + apiKey[len(apiKey)-4:]
}
