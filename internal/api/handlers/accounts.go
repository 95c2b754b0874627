package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/homeauth/internal/db"
	"github.com/pysugar/homeauth/internal/directory"
	"github.com/pysugar/homeauth/internal/domain"
	"github.com/pysugar/homeauth/internal/logging"
	"github.com/pysugar/homeauth/internal/session"
)

// LocalAccountView is one cached account as shown to the account switcher.
type LocalAccountView struct {
	Account   domain.Account `json:"account"`
	LastLogin string         `json:"last_login"`
	IsActive  bool           `json:"is_active"`
}

// LocalAccountsHandler lists cached accounts, most recent first. Corrupt
// rows are skipped.
// GET /api/accounts/local
func LocalAccountsHandler(cache *db.SessionCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := cache.ListAll(r.Context())
		if err != nil {
			logging.FromContext(r.Context()).Error("list cached accounts failed", "operation", "list_local", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to read local accounts")
			return
		}

		views := make([]LocalAccountView, 0, len(rows))
		for _, row := range rows {
			acct, err := db.DecodeAccount(row)
			if err != nil {
				logging.FromContext(r.Context()).Warn("skipping corrupt cached account", "operation", "list_local", "account_id", row.ID, "error", err)
				continue
			}
			views = append(views, LocalAccountView{Account: acct, LastLogin: row.LastLogin, IsActive: row.IsActive})
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"accounts": views,
			"count":    len(views),
		})
	}
}

// ActivateLocalAccountHandler switches the active cached account.
// POST /api/accounts/local/{id}/activate
func ActivateLocalAccountHandler(cache *db.SessionCache, state *session.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := cache.SetActive(r.Context(), id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Account not found")
				return
			}
			logging.FromContext(r.Context()).Error("activate cached account failed", "operation", "activate_local", "account_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to switch account")
			return
		}

		row, err := cache.GetActive(r.Context())
		if err != nil || row == nil {
			writeError(w, http.StatusInternalServerError, "Failed to switch account")
			return
		}
		acct, err := db.DecodeAccount(*row)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, domain.UserMessage(err))
			return
		}
		state.Set(&acct)

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "activated",
			"account": acct,
		})
	}
}

// RemoveLocalAccountHandler forgets a cached account. Removing the active
// one signs the session out.
// DELETE /api/accounts/local/{id}
func RemoveLocalAccountHandler(cache *db.SessionCache, state *session.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := cache.Remove(r.Context(), id); err != nil {
			logging.FromContext(r.Context()).Error("remove cached account failed", "operation", "remove_local", "account_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to remove account")
			return
		}
		if cur := state.Current(); cur != nil && cur.ID == id {
			state.Clear()
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "removed"})
	}
}

// DirectoryAccountsHandler lists the directory.
// GET /api/accounts
func DirectoryAccountsHandler(dir *directory.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := dir.List(r.Context())
		if err != nil {
			logging.FromContext(r.Context()).Warn("list directory failed", "operation", "list_directory", "error", err)
			writeError(w, http.StatusBadGateway, domain.UserMessage(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"accounts": accounts,
			"count":    len(accounts),
		})
	}
}

// DirectoryStreamHandler streams directory snapshots as Server-Sent Events
// until the client disconnects.
// GET /api/accounts/stream
func DirectoryStreamHandler(dir *directory.Client, interval time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "Streaming unsupported")
			return
		}

		SetSSEHeaders(w)
		for accounts := range dir.ObserveAll(r.Context(), interval) {
			payload, err := json.Marshal(accounts)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: accounts\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
