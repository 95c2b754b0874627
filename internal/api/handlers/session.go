package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/homeauth/internal/domain"
	"github.com/pysugar/homeauth/internal/logging"
	"github.com/pysugar/homeauth/internal/session"
)

// Response statuses of the reconcile endpoints.
const (
	StatusSignedIn             = "signed_in"
	StatusConfirmationRequired = "confirmation_required"
	StatusCancelled            = "cancelled"
	StatusDeclined             = "declined"
)

// ReconcileHandler starts a reconciliation.
// POST /api/session/reconcile {"intent": "login"|"signup"}
func ReconcileHandler(engine *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Intent string `json:"intent"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		intent, err := domain.ParseIntent(req.Intent)
		if err != nil {
			writeError(w, http.StatusBadRequest, `intent must be "login" or "signup"`)
			return
		}

		out, err := engine.Begin(r.Context(), intent)
		writeOutcome(w, r, out, err)
	}
}

// ConfirmHandler answers a pending confirmation.
// POST /api/session/confirmations/{token} {"accepted": bool}
func ConfirmHandler(engine *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Accepted *bool `json:"accepted"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Accepted == nil {
			writeError(w, http.StatusBadRequest, `body must be {"accepted": true|false}`)
			return
		}

		out, err := engine.Resolve(r.Context(), chi.URLParam(r, "token"), *req.Accepted)
		writeOutcome(w, r, out, err)
	}
}

// CurrentSessionHandler returns the signed-in account.
// GET /api/session
func CurrentSessionHandler(engine *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct := engine.State().Current()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"signed_in": acct != nil,
			"account":   acct,
		})
	}
}

// SignOutHandler ends the session.
// DELETE /api/session
func SignOutHandler(engine *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := engine.SignOut(r.Context()); err != nil {
			logging.FromContext(r.Context()).Error("sign out failed", "operation", "sign_out", "error", err)
			writeError(w, http.StatusInternalServerError, domain.UserMessage(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "signed_out"})
	}
}

// SessionStreamHandler streams session changes as Server-Sent Events.
// GET /api/session/stream
func SessionStreamHandler(engine *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "Streaming unsupported")
			return
		}
		snapshots, unsubscribe := engine.State().Subscribe()
		defer unsubscribe()

		SetSSEHeaders(w)
		for {
			select {
			case <-r.Context().Done():
				return
			case snap, ok := <-snapshots:
				if !ok {
					return
				}
				payload, _ := json.Marshal(map[string]interface{}{
					"signed_in": snap.Account != nil,
					"account":   snap.Account,
				})
				fmt.Fprintf(w, "event: session\ndata: %s\n\n", payload)
				flusher.Flush()
			}
		}
	}
}

// DeviceHandler returns the collected device metadata.
// GET /api/device
func DeviceHandler(engine *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, engine.DeviceInfo(r.Context()))
	}
}

// writeOutcome maps an engine result onto the HTTP response. Cancelled and
// declined are normal answers, not errors.
func writeOutcome(w http.ResponseWriter, r *http.Request, out session.Outcome, err error) {
	switch {
	case err == nil && out.Pending != nil:
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"status":     StatusConfirmationRequired,
			"token":      out.Pending.Token,
			"prompt":     out.Pending.Prompt,
			"message":    out.Pending.Message,
			"expires_at": out.Pending.ExpiresAt,
		})
	case err == nil:
		body := map[string]interface{}{
			"status":  StatusSignedIn,
			"account": out.Account,
		}
		if out.CacheErr != nil {
			body["warning"] = domain.UserMessage(out.CacheErr)
		}
		writeJSON(w, http.StatusOK, body)
	case errors.Is(err, domain.ErrUserCancelled):
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": StatusCancelled})
	case errors.Is(err, domain.ErrDeclined):
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": StatusDeclined})
	case errors.Is(err, domain.ErrInvalidIntent):
		writeError(w, http.StatusBadRequest, `intent must be "login" or "signup"`)
	case errors.Is(err, domain.ErrReconcileInProgress):
		writeError(w, http.StatusConflict, domain.UserMessage(err))
	case errors.Is(err, domain.ErrUnknownConfirmation):
		writeError(w, http.StatusNotFound, domain.UserMessage(err))
	default:
		logging.FromContext(r.Context()).Warn("reconciliation failed", "operation", "reconcile", "error", err)
		writeError(w, http.StatusBadGateway, domain.UserMessage(err))
	}
}
