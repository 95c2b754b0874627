package google

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// callbackResult is what the browser handed back to the loopback server.
type callbackResult struct {
	code   string
	denied bool
	err    error
}

// startCallbackServer starts a temporary loopback HTTP server to receive the
// OAuth callback. It tries preferredPort first and falls back to a random
// port. The returned channel yields exactly one result.
func startCallbackServer(preferredPort int, state string) (actualPort int, results <-chan callbackResult, shutdown func(), err error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", preferredPort))
	if err != nil {
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return 0, nil, nil, fmt.Errorf("failed to start callback server: %w", err)
		}
		slog.Debug("preferred callback port in use, using random port", "operation", "sign_in", "port", preferredPort)
	}
	actualPort = listener.Addr().(*net.TCPAddr).Port

	resultChannel := make(chan callbackResult, 1)
	var once sync.Once
	deliver := func(res callbackResult) bool {
		delivered := false
		once.Do(func() {
			resultChannel <- res
			delivered = true
		})
		return delivered
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth-callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res callbackResult
		switch {
		case q.Get("error") == "access_denied":
			res = callbackResult{denied: true}
		case q.Get("error") != "":
			res = callbackResult{err: fmt.Errorf("authorization error: %s", q.Get("error"))}
		case q.Get("state") != state:
			res = callbackResult{err: errors.New("invalid state token")}
		case q.Get("code") == "":
			res = callbackResult{err: errors.New("missing authorization code")}
		default:
			res = callbackResult{code: q.Get("code")}
		}

		if !deliver(res) {
			http.Error(w, "Callback already processed", http.StatusBadRequest)
			return
		}
		if res.err != nil {
			http.Error(w, res.err.Error(), http.StatusBadRequest)
			return
		}

		title := "Signed in"
		message := "You can close this window and return to the app."
		if res.denied {
			title = "Sign-in cancelled"
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>%s</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 50px;">
	<h1>%s</h1>
	<p>%s</p>
</body>
</html>`, html.EscapeString(title), html.EscapeString(title), html.EscapeString(message))
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			slog.Error("callback server error", "operation", "sign_in", "error", err)
		}
	}()

	var stopOnce sync.Once
	shutdown = func() {
		stopOnce.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				slog.Warn("error shutting down callback server", "operation", "sign_in", "error", err)
			}
		})
	}

	return actualPort, resultChannel, shutdown, nil
}
