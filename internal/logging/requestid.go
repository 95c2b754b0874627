// Package logging configures slog and carries per-request log context.
package logging

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

type ctxKey struct{}

// maxRequestIDLen bounds caller-supplied request ids.
const maxRequestIDLen = 64

// GenerateRequestID returns a new random request id.
func GenerateRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// ValidRequestID reports whether a caller-supplied id is safe to echo and
// log: 1 to 64 characters of letters, digits, '-' or '_'.
func ValidRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// WithRequestID stores the request id in ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, requestID)
}

// GetRequestID returns the request id stored in ctx, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// FromContext returns the default logger, tagged with request_id when ctx
// carries one.
func FromContext(ctx context.Context) *slog.Logger {
	if id := GetRequestID(ctx); id != "" {
		return slog.Default().With("request_id", id)
	}
	return slog.Default()
}
