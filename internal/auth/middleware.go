package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/olistqa/olistqa/internal/observability"
)

type contextKey string

const identityKey contextKey = "auth_identity"

const (
	APIKeyHeader = "X-API-Key"
	// OwnerHeader scopes sessions for anonymous callers when auth is off.
	OwnerHeader = "X-User-ID"
)

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// Owner is the session owner for r: the authenticated subject, else the
// OwnerHeader value. An authenticated caller cannot claim another owner
// through the header.
func Owner(r *http.Request) string {
	if identity, ok := IdentityFromContext(r.Context()); ok {
		if subject := strings.TrimSpace(identity.Subject); subject != "" {
			return subject
		}
	}
	return strings.TrimSpace(r.Header.Get(OwnerHeader))
}

// Middleware authenticates conversation requests by API key. The console
// sends X-API-Key; the CLI and scripts may use a bearer token instead.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := extractAPIKey(r)
			if apiKey == "" {
				writeUnauthorized(w, r, "missing API key")
				return
			}

			identity, ok := validator.Validate(r.Context(), apiKey)
			if !ok {
				if logger != nil {
					logger.WarnContext(r.Context(), "authentication failed",
						slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
						slog.String("route", observability.RouteFromContext(r.Context())),
						slog.String("claimed_owner", strings.TrimSpace(r.Header.Get(OwnerHeader))),
					)
				}
				writeUnauthorized(w, r, "invalid API key")
				return
			}
			if logger != nil {
				logger.DebugContext(r.Context(), "authenticated",
					slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
					slog.String("subject", identity.Subject),
				)
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="olistqa"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": "UNAUTHORIZED",
		"message":    message,
		"retryable":  false,
		"context":    map[string]any{"accepted_headers": []string{APIKeyHeader, "Authorization: Bearer"}},
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}
