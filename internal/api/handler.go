package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/olistqa/olistqa/internal/assistant"
	"github.com/olistqa/olistqa/internal/config"
	"github.com/olistqa/olistqa/internal/observability"
	"github.com/olistqa/olistqa/internal/query"
	"github.com/olistqa/olistqa/internal/session"
)

type ReadinessCheck func(ctx context.Context) error

// Conversations is the turn-handling surface the API exposes.
type Conversations interface {
	CreateSession(ctx context.Context, owner string) (session.Session, error)
	History(ctx context.Context, sessionID, owner string) (session.Session, error)
	HandleTurn(ctx context.Context, sessionID, owner, question string) (assistant.TurnResult, error)
}

type DatasetDescriber interface {
	Describe(ctx context.Context) (query.TableInfo, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Conversations     Conversations
	Dataset           DatasetDescriber
	UI                http.Handler
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, handler http.Handler) {
		mux.Handle(pattern, observability.Route(pattern, handler))
	}

	handle("GET /v1/health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	}))

	handle("GET /v1/ready", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}))

	handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("GET /v1/dataset", func(w http.ResponseWriter, r *http.Request) {
		handleDataset(deps, w, r)
	})
	protected.HandleFunc("POST /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		handleCreateSession(deps, w, r)
	})
	protected.HandleFunc("GET /v1/sessions/{session}", func(w http.ResponseWriter, r *http.Request) {
		handleGetSession(deps, w, r)
	})
	protected.HandleFunc("POST /v1/sessions/{session}/turns", func(w http.ResponseWriter, r *http.Request) {
		handleCreateTurn(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	handle("GET /v1/dataset", protectedHandler)
	handle("POST /v1/sessions", protectedHandler)
	handle("GET /v1/sessions/{session}", protectedHandler)
	handle("POST /v1/sessions/{session}/turns", protectedHandler)
	if deps.UI != nil {
		handle("GET /{path...}", deps.UI)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckSessionStore(store session.Store) ReadinessCheck {
	return func(ctx context.Context) error {
		if store == nil {
			return errors.New("session store is not configured")
		}
		return store.HealthCheck(ctx)
	}
}

func CheckWorkingTable(dataset DatasetDescriber) ReadinessCheck {
	return func(ctx context.Context) error {
		if dataset == nil {
			return errors.New("working table is not loaded")
		}
		_, err := dataset.Describe(ctx)
		return err
	}
}

func CheckCompletionConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.AI.APIKey == "" && cfg.AI.Provider == config.ProviderGemini {
			return errors.New("completion api key is not configured")
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Dataset.Source != config.DatasetSourceObject {
			return nil
		}
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

// writeJSON falls back to a 500 envelope when payload cannot be encoded.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(map[string]any{
			"error_code": "RESPONSE_ENCODING_FAILED",
			"message":    "response could not be encoded: " + err.Error(),
			"retryable":  false,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
