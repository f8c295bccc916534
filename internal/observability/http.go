package observability

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const traceHeader = "X-Trace-ID"

// UnmatchedRoute labels requests no registered pattern served: 404s, 405s
// and anything rejected before routing.
const UnmatchedRoute = "unmatched"

type routeKey struct{}

// routeSlot is filled in by Route once the mux has picked a handler.
type routeSlot struct {
	pattern string
}

func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceHeader)
		if traceID == "" {
			traceID = newTraceID()
		}
		ctx := ContextWithTraceID(r.Context(), traceID)
		w.Header().Set(traceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Route records pattern as the route of every request next serves. Register
// handlers through it so metrics and access logs see "/v1/sessions/{session}"
// rather than one series per session.
func Route(pattern string, next http.Handler) http.Handler {
	route := routeLabel(pattern)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if slot, ok := r.Context().Value(routeKey{}).(*routeSlot); ok {
			slot.pattern = route
		}
		next.ServeHTTP(w, r)
	})
}

// RouteFromContext returns the route recorded for the request so far.
func RouteFromContext(ctx context.Context) string {
	if slot, ok := ctx.Value(routeKey{}).(*routeSlot); ok && slot.pattern != "" {
		return slot.pattern
	}
	return UnmatchedRoute
}

func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			r = withRouteSlot(r)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			level := slog.LevelInfo
			if recorder.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(r.Context(), level, "http_request",
				slog.String("trace_id", TraceIDFromContext(r.Context())),
				slog.String("method", r.Method),
				slog.String("route", RouteFromContext(r.Context())),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				slog.Int("status", recorder.status),
				slog.String("duration", time.Since(start).String()),
				slog.Int("bytes", recorder.bytes),
			)
		})
	}
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		r = withRouteSlot(r)
		httpInflightRequests.Inc()
		defer httpInflightRequests.Dec()

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := RouteFromContext(r.Context())
		status := strconv.Itoa(recorder.status)
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		httpRequestDurationMs.WithLabelValues(r.Method, route).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// withRouteSlot installs an empty slot unless an outer middleware already did.
func withRouteSlot(r *http.Request) *http.Request {
	if _, ok := r.Context().Value(routeKey{}).(*routeSlot); ok {
		return r
	}
	return r.WithContext(context.WithValue(r.Context(), routeKey{}, &routeSlot{}))
}

// routeLabel strips the method from a mux pattern: "POST /v1/sessions" is
// labelled "/v1/sessions" since the method is its own label.
func routeLabel(pattern string) string {
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return strings.TrimSpace(path)
	}
	return pattern
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(body []byte) (int, error) {
	n, err := r.ResponseWriter.Write(body)
	r.bytes += n
	return n, err
}

func newTraceID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(buf)
}
