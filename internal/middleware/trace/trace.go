// Package trace assigns request IDs and logs request completion.
package trace

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"kincore/internal/log"
)

type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"

	// HeaderRequestID is read from the request and echoed on the response.
	HeaderRequestID = "X-Request-ID"
)

// Middleware handles request tracing and logging
type Middleware struct {
	extractIP func(*http.Request) string
	metrics   *Metrics
}

// Metrics tracks request metrics
type Metrics struct {
	TotalRequests   int64 `json:"total_requests"`
	ServerErrors    int64 `json:"server_errors"`
	TotalDurationMs int64 `json:"total_duration_ms"`
}

// AverageDurationMs is the mean request duration so far.
func (m Metrics) AverageDurationMs() int64 {
	if m.TotalRequests == 0 {
		return 0
	}
	return m.TotalDurationMs / m.TotalRequests
}

func NewMiddleware(extractIP func(*http.Request) string) *Middleware {
	return &Middleware{
		extractIP: extractIP,
		metrics:   &Metrics{},
	}
}

// Middleware tags the request with an ID, attaches it to the context logger
// and logs completion at a level derived from the status.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	traced := log.RequestIDMiddleware(func(r *http.Request) string {
		return GetRequestID(r.Context())
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		log.FromContext(ctx).DebugContext(ctx, "HTTP request started",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldClientIP, clientIP)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		durationMs := time.Since(start).Milliseconds()
		atomic.AddInt64(&m.metrics.TotalRequests, 1)
		atomic.AddInt64(&m.metrics.TotalDurationMs, durationMs)
		if rw.statusCode >= 500 {
			atomic.AddInt64(&m.metrics.ServerErrors, 1)
		}

		log.LogHTTPEnd(ctx, r, rw.statusCode, durationMs, clientIP)
	}))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := incomingRequestID(r)
		if requestID == "" {
			requestID = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		traced.ServeHTTP(w, r.WithContext(ctx))
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// incomingRequestID accepts a caller-supplied ID only when it is a UUID.
func incomingRequestID(r *http.Request) string {
	id := r.Header.Get(HeaderRequestID)
	if id == "" {
		return ""
	}
	if _, err := uuid.Parse(id); err != nil {
		return ""
	}
	return id
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	return uuid.NewString()
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetMetrics returns current metrics
func (m *Middleware) GetMetrics() Metrics {
	return Metrics{
		TotalRequests:   atomic.LoadInt64(&m.metrics.TotalRequests),
		ServerErrors:    atomic.LoadInt64(&m.metrics.ServerErrors),
		TotalDurationMs: atomic.LoadInt64(&m.metrics.TotalDurationMs),
	}
}
