package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/lei/rundeck-notify/internal/config"
	"github.com/lei/rundeck-notify/pkg/logger"
)

// AuthMiddleware validates bearer API keys. The name of the matched key
// is attached to the request context and folded into the request-scoped
// logger so every later log line identifies the caller.
type AuthMiddleware struct {
	apiKeys map[string]string // key -> name
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(keys []config.APIKey) *AuthMiddleware {
	keyMap := make(map[string]string, len(keys))
	for _, k := range keys {
		keyMap[k.Key] = k.Name
	}
	return &AuthMiddleware{apiKeys: keyMap}
}

// Authenticate validates the API key from the Authorization header
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := GetLogger(r.Context())

		key, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			if log != nil {
				log.Warn("authentication failed: missing or malformed authorization header")
			}
			respondError(w, r, http.StatusUnauthorized, "expected 'Authorization: Bearer <api key>'")
			return
		}

		name, valid := m.apiKeys[key]
		if !valid {
			if log != nil {
				log.Warn("authentication failed: unknown api key", "key_prefix", keyPrefix(key))
			}
			respondError(w, r, http.StatusUnauthorized, "invalid api key")
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyAPIKeyName, name)
		if log != nil {
			ctx = context.WithValue(ctx, contextKeyLogger, log.With("api_key", name))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the credential from a "Bearer <token>" header
func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// keyPrefix truncates a key for logging, full keys never hit the logs
func keyPrefix(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}

// LoggingMiddleware injects a request-scoped logger and records one
// line per completed request
type LoggingMiddleware struct {
	logger *logger.Logger
}

// NewLoggingMiddleware creates a new logging middleware
func NewLoggingMiddleware(logger *logger.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

// Handler wraps HTTP handlers with logging
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		if requestID == "" {
			requestID = "unknown"
		}

		reqLogger := m.logger.With(
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
		)

		ctx := context.WithValue(r.Context(), contextKeyLogger, reqLogger)
		ctx = context.WithValue(ctx, contextKeyRequestID, requestID)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		defer func() {
			fields := []interface{}{
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"bytes_written", sw.bytes,
			}
			switch {
			case sw.status >= 500:
				reqLogger.Error("request completed", fields...)
			case sw.status >= 400:
				reqLogger.Warn("request completed", fields...)
			default:
				reqLogger.Info("request completed", fields...)
			}
		}()

		next.ServeHTTP(sw, r.WithContext(ctx))
	})
}

// statusWriter captures the status code and response size
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += n
	return n, err
}

// Unwrap exposes the underlying writer so http.ResponseController can
// reach the connection's deadline controls
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
