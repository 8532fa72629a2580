package api

import (
	"context"

	"github.com/lei/rundeck-notify/pkg/logger"
)

// contextKey keeps request-scoped values from colliding with other
// packages' context keys
type contextKey int

const (
	contextKeyRequestID contextKey = iota
	contextKeyLogger
	contextKeyAPIKeyName
)

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

// GetLogger retrieves the request-scoped logger from context. After
// authentication the logger also carries the caller's api key name.
func GetLogger(ctx context.Context) *logger.Logger {
	log, _ := ctx.Value(contextKeyLogger).(*logger.Logger)
	return log
}

// GetAPIKeyName retrieves the name of the authenticated API key. It is
// empty on unauthenticated routes.
func GetAPIKeyName(ctx context.Context) string {
	name, _ := ctx.Value(contextKeyAPIKeyName).(string)
	return name
}
