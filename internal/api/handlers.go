package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lei/rundeck-notify/internal/models"
	"github.com/lei/rundeck-notify/internal/notifier"
	"github.com/lei/rundeck-notify/internal/rundeck"
	"github.com/lei/rundeck-notify/internal/service"
)

// Handlers contains HTTP handler functions
type Handlers struct {
	service *service.Service
}

// NewHandlers creates a new handlers instance
func NewHandlers(svc *service.Service) *Handlers {
	return &Handlers{service: svc}
}

// Health handles health check requests
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ListSites handles GET /v1/sites
func (h *Handlers) ListSites(w http.ResponseWriter, r *http.Request) {
	sites := h.service.ListSites(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"sites": sites,
	})
}

// TestSite handles POST /v1/sites/{site}/test
func (h *Handlers) TestSite(w http.ResponseWriter, r *http.Request) {
	logger := GetLogger(r.Context())
	site := chi.URLParam(r, "site")

	if logger != nil {
		logger.Debug("testing site connection", "site", site)
	}

	if err := h.service.TestSite(r.Context(), site); err != nil {
		handleServiceError(w, r, err)
		return
	}

	if logger != nil {
		logger.Info("site connection verified", "site", site)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"detail": "instance is alive and credentials are valid",
	})
}

// NotifyRequest is the body of a notification request
type NotifyRequest struct {
	Step  notifier.StepConfig `json:"step"`
	Build models.BuildInfo    `json:"build"`
}

// Notify handles POST /v1/sites/{site}/notify and POST /v1/notify
func (h *Handlers) Notify(w http.ResponseWriter, r *http.Request) {
	logger := GetLogger(r.Context())
	site := chi.URLParam(r, "site")

	// a waiting notification holds the connection across many poll
	// intervals; lift the server-wide write deadline so the outcome
	// still reaches the caller. The request timeout middleware keeps
	// bounding the wait itself.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && logger != nil {
		logger.Warn("could not clear the write deadline", "error", err)
	}

	var req NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if logger != nil {
			logger.Warn("invalid request body", "error", err)
		}
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Step.JobIdentifier == "" {
		respondError(w, r, http.StatusBadRequest, "step.job_identifier is mandatory")
		return
	}

	if logger != nil {
		logger.Debug("decoded notify request",
			"site", site,
			"job_identifier", req.Step.JobIdentifier,
			"wait", req.Step.WaitForCompletion)
	}

	outcome, err := h.service.Notify(r.Context(), site, req.Step, req.Build)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if logger != nil {
		logger.Info("notification processed",
			"site", site,
			"api_key", GetAPIKeyName(r.Context()),
			"invocation_id", outcome.InvocationID,
			"notified", outcome.Notified,
			"success", outcome.Success)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"outcome": outcome,
	})
}

// GetExecution handles GET /v1/sites/{site}/executions/{execution_id}
func (h *Handlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	logger := GetLogger(r.Context())
	site := chi.URLParam(r, "site")
	executionIDStr := chi.URLParam(r, "execution_id")

	executionID, err := strconv.ParseInt(executionIDStr, 10, 64)
	if err != nil {
		if logger != nil {
			logger.Warn("invalid execution_id", "execution_id", executionIDStr)
		}
		respondError(w, r, http.StatusBadRequest, "invalid execution_id")
		return
	}

	exec, err := h.service.GetExecution(r.Context(), site, executionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if logger != nil {
		logger.Debug("execution retrieved",
			"site", site,
			"execution_id", executionID,
			"status", exec.Status)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"execution": exec,
	})
}

// respondError writes a JSON error response with logging
func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	logger := GetLogger(r.Context())
	requestID := GetRequestID(r.Context())

	if logger != nil {
		logger.Error("returning error response",
			"status", status,
			"message", message,
			"request_id", requestID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message":    message,
			"code":       status,
			"request_id": requestID,
		},
	})
}

// handleServiceError maps service and rundeck errors to HTTP responses
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := GetLogger(r.Context())
	requestID := GetRequestID(r.Context())

	if logger != nil {
		logger.Error("service error occurred",
			"error", err.Error(),
			"error_type", fmt.Sprintf("%T", err),
			"request_id", requestID)
	}

	switch {
	case errors.Is(err, service.ErrSiteNotFound):
		respondError(w, r, http.StatusNotFound, "site not found")
	case errors.Is(err, service.ErrNoDefaultSite):
		respondError(w, r, http.StatusBadRequest, "no default site, name one explicitly")
	case errors.Is(err, rundeck.ErrJobNotFound):
		respondError(w, r, http.StatusNotFound, "job not found on rundeck")
	case errors.Is(err, rundeck.ErrExecutionNotFound):
		respondError(w, r, http.StatusNotFound, "execution not found on rundeck")
	case errors.Is(err, rundeck.ErrUnreachable):
		respondError(w, r, http.StatusBadGateway, "rundeck instance is not responding")
	case errors.Is(err, rundeck.ErrLoginFailed):
		respondError(w, r, http.StatusBadGateway, "rundeck rejected the configured login")
	case errors.Is(err, rundeck.ErrTokenInvalid):
		respondError(w, r, http.StatusBadGateway, "rundeck rejected the configured token")
	default:
		var apiErr *rundeck.APIError
		if errors.As(err, &apiErr) {
			if logger != nil {
				logger.Error("rundeck api error details",
					"code", apiErr.Code,
					"message", apiErr.Message)
			}
			respondError(w, r, http.StatusBadGateway, "rundeck api error")
			return
		}
		respondError(w, r, http.StatusInternalServerError, "internal server error")
	}
}
