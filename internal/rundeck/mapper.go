package rundeck

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/lei/rundeck-notify/internal/models"
)

// wireJob is the job shape returned by the Rundeck API
type wireJob struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Group   string `json:"group"`
	Project string `json:"project"`
}

// wireExecution is the execution shape returned by the Rundeck API
type wireExecution struct {
	ID          int64     `json:"id"`
	Permalink   string    `json:"permalink"`
	Status      string    `json:"status"`
	DateStarted *wireDate `json:"date-started"`
	DateEnded   *wireDate `json:"date-ended"`
}

type wireDate struct {
	Date string `json:"date"`
}

func mapJob(j *wireJob) *models.Job {
	return &models.Job{
		ID:        j.ID,
		Name:      j.Name,
		GroupPath: j.Group,
		Project:   j.Project,
	}
}

func mapExecution(e *wireExecution) *models.Execution {
	exec := &models.Execution{
		ID:     e.ID,
		URL:    e.Permalink,
		Status: mapStatus(e.Status),
	}

	if t := parseWireDate(e.DateStarted); t != nil {
		exec.StartedAt = t
	}
	if t := parseWireDate(e.DateEnded); t != nil {
		exec.EndedAt = t
	}
	if exec.StartedAt != nil && exec.EndedAt != nil {
		exec.Duration = exec.EndedAt.Sub(*exec.StartedAt).String()
	}

	return exec
}

func parseWireDate(d *wireDate) *time.Time {
	if d == nil || d.Date == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, d.Date)
	if err != nil {
		return nil
	}
	return &t
}

// mapStatus converts a Rundeck execution status to the internal one
func mapStatus(status string) models.ExecutionStatus {
	switch status {
	case "scheduled", "queued":
		return models.StatusPending
	case "running":
		return models.StatusRunning
	case "succeeded":
		return models.StatusSucceeded
	case "failed", "failed-with-retry", "timedout":
		return models.StatusFailed
	case "aborted":
		return models.StatusAborted
	default:
		return models.StatusUnknown
	}
}

// parseError converts HTTP error responses to API errors
func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
		return &APIError{
			Code:    resp.StatusCode,
			Message: errResp.Message,
		}
	}

	return &APIError{
		Code:    resp.StatusCode,
		Message: string(body),
	}
}
