package models

import "time"

// Site represents a named remote Rundeck installation
type Site struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	Login      string `json:"login,omitempty"`
	Password   string `json:"-"`
	Token      string `json:"-"`
	APIVersion int    `json:"api_version,omitempty"`
}

// Execution is a read-only snapshot of one run of a remote Rundeck job,
// refreshed by polling
type Execution struct {
	ID        int64           `json:"id"`
	URL       string          `json:"url"`
	Status    ExecutionStatus `json:"status"`
	StartedAt *time.Time      `json:"started_at,omitempty"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Duration  string          `json:"duration,omitempty"`
}

// ExecutionStatus represents the state of a remote execution
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusSucceeded ExecutionStatus = "succeeded"
	StatusFailed    ExecutionStatus = "failed"
	StatusAborted   ExecutionStatus = "aborted"
	StatusUnknown   ExecutionStatus = "unknown"
)

// Terminal reports whether the execution has stopped progressing.
// Statuses this client cannot interpret count as terminal so that a
// poll loop never spins on them.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case StatusPending, StatusRunning:
		return false
	}
	return true
}

// Job describes a remote Rundeck job
type Job struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	GroupPath string `json:"group,omitempty"`
	Project   string `json:"project"`
}

// FullName returns the job name prefixed with its group path
func (j *Job) FullName() string {
	if j.GroupPath == "" {
		return j.Name
	}
	return j.GroupPath + "/" + j.Name
}

// ChangeEntry is one changelog entry of a build
type ChangeEntry struct {
	Author  string `json:"author"`
	Message string `json:"message"`
}

// UpstreamBuild is a build that caused the current one, with its changelog
type UpstreamBuild struct {
	Name    string        `json:"name"`
	Changes []ChangeEntry `json:"changes,omitempty"`
}

// BuildInfo is the snapshot of the host build that a notification acts on.
// The caller supplies it explicitly; nothing here reaches back into the
// build system.
type BuildInfo struct {
	Succeeded bool              `json:"succeeded"`
	Changes   []ChangeEntry     `json:"changes,omitempty"`
	Upstream  []UpstreamBuild   `json:"upstream,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Artifacts []string          `json:"artifacts,omitempty"`
}

// Outcome is the result of one notification invocation
type Outcome struct {
	// InvocationID correlates log lines of a single invocation
	InvocationID string `json:"invocation_id"`

	// Notified is false when the trigger was skipped or failed locally
	Notified bool `json:"notified"`

	// Success is the gating verdict that the encompassing build consumes
	Success bool `json:"success"`

	// Deferred marks a failure that must not downgrade an already
	// finalized build (fail_build_on_failure=false)
	Deferred bool `json:"deferred,omitempty"`

	// Interrupted marks a wait that was canceled before the execution
	// reached a terminal status
	Interrupted bool `json:"interrupted,omitempty"`

	Execution *Execution `json:"execution,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}
