package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lei/rundeck-notify/internal/models"
	"github.com/lei/rundeck-notify/internal/rundeck"
	"github.com/lei/rundeck-notify/pkg/logger"
)

// fakeClient scripts the remote side of the workflow
type fakeClient struct {
	pingErr    error
	triggerErr error

	findCalls    int
	foundJob     *models.Job
	findErr      error
	gotProject   string
	gotGroupPath string
	gotName      string

	getJobCalls int
	getJobErr   error
	gotGetJobID string

	triggerCalls   int
	gotJobID       string
	gotOptions     map[string]string
	gotNodeFilters map[string]string

	execution *models.Execution

	// pollStatuses is consumed one status per GetExecution call; the
	// last one repeats
	pollStatuses []models.ExecutionStatus
	pollCalls    int
	pollErr      error
}

func (f *fakeClient) URL() string { return "http://rundeck.local:4440/" }

func (f *fakeClient) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeClient) FindJob(ctx context.Context, project, groupPath, name string) (*models.Job, error) {
	f.findCalls++
	f.gotProject, f.gotGroupPath, f.gotName = project, groupPath, name
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.foundJob, nil
}

func (f *fakeClient) GetJob(ctx context.Context, id string) (*models.Job, error) {
	f.getJobCalls++
	f.gotGetJobID = id
	if f.getJobErr != nil {
		return nil, f.getJobErr
	}
	return &models.Job{ID: id, Name: id}, nil
}

func (f *fakeClient) TriggerJob(ctx context.Context, id string, options, nodeFilters map[string]string) (*models.Execution, error) {
	f.triggerCalls++
	f.gotJobID = id
	f.gotOptions = options
	f.gotNodeFilters = nodeFilters
	if f.triggerErr != nil {
		return nil, f.triggerErr
	}
	return f.execution, nil
}

func (f *fakeClient) GetExecution(ctx context.Context, id int64) (*models.Execution, error) {
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	idx := f.pollCalls
	if idx >= len(f.pollStatuses) {
		idx = len(f.pollStatuses) - 1
	}
	f.pollCalls++
	return &models.Execution{ID: id, URL: f.execution.URL, Status: f.pollStatuses[idx], Duration: "10s"}, nil
}

func runningExecution() *models.Execution {
	return &models.Execution{
		ID:     42,
		URL:    "http://rundeck.local:4440/execution/42",
		Status: models.StatusRunning,
	}
}

func newTestNotifier(client Client, badges BadgeRecorder) *Notifier {
	n := New(client, badges, logger.Nop())
	n.pollInterval = time.Millisecond
	return n
}

func succeededBuild() models.BuildInfo {
	return models.BuildInfo{Succeeded: true}
}

func TestNotify_NoWaitSucceedsImmediately(t *testing.T) {
	client := &fakeClient{execution: runningExecution()}
	n := newTestNotifier(client, nil)

	outcome := n.Notify(context.Background(), StepConfig{JobIdentifier: "job-uuid-1"}, succeededBuild())

	if !outcome.Notified || !outcome.Success {
		t.Errorf("outcome = %+v, want notified success", outcome)
	}
	if outcome.Execution == nil || outcome.Execution.Status != models.StatusRunning {
		t.Errorf("execution snapshot = %+v, want the running execution", outcome.Execution)
	}
	if client.pollCalls != 0 {
		t.Errorf("poll calls = %d, want 0 without wait", client.pollCalls)
	}
}

func TestNotify_WaitUntilTerminal(t *testing.T) {
	tests := []struct {
		name        string
		statuses    []models.ExecutionStatus
		wantSuccess bool
	}{
		{"succeeded", []models.ExecutionStatus{models.StatusRunning, models.StatusSucceeded}, true},
		{"failed", []models.ExecutionStatus{models.StatusFailed}, false},
		{"aborted", []models.ExecutionStatus{models.StatusRunning, models.StatusAborted}, false},
		{"other terminal value", []models.ExecutionStatus{models.StatusUnknown}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{execution: runningExecution(), pollStatuses: tt.statuses}
			n := newTestNotifier(client, nil)

			step := StepConfig{
				JobIdentifier:      "job-uuid-1",
				WaitForCompletion:  true,
				FailBuildOnFailure: true,
			}
			outcome := n.Notify(context.Background(), step, succeededBuild())

			if outcome.Success != tt.wantSuccess {
				t.Errorf("Success = %v, want %v (reason %q)", outcome.Success, tt.wantSuccess, outcome.Reason)
			}
			if !outcome.Notified {
				t.Error("Notified = false, want true")
			}
			if client.pollCalls < 1 {
				t.Errorf("poll calls = %d, want at least 1", client.pollCalls)
			}
		})
	}
}

func TestNotify_FailureDeferredWhenNotFailingBuild(t *testing.T) {
	client := &fakeClient{
		execution:    runningExecution(),
		pollStatuses: []models.ExecutionStatus{models.StatusFailed},
	}
	n := newTestNotifier(client, nil)

	step := StepConfig{
		JobIdentifier:      "job-uuid-1",
		WaitForCompletion:  true,
		FailBuildOnFailure: false,
	}
	outcome := n.Notify(context.Background(), step, succeededBuild())

	if outcome.Success {
		t.Error("Success = true, want false for failed execution")
	}
	if !outcome.Deferred {
		t.Error("Deferred = false, want true when the step must not fail the build")
	}
}

func TestNotify_SkipsUnsuccessfulBuild(t *testing.T) {
	client := &fakeClient{execution: runningExecution()}
	n := newTestNotifier(client, nil)

	outcome := n.Notify(context.Background(), StepConfig{JobIdentifier: "job-uuid-1"}, models.BuildInfo{Succeeded: false})

	if !outcome.Success || outcome.Notified {
		t.Errorf("outcome = %+v, want success without notification", outcome)
	}
	if client.triggerCalls != 0 {
		t.Errorf("trigger calls = %d, want 0", client.triggerCalls)
	}
}

func TestNotify_TagGating(t *testing.T) {
	build := succeededBuild()
	build.Changes = []models.ChangeEntry{
		{Author: "alice", Message: "fix login page"},
	}
	build.Upstream = []models.UpstreamBuild{
		{Name: "lib-build", Changes: []models.ChangeEntry{
			{Author: "bob", Message: "release #deploy to prod"},
		}},
	}

	tests := []struct {
		name         string
		tag          string
		wantNotified bool
	}{
		{"blank tag always notifies", "", true},
		{"tag in changelog", "login", true},
		{"tag matched case-insensitively", "LOGIN", true},
		{"tag in upstream changelog", "#deploy", true},
		{"tag nowhere", "#release", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{execution: runningExecution()}
			n := newTestNotifier(client, nil)

			outcome := n.Notify(context.Background(), StepConfig{JobIdentifier: "job-uuid-1", Tag: tt.tag}, build)

			if outcome.Notified != tt.wantNotified {
				t.Errorf("Notified = %v, want %v", outcome.Notified, tt.wantNotified)
			}
			if !outcome.Success {
				t.Error("Success = false, want true either way")
			}
			wantTriggers := 0
			if tt.wantNotified {
				wantTriggers = 1
			}
			if client.triggerCalls != wantTriggers {
				t.Errorf("trigger calls = %d, want %d", client.triggerCalls, wantTriggers)
			}
		})
	}
}

func TestNotify_AttachesBadgeBeforeWaiting(t *testing.T) {
	var badgeURL string
	client := &fakeClient{
		execution:    runningExecution(),
		pollStatuses: []models.ExecutionStatus{models.StatusFailed},
	}
	n := newTestNotifier(client, BadgeRecorderFunc(func(url string) { badgeURL = url }))

	step := StepConfig{JobIdentifier: "job-uuid-1", WaitForCompletion: true, FailBuildOnFailure: true}
	outcome := n.Notify(context.Background(), step, succeededBuild())

	if badgeURL != "http://rundeck.local:4440/execution/42" {
		t.Errorf("badge url = %q, want the execution link", badgeURL)
	}
	if outcome.Success {
		t.Error("Success = true, want false — badge must attach regardless of the final result")
	}
}

func TestNotify_InterruptedWaitKeepsLastStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &fakeClient{execution: runningExecution()}
	n := newTestNotifier(client, nil)

	step := StepConfig{JobIdentifier: "job-uuid-1", WaitForCompletion: true, FailBuildOnFailure: true}
	outcome := n.Notify(ctx, step, succeededBuild())

	if !outcome.Interrupted {
		t.Error("Interrupted = false, want true for canceled wait")
	}
	if !outcome.Success {
		t.Error("Success = false, want true (non-terminal status does not block)")
	}
	if outcome.Execution.Status != models.StatusRunning {
		t.Errorf("Status = %q, want the last observed running status", outcome.Execution.Status)
	}
}

func TestNotify_PingFailure(t *testing.T) {
	client := &fakeClient{pingErr: rundeck.ErrUnreachable, execution: runningExecution()}
	n := newTestNotifier(client, nil)

	outcome := n.Notify(context.Background(), StepConfig{JobIdentifier: "job-uuid-1", FailBuildOnFailure: true}, succeededBuild())

	if outcome.Success || outcome.Notified {
		t.Errorf("outcome = %+v, want failure without notification", outcome)
	}
	if client.triggerCalls != 0 {
		t.Errorf("trigger calls = %d, want 0", client.triggerCalls)
	}
}

func TestNotify_TriggerFailureNotRetried(t *testing.T) {
	client := &fakeClient{execution: runningExecution(), triggerErr: rundeck.ErrLoginFailed}
	n := newTestNotifier(client, nil)

	outcome := n.Notify(context.Background(), StepConfig{JobIdentifier: "job-uuid-1", FailBuildOnFailure: true}, succeededBuild())

	if outcome.Success || outcome.Notified {
		t.Errorf("outcome = %+v, want failure", outcome)
	}
	if client.triggerCalls != 1 {
		t.Errorf("trigger calls = %d, want exactly 1 — triggering is never retried", client.triggerCalls)
	}
}

func TestNotify_UnparsableOptionsAbortTrigger(t *testing.T) {
	client := &fakeClient{execution: runningExecution()}
	n := newTestNotifier(client, nil)

	step := StepConfig{
		JobIdentifier:      "job-uuid-1",
		Options:            `key=\uZZZZ`,
		FailBuildOnFailure: true,
	}
	outcome := n.Notify(context.Background(), step, succeededBuild())

	if outcome.Success || outcome.Notified {
		t.Errorf("outcome = %+v, want failure", outcome)
	}
	if client.triggerCalls != 0 {
		t.Errorf("trigger calls = %d, want 0 for unparsable options", client.triggerCalls)
	}
}

func TestNotify_PassesExpandedOptions(t *testing.T) {
	client := &fakeClient{execution: runningExecution()}
	n := newTestNotifier(client, nil)

	build := succeededBuild()
	build.Env = map[string]string{"BUILD_NUMBER": "57"}
	build.Artifacts = []string{"build.zip"}

	step := StepConfig{
		JobIdentifier: "job-uuid-1",
		Options:       "build=${BUILD_NUMBER}\narchive=$ARTIFACT_NAME{^build\\.zip$}",
		NodeFilters:   "tags=web",
	}
	outcome := n.Notify(context.Background(), step, build)

	if !outcome.Notified {
		t.Fatalf("outcome = %+v, want notified", outcome)
	}
	if client.gotOptions["build"] != "57" || client.gotOptions["archive"] != "build.zip" {
		t.Errorf("options = %v", client.gotOptions)
	}
	if client.gotNodeFilters["tags"] != "web" {
		t.Errorf("node filters = %v", client.gotNodeFilters)
	}
}

func TestNotify_PollErrorFails(t *testing.T) {
	client := &fakeClient{
		execution: runningExecution(),
		pollErr:   errors.New("connection reset"),
	}
	n := newTestNotifier(client, nil)

	step := StepConfig{JobIdentifier: "job-uuid-1", WaitForCompletion: true, FailBuildOnFailure: true}
	outcome := n.Notify(context.Background(), step, succeededBuild())

	if outcome.Success {
		t.Error("Success = true, want false on poll error")
	}
	if !outcome.Notified {
		t.Error("Notified = false, want true — the trigger itself went through")
	}
}
