// Package notifier implements the post-build notification workflow:
// decide whether to notify, resolve the job reference, expand options,
// trigger the remote execution, optionally wait for it to finish, and
// gate the outcome.
package notifier

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lei/rundeck-notify/internal/models"
	"github.com/lei/rundeck-notify/internal/options"
	"github.com/lei/rundeck-notify/internal/rundeck"
	"github.com/lei/rundeck-notify/pkg/logger"
)

// DefaultPollInterval is the fixed sleep between execution refreshes
const DefaultPollInterval = 5 * time.Second

// Client is the narrow Rundeck surface the workflow needs
type Client interface {
	URL() string
	Ping(ctx context.Context) error
	FindJob(ctx context.Context, project, groupPath, name string) (*models.Job, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	TriggerJob(ctx context.Context, id string, options, nodeFilters map[string]string) (*models.Execution, error)
	GetExecution(ctx context.Context, id int64) (*models.Execution, error)
}

// BadgeRecorder receives the execution link as soon as the trigger
// succeeds, independent of whether the workflow waits afterwards
type BadgeRecorder interface {
	AttachExecutionLink(url string)
}

// BadgeRecorderFunc adapts a function to the BadgeRecorder interface
type BadgeRecorderFunc func(url string)

func (f BadgeRecorderFunc) AttachExecutionLink(url string) { f(url) }

// StepConfig is the per-step notification configuration
type StepConfig struct {
	JobIdentifier      string `json:"job_identifier"`
	Options            string `json:"options,omitempty"`
	NodeFilters        string `json:"node_filters,omitempty"`
	Tag                string `json:"tag,omitempty"`
	WaitForCompletion  bool   `json:"wait_for_completion,omitempty"`
	FailBuildOnFailure bool   `json:"fail_build_on_failure,omitempty"`
}

// Notifier runs the notification workflow against one Rundeck instance.
// A Notifier is stateless across invocations; each Notify call owns its
// own option maps and execution snapshot.
type Notifier struct {
	client       Client
	badges       BadgeRecorder
	logger       *logger.Logger
	pollInterval time.Duration
}

// New creates a notifier. badges may be nil when no build record is
// interested in the execution link.
func New(client Client, badges BadgeRecorder, log *logger.Logger) *Notifier {
	return &Notifier{
		client:       client,
		badges:       badges,
		logger:       log,
		pollInterval: DefaultPollInterval,
	}
}

// Notify runs the whole workflow for one build. Every failure is
// absorbed here: it is logged once and converted into the outcome,
// nothing propagates to the caller as an error.
func (n *Notifier) Notify(ctx context.Context, step StepConfig, build models.BuildInfo) models.Outcome {
	invocationID := uuid.NewString()
	log := n.logger.With("invocation_id", invocationID, "job_identifier", step.JobIdentifier)

	outcome := models.Outcome{InvocationID: invocationID, Success: true}

	if !build.Succeeded {
		log.Info("notifier: build did not succeed, skipping notification")
		outcome.Reason = "build did not succeed"
		return outcome
	}

	if err := n.client.Ping(ctx); err != nil {
		log.Error("notifier: rundeck is not running", "url", n.client.URL(), "error", err)
		return n.failure(outcome, step, "rundeck is not running", nil)
	}

	if !n.shouldNotify(log, step.Tag, build) {
		outcome.Reason = "tag " + step.Tag + " not found in changelog"
		return outcome
	}

	jobID, err := ResolveJobID(ctx, n.client, log, step.JobIdentifier)
	if err != nil {
		log.Error("notifier: failed to get job with the identifier", "error", err)
		return n.failure(outcome, step, "failed to resolve job identifier: "+err.Error(), nil)
	}

	jobOptions, err := options.Parse(step.Options, build.Env, build.Artifacts, log)
	if err != nil {
		log.Error("notifier: failed to parse job options", "error", err)
		return n.failure(outcome, step, "failed to parse job options: "+err.Error(), nil)
	}

	nodeFilters, err := options.Parse(step.NodeFilters, build.Env, build.Artifacts, log)
	if err != nil {
		log.Error("notifier: failed to parse node filters", "error", err)
		return n.failure(outcome, step, "failed to parse node filters: "+err.Error(), nil)
	}

	// a second trigger would start a second remote execution, so this
	// call is never retried
	exec, err := n.client.TriggerJob(ctx, jobID, jobOptions, nodeFilters)
	if err != nil {
		log.Error("notifier: "+triggerFailureMessage(err), "url", n.client.URL(), "error", err)
		return n.failure(outcome, step, triggerFailureMessage(err), nil)
	}

	log.Info("notifier: notification succeeded",
		"execution_id", exec.ID,
		"execution_url", exec.URL,
		"status", exec.Status)

	outcome.Notified = true
	outcome.Execution = exec

	if n.badges != nil {
		n.badges.AttachExecutionLink(exec.URL)
	}

	if !step.WaitForCompletion {
		return outcome
	}

	log.Info("notifier: waiting for rundeck execution to finish", "execution_id", exec.ID)
	exec, interrupted, err := n.waitForExecution(ctx, log, exec)
	if err != nil {
		log.Error("notifier: error while polling execution", "error", err)
		return n.failure(outcome, step, "error while polling execution: "+err.Error(), exec)
	}
	outcome.Execution = exec
	outcome.Interrupted = interrupted

	log.Info("notifier: rundeck execution finished",
		"execution_id", exec.ID,
		"duration", exec.Duration,
		"status", exec.Status,
		"interrupted", interrupted)

	switch exec.Status {
	case models.StatusSucceeded:
		return outcome
	case models.StatusFailed, models.StatusAborted:
		return n.failure(outcome, step, "execution finished with status "+string(exec.Status), exec)
	default:
		// a non-terminal or unknown status does not block the build
		return outcome
	}
}

// waitForExecution polls the execution on a fixed interval until it
// reaches a terminal status. Context cancellation during the sleep
// stops the wait and reports the last observed snapshot as interrupted.
func (n *Notifier) waitForExecution(ctx context.Context, log *logger.Logger, exec *models.Execution) (*models.Execution, bool, error) {
	for !exec.Status.Terminal() {
		select {
		case <-ctx.Done():
			log.Warn("notifier: wait interrupted",
				"execution_id", exec.ID,
				"last_status", exec.Status,
				"error", ctx.Err())
			return exec, true, nil
		case <-time.After(n.pollInterval):
		}

		refreshed, err := n.client.GetExecution(ctx, exec.ID)
		if err != nil {
			return exec, false, err
		}
		exec = refreshed
	}
	return exec, false, nil
}

// shouldNotify applies tag gating: with a blank tag every build
// notifies; otherwise the tag must appear in the changelog of the build
// or of one of its upstream builds.
func (n *Notifier) shouldNotify(log *logger.Logger, tag string, build models.BuildInfo) bool {
	if strings.TrimSpace(tag) == "" {
		log.Info("notifier: notifying rundeck")
		return true
	}

	for _, change := range build.Changes {
		if containsIgnoreCase(change.Message, tag) {
			log.Info("notifier: found tag in changelog, notifying rundeck",
				"tag", tag,
				"author", change.Author)
			return true
		}
	}

	for _, upstream := range build.Upstream {
		for _, change := range upstream.Changes {
			if containsIgnoreCase(change.Message, tag) {
				log.Info("notifier: found tag in upstream changelog, notifying rundeck",
					"tag", tag,
					"author", change.Author,
					"upstream", upstream.Name)
				return true
			}
		}
	}

	log.Info("notifier: tag not found in any changelog, skipping notification", "tag", tag)
	return false
}

// failure finalizes a failing outcome, deferring it when the step is
// not allowed to fail the encompassing build
func (n *Notifier) failure(outcome models.Outcome, step StepConfig, reason string, exec *models.Execution) models.Outcome {
	outcome.Success = false
	outcome.Reason = reason
	if exec != nil {
		outcome.Execution = exec
	}
	if !step.FailBuildOnFailure {
		// the build result is already finalized, report without
		// downgrading it
		outcome.Deferred = true
	}
	return outcome
}

// triggerFailureMessage distinguishes the credential failure kinds the
// way the remote API reports them
func triggerFailureMessage(err error) string {
	switch {
	case errors.Is(err, rundeck.ErrLoginFailed):
		return "login failed"
	case errors.Is(err, rundeck.ErrTokenInvalid):
		return "token authentication failed"
	case errors.Is(err, rundeck.ErrJobNotFound):
		return "could not find a job with the identifier"
	default:
		return "error while talking to rundeck api"
	}
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
