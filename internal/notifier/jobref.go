package notifier

import (
	"context"
	"regexp"

	"github.com/lei/rundeck-notify/internal/models"
	"github.com/lei/rundeck-notify/pkg/logger"
)

// jobReferencePattern extracts (project, groupPath, name) from a
// structured job reference. The middle group is non-greedy and the name
// is anchored to the last path segment, so "p:a/b/c" resolves with
// group "a/b" and name "c". This grammar is the only job addressing
// syntax exposed to users and must not change.
var jobReferencePattern = regexp.MustCompile(`^([^:]+?):(.*?)\/?([^/]+)$`)

// JobFinder resolves a job identifier against the remote instance
type JobFinder interface {
	FindJob(ctx context.Context, project, groupPath, name string) (*models.Job, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
}

// ResolveJobID turns a user-supplied identifier into the opaque job id
// to invoke. Identifiers in the "project:[group/]name" form are resolved
// with a single lookup by project, group and name; anything else is
// treated as an opaque id and validated with a direct job fetch, a typo
// surfaces here instead of as a confusing trigger failure. Exactly one
// remote call is issued either way.
func ResolveJobID(ctx context.Context, finder JobFinder, log *logger.Logger, identifier string) (string, error) {
	match := jobReferencePattern.FindStringSubmatch(identifier)
	if match == nil {
		job, err := finder.GetJob(ctx, identifier)
		if err != nil {
			return "", err
		}
		log.Debug("notifier: validated opaque job id", "job_id", job.ID, "job", job.FullName())
		return job.ID, nil
	}

	job, err := finder.FindJob(ctx, match[1], match[2], match[3])
	if err != nil {
		return "", err
	}
	log.Debug("notifier: resolved job reference",
		"project", match[1],
		"job", job.FullName(),
		"job_id", job.ID)
	return job.ID, nil
}
