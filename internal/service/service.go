package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/lei/rundeck-notify/internal/models"
	"github.com/lei/rundeck-notify/internal/notifier"
	"github.com/lei/rundeck-notify/internal/rundeck"
	"github.com/lei/rundeck-notify/pkg/logger"
)

var (
	// ErrSiteNotFound indicates the named site is not in the registry
	ErrSiteNotFound = errors.New("site not found")

	// ErrNoDefaultSite indicates a request omitted the site name while
	// several sites are configured
	ErrNoDefaultSite = errors.New("no default site: more than one site is configured")
)

// Service coordinates between the API layer and the per-site notifiers.
// The site registry is built once at startup and read-only afterwards;
// concurrent notifications share it safely.
type Service struct {
	sites     map[string]*models.Site
	clients   map[string]*rundeck.Client
	notifiers map[string]*notifier.Notifier
	logger    *logger.Logger

	// defaultSite is set when exactly one site is configured; requests
	// may then omit the site name
	defaultSite string
}

// NewService builds clients for every configured site. A site that
// fails validation aborts startup, a half-usable registry is worse
// than none.
func NewService(sites []*models.Site, log *logger.Logger) (*Service, error) {
	s := &Service{
		sites:     make(map[string]*models.Site),
		clients:   make(map[string]*rundeck.Client),
		notifiers: make(map[string]*notifier.Notifier),
		logger:    log,
	}

	for _, site := range sites {
		client, err := rundeck.NewClient(rundeck.Config{
			URL:        site.URL,
			Login:      site.Login,
			Password:   site.Password,
			Token:      site.Token,
			APIVersion: site.APIVersion,
		}, log.With("site", site.Name))
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", site.Name, err)
		}

		s.sites[site.Name] = site
		s.clients[site.Name] = client
		s.notifiers[site.Name] = notifier.New(client, s.badgeRecorder(site.Name), log.With("site", site.Name))
	}

	if len(sites) == 1 {
		s.defaultSite = sites[0].Name
	}

	return s, nil
}

// badgeRecorder logs the execution link; REST callers get the link back
// in the outcome body
func (s *Service) badgeRecorder(siteName string) notifier.BadgeRecorder {
	return notifier.BadgeRecorderFunc(func(url string) {
		s.logger.Info("service: execution link attached", "site", siteName, "url", url)
	})
}

// ListSites returns all configured sites ordered by name
func (s *Service) ListSites(ctx context.Context) []*models.Site {
	sites := make([]*models.Site, 0, len(s.sites))
	for _, site := range s.sites {
		sites = append(sites, site)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].Name < sites[j].Name })
	return sites
}

// resolveSite maps a request's site name to the registry entry. An
// empty name falls back to the default when exactly one site exists.
func (s *Service) resolveSite(name string) (string, error) {
	if name == "" {
		if s.defaultSite == "" {
			return "", ErrNoDefaultSite
		}
		return s.defaultSite, nil
	}
	if _, ok := s.sites[name]; !ok {
		return "", ErrSiteNotFound
	}
	return name, nil
}

// TestSite checks that the site is alive and the credentials are valid
func (s *Service) TestSite(ctx context.Context, name string) error {
	name, err := s.resolveSite(name)
	if err != nil {
		return err
	}
	client := s.clients[name]

	s.logger.Debug("service: testing site", "site", name)

	if err := client.Ping(ctx); err != nil {
		s.logger.Warn("service: site did not answer liveness probe", "site", name, "error", err)
		return err
	}
	if err := client.TestAuth(ctx); err != nil {
		s.logger.Warn("service: site rejected credentials", "site", name, "error", err)
		return err
	}

	s.logger.Info("service: site is alive and credentials are valid", "site", name)
	return nil
}

// Notify runs the notification workflow. The returned error covers
// local resolution failures only; everything downstream is absorbed
// into the outcome.
func (s *Service) Notify(ctx context.Context, siteName string, step notifier.StepConfig, build models.BuildInfo) (models.Outcome, error) {
	name, err := s.resolveSite(siteName)
	if err != nil {
		s.logger.Debug("service: cannot resolve site", "site", siteName, "error", err)
		return models.Outcome{}, err
	}

	s.logger.Debug("service: notifying",
		"site", name,
		"job_identifier", step.JobIdentifier,
		"wait", step.WaitForCompletion)

	outcome := s.notifiers[name].Notify(ctx, step, build)

	s.logger.Info("service: notification finished",
		"site", name,
		"invocation_id", outcome.InvocationID,
		"notified", outcome.Notified,
		"success", outcome.Success,
		"deferred", outcome.Deferred)

	return outcome, nil
}

// GetExecution refreshes an execution snapshot from the site
func (s *Service) GetExecution(ctx context.Context, siteName string, id int64) (*models.Execution, error) {
	name, err := s.resolveSite(siteName)
	if err != nil {
		return nil, err
	}

	exec, err := s.clients[name].GetExecution(ctx, id)
	if err != nil {
		s.logger.Error("service: failed to get execution", "site", name, "execution_id", id, "error", err)
		return nil, err
	}

	s.logger.Debug("service: execution retrieved",
		"site", name,
		"execution_id", id,
		"status", exec.Status)

	return exec, nil
}
