package rundeck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/lei/rundeck-notify/internal/models"
	"github.com/lei/rundeck-notify/pkg/logger"
)

// DefaultAPIVersion is applied when the site doesn't pin one
const DefaultAPIVersion = 13

// Config contains the connection settings for one Rundeck instance
type Config struct {
	URL        string
	Login      string
	Password   string
	Token      string
	APIVersion int
}

// Client handles HTTP communication with the Rundeck API.
// Token auth is preferred when a token is configured, otherwise a
// session is established with login/password.
type Client struct {
	baseURL    string
	apiVersion int
	token      string
	session    *SessionManager
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient validates the configuration and builds an authenticated
// client handle. Construction is pure, no network calls happen here.
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: url is mandatory", ErrInvalidConfig)
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: malformed url %q", ErrInvalidConfig, cfg.URL)
	}
	if cfg.Token == "" && (cfg.Login == "" || cfg.Password == "") {
		return nil, fmt.Errorf("%w: either a token or a login/password pair is required", ErrInvalidConfig)
	}

	baseURL := cfg.URL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	apiVersion := cfg.APIVersion
	if apiVersion <= 0 {
		apiVersion = DefaultAPIVersion
	}

	c := &Client{
		baseURL:    baseURL,
		apiVersion: apiVersion,
		token:      cfg.Token,
		logger:     log,
	}

	if cfg.Token != "" {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	} else {
		// session auth needs a jar for the session cookie
		jar, _ := cookiejar.New(nil)
		c.httpClient = &http.Client{Timeout: 30 * time.Second, Jar: jar}
		c.session = NewSessionManager(baseURL, cfg.Login, cfg.Password, c.httpClient)
	}

	return c, nil
}

// URL returns the normalized base URL of the instance
func (c *Client) URL() string {
	return c.baseURL
}

// TokenAuth reports whether the client authenticates with a token
func (c *Client) TokenAuth() bool {
	return c.token != ""
}

// apiPath builds an API path under the configured version
func (c *Client) apiPath(format string, args ...interface{}) string {
	return fmt.Sprintf("api/%d/", c.apiVersion) + fmt.Sprintf(format, args...)
}

// doRequest performs an authenticated request. In session mode a 401
// invalidates the session and the request is retried once after a fresh
// login; in token mode a 401 is final.
func (c *Client) doRequest(ctx context.Context, method, path string, rawBody []byte) (*http.Response, error) {
	c.logger.Debug("rundeck: http request", "method", method, "path", path)

	if c.session != nil {
		if err := c.session.Ensure(ctx); err != nil {
			c.logger.Error("rundeck: session login failed", "error", err)
			return nil, err
		}
	}

	resp, err := c.send(ctx, method, path, rawBody)
	if err != nil {
		c.logger.Error("rundeck: http request failed",
			"method", method,
			"path", path,
			"error", err)
		return nil, &APIError{Message: "request failed", Err: err}
	}

	c.logger.Debug("rundeck: http response",
		"method", method,
		"path", path,
		"status", resp.StatusCode)

	if resp.StatusCode == http.StatusUnauthorized && c.session != nil {
		resp.Body.Close()
		c.logger.Info("rundeck: received 401, re-establishing session",
			"method", method,
			"path", path)
		c.session.Invalidate()
		if err := c.session.Ensure(ctx); err != nil {
			return nil, err
		}
		resp, err = c.send(ctx, method, path, rawBody)
		if err != nil {
			return nil, &APIError{Message: "retry request failed", Err: err}
		}
	}

	return resp, nil
}

func (c *Client) send(ctx context.Context, method, path string, rawBody []byte) (*http.Response, error) {
	var body io.Reader
	if rawBody != nil {
		body = bytes.NewReader(rawBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("X-Rundeck-Auth-Token", c.token)
	}
	if rawBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// Ping checks that the instance answers at all. It is a pure liveness
// probe, authentication is not exercised.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("rundeck: ping failed", "url", c.baseURL, "error", err)
		return fmt.Errorf("%w: %s", ErrUnreachable, c.baseURL)
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		c.logger.Warn("rundeck: ping got server error", "url", c.baseURL, "status", resp.StatusCode)
		return fmt.Errorf("%w: %s answered %d", ErrUnreachable, c.baseURL, resp.StatusCode)
	}

	return nil
}

// TestAuth verifies the configured credentials against the system info
// endpoint
func (c *Client) TestAuth(ctx context.Context) error {
	resp, err := c.doRequest(ctx, "GET", c.apiPath("system/info"), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		if c.TokenAuth() {
			return ErrTokenInvalid
		}
		return ErrLoginFailed
	}

	if resp.StatusCode != http.StatusOK {
		return parseError(resp)
	}
	return nil
}

// FindJob looks up a job by project, group path and name. Exactly one
// remote call is issued.
func (c *Client) FindJob(ctx context.Context, project, groupPath, name string) (*models.Job, error) {
	path := c.apiPath("project/%s/jobs", url.PathEscape(project))

	query := url.Values{}
	query.Set("jobExactFilter", name)
	if groupPath != "" {
		query.Set("groupPathExact", groupPath)
	}
	path += "?" + query.Encode()

	resp, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrJobNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.authAwareError(resp)
	}

	var jobs []wireJob
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return nil, &APIError{Message: "decode job list", Err: err}
	}
	if len(jobs) == 0 {
		return nil, ErrJobNotFound
	}

	return mapJob(&jobs[0]), nil
}

// GetJob retrieves a job by its opaque id
func (c *Client) GetJob(ctx context.Context, id string) (*models.Job, error) {
	resp, err := c.doRequest(ctx, "GET", c.apiPath("job/%s", url.PathEscape(id)), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrJobNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.authAwareError(resp)
	}

	var job wireJob
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, &APIError{Message: "decode job", Err: err}
	}

	return mapJob(&job), nil
}

// TriggerJob starts a new execution of the job. This call is never
// retried: a second attempt would start a second execution.
func (c *Client) TriggerJob(ctx context.Context, id string, options, nodeFilters map[string]string) (*models.Execution, error) {
	payload := struct {
		Options map[string]string `json:"options,omitempty"`
		Filter  string            `json:"filter,omitempty"`
	}{
		Options: options,
		Filter:  encodeNodeFilters(nodeFilters),
	}

	rawBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal trigger payload: %w", err)
	}

	resp, err := c.doRequest(ctx, "POST", c.apiPath("job/%s/executions", url.PathEscape(id)), rawBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrJobNotFound
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.authAwareError(resp)
	}

	var exec wireExecution
	if err := json.NewDecoder(resp.Body).Decode(&exec); err != nil {
		return nil, &APIError{Message: "decode execution", Err: err}
	}

	return mapExecution(&exec), nil
}

// GetExecution refreshes the snapshot of an execution by id
func (c *Client) GetExecution(ctx context.Context, id int64) (*models.Execution, error) {
	resp, err := c.doRequest(ctx, "GET", c.apiPath("execution/%d", id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrExecutionNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.authAwareError(resp)
	}

	var exec wireExecution
	if err := json.NewDecoder(resp.Body).Decode(&exec); err != nil {
		return nil, &APIError{Message: "decode execution", Err: err}
	}

	return mapExecution(&exec), nil
}

// authAwareError maps 401/403 to the credential-specific error before
// falling back to generic response parsing
func (c *Client) authAwareError(resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		if c.TokenAuth() {
			return ErrTokenInvalid
		}
		return ErrLoginFailed
	}
	return parseError(resp)
}

// encodeNodeFilters renders a filter map in the Rundeck filter syntax
// ("key: value" pairs separated by spaces)
func encodeNodeFilters(filters map[string]string) string {
	if len(filters) == 0 {
		return ""
	}

	parts := make([]string, 0, len(filters))
	for _, key := range sortedKeys(filters) {
		parts = append(parts, fmt.Sprintf("%s: %s", key, filters[key]))
	}
	return strings.Join(parts, " ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
