package rundeck

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// SessionManager handles login/password authentication against the
// j_security_check endpoint and caches the resulting session cookie
type SessionManager struct {
	baseURL  string
	login    string
	password string

	// httpClient carries the cookie jar shared with the API client
	httpClient *http.Client

	mu            sync.Mutex
	authenticated bool
}

// NewSessionManager creates a new session manager. The http client must
// have a cookie jar attached, the session lives in it.
func NewSessionManager(baseURL, login, password string, httpClient *http.Client) *SessionManager {
	return &SessionManager{
		baseURL:    baseURL,
		login:      login,
		password:   password,
		httpClient: httpClient,
	}
}

// Ensure makes sure a live session exists, logging in if necessary
func (sm *SessionManager) Ensure(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.authenticated {
		return nil
	}
	if err := sm.doLogin(ctx); err != nil {
		return err
	}
	sm.authenticated = true
	return nil
}

// Invalidate forces a fresh login on the next Ensure call
func (sm *SessionManager) Invalidate() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.authenticated = false
}

// doLogin posts the credentials form. Rundeck answers a redirect on
// success and sends the caller to /user/error on bad credentials.
func (sm *SessionManager) doLogin(ctx context.Context) error {
	loginURL := sm.baseURL + "j_security_check"

	data := url.Values{}
	data.Set("j_username", sm.login)
	data.Set("j_password", sm.password)

	req, err := http.NewRequestWithContext(ctx, "POST", loginURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := sm.httpClient.Do(req)
	if err != nil {
		return &APIError{Message: "login request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrLoginFailed
	}
	if strings.Contains(resp.Request.URL.Path, "/user/error") {
		return ErrLoginFailed
	}
	if resp.StatusCode >= 400 {
		return &APIError{Code: resp.StatusCode, Message: "unexpected login response"}
	}

	return nil
}
