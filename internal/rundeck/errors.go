package rundeck

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig indicates a malformed URL or missing credentials
	ErrInvalidConfig = errors.New("rundeck configuration is not valid")

	// ErrUnreachable indicates the instance did not answer the liveness probe
	ErrUnreachable = errors.New("rundeck instance is not responding")

	// ErrLoginFailed indicates login/password authentication was rejected
	ErrLoginFailed = errors.New("rundeck login failed")

	// ErrTokenInvalid indicates token authentication was rejected
	ErrTokenInvalid = errors.New("rundeck token authentication failed")

	// ErrJobNotFound indicates the job doesn't exist on the instance
	ErrJobNotFound = errors.New("job not found on rundeck")

	// ErrExecutionNotFound indicates the execution doesn't exist on the instance
	ErrExecutionNotFound = errors.New("execution not found on rundeck")
)

// APIError represents a transport or API-level failure
type APIError struct {
	Code    int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rundeck api error %d: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("rundeck api error %d: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}
