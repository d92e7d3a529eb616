package gh

import (
	"fmt"
	"net/http"
)

// AuthError means the token was rejected or lacks the required scopes.
// Fatal for the whole run.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("github: authentication failed (HTTP %d): %s", e.StatusCode, e.Message)
}

// NotFoundError means the repository, environment, or entry does not exist.
type NotFoundError struct {
	Resource string
	Message  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("github: %s not found: %s", e.Resource, e.Message)
}

// RemoteError is an API failure that is neither an auth nor a not-found
// problem. StatusCode 0 means the request never got a response.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("github: request failed: %s", e.Message)
	}
	return fmt.Sprintf("github: request failed (HTTP %d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether the failure is transient. Transport errors,
// rate limiting, and 5xx responses qualify.
func (e *RemoteError) Retryable() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}
