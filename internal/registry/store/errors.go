package store

import "fmt"

// NotFoundError indicates the resource was not found.
type NotFoundError struct {
	Resource string
	ID       string
	// Message overrides the default rendering when set.
	Message string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ValidationError indicates a client-side validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// UpstreamAuthError indicates the database or an external service rejected
// our credentials.
type UpstreamAuthError struct {
	Service string
	Err     error
}

func (e *UpstreamAuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s authentication failed", e.Service)
	}
	return fmt.Sprintf("%s authentication failed: %v", e.Service, e.Err)
}

func (e *UpstreamAuthError) Unwrap() error { return e.Err }

// UpstreamUnavailableError indicates the database or an external service
// could not be reached.
type UpstreamUnavailableError struct {
	Service string
	Err     error
}

func (e *UpstreamUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s unavailable", e.Service)
	}
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error { return e.Err }
