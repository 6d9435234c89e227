package migrator

import (
	"fmt"
)

// InvalidURLError is returned when a repository URL cannot be parsed into a
// usable host+path pair.
type InvalidURLError struct {
	URL string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid repository URL: %s", e.URL)
}

// InvalidIntervalError is returned when a caller requests a periodic job
// with an interval below the one-minute floor.
type InvalidIntervalError struct {
	IntervalMinutes int
}

func (e *InvalidIntervalError) Error() string {
	return fmt.Sprintf("invalid schedule interval: %d minutes (must be >= 1)", e.IntervalMinutes)
}

// UnsupportedProviderError is returned when a RepoContext's provider/host
// combination has no known REST base URL.
type UnsupportedProviderError struct {
	Provider string
	Host     string
}

func (e *UnsupportedProviderError) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("unsupported provider %q at host %q", e.Provider, e.Host)
	}

	return fmt.Sprintf("unsupported provider %q", e.Provider)
}

// ProviderAPIError is raised whenever a provider REST call returns a status
// of 400 or above. It carries enough of the request/response to diagnose the
// failure without ever retaining the request body (which may hold a token).
type ProviderAPIError struct {
	Method  string
	URL     string
	Status  int
	Snippet string
}

func (e *ProviderAPIError) Error() string {
	return fmt.Sprintf("%s %s failed with %d: %s", e.Method, e.URL, e.Status, e.Snippet)
}

// GitCommandError wraps a failure from the external git binary.
type GitCommandError struct {
	Message string
}

func (e *GitCommandError) Error() string {
	return e.Message
}

// InternalError is the catch-all for anything else the orchestrator needs to
// surface as a job failure.
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string {
	return e.Message
}
