package utils

import (
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with a helpful suggestion for the user
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\nSuggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to work
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// Common error constructors with suggestions

// ErrRecordNotFound creates an error when a record of the given kind is missing
func ErrRecordNotFound(kind, id string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("%s '%s' not found", kind, id),
		Suggestion: fmt.Sprintf("Run 'dawncrm %s list' to see existing ids", kind),
	}
}

// ErrUnknownCollection creates an error for a collection name the store does not track
func ErrUnknownCollection(name string, valid []string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("unknown collection '%s'", name),
		Suggestion: fmt.Sprintf("Valid collections: %s", strings.Join(valid, ", ")),
	}
}

// ErrCustomerHasJobs creates an error when deleting a customer that still owns jobs
func ErrCustomerHasJobs(name string, jobs int) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("customer '%s' still has %d job(s)", name, jobs),
		Suggestion: "Delete or reassign the jobs first, or pass --force to delete anyway",
	}
}

// ErrSyncNotConfigured creates an error when sync operations are attempted without a remote
func ErrSyncNotConfigured() error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("remote sync is not configured"),
		Suggestion: "Set 'remote.url' in ~/.config/dawncrm/config.json or export DAWNCRM_REMOTE_URL",
	}
}

// ErrRemoteOffline creates an error when the remote database cannot be reached
func ErrRemoteOffline(reason string) error {
	suggestion := "Check your internet connection and try again"
	if strings.Contains(reason, "DNS") || strings.Contains(reason, "no such host") {
		suggestion = "Check your DNS settings and internet connection"
	} else if strings.Contains(reason, "refused") {
		suggestion = "Check if the database server is running and accessible"
	} else if strings.Contains(reason, "timeout") {
		suggestion = "The server may be slow or unreachable. Try again later"
	}

	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("remote database is offline: %s", reason),
		Suggestion: suggestion,
	}
}

// ErrInvalidDate creates an error for invalid date formats
func ErrInvalidDate(dateStr string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid date format: %s", dateStr),
		Suggestion: "Use YYYY-MM-DD format (e.g., 2026-01-15)",
	}
}

// ErrInvalidStatus creates an error for invalid status values
func ErrInvalidStatus(status string, validStatuses []string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid status: %s", status),
		Suggestion: fmt.Sprintf("Valid statuses: %s", strings.Join(validStatuses, ", ")),
	}
}

// ErrInvalidAmount creates an error for negative or malformed money values
func ErrInvalidAmount(field string, amount float64) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid %s: %.2f", field, amount),
		Suggestion: "Amounts must be finite and zero or positive",
	}
}

// ErrCredentialsNotFound creates an error when credentials are not found
func ErrCredentialsNotFound(host, username string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("credentials not found for %s (user: %s)", host, username),
		Suggestion: fmt.Sprintf("Store credentials with 'dawncrm credentials set %s %s --prompt'", host, username),
	}
}

// ErrAuthenticationFailed creates an error when authentication fails
func ErrAuthenticationFailed(host string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("authentication failed for %s", host),
		Suggestion: "Check your credentials with 'dawncrm credentials get <host> <user>' and update if needed",
	}
}

// ErrConfigFileNotFound creates an error when config file is not found
func ErrConfigFileNotFound(path string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("config file not found at %s", path),
		Suggestion: "Run 'dawncrm init' to create a default configuration file",
	}
}

// ErrInvalidConfig creates an error for invalid configuration
func ErrInvalidConfig(field string, reason string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid configuration for '%s': %s", field, reason),
		Suggestion: fmt.Sprintf("Check ~/.config/dawncrm/config.json and fix the '%s' field", field),
	}
}

// WrapWithSuggestion wraps an existing error with a suggestion
func WrapWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}
