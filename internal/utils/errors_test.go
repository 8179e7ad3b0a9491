package utils

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorWithSuggestion_Error(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		suggestion     string
		wantContains   []string
		wantNotContain string
	}{
		{
			name:         "with suggestion",
			err:          errors.New("job not found"),
			suggestion:   "Try searching with a different term",
			wantContains: []string{"job not found", "Suggestion:", "Try searching"},
		},
		{
			name:           "without suggestion",
			err:            errors.New("simple error"),
			suggestion:     "",
			wantContains:   []string{"simple error"},
			wantNotContain: "Suggestion:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &ErrorWithSuggestion{
				Err:        tt.err,
				Suggestion: tt.suggestion,
			}

			result := e.Error()

			for _, want := range tt.wantContains {
				if !strings.Contains(result, want) {
					t.Errorf("Error() = %q, want to contain %q", result, want)
				}
			}

			if tt.wantNotContain != "" && strings.Contains(result, tt.wantNotContain) {
				t.Errorf("Error() = %q, should not contain %q", result, tt.wantNotContain)
			}
		})
	}
}

func TestErrorWithSuggestion_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	wrapped := &ErrorWithSuggestion{
		Err:        originalErr,
		Suggestion: "do something",
	}

	unwrapped := wrapped.Unwrap()
	if unwrapped != originalErr {
		t.Errorf("Unwrap() returned %v, want %v", unwrapped, originalErr)
	}

	// Test with errors.Is
	if !errors.Is(wrapped, originalErr) {
		t.Error("errors.Is should work with wrapped error")
	}
}

func TestErrRecordNotFound(t *testing.T) {
	err := ErrRecordNotFound("customer", "c-42")

	errStr := err.Error()
	if !strings.Contains(errStr, "c-42") {
		t.Errorf("Error should contain id 'c-42', got: %s", errStr)
	}
	if !strings.Contains(errStr, "dawncrm customer list") {
		t.Errorf("Error should suggest 'dawncrm customer list', got: %s", errStr)
	}
}

func TestErrUnknownCollection(t *testing.T) {
	err := ErrUnknownCollection("widgets", []string{"jobs", "customers"})

	errStr := err.Error()
	if !strings.Contains(errStr, "widgets") {
		t.Errorf("Error should contain the bad name, got: %s", errStr)
	}
	if !strings.Contains(errStr, "jobs, customers") {
		t.Errorf("Error should list valid collections, got: %s", errStr)
	}
}

func TestErrCustomerHasJobs(t *testing.T) {
	err := ErrCustomerHasJobs("Ada", 3)

	errStr := err.Error()
	if !strings.Contains(errStr, "Ada") || !strings.Contains(errStr, "3 job(s)") {
		t.Errorf("Error should name the customer and job count, got: %s", errStr)
	}
	if !strings.Contains(errStr, "--force") {
		t.Errorf("Error should mention --force, got: %s", errStr)
	}
}

func TestErrSyncNotConfigured(t *testing.T) {
	err := ErrSyncNotConfigured()

	errStr := err.Error()
	if !strings.Contains(errStr, "not configured") {
		t.Errorf("Error should mention sync not configured, got: %s", errStr)
	}
	if !strings.Contains(errStr, "DAWNCRM_REMOTE_URL") {
		t.Errorf("Error should mention the env override, got: %s", errStr)
	}
}

func TestErrRemoteOffline(t *testing.T) {
	tests := []struct {
		name           string
		reason         string
		wantSuggestion string
	}{
		{
			name:           "DNS error",
			reason:         "DNS resolution failed",
			wantSuggestion: "DNS settings",
		},
		{
			name:           "Connection refused",
			reason:         "dial tcp 127.0.0.1:5432: connection refused",
			wantSuggestion: "server is running",
		},
		{
			name:           "Timeout",
			reason:         "connection timeout",
			wantSuggestion: "slow or unreachable",
		},
		{
			name:           "Generic error",
			reason:         "unknown error",
			wantSuggestion: "internet connection",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ErrRemoteOffline(tt.reason)

			errStr := err.Error()
			if !strings.Contains(errStr, tt.reason) {
				t.Errorf("Error should contain reason, got: %s", errStr)
			}
			if !strings.Contains(errStr, tt.wantSuggestion) {
				t.Errorf("Error should contain suggestion about '%s', got: %s", tt.wantSuggestion, errStr)
			}
		})
	}
}

func TestErrInvalidDate(t *testing.T) {
	err := ErrInvalidDate("01/15/2026")

	errStr := err.Error()
	if !strings.Contains(errStr, "01/15/2026") {
		t.Errorf("Error should contain invalid date, got: %s", errStr)
	}
	if !strings.Contains(errStr, "YYYY-MM-DD") {
		t.Errorf("Error should suggest correct format, got: %s", errStr)
	}
}

func TestErrInvalidStatus(t *testing.T) {
	validStatuses := []string{"Received", "In Progress", "Completed"}
	err := ErrInvalidStatus("Lost", validStatuses)

	errStr := err.Error()
	if !strings.Contains(errStr, "Lost") {
		t.Errorf("Error should contain invalid status, got: %s", errStr)
	}
	for _, status := range validStatuses {
		if !strings.Contains(errStr, status) {
			t.Errorf("Error should list valid status '%s', got: %s", status, errStr)
		}
	}
}

func TestErrInvalidAmount(t *testing.T) {
	err := ErrInvalidAmount("payment", -12.5)

	errStr := err.Error()
	if !strings.Contains(errStr, "payment") || !strings.Contains(errStr, "-12.50") {
		t.Errorf("Error should contain field and amount, got: %s", errStr)
	}
}

func TestErrCredentialsNotFound(t *testing.T) {
	err := ErrCredentialsNotFound("db.example.com", "crm")

	errStr := err.Error()
	if !strings.Contains(errStr, "db.example.com") {
		t.Errorf("Error should contain host, got: %s", errStr)
	}
	if !strings.Contains(errStr, "crm") {
		t.Errorf("Error should contain username, got: %s", errStr)
	}
	if !strings.Contains(errStr, "credentials set") {
		t.Errorf("Error should suggest storing credentials, got: %s", errStr)
	}
}

func TestErrAuthenticationFailed(t *testing.T) {
	err := ErrAuthenticationFailed("db.example.com")

	errStr := err.Error()
	if !strings.Contains(errStr, "authentication failed") {
		t.Errorf("Error should mention authentication failure, got: %s", errStr)
	}
	if !strings.Contains(errStr, "credentials get") {
		t.Errorf("Error should suggest checking credentials, got: %s", errStr)
	}
}

func TestErrConfigErrors(t *testing.T) {
	if errStr := ErrConfigFileNotFound("/tmp/x.json").Error(); !strings.Contains(errStr, "dawncrm init") {
		t.Errorf("Error should suggest 'dawncrm init', got: %s", errStr)
	}
	if errStr := ErrInvalidConfig("sync.interval", "must be positive").Error(); !strings.Contains(errStr, "sync.interval") {
		t.Errorf("Error should name the field, got: %s", errStr)
	}
}

func TestWrapWithSuggestion(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		suggestion string
		wantNil    bool
	}{
		{
			name:       "wrap error",
			err:        errors.New("original error"),
			suggestion: "try this instead",
			wantNil:    false,
		},
		{
			name:       "wrap nil",
			err:        nil,
			suggestion: "this should not appear",
			wantNil:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := WrapWithSuggestion(tt.err, tt.suggestion)

			if tt.wantNil {
				if result != nil {
					t.Errorf("WrapWithSuggestion(nil, _) should return nil, got %v", result)
				}
				return
			}

			if result == nil {
				t.Fatal("WrapWithSuggestion() returned nil for non-nil error")
			}

			errStr := result.Error()
			if !strings.Contains(errStr, "original error") {
				t.Errorf("Wrapped error should contain original message, got: %s", errStr)
			}
			if !strings.Contains(errStr, tt.suggestion) {
				t.Errorf("Wrapped error should contain suggestion, got: %s", errStr)
			}
		})
	}
}
