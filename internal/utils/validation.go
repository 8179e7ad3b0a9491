package utils

import (
	"fmt"
	"math"
	"time"
)

// ValidateAmount rejects negative, NaN and infinite money values.
func ValidateAmount(field string, amount float64) error {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return ErrInvalidAmount(field, amount)
	}
	return nil
}

// ParseDateFlag parses a date string in ISO format (YYYY-MM-DD).
// Returns nil for empty strings (used to clear dates).
// Returns error for invalid formats or dates.
func ParseDateFlag(dateStr string) (*time.Time, error) {
	// Empty string means clear the date
	if dateStr == "" {
		return nil, nil
	}

	// Parse ISO date format (YYYY-MM-DD) in local timezone
	parsedDate, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
	if err != nil {
		return nil, ErrInvalidDate(dateStr)
	}

	return &parsedDate, nil
}

// ValidateDates checks that an issue or start date does not fall after the due date.
func ValidateDates(startDate, dueDate *time.Time) error {
	// If either is nil, no validation needed
	if startDate == nil || dueDate == nil {
		return nil
	}

	// Start date must be before or equal to due date
	if startDate.After(*dueDate) {
		return fmt.Errorf("date (%s) cannot be after due date (%s)",
			startDate.Format("2006-01-02"),
			dueDate.Format("2006-01-02"))
	}

	return nil
}
