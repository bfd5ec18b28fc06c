package valueobject

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrorSeverity represents how loud an error should be for users and operators.
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// validSeverities maps each level to its priority (0 = highest priority).
var validSeverities = map[ErrorSeverity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
}

// NewErrorSeverity creates a new error severity with validation.
func NewErrorSeverity(level string) (ErrorSeverity, error) {
	if level == "" {
		return "", errors.New("invalid error severity: cannot be empty")
	}

	severity := ErrorSeverity(strings.ToLower(level))
	if _, exists := validSeverities[severity]; !exists {
		return "", fmt.Errorf("invalid error severity: %s is not a valid level", level)
	}

	return severity, nil
}

// String returns the string representation of the severity.
func (s ErrorSeverity) String() string {
	return string(s)
}

// IsValid reports whether s is one of the known levels.
func (s ErrorSeverity) IsValid() bool {
	_, ok := validSeverities[s]
	return ok
}

// IsCritical returns true if this is a critical error.
func (s ErrorSeverity) IsCritical() bool {
	return s == SeverityCritical
}

// IsLow returns true for errors that dismiss themselves.
func (s ErrorSeverity) IsLow() bool {
	return s == SeverityLow
}

// Priority returns the numeric priority (0 = highest priority).
func (s ErrorSeverity) Priority() int {
	if p, ok := validSeverities[s]; ok {
		return p
	}
	return len(validSeverities)
}

// IsHigherPriority returns true if this severity has higher priority than other.
func (s ErrorSeverity) IsHigherPriority(other ErrorSeverity) bool {
	return s.Priority() < other.Priority()
}

// RequiresExternalReport returns true for the tiers forwarded to telemetry sinks.
func (s ErrorSeverity) RequiresExternalReport() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *ErrorSeverity) UnmarshalJSON(data []byte) error {
	var level string
	if err := json.Unmarshal(data, &level); err != nil {
		return err
	}

	severity, err := NewErrorSeverity(level)
	if err != nil {
		return err
	}

	*s = severity
	return nil
}
