package valueobject

import (
	"fmt"
	"strings"
)

// ErrorCategory is the taxonomy every classified error belongs to.
type ErrorCategory string

const (
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryAuthorization  ErrorCategory = "authorization"
	CategoryValidation     ErrorCategory = "validation"
	CategoryNetwork        ErrorCategory = "network"
	CategoryService        ErrorCategory = "service"
	CategoryDatabase       ErrorCategory = "database"
	CategoryFileSystem     ErrorCategory = "filesystem"
	CategoryUI             ErrorCategory = "ui"
	CategoryUnknown        ErrorCategory = "unknown"
)

// categoryDefaults holds the fixed severity/retryability pairing of each category.
var categoryDefaults = map[ErrorCategory]struct {
	prefix    string
	severity  ErrorSeverity
	retryable bool
}{
	CategoryAuthentication: {prefix: "AUTH_", severity: SeverityHigh, retryable: false},
	CategoryAuthorization:  {prefix: "AUTHZ_", severity: SeverityMedium, retryable: false},
	CategoryValidation:     {prefix: "VALIDATION_", severity: SeverityLow, retryable: true},
	CategoryNetwork:        {prefix: "NETWORK_", severity: SeverityMedium, retryable: true},
	CategoryService:        {prefix: "SERVICE_", severity: SeverityMedium, retryable: true},
	CategoryDatabase:       {prefix: "DATABASE_", severity: SeverityCritical, retryable: false},
	CategoryFileSystem:     {prefix: "FILESYSTEM_", severity: SeverityMedium, retryable: true},
	CategoryUI:             {prefix: "UI_", severity: SeverityLow, retryable: true},
	CategoryUnknown:        {prefix: "UNKNOWN_", severity: SeverityMedium, retryable: true},
}

// NewErrorCategory parses a category name.
func NewErrorCategory(name string) (ErrorCategory, error) {
	category := ErrorCategory(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := categoryDefaults[category]; !ok {
		return "", fmt.Errorf("invalid error category: %q", name)
	}
	return category, nil
}

// String returns the category name.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsValid reports whether c is a known category.
func (c ErrorCategory) IsValid() bool {
	_, ok := categoryDefaults[c]
	return ok
}

// CodePrefix returns the prefix every error code of this category starts with.
func (c ErrorCategory) CodePrefix() string {
	return categoryDefaults[c].prefix
}

// DefaultSeverity returns the severity errors of this category carry unless overridden.
func (c ErrorCategory) DefaultSeverity() ErrorSeverity {
	if d, ok := categoryDefaults[c]; ok {
		return d.severity
	}
	return SeverityMedium
}

// DefaultRetryable returns whether errors of this category are worth retrying.
func (c ErrorCategory) DefaultRetryable() bool {
	if d, ok := categoryDefaults[c]; ok {
		return d.retryable
	}
	return true
}

// CategoryForCode derives the category from a category-prefixed code.
// AUTHZ_ is checked before AUTH_ since the latter is a prefix of the former.
func CategoryForCode(code string) (ErrorCategory, bool) {
	if strings.HasPrefix(code, CategoryAuthorization.CodePrefix()) {
		return CategoryAuthorization, true
	}
	for category, d := range categoryDefaults {
		if category == CategoryAuthorization {
			continue
		}
		if strings.HasPrefix(code, d.prefix) {
			return category, true
		}
	}
	return "", false
}
