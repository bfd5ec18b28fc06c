package entity

import "strings"

// Error codes produced by the classifier. Each starts with its category prefix.
const (
	CodeUnauthorized       = "AUTH_UNAUTHORIZED"
	CodeForbidden          = "AUTHZ_FORBIDDEN"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeInvalidInput       = "VALIDATION_INVALID_INPUT"
	CodeConnectionFailed   = "NETWORK_CONNECTION_FAILED"
	CodeNetworkTimeout     = "NETWORK_TIMEOUT"
	CodeRequestCancelled   = "NETWORK_REQUEST_CANCELLED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeServiceFatal       = "SERVICE_FATAL"
	CodeCircuitOpen        = "SERVICE_CIRCUIT_OPEN"
	CodeQueryFailed        = "DATABASE_QUERY_FAILED"
	CodeFileAccessFailed   = "FILESYSTEM_ACCESS_FAILED"
	CodeFileNotFound       = "FILESYSTEM_NOT_FOUND"
	CodeRuntimeError       = "UI_RUNTIME_ERROR"
	CodeUnknown            = "UNKNOWN_ERROR"
)

// MessageKey returns the localization key for an error code.
func MessageKey(code string) string {
	return "errors." + strings.ToLower(code)
}
