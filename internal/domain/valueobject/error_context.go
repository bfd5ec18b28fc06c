package valueobject

import "fmt"

// ErrorContext tags where an error surfaced, which decides how much detail a user sees.
type ErrorContext string

const (
	ContextPublic ErrorContext = "public"
	ContextAuth   ErrorContext = "auth"
	ContextAdmin  ErrorContext = "admin"
)

// NewErrorContext validates a context tag. An empty tag means public.
func NewErrorContext(tag string) (ErrorContext, error) {
	switch ErrorContext(tag) {
	case "":
		return ContextPublic, nil
	case ContextPublic, ContextAuth, ContextAdmin:
		return ErrorContext(tag), nil
	default:
		return "", fmt.Errorf("invalid error context: %q", tag)
	}
}

// String returns the context tag.
func (c ErrorContext) String() string {
	return string(c)
}

// ShowsTechnicalDetails is true where technical messages may be displayed.
func (c ErrorContext) ShowsTechnicalDetails() bool {
	return c == ContextAdmin || c == ContextAuth
}
