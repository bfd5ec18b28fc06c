package valueobject

import "fmt"

// BreadcrumbType classifies a breadcrumb recorded ahead of an error report.
type BreadcrumbType string

const (
	BreadcrumbNavigation BreadcrumbType = "navigation"
	BreadcrumbUser       BreadcrumbType = "user"
	BreadcrumbAPI        BreadcrumbType = "api"
	BreadcrumbError      BreadcrumbType = "error"
	BreadcrumbInfo       BreadcrumbType = "info"
)

// NewBreadcrumbType validates a breadcrumb type.
func NewBreadcrumbType(value string) (BreadcrumbType, error) {
	switch t := BreadcrumbType(value); t {
	case BreadcrumbNavigation, BreadcrumbUser, BreadcrumbAPI, BreadcrumbError, BreadcrumbInfo:
		return t, nil
	default:
		return "", fmt.Errorf("invalid breadcrumb type: %q", value)
	}
}

// String returns the breadcrumb type name.
func (t BreadcrumbType) String() string {
	return string(t)
}
