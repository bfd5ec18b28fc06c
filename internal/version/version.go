// Package version holds build information injected with ldflags:
//
//	-ldflags "-X edurecovery/internal/version.version=v1.0.0 -X edurecovery/internal/version.commit=abc123 -X edurecovery/internal/version.buildTime=2025-01-01T00:00:00Z"
package version

import (
	"fmt"
	"io"
	"strings"
	"time"
)

//nolint:gochecknoglobals // Required for build-time injection via ldflags.
var (
	version   string
	commit    string
	buildTime string
)

// ApplicationName is the name of the application displayed in version output.
const ApplicationName = "edurecovery"

// Default values used when version information is not available.
const (
	DefaultVersion   = "dev"
	DefaultCommit    = "unknown"
	DefaultBuildTime = "unknown"
)

// VersionInfo is the build information with defaults applied.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// NewVersionInfo reads the build-time variables.
func NewVersionInfo() *VersionInfo {
	return &VersionInfo{
		Version:   withDefault(version, DefaultVersion),
		Commit:    withDefault(commit, DefaultCommit),
		BuildTime: withDefault(buildTime, DefaultBuildTime),
	}
}

func withDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// FormatFull returns the application name followed by one labelled line per field.
func (vi *VersionInfo) FormatFull() string {
	var builder strings.Builder
	builder.WriteString(ApplicationName + "\n")
	builder.WriteString("Version: " + vi.Version + "\n")
	builder.WriteString("Commit: " + vi.Commit + "\n")
	builder.WriteString("Built: " + vi.BuildTime + "\n")
	return builder.String()
}

// Write prints the version only when short is set, the full block otherwise.
func (vi *VersionInfo) Write(w io.Writer, short bool) error {
	if short {
		_, err := fmt.Fprintln(w, vi.Version)
		return err
	}
	_, err := fmt.Fprint(w, vi.FormatFull())
	return err
}

// IsDevelopment reports whether no version was injected.
func (vi *VersionInfo) IsDevelopment() bool {
	return vi.Version == DefaultVersion
}

// BuiltAt parses the build time, returning the zero time when unknown.
func (vi *VersionInfo) BuiltAt() time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, vi.BuildTime); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

// SetBuildVars overrides the build-time variables.
func SetBuildVars(ver, com, bt string) {
	version = ver
	commit = com
	buildTime = bt
}
