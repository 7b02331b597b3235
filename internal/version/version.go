// Package version carries the build metadata stamped into the binary.
//
// Release builds inject the values through ldflags:
//
//	-ldflags "-X github.com/shini559/Gaming-advisor-sub000/internal/version.version=v1.0.0 -X github.com/shini559/Gaming-advisor-sub000/internal/version.commit=abc123 -X github.com/shini559/Gaming-advisor-sub000/internal/version.buildTime=2025-01-01T00:00:00Z"
package version

import (
	"fmt"
	"io"
	"time"
)

// Set via ldflags at build time; left empty in development builds.
//
//nolint:gochecknoglobals // build-time injection target
var (
	version   string
	commit    string
	buildTime string
)

// ApplicationName is printed as the first line of full version output.
const ApplicationName = "GameAdvisor CLI"

// Defaults reported when a build variable was never injected.
const (
	DefaultVersion   = "dev"
	DefaultCommit    = "unknown"
	DefaultBuildTime = "unknown"
)

// VersionInfo is a snapshot of the build metadata with defaults applied.
type VersionInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// GetVersion returns the current build metadata.
func GetVersion() *VersionInfo {
	return &VersionInfo{
		Version:   orDefault(version, DefaultVersion),
		Commit:    orDefault(commit, DefaultCommit),
		BuildTime: orDefault(buildTime, DefaultBuildTime),
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// FormatShort returns just the version number.
func (vi *VersionInfo) FormatShort() string {
	return vi.Version
}

// FormatFull returns the multi-line human-readable rendition.
func (vi *VersionInfo) FormatFull() string {
	return fmt.Sprintf("%s\nVersion: %s\nCommit: %s\nBuilt: %s\n",
		ApplicationName, vi.Version, vi.Commit, vi.BuildTime)
}

// Write renders the info to w, short or full.
func (vi *VersionInfo) Write(w io.Writer, short bool) error {
	if short {
		_, err := fmt.Fprintln(w, vi.FormatShort())
		return err
	}
	_, err := fmt.Fprint(w, vi.FormatFull())
	return err
}

// IsDevelopment reports whether the binary runs without an injected
// version.
func (vi *VersionInfo) IsDevelopment() bool {
	return vi.Version == DefaultVersion
}

// BuildTimestamp parses the injected build time, which release builds
// stamp in RFC3339. The zero time means absent or unparseable.
func (vi *VersionInfo) BuildTimestamp() time.Time {
	ts, err := time.Parse(time.RFC3339, vi.BuildTime)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// SetBuildVars overrides the build variables, for tests.
func SetBuildVars(ver, com, bt string) {
	version = ver
	commit = com
	buildTime = bt
}

// ResetBuildVars clears the build variables, for tests.
func ResetBuildVars() {
	version = ""
	commit = ""
	buildTime = ""
}
