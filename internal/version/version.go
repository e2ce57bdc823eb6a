// Package version holds build-time version metadata, set via
// -ldflags at build time (see cmd/synheartd's build target).
package version

import "fmt"

// Version, Commit, and BuildDate are overridden at build time via
// -ldflags "-X ...". Their zero values identify an unreleased build.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Short returns the version string alone, e.g. "0.1.0".
func Short() string {
	return Version
}

// Info returns a human-readable one-line build summary.
func Info() string {
	return fmt.Sprintf("synheartd %s (commit %s, built %s)", Version, Commit, BuildDate)
}

// Map returns the version fields as a map, suitable for embedding in a
// JSON health response.
func Map() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     Commit,
		"build_date": BuildDate,
	}
}
