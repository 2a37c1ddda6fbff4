// Package version holds build identification stamped in via -ldflags.
package version

var (
	// Version is the release tag, or "dev" for unstamped local builds.
	Version = "dev"
	// GitSHA identifies the commit the binaries were built from.
	GitSHA = "unknown"
	// BuildTime records when the binaries were built.
	BuildTime = "unknown"
)
