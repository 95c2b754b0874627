package version

import "fmt"

// These variables are set at build time via -ldflags
// Example: go build -ldflags "-X github.com/pysugar/homeauth/internal/version.Version=v0.3.0"
var (
	// Version is the semantic version reported as DeviceInfo.AppVersion
	Version = "dev"

	// Commit is the git commit hash
	Commit = "none"

	// BuildTime is the timestamp of the build
	BuildTime = "unknown"
)

// String renders the build identity for `homeauth version`.
func String() string {
	return fmt.Sprintf("homeauth %s (commit %s, built %s)", Version, Commit, BuildTime)
}
