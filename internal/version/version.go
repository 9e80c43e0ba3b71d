// Package version holds build information stamped in with -ldflags.
package version

// Set with -ldflags "-X github.com/hopboxdev/meshbox/internal/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// PackageManager is set by package builds (brew, nix, deb).
	PackageManager = ""
)

// String returns the one-line version banner for a binary.
func String(binary string) string {
	return binary + " " + Version + " (commit " + Commit + ", built " + Date + ")"
}
