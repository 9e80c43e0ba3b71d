package version

import "strings"

// DetectPackageManager returns the package manager meshctl was installed
// with, or "" for a standalone binary. The build-time PackageManager wins
// over path heuristics.
func DetectPackageManager(execPath string) string {
	if PackageManager != "" {
		return PackageManager
	}
	switch {
	case strings.Contains(execPath, "/Cellar/"),
		strings.Contains(execPath, "/homebrew/"),
		strings.Contains(execPath, "linuxbrew/"):
		return "brew"
	case strings.Contains(execPath, "/nix/store/"):
		return "nix"
	case strings.HasPrefix(execPath, "/usr/bin/"), strings.HasPrefix(execPath, "/usr/sbin/"):
		return "system"
	}
	return ""
}
