// Package version carries build metadata injected via -ldflags.
package version

var (
	// Version is the release version.
	Version = "dev"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)

// String formats the build metadata for `smartcamd version`.
func String() string {
	return Version + " (commit " + Commit + ", built " + Date + ")"
}
