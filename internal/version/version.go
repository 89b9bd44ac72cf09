// SPDX-License-Identifier: MIT

// Package version carries the build identity stamped in by ldflags.
package version

var (
	// Version is the release tag, or the fallback for untagged builds.
	Version = "v0.1.0"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)

// String renders the full build identity.
func String() string {
	return Version + " (" + Commit + ", " + Date + ")"
}
