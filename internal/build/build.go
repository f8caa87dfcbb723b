// Package build holds the version information stamped in at link time.
package build

var (
	// Version is the released version, set with -ldflags "-X github.com/openfga/reactive/internal/build.Version=...".
	Version = "dev"
	// Commit is the git commit the binary was built from.
	Commit = "none"
	// Date is the build date.
	Date = "unknown"
)
