// Package version holds build metadata for the stract client.
package version

import "runtime"

// Overridden at build time:
// go build -ldflags "-X stract/internal/version.Version=0.3.0 -X stract/internal/version.Commit=abc123"
var (
	Version   = "0.1.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info returns the version with a short commit suffix when known.
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// UserAgent is the default User-Agent header sent to the backend.
func UserAgent() string {
	return "stract-client/" + Version + " (" + runtime.GOOS + "/" + runtime.GOARCH + ")"
}

// Full returns multi-line version information for `stract version`.
func Full() string {
	return "stract version " + Version + "\n" +
		"Commit: " + Commit + "\n" +
		"Built: " + BuildDate + "\n" +
		"Go: " + runtime.Version()
}
