package version

import (
	"fmt"
	"io"
	"runtime"
)

// Set at build time with -ldflags "-X github.com/go-authgate/wpgate/internal/version.Version=...".
var (
	App       = "wpgate"
	Version   string
	GitCommit string
	BuildTime string
)

// Print writes the version block shown by `wpgate version`.
func Print(w io.Writer) {
	fmt.Fprintf(w, "%s version %s\n", App, String())
	if GitCommit != "" {
		fmt.Fprintf(w, "Git commit: %s\n", shortCommit())
	}
	if BuildTime != "" {
		fmt.Fprintf(w, "Build time: %s\n", BuildTime)
	}
	fmt.Fprintf(w, "Go version: %s\n", runtime.Version())
	fmt.Fprintf(w, "Built for: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// String returns the release version, or "dev" for local builds.
func String() string {
	if Version != "" {
		return Version
	}
	return "dev"
}

func shortCommit() string {
	if len(GitCommit) > 7 {
		return GitCommit[:7]
	}
	return GitCommit
}
