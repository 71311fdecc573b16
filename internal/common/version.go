package common

import (
	"fmt"
	"time"
)

// Set via -ldflags at build time.
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

var startedAt = time.Now()

// BuildInfo is the version payload served on /api/version and by the MCP server.
type BuildInfo struct {
	Version   string `json:"version"`
	Build     string `json:"build"`
	GitCommit string `json:"git_commit"`
}

func CurrentBuild() BuildInfo {
	return BuildInfo{Version: Version, Build: Build, GitCommit: GitCommit}
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("%s (build: %s, commit: %s)", b.Version, b.Build, b.GitCommit)
}

// Uptime is the time since the process loaded this package.
func Uptime() time.Duration {
	return time.Since(startedAt)
}
