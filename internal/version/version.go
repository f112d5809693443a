// Package version identifies the running launcher build. The build number is
// what the remote launcher version document is compared against.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
)

// Set with -ldflags "-X". Commit and build time fall back to the VCS stamp
// the Go toolchain embeds when left empty.
var (
	Version   = "dev"
	Build     = "0"
	GitCommit = ""
	BuildTime = ""
)

// BuildNumber returns Build as an integer. Unparseable or negative values
// count as build 0, which any published launcher build supersedes.
func BuildNumber() int {
	n, err := strconv.Atoi(Build)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// vcsStamp is swapped out in tests.
var vcsStamp = func() (revision, at string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			at = s.Value
		}
	}
	return revision, at
}

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	Build     int    `json:"build"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetInfo collects the build description.
func GetInfo() Info {
	commit, at := GitCommit, BuildTime
	if commit == "" || at == "" {
		rev, t := vcsStamp()
		if commit == "" {
			commit = rev
		}
		if at == "" {
			at = t
		}
	}
	if len(commit) > 12 {
		commit = commit[:12]
	}

	return Info{
		Version:   Version,
		Build:     BuildNumber(),
		GitCommit: orUnknown(commit),
		BuildTime: orUnknown(at),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String renders the build for humans.
func String() string {
	i := GetInfo()
	return fmt.Sprintf("ys-launcher %s build %d (commit %s, built %s, %s %s)",
		i.Version, i.Build, i.GitCommit, i.BuildTime, i.GoVersion, i.Platform)
}

// UserAgent is the User-Agent header sent to the game's web host.
func UserAgent() string {
	return fmt.Sprintf("ys-launcher/%s (build %d; %s/%s)", Version, BuildNumber(), runtime.GOOS, runtime.GOARCH)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
