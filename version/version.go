// Package version reports how the collector binary was built.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Build information, set at build time via ldflags:
//
//	go build -ldflags "-X github.com/implicit-corpus/collector/version.Version=v0.3.0"
var (
	CommitHash = "dev"
	BuildTime  = "unknown"
	Version    = "dev"
)

// Info contains version and build information
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
	Modified   bool   `json:"modified,omitempty"`
}

// Get returns the current version information. When no ldflags were given
// the VCS stamp of the Go toolchain fills in the commit and time.
func Get() Info {
	info := Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		applyBuildInfo(&info, bi)
	}
	return info
}

func applyBuildInfo(info *Info, bi *debug.BuildInfo) {
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.CommitHash == "dev" {
				info.CommitHash = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "unknown" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
}

// String returns a human-readable version string
func (i Info) String() string {
	dirty := ""
	if i.Modified {
		dirty = ", modified"
	}
	return fmt.Sprintf("collector %s (commit %s, built %s%s)", i.Version, i.Short(), i.BuildTime, dirty)
}

// Short returns the abbreviated commit hash
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}
