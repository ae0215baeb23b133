// Package version holds build information injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/longkey1/prepc/internal/version.Version=v1.0.0"
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

// BuildInfo describes the running binary
type BuildInfo struct {
	Version   string `json:"version"`
	CommitSHA string `json:"commitSha"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// Get returns the build information. Binaries built without ldflags (go
// install) fall back to the module version and VCS stamps recorded by the
// Go toolchain.
func Get() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		CommitSHA: CommitSHA,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fillFromModule(&info, bi)
	}
	return info
}

func fillFromModule(info *BuildInfo, bi *debug.BuildInfo) {
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.CommitSHA == "unknown" {
				info.CommitSHA = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "unknown" {
				info.BuildTime = s.Value
			}
		}
	}
}

// Short returns the version number
func Short() string {
	return Get().Version
}

// Info returns the full build information
func Info() string {
	info := Get()
	return fmt.Sprintf("prepc %s\nCommit: %s\nBuilt: %s\nGo: %s %s",
		info.Version, info.CommitSHA, info.BuildTime, info.GoVersion, info.Platform)
}
