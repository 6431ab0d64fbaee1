// Package version holds build metadata. Release builds inject it with
// -ldflags -X; plain `go build` and `go install` builds fall back to the
// VCS stamp the toolchain embeds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Name is the binary name used in version output and release assets.
const Name = "botlauncher"

const unknown = "unknown"

// Set via -ldflags "-X github.com/smazurov/botlauncher/internal/version.Version=..."
var (
	Version   = "dev"
	GitCommit = unknown
	BuildDate = unknown
)

// Info contains version and build metadata.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns version and build information.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fillFromSettings(&info, bi.Settings)
	}
	return info
}

// fillFromSettings copies vcs.* build settings into fields ldflags left unset.
func fillFromSettings(info *Info, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == unknown {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildDate == unknown {
				info.BuildDate = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
}

// String formats the info as a single line.
func (i Info) String() string {
	commit := shortCommit(i.GitCommit)
	if i.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s %s (commit %s, built %s, %s %s)",
		Name, i.Version, commit, i.BuildDate, i.GoVersion, i.Platform)
}

// IsDev reports whether this is an untagged development build.
func IsDev() bool {
	return Version == "dev"
}

func shortCommit(c string) string {
	if len(c) > 7 {
		return c[:7]
	}
	return c
}
