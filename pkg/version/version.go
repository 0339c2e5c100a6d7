// Package version carries the build identity of the stubforge binary.
package version

import "runtime/debug"

// Build metadata, overridden at link time with -ldflags "-X ...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const (
	settingRevision = "vcs.revision"
	settingTime     = "vcs.time"
	develVersion    = "(devel)"
	shortCommitLen  = 12
)

// InitBinaryVersion fills Version, Commit and Date from the embedded module
// build info when they were not set through ldflags.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if Version == "dev" && info.Main.Version != "" && info.Main.Version != develVersion {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case settingRevision:
			if Commit == "none" {
				Commit = shorten(setting.Value)
			}
		case settingTime:
			if Date == "unknown" {
				Date = setting.Value
			}
		}
	}
}

// String renders the version line printed by the version command.
func String() string {
	return Version + " (commit: " + Commit + ", built: " + Date + ")"
}

func shorten(rev string) string {
	if len(rev) > shortCommitLen {
		return rev[:shortCommitLen]
	}

	return rev
}
