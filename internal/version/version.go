// Package version reports the build version, set at link time with
// -ldflags "-X aidiagnos/internal/version.Version=...".
package version

import "runtime/debug"

var Version = ""

func String() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
