// Package version reports the netpool build version.
//
// Values are injected with ldflags:
//
//	go build -ldflags "-X github.com/go-i2p/netpool/version.Version=1.0.0 \
//	  -X github.com/go-i2p/netpool/version.GitCommit=$(git rev-parse --short HEAD)"
//
// A binary built with go install and no ldflags falls back to the module
// version recorded in its build info.
package version

import "runtime/debug"

// Version is the release version. "dev" for local builds.
var Version = "dev"

// GitCommit is the short commit hash.
var GitCommit = ""

// BuildTime is the UTC build timestamp.
var BuildTime = ""

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// Full returns the version with commit and build time when known.
func Full() string {
	v := resolved()
	if GitCommit != "" {
		v += "-" + GitCommit
	}
	if BuildTime != "" {
		v += " (" + BuildTime + ")"
	}
	return v
}

// resolved returns Version, or the main module version for a dev build
// installed from a tagged release.
func resolved() string {
	if Version != "dev" {
		return Version
	}
	info, ok := readBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return Version
	}
	return info.Main.Version
}
