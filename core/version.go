package core

// Build metadata, injected with
//
//	go build -ldflags "-X fluxrelay/core.Version=$(git describe --tags --always) -X fluxrelay/core.GitCommit=$(git rev-parse --short HEAD)"
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// VersionInfo returns "version (commit)".
func VersionInfo() string {
	return Version + " (" + GitCommit + ")"
}
