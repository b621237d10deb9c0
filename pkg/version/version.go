// Package version holds the symbolic version of the running code.
package version

// Version is the symbolic version of this build. It is meant to be set at
// build time via -ldflags "-X github.com/m-lab/nter/pkg/version.Version=...".
var Version = "v0.1.0"
