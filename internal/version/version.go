// Package version provides build and version information for FlowEngine.
package version

import "fmt"

// Version is the current release version of FlowEngine.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/AaronLay10/FlowEngine/internal/version.Version=x.y.z"
var Version = "0.3.0"

// Commit is the git revision the binary was built from, set via -ldflags.
var Commit = "dev"

// String renders the version for CLI and health output.
func String() string {
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
