// Package version holds the cardvault build version, set with
//
//	go build -ldflags "-X github.com/ramonehamilton/cardvault/internal/version.Version=v1.2.3"
package version

// Version defaults to "dev" for local builds.
var Version = "dev"
