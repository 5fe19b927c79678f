package core

// Version information for the grocery services, overridden at build time:
//
//	go build -ldflags "-X github.com/itsneelabh/gomind-grocery/core.Version=1.2.0"
var (
	// Version is the current service version
	Version = "development"

	// BuildDate is set during build time
	BuildDate = "development"

	// GitCommit is set during build time
	GitCommit = "unknown"
)
