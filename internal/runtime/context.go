// Package runtime assembles the application's long-lived components and
// carries build metadata that is not user-configurable.
package runtime

// Context contains runtime metadata injected at application startup.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string
}
