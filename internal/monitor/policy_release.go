//go:build !debug

package monitor

// DefaultFatalPolicy ignores unobserved fatal inconsistencies in release builds.
const DefaultFatalPolicy = FatalIgnore
