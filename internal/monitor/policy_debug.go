//go:build debug

package monitor

// DefaultFatalPolicy aborts on unobserved fatal inconsistencies in debug builds.
const DefaultFatalPolicy = FatalPanic
