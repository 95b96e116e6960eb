// Package util holds small helpers shared by lockit packages: size
// constants, a pool of zeroed I/O buffers and human-readable sizes.
package util

// Size constants for byte calculations
const (
	KiB = 1 << 10
	MiB = 1 << 20
	GiB = 1 << 30
	TiB = 1 << 40
)
