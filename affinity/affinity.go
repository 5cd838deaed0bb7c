// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files guarded by build tags.

package affinity

import "runtime"

// SetAffinity pins the calling OS thread to a logical CPU. The caller must
// hold the thread with runtime.LockOSThread for the pin to be meaningful.
// Unsupported platforms return api.ErrNotSupported.
func SetAffinity(cpuID int) error {
	return setAffinityPlatform(cpuID)
}

// CPUFor spreads index i over the CPUs available to the process.
func CPUFor(i int) int {
	n := runtime.NumCPU()
	if n <= 0 {
		return 0
	}
	return i % n
}
