//go:build !linux

// File: affinity/affinity_other.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for platforms without thread affinity support.

package affinity

import (
	"fmt"

	"github.com/momentics/hioload-mq/api"
)

func setAffinityPlatform(cpuID int) error {
	return fmt.Errorf("affinity: cpu %d: %w", cpuID, api.ErrNotSupported)
}

// Current is not available on this platform.
func Current() ([]int, error) {
	return nil, api.ErrNotSupported
}
