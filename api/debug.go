// Package api
// Author: momentics
//
// Probe registry contract behind Control.DumpState.

package api

// Debug collects named probes evaluated on every dump.
type Debug interface {
	DumpState() map[string]any
	RegisterProbe(name string, fn func() any)
}
