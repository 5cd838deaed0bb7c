// File: api/control.go
// Package api defines Control interface.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Control exposes runtime configuration, counters and debug probes of a
// Context. SetConfig rejects invalid updates without applying any key.
type Control interface {
	GetConfig() map[string]any
	SetConfig(cfg map[string]any) error
	OnReload(fn func())

	Stats() map[string]any
	SetMetric(key string, value any)
	AddCounter(key string, delta int64)
	Counter(key string) int64

	RegisterDebugProbe(name string, fn func() any)
	DumpState() map[string]any
}
