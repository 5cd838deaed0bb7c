// Package adapters
// Author: momentics <momentics@gmail.com>
//
// ControlAdapter assembles the control primitives into the api.Control
// surface a Context exposes.

package adapters

import (
	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/control"
)

// ControlAdapter implements api.Control.
type ControlAdapter struct {
	config  *control.ConfigStore
	metrics *control.MetricsRegistry
	debug   *control.DebugProbes
}

var _ api.Control = (*ControlAdapter)(nil)

// NewControlAdapter returns an adapter with platform probes registered.
func NewControlAdapter() *ControlAdapter {
	adapter := &ControlAdapter{
		config:  control.NewConfigStore(),
		metrics: control.NewMetricsRegistry(),
		debug:   control.NewDebugProbes(),
	}
	control.RegisterPlatformProbes(adapter.debug)
	return adapter
}

func (c *ControlAdapter) GetConfig() map[string]any { return c.config.GetSnapshot() }

// SetConfig applies cfg if every validator accepts it.
func (c *ControlAdapter) SetConfig(cfg map[string]any) error {
	return c.config.SetConfig(cfg)
}

// AddValidator guards later SetConfig calls.
func (c *ControlAdapter) AddValidator(v control.Validator) { c.config.AddValidator(v) }

// ConfigVersion counts accepted SetConfig calls.
func (c *ControlAdapter) ConfigVersion() uint64 { return c.config.Version() }

func (c *ControlAdapter) OnReload(fn func()) { c.config.OnReload(fn) }

// Stats merges gauges, counters and probe output; probe keys are prefixed
// with "debug.".
func (c *ControlAdapter) Stats() map[string]any {
	stats := c.metrics.GetSnapshot()
	for k, v := range c.debug.DumpState() {
		stats["debug."+k] = v
	}
	return stats
}

func (c *ControlAdapter) SetMetric(key string, value any) { c.metrics.Set(key, value) }

// AddCounter makes the adapter usable as socket.Counters.
func (c *ControlAdapter) AddCounter(key string, delta int64) { c.metrics.Add(key, delta) }

func (c *ControlAdapter) Counter(key string) int64 { return c.metrics.Counter(key) }

func (c *ControlAdapter) RegisterDebugProbe(name string, fn func() any) {
	c.debug.RegisterProbe(name, fn)
}

// DumpState returns probe output only.
func (c *ControlAdapter) DumpState() map[string]any { return c.debug.DumpState() }
