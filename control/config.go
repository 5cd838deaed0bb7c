// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Runtime configuration store. Updates are validated as a whole before any
// key changes, then reload listeners run with the new snapshot visible.

package control

import (
	"sync"
)

// Validator inspects a proposed update and rejects it with an error.
type Validator func(update map[string]any) error

// ConfigStore is a dynamic key/value map with snapshot reads and listener support.
type ConfigStore struct {
	mu         sync.RWMutex
	config     map[string]any
	validators []Validator
	listeners  []func()
	version    uint64
}

// NewConfigStore initializes a new config store with empty data.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		config: make(map[string]any),
	}
}

// GetSnapshot returns a copy of all config values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		out[k] = v
	}
	return out
}

// Get returns a single value.
func (cs *ConfigStore) Get(key string) (any, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	v, ok := cs.config[key]
	return v, ok
}

// Version counts accepted updates.
func (cs *ConfigStore) Version() uint64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.version
}

// AddValidator registers a check every later update must pass.
func (cs *ConfigStore) AddValidator(v Validator) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.validators = append(cs.validators, v)
}

// SetConfig merges newCfg when every validator accepts it, then runs the
// reload listeners synchronously after the lock is released.
func (cs *ConfigStore) SetConfig(newCfg map[string]any) error {
	cs.mu.Lock()
	for _, v := range cs.validators {
		if err := v(newCfg); err != nil {
			cs.mu.Unlock()
			return err
		}
	}
	for k, v := range newCfg {
		cs.config[k] = v
	}
	cs.version++
	listeners := append([]func(){}, cs.listeners...)
	cs.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return nil
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
