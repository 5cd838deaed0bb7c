// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Readiness events dispatched by reactors to registered handlers.

package api

// Events is a bit set of readiness conditions.
type Events uint8

const (
	EventRead Events = 1 << iota
	EventWrite
	EventError
)

// Has reports whether all bits of other are set in e.
func (e Events) Has(other Events) bool {
	return e&other == other
}

// ReadyHandler receives readiness notifications on the owning reactor goroutine.
type ReadyHandler interface {
	HandleReady(ev Events)
}

// ReadyFunc adapts a function to ReadyHandler.
type ReadyFunc func(ev Events)

// HandleReady calls f(ev).
func (f ReadyFunc) HandleReady(ev Events) {
	f(ev)
}
