// File: reactor/poller.go
// Author: momentics <momentics@gmail.com>

package reactor

import (
	"time"

	"github.com/momentics/hioload-mq/api"
)

// poller waits for OS-level readiness of descriptors.
type poller interface {
	add(fd int, ev api.Events) error
	modify(fd int, ev api.Events) error
	remove(fd int) error
	// wait blocks up to timeout (negative: forever) or until wake is called,
	// invoking fn for every ready descriptor.
	wait(timeout time.Duration, fn func(fd int, ev api.Events)) error
	wake() error
	close() error
}
