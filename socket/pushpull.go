// File: socket/pushpull.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// PUSH load-balances messages round-robin across connected PULL peers; PULL
// fair-queues everything it receives.

package socket

import "github.com/momentics/hioload-mq/api"

type pushPattern struct {
	basePattern
}

// PUSH peers never send; stray inbound bytes are discarded.
func (*pushPattern) deliver(*peer, api.Message) (bool, error) { return false, nil }

type pullPattern struct {
	basePattern
}
