// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Wire protocol constants.

package protocol

const (
	// HeaderLen is the size of the big-endian length prefix.
	HeaderLen = 4

	// DefaultMaxFrameBytes bounds a single frame payload (1 GiB).
	DefaultMaxFrameBytes = 1 << 30

	// MaxEncodableFrameBytes is the largest length the prefix can express.
	MaxEncodableFrameBytes = 1<<32 - 1
)
