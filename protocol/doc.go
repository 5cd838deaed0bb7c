// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Implements the hioload-mq wire framing.
//
// Every message travels as one frame: a 4-byte big-endian length prefix
// followed by exactly that many payload bytes. Zero-length frames are valid.
// There is no other framing variant.
//
// Includes:
//   - Incremental decoding of arbitrary byte chunks with tail buffering
//   - Size enforcement before any payload allocation
//   - Outbound staging with partial-write accounting for non-blocking transports
package protocol
