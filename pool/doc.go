// Package pool
// Author: momentics <momentics@gmail.com>
//
// Reusable byte buffers for the IO paths: reactor read scratch space and
// stream pump chunks. Buffers handed out by a BytePool have a fixed length
// and must be returned with Put once the caller is done with them.
package pool
