// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives for hioload-mq: a lock-free MPMC ring used as the
// reactor mailbox, and an executor for work that must never run on a
// reactor goroutine.
package concurrency
