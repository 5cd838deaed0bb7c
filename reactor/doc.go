// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor runs single-threaded event loops. Each Reactor owns one OS
// thread, a readiness poller (epoll on Linux), a task mailbox and a timer
// heap. Everything registered with a reactor is touched only from its loop
// goroutine; other goroutines communicate with it through Post.
package reactor
