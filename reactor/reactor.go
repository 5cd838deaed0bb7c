// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Single-threaded event loop: mailbox tasks, timers and readiness dispatch.

package reactor

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-mq/affinity"
	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/internal/concurrency"
)

const (
	DefaultPollTimeout = 100 * time.Millisecond
	DefaultMailboxSize = 4096
)

// Config tunes one reactor.
type Config struct {
	// PollTimeout bounds a single blocking poll.
	PollTimeout time.Duration
	MailboxSize int
	Logger      zerolog.Logger
	// Pin locks the loop thread to CPU. A failed pin is logged and ignored.
	Pin bool
	CPU int
}

// Stats is a snapshot of loop counters.
type Stats struct {
	Tasks         int64
	Dispatches    int64
	Wakeups       int64
	Panics        int64
	MailboxDepth  int
	Registrations int
	Timers        int
}

// Reactor owns one event loop goroutine locked to an OS thread.
type Reactor struct {
	id     int
	cfg    Config
	log    zerolog.Logger
	poller poller

	mailbox *concurrency.RingBuffer[func()]
	spillMu sync.Mutex
	spill   *queue.Queue // overflow of mailbox, FIFO

	sleeping atomic.Bool
	waking   atomic.Bool
	stopping atomic.Bool
	closed   atomic.Bool
	fatal    atomic.Pointer[error]
	stopOnce sync.Once
	done     chan struct{}

	// loop-owned
	fds    map[int]*Registration
	timers timerHeap

	tasks      atomic.Int64
	dispatches atomic.Int64
	wakeups    atomic.Int64
	panics     atomic.Int64
	regCount   atomic.Int64
	timerCount atomic.Int64
}

// New creates and starts a reactor.
func New(id int, cfg Config) (*Reactor, error) {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = DefaultMailboxSize
	}
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	r := &Reactor{
		id:      id,
		cfg:     cfg,
		log:     cfg.Logger.With().Int("reactor", id).Logger(),
		poller:  p,
		mailbox: concurrency.NewRingBuffer[func()](uint64(cfg.MailboxSize)),
		spill:   queue.New(),
		done:    make(chan struct{}),
		fds:     make(map[int]*Registration),
	}
	go r.loop()
	return r, nil
}

// ID returns the index of the reactor within its pool.
func (r *Reactor) ID() int { return r.id }

// Logger returns the reactor's logger.
func (r *Reactor) Logger() zerolog.Logger { return r.log }

// Err returns the failure that stopped the loop, or nil. A failed
// reactor never runs another task; its error matches api.ErrReactorFailed.
func (r *Reactor) Err() error {
	if p := r.fatal.Load(); p != nil {
		return *p
	}
	return nil
}

func (r *Reactor) closedErr() error {
	if err := r.Err(); err != nil {
		return err
	}
	return api.ErrClosed
}

// fail records the first fatal error and makes the loop exit.
func (r *Reactor) fail(err error) {
	err = fmt.Errorf("reactor %d: %w: %w", r.id, api.ErrReactorFailed, err)
	if r.fatal.CompareAndSwap(nil, &err) {
		r.log.Error().Err(err).Msg("reactor failed")
	}
	r.stopping.Store(true)
}

// Post schedules fn on the loop goroutine. It never blocks.
func (r *Reactor) Post(fn func()) error {
	if r.closed.Load() {
		return r.closedErr()
	}
	// Once anything spilled, later tasks queue behind it to keep FIFO order.
	r.spillMu.Lock()
	if r.spill.Length() > 0 || !r.mailbox.Enqueue(fn) {
		r.spill.Add(fn)
	}
	r.spillMu.Unlock()
	if r.sleeping.Load() && r.waking.CompareAndSwap(false, true) {
		r.wakeups.Add(1)
		if err := r.poller.wake(); err != nil {
			r.log.Error().Err(err).Msg("wake failed")
		}
	}
	return nil
}

// Do runs fn on the loop and waits for it. It must not be called from the
// loop goroutine.
func (r *Reactor) Do(fn func()) error {
	ch := make(chan struct{})
	if err := r.Post(func() {
		defer close(ch)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-ch:
		return nil
	case <-r.done:
		select {
		case <-ch:
			return nil
		default:
			return r.closedErr()
		}
	}
}

// AfterFunc schedules fn on the loop after d. Loop goroutine only.
func (r *Reactor) AfterFunc(d time.Duration, fn func()) *Timer {
	t := &Timer{when: time.Now().Add(d), fn: fn}
	r.timers.schedule(t)
	r.timerCount.Store(int64(len(r.timers)))
	return t
}

// StopTimer cancels t. Loop goroutine only.
func (r *Reactor) StopTimer(t *Timer) bool {
	if t == nil {
		return false
	}
	ok := r.timers.cancel(t)
	r.timerCount.Store(int64(len(r.timers)))
	return ok
}

// Stop ends the loop after draining already posted tasks and waits for it.
func (r *Reactor) Stop() {
	r.stopOnce.Do(func() {
		r.stopping.Store(true)
		_ = r.poller.wake()
	})
	<-r.done
}

// Done is closed when the loop has exited.
func (r *Reactor) Done() <-chan struct{} { return r.done }

// Stats returns a snapshot of loop counters.
func (r *Reactor) Stats() Stats {
	r.spillMu.Lock()
	spilled := r.spill.Length()
	r.spillMu.Unlock()
	return Stats{
		Tasks:         r.tasks.Load(),
		Dispatches:    r.dispatches.Load(),
		Wakeups:       r.wakeups.Load(),
		Panics:        r.panics.Load(),
		MailboxDepth:  r.mailbox.Len() + spilled,
		Registrations: int(r.regCount.Load()),
		Timers:        int(r.timerCount.Load()),
	}
}

func (r *Reactor) pendingTasks() bool {
	if r.mailbox.Len() > 0 {
		return true
	}
	r.spillMu.Lock()
	defer r.spillMu.Unlock()
	return r.spill.Length() > 0
}

func (r *Reactor) runTasks() {
	for r.Err() == nil {
		fn, ok := r.mailbox.Dequeue()
		if !ok {
			break
		}
		r.run(fn)
	}
	r.spillMu.Lock()
	spilled := make([]func(), 0, r.spill.Length())
	for r.spill.Length() > 0 {
		spilled = append(spilled, r.spill.Remove().(func()))
	}
	r.spillMu.Unlock()
	for _, fn := range spilled {
		r.run(fn)
	}
}

// run executes fn. A panic leaves loop-owned state undefined, so it fails
// the reactor instead of resuming.
func (r *Reactor) run(fn func()) {
	if r.Err() != nil {
		return
	}
	defer r.recoverPanic("task")
	r.tasks.Add(1)
	fn()
}

func (r *Reactor) recoverPanic(what string) {
	if p := recover(); p != nil {
		r.panics.Add(1)
		r.fail(fmt.Errorf("%s panicked: %v", what, p))
	}
}

func (r *Reactor) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(r.done)

	if r.cfg.Pin {
		if err := affinity.SetAffinity(r.cfg.CPU); err != nil {
			r.log.Warn().Err(err).Int("cpu", r.cfg.CPU).Msg("cpu pinning failed")
		} else {
			r.log.Debug().Int("cpu", r.cfg.CPU).Msg("reactor pinned")
		}
	}
	r.log.Debug().Msg("reactor started")
	for !r.stopping.Load() {
		r.runTasks()
		r.timers.expire(time.Now(), r.run)
		r.timerCount.Store(int64(len(r.timers)))

		timeout := r.cfg.PollTimeout
		if next := r.timers.next(time.Now()); next >= 0 && next < timeout {
			timeout = next
		}
		r.sleeping.Store(true)
		if r.pendingTasks() || r.stopping.Load() {
			timeout = 0
		}
		err := r.poller.wait(timeout, r.dispatch)
		r.sleeping.Store(false)
		r.waking.Store(false)
		if err != nil {
			r.fail(err)
		}
	}

	r.closed.Store(true)
	// Tasks posted before the loop closed still run on a clean stop; a
	// failed loop discards them.
	r.runTasks()
	if err := r.poller.close(); err != nil {
		r.log.Warn().Err(err).Msg("poller close")
	}
	r.log.Debug().Msg("reactor stopped")
}

func (r *Reactor) dispatch(fd int, ev api.Events) {
	reg, ok := r.fds[fd]
	if !ok {
		return
	}
	reg.fire(ev)
}

// Registration ties a transport object to a handler on one reactor.
type Registration struct {
	r        *Reactor
	src      api.Pollable
	h        api.ReadyHandler
	fd       int
	interest api.Events
	pending  atomic.Bool
	closed   bool
}

var errRegistered = errors.New("descriptor already registered")

// Register starts watching src for the events in interest. Loop goroutine
// only. Software sources are treated as ready once right after registration.
func (r *Reactor) Register(src api.Pollable, interest api.Events, h api.ReadyHandler) (*Registration, error) {
	reg := &Registration{r: r, src: src, h: h, fd: src.Fd(), interest: interest}
	if reg.fd >= 0 {
		if _, dup := r.fds[reg.fd]; dup {
			return nil, fmt.Errorf("fd %d: %w", reg.fd, errRegistered)
		}
		if err := r.poller.add(reg.fd, interest); err != nil {
			return nil, err
		}
		r.fds[reg.fd] = reg
	} else {
		src.SetNotify(reg.notify)
		reg.notify()
	}
	r.regCount.Add(1)
	return reg, nil
}

// notify may be called from any goroutine.
func (g *Registration) notify() {
	if g.pending.CompareAndSwap(false, true) {
		if err := g.r.Post(g.fireSoft); err != nil {
			g.pending.Store(false)
		}
	}
}

func (g *Registration) fireSoft() {
	g.pending.Store(false)
	g.fire(g.interest)
}

func (g *Registration) fire(ev api.Events) {
	if g.closed || g.r.Err() != nil {
		return
	}
	ev &= g.interest | api.EventError
	if ev == 0 {
		return
	}
	g.r.dispatches.Add(1)
	defer g.r.recoverPanic("handler")
	g.h.HandleReady(ev)
}

// Interest returns the current event mask.
func (g *Registration) Interest() api.Events { return g.interest }

// SetInterest replaces the event mask. Enabling an event on a software
// source re-arms it so a readiness change missed while disabled is observed.
func (g *Registration) SetInterest(ev api.Events) error {
	if g.closed || ev == g.interest {
		return nil
	}
	added := ev &^ g.interest
	g.interest = ev
	if g.fd >= 0 {
		return g.r.poller.modify(g.fd, ev)
	}
	if added != 0 {
		g.notify()
	}
	return nil
}

// Close stops watching the source. Readiness already queued for it is
// discarded. It does not close the source itself.
func (g *Registration) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	g.r.regCount.Add(-1)
	if g.fd >= 0 {
		delete(g.r.fds, g.fd)
		return g.r.poller.remove(g.fd)
	}
	g.src.SetNotify(nil)
	return nil
}
