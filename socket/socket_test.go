package socket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/internal/transport"
)

func TestNewRejectsBadConfig(t *testing.T) {
	h := newHarness(t, transport.Config{})

	_, err := New(api.Pattern(42), h.deps())
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	_, err = New(api.PatternPush, h.deps(), WithHighWaterMark(0))
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	var apiErr *api.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, api.ErrCodeInvalidArgument, apiErr.Code)
	assert.Equal(t, 0, apiErr.Context["high_water_mark"])

	_, err = New(api.PatternReq, h.deps(), WithOverflow(OverflowDrop))
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	_, err = New(api.PatternPush, Deps{})
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestParseOverflow(t *testing.T) {
	for _, o := range []Overflow{OverflowDefault, OverflowFail, OverflowBlock, OverflowDrop} {
		got, err := ParseOverflow(o.String())
		require.NoError(t, err)
		assert.Equal(t, o, got)
	}
	_, err := ParseOverflow("sometimes")
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestSendFailsAtHighWaterMark(t *testing.T) {
	h := newHarness(t, transport.Config{})
	push := h.socket(t, api.PatternPush, WithHighWaterMark(3))

	for i := 0; i < 3; i++ {
		require.NoError(t, push.Send(msg("x")))
	}
	assert.ErrorIs(t, push.Send(msg("x")), api.ErrWouldBlock)
	assert.Equal(t, 3, push.Stats().OutboundDepth)
	assert.Zero(t, push.Events()&api.EventWrite)
}

func TestSendDropsWhenConfigured(t *testing.T) {
	h := newHarness(t, transport.Config{})
	push := h.socket(t, api.PatternPush, WithHighWaterMark(1), WithOverflow(OverflowDrop))

	require.NoError(t, push.Send(msg("kept")))
	require.NoError(t, push.Send(msg("dropped")))
	st := push.Stats()
	assert.Equal(t, 1, st.OutboundDepth)
	assert.Equal(t, uint64(1), st.Dropped)
}

func TestBlockingSendWaitsForSpace(t *testing.T) {
	h := newHarness(t, transport.Config{})
	push := h.socket(t, api.PatternPush, WithHighWaterMark(2), WithBlocking(true))
	require.NoError(t, push.Send(msg("1")))
	require.NoError(t, push.Send(msg("2")))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, push.SendContext(ctx, msg("late")), api.ErrTimedOut)
	assert.Equal(t, 2, push.Stats().OutboundDepth)

	done := make(chan error, 1)
	go func() { done <- push.Send(msg("3")) }()

	select {
	case err := <-done:
		t.Fatalf("send returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	pull := h.socket(t, api.PatternPull)
	addr, err := pull.Bind("inproc://blocking")
	require.NoError(t, err)
	require.NoError(t, push.Connect(addr))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("blocked send never completed")
	}
	for _, want := range []string{"1", "2", "3"} {
		assert.Equal(t, want, recvString(t, pull))
	}
}

func TestRecvWithoutMessage(t *testing.T) {
	h := newHarness(t, transport.Config{})
	pull := h.socket(t, api.PatternPull)

	_, err := pull.Recv()
	assert.ErrorIs(t, err, api.ErrWouldBlock)

	start := time.Now()
	_, err = pull.RecvTimeout(40 * time.Millisecond)
	assert.ErrorIs(t, err, api.ErrTimedOut)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pull.RecvContext(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	st := pull.Stats()
	assert.Equal(t, api.SocketOpen, st.Status)
	assert.Zero(t, st.Received)
}

func TestDirectionNotSupported(t *testing.T) {
	h := newHarness(t, transport.Config{})
	push := h.socket(t, api.PatternPush)
	pull := h.socket(t, api.PatternPull)

	_, err := push.Recv()
	assert.ErrorIs(t, err, api.ErrNotSupported)
	assert.ErrorIs(t, pull.Send(msg("x")), api.ErrNotSupported)
	assert.ErrorIs(t, push.Subscribe([]byte("x")), api.ErrNotSupported)
}

func TestSendRejectsOversizedMessage(t *testing.T) {
	h := newHarness(t, transport.Config{})
	push := h.socket(t, api.PatternPush, WithMaxFrameBytes(4))

	err := push.Send(msg("12345"))
	require.ErrorIs(t, err, api.ErrFrameTooLarge)
	var fe *api.FrameError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, uint64(5), fe.Declared)
	assert.Equal(t, uint64(4), fe.Limit)
	assert.NoError(t, push.Send(msg("1234")))
}

func TestOversizedInboundFrameDropsOnlyThatPeer(t *testing.T) {
	h := newHarness(t, transport.Config{})
	pull := h.socket(t, api.PatternPull, WithMaxFrameBytes(1024))
	_, err := pull.Bind("inproc://frames")
	require.NoError(t, err)

	good := h.socket(t, api.PatternPush)
	require.NoError(t, good.Connect("inproc://frames"))
	waitPeers(t, pull, 1)

	raw, err := h.network.Inproc().Dial("frames")
	require.NoError(t, err)
	defer raw.Close()
	waitPeers(t, pull, 2)

	n, err := raw.Write([]byte{0x80, 0, 0, 0})
	require.NoError(t, err)
	require.Equal(t, 4, n)

	require.Eventually(t, func() bool { return pull.Stats().PeerFailures == 1 }, waitFor, 5*time.Millisecond)
	waitPeers(t, pull, 1)

	require.NoError(t, good.Send(msg("still here")))
	assert.Equal(t, "still here", recvString(t, pull))
}

func TestEventsAndChanged(t *testing.T) {
	h := newHarness(t, transport.Config{})
	pull := h.socket(t, api.PatternPull)
	push := h.socket(t, api.PatternPush)
	addr, err := pull.Bind("inproc://events")
	require.NoError(t, err)
	require.NoError(t, push.Connect(addr))
	waitPeers(t, push, 1)

	assert.Zero(t, pull.Events()&api.EventRead)
	assert.True(t, push.Events().Has(api.EventWrite))

	changed := pull.Changed()
	require.NoError(t, push.Send(msg("ping")))
	select {
	case <-changed:
	case <-time.After(waitFor):
		t.Fatal("no change notification")
	}
	require.Eventually(t, func() bool { return pull.Events().Has(api.EventRead) }, waitFor, time.Millisecond)
	assert.Equal(t, "ping", recvString(t, pull))

	require.NoError(t, pull.Close())
	assert.Equal(t, api.EventError, pull.Events())
}

func TestCallsAfterClose(t *testing.T) {
	h := newHarness(t, transport.Config{})
	push := h.socket(t, api.PatternPush)
	pull := h.socket(t, api.PatternPull)

	require.NoError(t, push.Close())
	require.NoError(t, push.Close())
	assert.ErrorIs(t, push.Send(msg("x")), api.ErrClosed)
	_, err := push.Bind("inproc://closed")
	assert.ErrorIs(t, err, api.ErrClosed)

	require.NoError(t, pull.Terminate())
	_, err = pull.Recv()
	assert.ErrorIs(t, err, api.ErrTerminated)
	assert.Equal(t, api.SocketClosed, pull.Stats().Status)

	select {
	case <-pull.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestReactorFailureReachesSocket(t *testing.T) {
	h := newHarness(t, transport.Config{})
	pull := h.socket(t, api.PatternPull, WithBlocking(true))
	addr, err := pull.Bind("inproc://doomed")
	require.NoError(t, err)
	push := h.socket(t, api.PatternPush, WithLinger(time.Second))
	require.NoError(t, push.Connect(addr))
	waitPeers(t, pull, 1)

	recvErr := make(chan error, 1)
	go func() {
		_, err := pull.Recv()
		recvErr <- err
	}()
	require.NoError(t, h.r.Post(func() { panic("boom") }))

	select {
	case err := <-recvErr:
		assert.ErrorIs(t, err, api.ErrReactorFailed)
	case <-time.After(waitFor):
		t.Fatal("blocked Recv never saw the reactor failure")
	}
	assert.ErrorIs(t, push.Send(msg("x")), api.ErrReactorFailed)
	_, err = pull.Bind("inproc://other")
	assert.ErrorIs(t, err, api.ErrReactorFailed)

	assert.ErrorIs(t, push.Close(), api.ErrReactorFailed)
	assert.NoError(t, push.Close())
	assert.Equal(t, api.SocketClosed, push.Stats().Status)
}
