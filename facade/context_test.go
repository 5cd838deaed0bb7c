package facade

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/socket"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	nop := zerolog.Nop()
	cfg.Logger = &nop
	cfg.PollTimeout = 20 * time.Millisecond
	return cfg
}

func newContext(t *testing.T, cfg *Config) *Context {
	t.Helper()
	ctx, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctx.Terminate() })
	return ctx
}

func TestNewRejectsEmptyPool(t *testing.T) {
	cfg := testConfig()
	cfg.PoolSize = 0
	_, err := New(cfg)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestSocketsSpreadOverReactors(t *testing.T) {
	cfg := testConfig()
	cfg.PoolSize = 2
	cfg.PinReactors = true
	ctx := newContext(t, cfg)

	var ids []int
	for i := 0; i < 4; i++ {
		s, err := ctx.Socket(api.PatternPull)
		require.NoError(t, err)
		ids = append(ids, s.ReactorID())
	}
	assert.Equal(t, []int{0, 1, 0, 1}, ids)
	assert.Equal(t, 4, ctx.NumSockets())
}

// Push three messages, pull two, close the pusher, terminate.
func TestPushPullTerminateScenario(t *testing.T) {
	ctx := newContext(t, testConfig())
	push, err := ctx.Socket(api.PatternPush, socket.WithLinger(0))
	require.NoError(t, err)
	pull, err := ctx.Socket(api.PatternPull)
	require.NoError(t, err)

	addr, err := pull.Bind("inproc://scenario")
	require.NoError(t, err)
	require.NoError(t, push.Connect(addr))

	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, push.Send(api.NewMessageString(s)))
	}
	var delivered []string
	for i := 0; i < 2; i++ {
		m, err := pull.RecvTimeout(3 * time.Second)
		require.NoError(t, err)
		delivered = append(delivered, m.String())
	}
	require.Eventually(t, func() bool { return pull.Stats().InboundDepth == 1 },
		3*time.Second, 5*time.Millisecond, "c must be queued but unread")
	require.NoError(t, push.Close())
	require.NoError(t, ctx.Terminate())

	assert.Equal(t, []string{"a", "b"}, delivered)
	st := pull.Stats()
	assert.Zero(t, st.InboundDepth)
	assert.Equal(t, uint64(1), st.Dropped, "c is discarded by terminate")
	_, err = pull.Recv()
	assert.ErrorIs(t, err, api.ErrTerminated)
	assert.Zero(t, ctx.NumSockets())
}

func TestTerminateWithZeroLingerDropsQueue(t *testing.T) {
	ctx := newContext(t, testConfig())
	push, err := ctx.Socket(api.PatternPush)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, push.Send(api.NewMessageString("queued")))
	}

	require.NoError(t, ctx.Terminate())
	assert.Equal(t, uint64(3), push.Stats().Dropped)
	assert.ErrorIs(t, push.Send(api.NewMessageString("late")), api.ErrTerminated)
	_, err = ctx.Socket(api.PatternPush)
	assert.ErrorIs(t, err, api.ErrTerminated)
	assert.True(t, ctx.Terminated())
	assert.Zero(t, ctx.Control().Counter("terminate.timeouts"))
}

func TestTerminateTimeoutReportedOnce(t *testing.T) {
	cfg := testConfig()
	cfg.InprocBufferBytes = 1024
	ctx := newContext(t, cfg)

	push, err := ctx.Socket(api.PatternPush,
		socket.WithLinger(200*time.Millisecond), socket.WithPeerBufferBytes(1024))
	require.NoError(t, err)
	pull, err := ctx.Socket(api.PatternPull, socket.WithHighWaterMark(4))
	require.NoError(t, err)
	addr, err := pull.Bind("inproc://slow")
	require.NoError(t, err)
	require.NoError(t, push.Connect(addr))

	body := make([]byte, 100)
	for i := 0; i < 300; i++ {
		require.NoError(t, push.Send(api.NewMessage(body)))
	}

	start := time.Now()
	err = ctx.Terminate()
	require.ErrorIs(t, err, api.ErrTerminateTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	assert.Positive(t, push.Stats().Dropped)

	assert.Equal(t, err, ctx.Terminate())
	assert.Equal(t, int64(1), ctx.Control().Counter("terminate.timeouts"))
}

func TestControlReloadUpdatesSocketDefaults(t *testing.T) {
	ctx := newContext(t, testConfig())
	before, err := ctx.Socket(api.PatternPush)
	require.NoError(t, err)

	require.NoError(t, ctx.Control().SetConfig(map[string]any{
		"socket.high_water_mark": 7,
		"socket.linger":          "250ms",
		"socket.overflow":        "drop",
	}))
	after, err := ctx.Socket(api.PatternPush)
	require.NoError(t, err)

	assert.Equal(t, socket.DefaultHighWaterMark, before.Config().HighWaterMark)
	assert.Equal(t, 7, after.Config().HighWaterMark)
	assert.Equal(t, 250*time.Millisecond, after.Config().Linger)
	assert.Equal(t, socket.OverflowDrop, after.Config().Overflow)

	_, err = ctx.Socket(api.PatternReq)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	req, err := ctx.Socket(api.PatternReq, socket.WithOverflow(socket.OverflowDefault))
	require.NoError(t, err)
	assert.Equal(t, 7, req.Config().HighWaterMark)
}

func TestControlRejectsInvalidSocketDefaults(t *testing.T) {
	ctx := newContext(t, testConfig())
	for _, update := range []map[string]any{
		{"socket.high_water_mark": 0},
		{"socket.linger": "forever"},
		{"socket.overflow": "sometimes"},
		{"socket.blocking": "yes"},
	} {
		assert.ErrorIs(t, ctx.Control().SetConfig(update), api.ErrInvalidArgument, "%v", update)
	}
	s, err := ctx.Socket(api.PatternPull)
	require.NoError(t, err)
	assert.Equal(t, socket.DefaultConfig(), s.Config())
}

func TestStatsAndDumpState(t *testing.T) {
	ctx := newContext(t, testConfig())
	pull, err := ctx.Socket(api.PatternPull)
	require.NoError(t, err)
	push, err := ctx.Socket(api.PatternPush)
	require.NoError(t, err)
	addr, err := pull.Bind("inproc://stats")
	require.NoError(t, err)
	require.NoError(t, push.Connect(addr))
	require.NoError(t, push.Send(api.NewMessageString("x")))
	_, err = pull.RecvTimeout(3 * time.Second)
	require.NoError(t, err)

	stats := ctx.Stats()
	assert.Equal(t, 2, stats["sockets.open"])
	assert.Equal(t, uint64(1), stats["messages.sent"])
	assert.Equal(t, uint64(1), stats["messages.received"])
	assert.Equal(t, int64(2), ctx.Control().Counter("sockets.opened"))
	assert.Equal(t, int64(2), ctx.Control().Counter("peers.attached"))
	assert.Equal(t, 2, stats["sockets.live"])

	state := ctx.DumpState()
	require.Contains(t, state, "sockets")
	require.Contains(t, state, "reactors")
	assert.Len(t, state["sockets"], 2)
}

func TestShutdownDelegatesToTerminate(t *testing.T) {
	ctx := newContext(t, testConfig())
	var g api.GracefulShutdown = ctx
	require.NoError(t, g.Shutdown())
	assert.True(t, ctx.Terminated())
}

func TestReactorFailureIsFatal(t *testing.T) {
	ctx := newContext(t, testConfig())
	pull, err := ctx.Socket(api.PatternPull, socket.WithBlocking(true))
	require.NoError(t, err)
	require.NoError(t, ctx.Err())

	require.NoError(t, ctx.reactors[0].Post(func() { panic("boom") }))
	_, err = pull.RecvTimeout(3 * time.Second)
	require.ErrorIs(t, err, api.ErrReactorFailed)
	assert.ErrorIs(t, ctx.Err(), api.ErrReactorFailed)

	_, err = ctx.Socket(api.PatternPush)
	assert.ErrorIs(t, err, api.ErrReactorFailed)

	err = ctx.Terminate()
	assert.ErrorIs(t, err, api.ErrReactorFailed)
	assert.Zero(t, ctx.NumSockets())
	assert.Equal(t, err, ctx.Terminate())
}
