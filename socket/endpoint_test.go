package socket

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/internal/transport"
)

func TestBindResolvesPort(t *testing.T) {
	h := newHarness(t, transport.Config{})
	pull := h.socket(t, api.PatternPull)

	addr, err := pull.Bind("tcp://127.0.0.1:0")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(addr, "tcp://127.0.0.1:"))
	assert.NotEqual(t, "tcp://127.0.0.1:0", addr)

	_, err = pull.Bind("carrier-pigeon://coop")
	assert.ErrorIs(t, err, api.ErrNotSupported)
	_, err = pull.Bind("no-scheme")
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestBindSameInprocNameTwice(t *testing.T) {
	h := newHarness(t, transport.Config{})
	a := h.socket(t, api.PatternPull)
	b := h.socket(t, api.PatternPull)

	_, err := a.Bind("inproc://taken")
	require.NoError(t, err)
	_, err = b.Bind("inproc://taken")
	assert.ErrorIs(t, err, api.ErrAlreadyExists)
}

func TestConnectBeforeBindReconnects(t *testing.T) {
	h := newHarness(t, transport.Config{})
	pull := h.socket(t, api.PatternPull, WithReconnect(5*time.Millisecond, 20*time.Millisecond))
	require.NoError(t, pull.Connect("inproc://late"))
	assert.ErrorIs(t, pull.Connect("inproc://late"), api.ErrAlreadyExists)

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, pull.Stats().Peers)

	push := h.socket(t, api.PatternPush)
	_, err := push.Bind("inproc://late")
	require.NoError(t, err)
	waitPeers(t, pull, 1)

	require.NoError(t, push.Send(msg("found you")))
	assert.Equal(t, "found you", recvString(t, pull))
}

func TestReconnectAfterPeerLoss(t *testing.T) {
	h := newHarness(t, transport.Config{})
	pull := h.socket(t, api.PatternPull, WithReconnect(5*time.Millisecond, 20*time.Millisecond))
	require.NoError(t, pull.Connect("inproc://flaky"))

	first := h.socket(t, api.PatternPush)
	_, err := first.Bind("inproc://flaky")
	require.NoError(t, err)
	waitPeers(t, pull, 1)
	require.NoError(t, first.Close())
	waitPeers(t, pull, 0)
	assert.Equal(t, uint64(1), pull.Stats().PeerFailures)

	second := h.socket(t, api.PatternPush)
	_, err = second.Bind("inproc://flaky")
	require.NoError(t, err)
	waitPeers(t, pull, 1)
	require.NoError(t, second.Send(msg("back")))
	assert.Equal(t, "back", recvString(t, pull))
}

func TestDisconnectAndUnbind(t *testing.T) {
	h := newHarness(t, transport.Config{})
	push := h.socket(t, api.PatternPush)
	addr, err := push.Bind("inproc://detach")
	require.NoError(t, err)
	pull := h.socket(t, api.PatternPull)
	require.NoError(t, pull.Connect(addr))
	waitPeers(t, push, 1)

	require.NoError(t, pull.Disconnect(addr))
	assert.ErrorIs(t, pull.Disconnect(addr), api.ErrNotFound)
	waitPeers(t, pull, 0)
	waitPeers(t, push, 0)

	require.NoError(t, pull.Connect(addr))
	waitPeers(t, push, 1)

	require.NoError(t, push.Unbind(addr))
	assert.ErrorIs(t, push.Unbind(addr), api.ErrNotFound)
	assert.False(t, h.network.Inproc().Bound("detach"))

	// accepted connections outlive the listener
	assert.Equal(t, 1, push.Stats().Peers)
	require.NoError(t, push.Send(msg("kept")))
	assert.Equal(t, "kept", recvString(t, pull))
}
