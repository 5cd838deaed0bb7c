package socket

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/internal/concurrency"
	"github.com/momentics/hioload-mq/internal/transport"
	"github.com/momentics/hioload-mq/reactor"
)

const waitFor = 3 * time.Second

// harness provides the runtime a Context normally owns.
type harness struct {
	r       *reactor.Reactor
	network *transport.Network
	dialer  *concurrency.Executor
}

func newHarness(t *testing.T, cfg transport.Config) *harness {
	t.Helper()
	r, err := reactor.New(0, reactor.Config{PollTimeout: 20 * time.Millisecond, Logger: zerolog.Nop()})
	require.NoError(t, err)
	h := &harness{
		r:       r,
		network: transport.NewNetwork(cfg),
		dialer:  concurrency.NewExecutor(2, 0),
	}
	t.Cleanup(func() {
		r.Stop()
		h.dialer.Close()
	})
	return h
}

func (h *harness) deps() Deps {
	return Deps{Reactor: h.r, Network: h.network, Dialer: h.dialer, Logger: zerolog.Nop()}
}

func (h *harness) socket(t *testing.T, kind api.Pattern, opts ...Option) *Socket {
	t.Helper()
	s, err := New(kind, h.deps(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func waitPeers(t *testing.T, s *Socket, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Stats().Peers == n }, waitFor, 5*time.Millisecond,
		"%s socket never reached %d peers", s.Pattern(), n)
}

func recvString(t *testing.T, s *Socket) string {
	t.Helper()
	m, err := s.RecvTimeout(waitFor)
	require.NoError(t, err)
	return m.String()
}

func msg(s string) api.Message { return api.NewMessageString(s) }
