package transport_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-mq/api"
)

// spin retries op while it reports ErrWouldBlock.
func spin[T any](t *testing.T, op func() (T, error)) T {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		v, err := op()
		if !errors.Is(err, api.ErrWouldBlock) {
			require.NoError(t, err)
			return v
		}
		if time.Now().After(deadline) {
			t.Fatal("operation never became ready")
		}
		time.Sleep(time.Millisecond)
	}
}

func writeAll(t *testing.T, h api.Handle, p []byte) {
	t.Helper()
	for len(p) > 0 {
		n := spin(t, func() (int, error) { return h.Write(p) })
		p = p[n:]
	}
}

func readN(t *testing.T, h api.Handle, n int) []byte {
	t.Helper()
	out := make([]byte, 0, n)
	buf := make([]byte, 4096)
	for len(out) < n {
		k := spin(t, func() (int, error) { return h.Read(buf[:min(len(buf), n-len(out))]) })
		out = append(out, buf[:k]...)
	}
	return out
}

func pair(t *testing.T, l api.Listener, dial func() (api.Handle, error)) (client, server api.Handle) {
	t.Helper()
	client, err := dial()
	require.NoError(t, err)
	server = spin(t, l.Accept)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}
