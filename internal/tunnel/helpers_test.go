package tunnel

import (
	"bytes"
	"crypto/rand"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/matst80/tcpfwd/internal/obs"
	"github.com/stretchr/testify/require"
)

type testStop struct{ atomic.Bool }

func (s *testStop) Stopped() bool { return s.Load() }

type recorder struct {
	mu       sync.Mutex
	opened   int
	closed   int
	failed   int
	up, down int64
}

func (r *recorder) SessionOpened(string, string) {
	r.mu.Lock()
	r.opened++
	r.mu.Unlock()
}

func (r *recorder) SessionClosed(_ string, up, down int64) {
	r.mu.Lock()
	r.closed++
	r.up += up
	r.down += down
	r.mu.Unlock()
}

func (r *recorder) DialFailed(string, error) {
	r.mu.Lock()
	r.failed++
	r.mu.Unlock()
}

func (r *recorder) counts() (opened, closed, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opened, r.closed, r.failed
}

// tcpPair returns both ends of a loopback TCP connection.
func tcpPair(t *testing.T) (*net.TCPConn, *net.TCPConn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()
	a, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	b, ok := <-accepted
	require.True(t, ok)
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a.(*net.TCPConn), b.(*net.TCPConn)
}

func endpointOf(addr net.Addr) Endpoint {
	ta := addr.(*net.TCPAddr)
	return Endpoint{Host: ta.IP.String(), Port: ta.Port}
}

// echoServer echoes every connection until the client half-closes.
func echoServer(t *testing.T) Endpoint {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go serveEcho(ln)
	return endpointOf(ln.Addr())
}

func serveEcho(ln net.Listener) {
	for {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		go func(c net.Conn) {
			defer c.Close()
			_, _ = io.Copy(c, c)
		}(c)
	}
}

// closedPort returns an endpoint nothing listens on.
func closedPort(t *testing.T) Endpoint {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ep := endpointOf(ln.Addr())
	require.NoError(t, ln.Close())
	return ep
}

func randomPayload(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// captureLog redirects obs output for the rest of the test.
func captureLog(t *testing.T) *logBuffer {
	t.Helper()
	b := &logBuffer{}
	obs.SetOutput(b)
	t.Cleanup(func() { obs.SetOutput(os.Stderr) })
	return b
}
