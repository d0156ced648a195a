// Package tunnel relays TCP connections accepted on one endpoint to a fixed
// target endpoint, byte for byte, in both directions.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/matst80/tcpfwd/internal/obs"
)

const (
	DefaultDialTimeout  = 30 * time.Second
	DefaultPollInterval = time.Second
	DefaultBufferSize   = 4096

	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Stopper is the process-wide stop flag. Once Stopped returns true it never
// returns false again.
type Stopper interface {
	Stopped() bool
}

// Admitter decides whether a connection from host may proceed.
type Admitter interface {
	Allow(host string) bool
}

type Config struct {
	Listen Endpoint
	Target Endpoint

	// DialTimeout bounds the connect phase only.
	DialTimeout time.Duration
	// PollInterval bounds each accept wait so the stop flag is observed.
	PollInterval time.Duration
	// BufferSize is the relay chunk size.
	BufferSize int
	// HalfCloseTimeout enables half-close propagation when positive. After
	// one direction reaches EOF the other is torn down once it has been idle
	// this long. Zero closes both connections on the first EOF.
	HalfCloseTimeout time.Duration

	Recorder Recorder
	Admitter Admitter
}

// acceptor is the part of *net.TCPListener the accept loop uses.
type acceptor interface {
	Accept() (net.Conn, error)
	SetDeadline(t time.Time) error
	Addr() net.Addr
	Close() error
}

// Listener accepts client connections and runs a session for each.
type Listener struct {
	cfg    Config
	stop   Stopper
	ln     acceptor
	wg     sync.WaitGroup
	active atomic.Int64
}

func NewListener(cfg Config, stop Stopper) *Listener {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	return &Listener{cfg: cfg, stop: stop}
}

// Bind opens the listening socket with address reuse enabled.
func (l *Listener) Bind() error {
	lc := net.ListenConfig{Control: reuseAddr}
	ln, err := lc.Listen(context.Background(), "tcp", l.cfg.Listen.String())
	if err != nil {
		return fmt.Errorf("bind %s: %w", l.cfg.Listen, err)
	}
	l.ln = ln.(*net.TCPListener)
	return nil
}

// Addr is the bound address, or nil before Bind.
func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Active is the number of sessions currently running.
func (l *Listener) Active() int64 { return l.active.Load() }

// Serve accepts until the stop flag is set, then closes the listening socket
// and returns. Running sessions are left to finish on their own. A failed
// accept is logged and retried after a backoff that grows from 5ms to 1s and
// resets on the next successful accept.
func (l *Listener) Serve() error {
	if l.ln == nil {
		return ErrNotBound
	}
	defer l.ln.Close()
	var backoff time.Duration
	for !l.stop.Stopped() {
		_ = l.ln.SetDeadline(time.Now().Add(l.cfg.PollInterval))
		c, err := l.ln.Accept()
		if err != nil {
			switch {
			case l.stop.Stopped():
				return nil
			case timeout(err):
				continue
			case errors.Is(err, net.ErrClosed):
				return fmt.Errorf("accept: %w", err)
			}
			backoff = nextBackoff(backoff)
			obs.Error("accept.error", obs.Fields{"listen": l.cfg.Listen.String(), "err": err.Error(), "retry_in": backoff.String()})
			obs.ErrorsTotal.WithLabelValues("accept").Inc()
			time.Sleep(backoff)
			continue
		}
		backoff = 0
		l.handle(c)
	}
	return nil
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptBackoff
	}
	return min(d*2, maxAcceptBackoff)
}

func (l *Listener) handle(c net.Conn) {
	client := wrap(c)
	if l.cfg.Admitter != nil {
		host, _, _ := net.SplitHostPort(c.RemoteAddr().String())
		if !l.cfg.Admitter.Allow(host) {
			obs.Warn("accept.rate_limited", obs.Fields{"client": c.RemoteAddr().String()})
			obs.ErrorsTotal.WithLabelValues("rate_limited").Inc()
			_ = client.Close()
			return
		}
	}
	s := &session{id: uuid.NewString(), client: client, cfg: &l.cfg, stop: l.stop}
	l.wg.Add(1)
	l.active.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.active.Add(-1)
		s.run()
	}()
}

// Drain waits up to timeout for running sessions. It reports whether all of
// them finished.
func (l *Listener) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
