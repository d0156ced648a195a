package tunnel

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/matst80/tcpfwd/internal/obs"
)

// Recorder receives session lifecycle events. Implementations must be safe
// for concurrent use.
type Recorder interface {
	SessionOpened(id, remote string)
	SessionClosed(id string, up, down int64)
	DialFailed(id string, err error)
}

type nopRecorder struct{}

func (nopRecorder) SessionOpened(string, string)       {}
func (nopRecorder) SessionClosed(string, int64, int64) {}
func (nopRecorder) DialFailed(string, error)           {}

// session owns one accepted client connection and the target connection
// dialed for it.
type session struct {
	id     string
	client *Conn
	cfg    *Config
	stop   Stopper
}

func (s *session) remote() string { return s.client.RemoteAddr().String() }

// run blocks until both directions have finished and both connections are closed.
func (s *session) run() {
	rec := s.cfg.Recorder
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DialTimeout)
	var d net.Dialer
	tc, err := d.DialContext(ctx, "tcp", s.cfg.Target.String())
	cancel()
	if err != nil {
		obs.Error("session.dial", obs.Fields{"session": s.id, "client": s.remote(), "target": s.cfg.Target.String(), "err": err.Error()})
		obs.ErrorsTotal.WithLabelValues("dial").Inc()
		rec.DialFailed(s.id, err)
		_ = s.client.Close()
		return
	}
	target := wrap(tc)
	start := time.Now()
	obs.SessionsActive.Inc()
	obs.SessionsTotal.Inc()
	rec.SessionOpened(s.id, s.remote())
	obs.Debug("session.open", obs.Fields{"session": s.id, "client": s.remote(), "target": target.RemoteAddr().String()})

	var hc *halfClose
	if s.cfg.HalfCloseTimeout > 0 {
		hc = &halfClose{idle: s.cfg.HalfCloseTimeout}
	}
	up := &relay{session: s.id, dir: "upstream", src: s.client, dst: target, stop: s.stop, bufSize: s.cfg.BufferSize, hc: hc}
	down := &relay{session: s.id, dir: "downstream", src: target, dst: s.client, stop: s.stop, bufSize: s.cfg.BufferSize, hc: hc}

	var wg sync.WaitGroup
	var upRes, downRes relayResult
	wg.Add(2)
	go func() { defer wg.Done(); upRes = up.run() }()
	go func() { defer wg.Done(); downRes = down.run() }()
	wg.Wait()

	_ = s.client.Close()
	_ = target.Close()
	obs.SessionsActive.Dec()
	obs.SessionDurationSeconds.Observe(time.Since(start).Seconds())
	rec.SessionClosed(s.id, upRes.bytes, downRes.bytes)
	obs.Debug("session.close", obs.Fields{"session": s.id, "up": upRes.bytes, "down": downRes.bytes, "duration": time.Since(start).Round(time.Millisecond).String()})
}
