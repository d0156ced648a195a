package tunnel

import (
	"errors"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/matst80/tcpfwd/internal/obs"
)

type endReason string

const (
	endEOF     endReason = "eof"
	endError   endReason = "error"
	endIdle    endReason = "idle"
	endStopped endReason = "stopped"
)

// halfClose is shared by the two relays of one session. Once either
// direction has propagated EOF, reads in the other direction carry an idle
// deadline so a peer that never closes cannot pin the session.
type halfClose struct {
	idle   time.Duration
	closed atomic.Bool
}

type relay struct {
	session string
	dir     string
	src     *Conn
	dst     *Conn
	stop    Stopper
	bufSize int
	hc      *halfClose
}

type relayResult struct {
	bytes  int64
	reason endReason
	err    error
}

// run copies src to dst one chunk at a time until EOF, an error or the stop
// flag. Nothing is retried.
func (r *relay) run() (res relayResult) {
	defer func() { r.finish(res) }()
	counter := obs.RelayBytesTotal.WithLabelValues(r.dir)
	buf := make([]byte, r.bufSize)
	for {
		if r.stop.Stopped() {
			res.reason = endStopped
			return res
		}
		if r.hc != nil && r.hc.closed.Load() {
			_ = r.src.SetReadDeadline(time.Now().Add(r.hc.idle))
		}
		n, err := r.src.Read(buf)
		if n > 0 {
			if _, werr := r.dst.Write(buf[:n]); werr != nil {
				res.reason, res.err = endError, werr
				return res
			}
			res.bytes += int64(n)
			counter.Add(float64(n))
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				res.reason = endEOF
			case errors.Is(err, os.ErrDeadlineExceeded):
				res.reason, res.err = endIdle, err
			default:
				res.reason, res.err = endError, err
			}
			return res
		}
	}
}

func (r *relay) finish(res relayResult) {
	fields := obs.Fields{"session": r.session, "dir": r.dir, "bytes": res.bytes, "reason": string(res.reason)}
	if !benign(res.err) {
		fields["err"] = res.err.Error()
	}
	obs.Debug("relay.end", fields)

	if res.reason == endEOF && r.hc != nil && r.dst.CanHalfClose() && !r.hc.closed.Swap(true) {
		_ = r.dst.CloseWrite()
		_ = r.src.CloseRead()
		// The paired relay reads from dst; wake it if it is idle.
		_ = r.dst.SetReadDeadline(time.Now().Add(r.hc.idle))
		return
	}
	_ = r.src.Close()
	_ = r.dst.Close()
}
