// Package lifecycle coordinates process shutdown. A Controller holds the
// write-once stop flag read by the listener and every relay, and turns
// termination signals into a single transition of that flag.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/matst80/tcpfwd/internal/obs"
)

// Controller is safe for concurrent use. The zero value is not usable; call New.
type Controller struct {
	stopped atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	once      sync.Once
	closeOnce sync.Once
	sigCh     chan os.Signal
	release   chan struct{}

	// exit terminates the process on a second signal.
	exit func(code int)
}

func New() *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{ctx: ctx, cancel: cancel, release: make(chan struct{}), exit: os.Exit}
}

// Stopped reports whether shutdown has been requested. Once true it stays true.
func (c *Controller) Stopped() bool { return c.stopped.Load() }

// Context is cancelled when the flag is set.
func (c *Controller) Context() context.Context { return c.ctx }

// Stop sets the flag. It returns true only for the call that flipped it.
func (c *Controller) Stop() bool {
	if !c.stopped.CompareAndSwap(false, true) {
		return false
	}
	c.cancel()
	return true
}

// Notify starts reacting to SIGINT and SIGTERM. The first signal stops the
// controller; a second one exits the process immediately with status 1.
func (c *Controller) Notify() {
	c.once.Do(func() {
		c.sigCh = make(chan os.Signal, 2)
		signal.Notify(c.sigCh, os.Interrupt, syscall.SIGTERM)
		go c.watch(c.sigCh)
	})
}

// Close stops signal delivery. It does not set the flag.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.once.Do(func() {})
		if c.sigCh != nil {
			signal.Stop(c.sigCh)
		}
		close(c.release)
	})
}

func (c *Controller) watch(sigs <-chan os.Signal) {
	for {
		select {
		case <-c.release:
			return
		case sig := <-sigs:
			if c.Stop() {
				obs.Info("lifecycle.shutdown", obs.Fields{"signal": sig.String()})
				continue
			}
			obs.Warn("lifecycle.forced_exit", obs.Fields{"signal": sig.String()})
			c.exit(1)
			return
		}
	}
}
