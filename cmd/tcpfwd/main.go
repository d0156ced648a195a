package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/matst80/tcpfwd/internal/lifecycle"
	"github.com/matst80/tcpfwd/internal/obs"
	"github.com/matst80/tcpfwd/internal/ratelimit"
	"github.com/matst80/tcpfwd/internal/stats"
	"github.com/matst80/tcpfwd/internal/tunnel"
	"golang.org/x/sync/errgroup"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run returns the process exit status: 1 for bad arguments, bad tuning or a
// bind failure, 0 after a graceful shutdown.
func run(args []string, stderr io.Writer) int {
	listen, target, err := parseArgs(args, stderr)
	if err != nil {
		return 1
	}
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "tcpfwd: %v\n", err)
		return 1
	}
	obs.EnableDebug(cfg.Debug)

	ctl := lifecycle.New()
	ctl.Notify()
	defer ctl.Close()

	store, err := stats.New(stats.Config{
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		TTL:           cfg.StatsTTL,
		Listen:        listen.String(),
		Target:        target.String(),
	})
	if err != nil {
		obs.Error("stats.backend", obs.Fields{"err": err.Error(), "fallback": "in-memory"})
		store = stats.NewMemory()
	}
	defer store.Close()

	tcfg := tunnel.Config{
		Listen:           listen,
		Target:           target,
		DialTimeout:      cfg.DialTimeout,
		PollInterval:     cfg.PollInterval,
		BufferSize:       cfg.BufferSize,
		HalfCloseTimeout: cfg.HalfCloseTimeout,
		Recorder:         store,
	}
	limiter := ratelimit.NewLimiter(cfg.AcceptRate, cfg.AcceptBurst)
	if limiter != nil {
		tcfg.Admitter = limiter
	}
	ln := tunnel.NewListener(tcfg, ctl)
	if err := ln.Bind(); err != nil {
		obs.Error("listen.bind", obs.Fields{"addr": listen.String(), "err": err.Error()})
		return 1
	}
	obs.Info("tunnel.start", obs.Fields{"listen": ln.Addr().String(), "target": target.String()})

	g, ctx := errgroup.WithContext(ctl.Context())
	g.Go(func() error {
		defer ctl.Stop()
		return ln.Serve()
	})
	g.Go(func() error {
		store.Run(ctx)
		return nil
	})
	if limiter != nil {
		g.Go(func() error {
			runSweepLoop(ctx, limiter, time.Minute)
			return nil
		})
	}
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(ctx, cfg.MetricsAddr, newMux(store, ctl)) })
	}
	serveErr := g.Wait()

	if !ln.Drain(cfg.DrainTimeout) {
		obs.Warn("tunnel.drain_timeout", obs.Fields{"active": ln.Active(), "timeout": cfg.DrainTimeout.String()})
	}
	if serveErr != nil {
		obs.Error("tunnel.serve", obs.Fields{"err": serveErr.Error()})
		return 1
	}
	obs.Info("tunnel.stopped", nil)
	return 0
}

func runSweepLoop(ctx context.Context, limiter *ratelimit.Limiter, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := limiter.Sweep(interval); n > 0 {
				obs.Debug("ratelimit.sweep", obs.Fields{"removed": n})
			}
		}
	}
}
