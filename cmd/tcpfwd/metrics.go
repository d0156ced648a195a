package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/matst80/tcpfwd/internal/obs"
	"github.com/matst80/tcpfwd/internal/stats"
	"github.com/matst80/tcpfwd/internal/tunnel"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newMux serves Prometheus metrics plus lightweight health and stats endpoints.
func newMux(store stats.Store, stop tunnel.Stopper) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		st := store.Snapshot()
		if r.URL.Query().Get("scope") == "fleet" {
			var err error
			if st, err = store.Fleet(r.Context()); err != nil {
				obs.Error("stats.fleet", obs.Fields{"err": err.Error()})
				http.Error(w, "fleet stats unavailable", http.StatusBadGateway)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if stop.Stopped() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	return mux
}

// serveMetrics runs until ctx is done. A failing metrics server is logged and
// never takes the tunnel down.
func serveMetrics(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	obs.Info("metrics.start", obs.Fields{"addr": addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		obs.Error("metrics.server", obs.Fields{"err": err.Error(), "addr": addr})
	}
	return nil
}
