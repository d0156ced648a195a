package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive         = promauto.NewGauge(prometheus.GaugeOpts{Name: "tcpfwd_sessions_active", Help: "Sessions with both relays running"})
	SessionsTotal          = promauto.NewCounter(prometheus.CounterOpts{Name: "tcpfwd_sessions_total", Help: "Sessions established to the target"})
	RelayBytesTotal        = promauto.NewCounterVec(prometheus.CounterOpts{Name: "tcpfwd_relay_bytes_total", Help: "Bytes relayed by direction"}, []string{"direction"})
	ErrorsTotal            = promauto.NewCounterVec(prometheus.CounterOpts{Name: "tcpfwd_errors_total", Help: "Errors by type"}, []string{"type"})
	SessionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{Name: "tcpfwd_session_duration_seconds", Help: "Session lifetime seconds", Buckets: prometheus.ExponentialBuckets(0.01, 2, 16)})
)
