package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig()
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, cfg.DialTimeout)
	require.Equal(t, time.Second, cfg.PollInterval)
	require.Equal(t, 4096, cfg.BufferSize)
	require.Equal(t, 5*time.Second, cfg.HalfCloseTimeout)
	require.Equal(t, 5*time.Second, cfg.DrainTimeout)
	require.Empty(t, cfg.MetricsAddr)
	require.Empty(t, cfg.RedisAddr)
	require.Equal(t, time.Minute, cfg.StatsTTL)
	require.Zero(t, cfg.AcceptRate)
	require.False(t, cfg.Debug)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("TCPFWD_DIAL_TIMEOUT", "2s")
	t.Setenv("TCPFWD_BUFFER_SIZE", "16384")
	t.Setenv("TCPFWD_HALF_CLOSE_TIMEOUT", "0")
	t.Setenv("TCPFWD_METRICS_ADDR", "127.0.0.1:9100")
	t.Setenv("TCPFWD_ACCEPT_RATE", "5")
	t.Setenv("TCPFWD_DEBUG", "true")

	cfg, err := loadConfig()
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, cfg.DialTimeout)
	require.Equal(t, 16384, cfg.BufferSize)
	require.Zero(t, cfg.HalfCloseTimeout)
	require.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
	require.Equal(t, 5, cfg.AcceptRate)
	require.True(t, cfg.Debug)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"TCPFWD_DIAL_TIMEOUT":  "soon",
		"TCPFWD_BUFFER_SIZE":   "0",
		"TCPFWD_POLL_INTERVAL": "-1s",
		"TCPFWD_DRAIN_TIMEOUT": "-5s",
		"TCPFWD_STATS_TTL":     "0s",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := loadConfig()
			require.Error(t, err)
		})
	}
}
