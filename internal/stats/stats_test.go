package stats

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCounts(t *testing.T) {
	s := NewMemory()
	s.SessionOpened("a", "127.0.0.1:5000")
	s.SessionOpened("b", "127.0.0.1:5001")
	s.SessionClosed("a", 10, 20)
	s.DialFailed("c", errors.New("refused"))

	snap := s.Snapshot()
	require.True(t, strings.HasPrefix(snap.Instance, "tcpfwd-"))
	require.Equal(t, int64(1), snap.Active)
	require.Equal(t, int64(2), snap.Sessions)
	require.Equal(t, int64(1), snap.DialFailures)
	require.Equal(t, int64(10), snap.BytesUp)
	require.Equal(t, int64(20), snap.BytesDown)

	fleet, err := s.Fleet(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, fleet.Instances)
	require.Equal(t, snap.Sessions, fleet.Sessions)
	require.NoError(t, s.Close())
}

func TestNewWithoutRedisIsInMemory(t *testing.T) {
	s, err := New(Config{})
	require.NoError(t, err)
	_, ok := s.(*memoryStore)
	require.True(t, ok)
}

func TestRedisStorePublishesInstanceHash(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := New(Config{RedisAddr: mr.Addr(), TTL: 30 * time.Second, Listen: "0.0.0.0:9001", Target: "127.0.0.1:9000"})
	require.NoError(t, err)
	r := s.(*redisStore)

	require.True(t, mr.Exists(r.key))
	require.Equal(t, "127.0.0.1:9000", mr.HGet(r.key, "target"))
	require.Equal(t, 30*time.Second, mr.TTL(r.key))

	s.SessionOpened("a", "127.0.0.1:5000")
	s.SessionClosed("a", 3, 4)
	require.NoError(t, r.flush(context.Background()))
	require.Equal(t, "1", mr.HGet(r.key, "sessions"))
	require.Equal(t, "0", mr.HGet(r.key, "active"))
	require.Equal(t, "3", mr.HGet(r.key, "bytes_up"))

	require.NoError(t, s.Close())
	require.False(t, mr.Exists(r.key))
}

func TestRedisFleetAggregatesInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := New(Config{RedisAddr: mr.Addr()})
	require.NoError(t, err)
	defer s.Close()

	mr.HSet(keyPrefix+"other", "active", "2", "sessions", "5", "bytes_down", "100")
	s.SessionOpened("a", "127.0.0.1:5000")
	require.NoError(t, s.(*redisStore).flush(context.Background()))

	fleet, err := s.Fleet(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, fleet.Instances)
	require.Equal(t, int64(3), fleet.Active)
	require.Equal(t, int64(6), fleet.Sessions)
	require.Equal(t, int64(100), fleet.BytesDown)
}

func TestRedisKeyExpiresWithoutHeartbeat(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := New(Config{RedisAddr: mr.Addr(), TTL: 10 * time.Second})
	require.NoError(t, err)
	defer s.Close()

	mr.FastForward(11 * time.Second)
	require.False(t, mr.Exists(s.(*redisStore).key))
}

func TestRedisSubSecondTTLIsRaised(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := New(Config{RedisAddr: mr.Addr(), TTL: 2 * time.Nanosecond})
	require.NoError(t, err)
	defer s.Close()
	r := s.(*redisStore)
	require.Equal(t, time.Second, r.redisKeyTTL)
	require.True(t, r.heartbeatInterval > 0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.Run(ctx)
	require.True(t, mr.Exists(r.key))
}

func TestRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := New(Config{RedisAddr: addr})
	require.ErrorContains(t, err, "redis connection failed")
}
