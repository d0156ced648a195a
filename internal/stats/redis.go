package stats

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/matst80/tcpfwd/internal/obs"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "tcpfwd:instance:"
	// Redis expiry has one-second resolution.
	minKeyTTL = time.Second
)

// redisStore counts locally and publishes the counters as one hash per
// instance. The hash carries a TTL refreshed by the heartbeat and is deleted
// on Close, so nothing outlives the process for longer than the TTL.
type redisStore struct {
	counters
	client            *redis.Client
	key               string
	listen, target    string
	redisKeyTTL       time.Duration
	heartbeatInterval time.Duration
}

func NewRedis(cfg Config) (Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	ttl := cfg.TTL
	switch {
	case ttl <= 0:
		ttl = time.Minute
	case ttl < minKeyTTL:
		ttl = minKeyTTL
	}
	r := &redisStore{
		counters:          counters{instance: instanceID()},
		client:            rdb,
		listen:            cfg.Listen,
		target:            cfg.Target,
		redisKeyTTL:       ttl,
		heartbeatInterval: ttl / 3,
	}
	r.key = keyPrefix + r.instance
	if err := r.flush(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return r, nil
}

var _ Store = (*redisStore)(nil)

// flush writes the current counters and extends the key TTL.
func (r *redisStore) flush(ctx context.Context) error {
	s := r.Snapshot()
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.key, map[string]any{
		"listen":        r.listen,
		"target":        r.target,
		"active":        s.Active,
		"sessions":      s.Sessions,
		"dial_failures": s.DialFailures,
		"bytes_up":      s.BytesUp,
		"bytes_down":    s.BytesDown,
		"updated":       s.Now,
	})
	pipe.Expire(ctx, r.key, r.redisKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis flush failed: %w", err)
	}
	return nil
}

// Run launches the periodic heartbeat.
func (r *redisStore) Run(ctx context.Context) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fctx, cancel := context.WithTimeout(ctx, r.heartbeatInterval)
			if err := r.flush(fctx); err != nil {
				obs.Error("redis.heartbeat", obs.Fields{"err": err.Error(), "key": r.key})
			}
			cancel()
		}
	}
}

func (r *redisStore) Fleet(ctx context.Context) (Snapshot, error) {
	var total Snapshot
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		vals, err := r.client.HGetAll(ctx, iter.Val()).Result()
		if err != nil {
			return Snapshot{}, fmt.Errorf("redis hgetall failed: %w", err)
		}
		if len(vals) == 0 {
			continue
		}
		total.Instances++
		total.Active += field(vals, "active")
		total.Sessions += field(vals, "sessions")
		total.DialFailures += field(vals, "dial_failures")
		total.BytesUp += field(vals, "bytes_up")
		total.BytesDown += field(vals, "bytes_down")
	}
	if err := iter.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("redis scan failed: %w", err)
	}
	total.Now = time.Now().UTC().Format(time.RFC3339)
	return total, nil
}

func field(vals map[string]string, name string) int64 {
	n, _ := strconv.ParseInt(vals[name], 10, 64)
	return n
}

func (r *redisStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		obs.Error("redis.remove_instance", obs.Fields{"err": err.Error(), "key": r.key})
	}
	return r.client.Close()
}
