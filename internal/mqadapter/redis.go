// Package mqadapter provides the concrete transport backing
// worker.QueueWorker's abstract pair of queue sockets (spec §4.5): a
// blocking-pop inbound list and a push outbound list, both on Redis.
// Grounded on taibuivan-yomira's platform/redis client construction
// (dial/read/write timeouts, pool sizing, startup ping).
package mqadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ripta/corehttp/internal/metrics"
)

const (
	dialTimeout  = 3 * time.Second
	readTimeout  = 2 * time.Second
	writeTimeout = 2 * time.Second
	pingTimeout  = 2 * time.Second

	// pullBlockDuration bounds each BLPOP call so Pull can observe a
	// cancelled context between attempts instead of blocking forever.
	pullBlockDuration = 5 * time.Second
)

// RedisTransport implements worker.Transport using BLPOP against an
// inbound list key and RPUSH onto an outbound list key.
type RedisTransport struct {
	client      *redis.Client
	ctx         context.Context
	inboundKey  string
	outboundKey string
}

// NewRedisTransport parses addr as a redis:// URL (or bare host:port, for
// which sane pool defaults are still applied) and connects.
func NewRedisTransport(ctx context.Context, addr, inboundKey, outboundKey string) (*RedisTransport, error) {
	var opts *redis.Options
	if parsed, err := redis.ParseURL(addr); err == nil {
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}
	opts.DialTimeout = dialTimeout
	opts.ReadTimeout = readTimeout
	opts.WriteTimeout = writeTimeout
	if opts.PoolSize == 0 {
		opts.PoolSize = 10
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("mqadapter: redis ping failed: %w", err)
	}

	return &RedisTransport{
		client:      client,
		ctx:         ctx,
		inboundKey:  inboundKey,
		outboundKey: outboundKey,
	}, nil
}

// Pull blocks (in bounded slices so the outer context is still observed)
// until a frame is available on the inbound list, or returns an error if
// the context is cancelled or the connection fails.
func (t *RedisTransport) Pull() ([]byte, error) {
	for {
		if err := t.ctx.Err(); err != nil {
			return nil, err
		}
		res, err := t.client.BLPop(t.ctx, pullBlockDuration, t.inboundKey).Result()
		if err == redis.Nil {
			continue // timed out this slice; loop to recheck ctx.
		}
		if err != nil {
			return nil, fmt.Errorf("mqadapter: blpop %s: %w", t.inboundKey, err)
		}
		// res[0] is the key name, res[1] the popped value.
		metrics.QueueFramesTotal.WithLabelValues("inbound").Inc()
		return []byte(res[1]), nil
	}
}

// Publish pushes frame onto the outbound list.
func (t *RedisTransport) Publish(frame []byte) error {
	if err := t.client.RPush(t.ctx, t.outboundKey, frame).Err(); err != nil {
		return fmt.Errorf("mqadapter: rpush %s: %w", t.outboundKey, err)
	}
	metrics.QueueFramesTotal.WithLabelValues("outbound").Inc()
	return nil
}

// Close releases the underlying Redis connection pool.
func (t *RedisTransport) Close() error {
	return t.client.Close()
}
