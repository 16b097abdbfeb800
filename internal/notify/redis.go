package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/gomodule/redigo/redis"
)

// DefaultChannel is the Redis channel notifications are published on.
const DefaultChannel = "blocksync:notifications"

// RedisConfig is the configuration for a [RedisBus].
type RedisConfig struct {
	// Logger is used for subscription diagnostics.  It must not be nil.
	Logger *slog.Logger

	// URL is the Redis server URL, for example "redis://localhost:6379/0".
	URL string

	// Channel is the pub/sub channel.  Empty means [DefaultChannel].
	Channel string

	// MaxIdle is the maximum number of idle pooled connections.
	MaxIdle int

	// IdleTimeout closes pooled connections idle for longer.
	IdleTimeout time.Duration
}

// RedisBus is a [Bus] over Redis PUBLISH/SUBSCRIBE, for hosts and extensions
// that do not share a filesystem.
type RedisBus struct {
	logger  *slog.Logger
	pool    *redis.Pool
	channel string

	mu     sync.Mutex
	conns  []redis.Conn
	closed bool
}

// type check
var _ Bus = (*RedisBus)(nil)

// NewRedisBus returns a new properly initialized *RedisBus.  c must not be
// nil.  No connection is made until the first operation.
func NewRedisBus(c *RedisConfig) (b *RedisBus) {
	ch := c.Channel
	if ch == "" {
		ch = DefaultChannel
	}

	url := c.URL
	pool := &redis.Pool{
		MaxIdle:     c.MaxIdle,
		IdleTimeout: c.IdleTimeout,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialURLContext(ctx, url)
		},
	}

	return &RedisBus{
		logger:  c.Logger,
		pool:    pool,
		channel: ch,
	}
}

// Post implements the [Bus] interface for *RedisBus.
func (b *RedisBus) Post(ctx context.Context, n Notification) (err error) {
	if b.isClosed() {
		return ErrClosed
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	conn, err := b.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("getting redis conn: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, conn.Close()) }()

	_, err = redis.DoContext(conn, ctx, "PUBLISH", b.channel, payload)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", b.channel, err)
	}

	return nil
}

// Subscribe implements the [Bus] interface for *RedisBus.
func (b *RedisBus) Subscribe(ctx context.Context) (ch <-chan Notification, err error) {
	if b.isClosed() {
		return nil, ErrClosed
	}

	conn, err := b.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting redis conn: %w", err)
	}

	psc := redis.PubSubConn{Conn: conn}
	if err = psc.Subscribe(b.channel); err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("subscribing to %s: %w", b.channel, err)
	}

	b.mu.Lock()
	b.conns = append(b.conns, conn)
	b.mu.Unlock()

	out := make(chan Notification, subBufSize)
	go b.receive(ctx, psc, out)

	go func() {
		<-ctx.Done()
		b.release(conn)
	}()

	return out, nil
}

// receive forwards published messages until the connection fails or is
// closed.
func (b *RedisBus) receive(ctx context.Context, psc redis.PubSubConn, out chan<- Notification) {
	defer close(out)

	for {
		switch v := psc.Receive().(type) {
		case redis.Message:
			var n Notification
			if err := json.Unmarshal(v.Data, &n); err != nil {
				b.logger.WarnContext(ctx, "bad notification payload", slogutil.KeyError, err)

				continue
			}

			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
		case redis.Subscription:
			if v.Count == 0 {
				return
			}
		case error:
			if ctx.Err() == nil && !b.isClosed() {
				b.logger.WarnContext(ctx, "redis subscription ended", slogutil.KeyError, v)
			}

			return
		}
	}
}

// release closes conn once and forgets it.
func (b *RedisBus) release(conn redis.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, c := range b.conns {
		if c == conn {
			b.conns = append(b.conns[:i], b.conns[i+1:]...)
			_ = conn.Close()

			return
		}
	}
}

func (b *RedisBus) isClosed() (ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.closed
}

// Close implements the [Bus] interface for *RedisBus.
func (b *RedisBus) Close() (err error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()

		return nil
	}
	b.closed = true
	conns := b.conns
	b.conns = nil
	b.mu.Unlock()

	var errs []error
	for _, c := range conns {
		errs = append(errs, c.Close())
	}
	errs = append(errs, b.pool.Close())

	return errors.Join(errs...)
}
