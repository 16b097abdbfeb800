package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// maxLineSize bounds a single notification line.
const maxLineSize = 4096

// SocketBus is a [Bus] over a unix domain socket.  The subscribing process
// listens on the socket; posters dial it once per notification.
type SocketBus struct {
	logger *slog.Logger
	path   string

	// done is closed by Close and releases blocked connection handlers.
	done chan struct{}

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	wg       sync.WaitGroup
}

// type check
var _ Bus = (*SocketBus)(nil)

// NewSocketBus returns a new *SocketBus for the socket at path.  l must not be
// nil.
func NewSocketBus(l *slog.Logger, path string) (b *SocketBus) {
	return &SocketBus{
		logger: l,
		path:   path,
		done:   make(chan struct{}),
	}
}

// Post implements the [Bus] interface for *SocketBus.
func (b *SocketBus) Post(ctx context.Context, n Notification) (err error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", b.path)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", b.path, err)
	}
	defer func() { err = errors.WithDeferred(err, conn.Close()) }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}

	err = json.NewEncoder(conn).Encode(n)
	if err != nil {
		return fmt.Errorf("writing notification: %w", err)
	}

	return nil
}

// Subscribe implements the [Bus] interface for *SocketBus.  Only one
// subscription per bus is supported, since it owns the listening socket.
func (b *SocketBus) Subscribe(ctx context.Context) (ch <-chan Notification, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	} else if b.listener != nil {
		return nil, fmt.Errorf("socket %s: already subscribed", b.path)
	}

	// A previous process may have left the socket file behind.
	if err = os.Remove(b.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket: %w", err)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", b.path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", b.path, err)
	}
	b.listener = ln

	out := make(chan Notification, subBufSize)

	b.wg.Add(1)
	go b.accept(ctx, ln, out)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	return out, nil
}

// accept serves connections until ln is closed, then closes out once every
// connection handler has returned.
func (b *SocketBus) accept(ctx context.Context, ln net.Listener, out chan<- Notification) {
	defer b.wg.Done()

	var conns sync.WaitGroup
	defer func() {
		conns.Wait()
		close(out)
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				b.logger.WarnContext(ctx, "accepting notification conn", slogutil.KeyError, err)
			}

			return
		}

		conns.Add(1)
		go func() {
			defer conns.Done()

			b.handle(ctx, conn, out)
		}()
	}
}

// handle reads notification lines from conn.  Malformed lines are logged and
// skipped.
func (b *SocketBus) handle(ctx context.Context, conn net.Conn, out chan<- Notification) {
	defer func() { _ = conn.Close() }()

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 256), maxLineSize)
	for sc.Scan() {
		var n Notification
		if err := json.Unmarshal(sc.Bytes(), &n); err != nil {
			b.logger.WarnContext(ctx, "bad notification line", slogutil.KeyError, err)

			continue
		}

		select {
		case out <- n:
		case <-ctx.Done():
			return
		case <-b.done:
			return
		}
	}

	if err := sc.Err(); err != nil {
		b.logger.DebugContext(ctx, "reading notification conn", slogutil.KeyError, err)
	}
}

// Close implements the [Bus] interface for *SocketBus.  It stops listening
// and waits for the accept loop to exit.
func (b *SocketBus) Close() (err error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()

		return nil
	}
	b.closed = true
	ln := b.listener
	b.mu.Unlock()

	close(b.done)

	if ln != nil {
		err = ln.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	}

	b.wg.Wait()

	return err
}
