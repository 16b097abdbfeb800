//go:build unix

package rules

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"golang.org/x/sys/unix"
)

// lockRetryInterval is how often a contended artifact lock is retried.
const lockRetryInterval = 10 * time.Millisecond

// lockFile takes an exclusive advisory lock on path, creating it if needed.
// The host and extension processes both write the same artifact, so the lock
// serializes them across process boundaries.
func lockFile(ctx context.Context, path string) (unlock func() error, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	fd := int(f.Fd())

	for {
		err = unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			_ = f.Close()
			return nil, fmt.Errorf("flock %s: %w", path, err)
		}

		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}

	return func() error {
		uerr := unix.Flock(fd, unix.LOCK_UN)
		cerr := f.Close()
		return errors.Join(uerr, cerr)
	}, nil
}
