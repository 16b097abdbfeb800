// Package reload asks the extension runtime to swap in a freshly materialized
// rule artifact.
//
// Every reloader is fire-and-observe: Reload returns immediately with a
// buffered channel that later receives exactly one result.
package reload

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/roach88/blocksync/internal/notify"
)

// EnvArtifactID is the environment variable carrying the artifact ID to a
// reload command.
const EnvArtifactID = "BLOCKSYNC_ARTIFACT_ID"

// DefaultArtifactID names the installed content blocker.
const DefaultArtifactID = "blocksync.extension.ContentBlocker"

// Reloader reloads the runtime's copy of an artifact.
type Reloader interface {
	// Reload starts a reload of artifactID.  The returned channel receives
	// exactly one value: nil on success or an *Error.
	Reload(ctx context.Context, artifactID string) <-chan error
}

// Error is a failed reload.
type Error struct {
	// ArtifactID is the artifact that was not reloaded.
	ArtifactID string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface for *Error.
func (e *Error) Error() string {
	return fmt.Sprintf("reloading %s: %v", e.ArtifactID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// async runs fn in a goroutine and delivers its result, or the recovered
// panic, on a buffered channel.
func async(ctx context.Context, artifactID string, fn func(ctx context.Context) error) <-chan error {
	res := make(chan error, 1)

	go func() {
		defer func() {
			if v := recover(); v != nil {
				res <- &Error{ArtifactID: artifactID, Err: errors.FromRecovered(v)}
			}
		}()

		if err := fn(ctx); err != nil {
			res <- &Error{ArtifactID: artifactID, Err: err}

			return
		}

		res <- nil
	}()

	return res
}

// CommandReloader runs an external command, for example the platform tool that
// reloads a content blocker.  The artifact ID is passed in [EnvArtifactID].
type CommandReloader struct {
	logger *slog.Logger
	argv   []string
}

// type check
var _ Reloader = (*CommandReloader)(nil)

// NewCommandReloader returns a reloader running argv.  l must not be nil and
// argv must not be empty.
func NewCommandReloader(l *slog.Logger, argv []string) (r *CommandReloader, err error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.Error("reload command: empty argv")
	}

	return &CommandReloader{
		logger: l,
		argv:   append([]string(nil), argv...),
	}, nil
}

// Reload implements the [Reloader] interface for *CommandReloader.
func (r *CommandReloader) Reload(ctx context.Context, artifactID string) <-chan error {
	return async(ctx, artifactID, func(ctx context.Context) (err error) {
		cmd := exec.CommandContext(ctx, r.argv[0], r.argv[1:]...)
		cmd.Env = append(os.Environ(), EnvArtifactID+"="+artifactID)

		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out

		r.logger.DebugContext(ctx, "running reload command", "argv", r.argv, "artifact_id", artifactID)

		if err = cmd.Run(); err != nil {
			msg := strings.TrimSpace(out.String())
			if msg != "" {
				return fmt.Errorf("%s: %w: %s", r.argv[0], err, msg)
			}

			return fmt.Errorf("%s: %w", r.argv[0], err)
		}

		return nil
	})
}

// BusReloader posts a reload notification for a runtime that listens on the
// notification bus.
type BusReloader struct {
	poster notify.Poster
	peer   string
}

// type check
var _ Reloader = (*BusReloader)(nil)

// NewBusReloader returns a reloader posting through p.  An empty peer selects
// [notify.DefaultPeer].
func NewBusReloader(p notify.Poster, peer string) (r *BusReloader) {
	if peer == "" {
		peer = notify.DefaultPeer
	}

	return &BusReloader{poster: p, peer: peer}
}

// Reload implements the [Reloader] interface for *BusReloader.
func (r *BusReloader) Reload(ctx context.Context, artifactID string) <-chan error {
	return async(ctx, artifactID, func(ctx context.Context) (err error) {
		return r.poster.Post(ctx, notify.Notification{Name: notify.NameReload, Peer: r.peer})
	})
}

// Nop is a [Reloader] that always succeeds.  It is used when the runtime picks
// up the artifact on its own.
type Nop struct{}

// type check
var _ Reloader = Nop{}

// Reload implements the [Reloader] interface for Nop.
func (Nop) Reload(_ context.Context, _ string) <-chan error {
	res := make(chan error, 1)
	res <- nil

	return res
}

// Func adapts a synchronous function to [Reloader].
type Func func(ctx context.Context, artifactID string) error

// type check
var _ Reloader = Func(nil)

// Reload implements the [Reloader] interface for Func.
func (f Func) Reload(ctx context.Context, artifactID string) <-chan error {
	return async(ctx, artifactID, func(ctx context.Context) error {
		return f(ctx, artifactID)
	})
}
