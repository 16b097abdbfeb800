// Package errcoll contains implementations of collectors for non-critical
// errors, such as failed resyncs and rejected reloads.
package errcoll

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// Interface is the interface for error collectors that process information
// about errors, possibly sending them to a remote location.
type Interface interface {
	Collect(ctx context.Context, err error)
}

// Collect is a helper that logs err and passes it to errColl, prefixed with
// msg.
func Collect(ctx context.Context, errColl Interface, l *slog.Logger, msg string, err error) {
	l.ErrorContext(ctx, msg, slogutil.KeyError, err)
	errColl.Collect(ctx, fmt.Errorf("%s: %w", msg, err))
}

// WriterErrorCollector is an [Interface] implementation that writes errors to
// an [io.Writer], one per line.
type WriterErrorCollector struct {
	mu sync.Mutex
	w  io.Writer
}

// type check
var _ Interface = (*WriterErrorCollector)(nil)

// NewWriterErrorCollector returns a new properly initialized
// *WriterErrorCollector.  w must not be nil.
func NewWriterErrorCollector(w io.Writer) (c *WriterErrorCollector) {
	return &WriterErrorCollector{w: w}
}

// Collect implements the [Interface] interface for *WriterErrorCollector.
func (c *WriterErrorCollector) Collect(_ context.Context, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, _ = fmt.Fprintf(c.w, "%s: caught error: %s\n", time.Now().UTC().Format(time.RFC3339), err)
}

// EmptyCollector is an [Interface] implementation that drops every error.
type EmptyCollector struct{}

// type check
var _ Interface = EmptyCollector{}

// Collect implements the [Interface] interface for EmptyCollector.
func (EmptyCollector) Collect(_ context.Context, _ error) {}

// Recorder is an [Interface] implementation that keeps every collected error in
// memory.  It is safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	errs []error
}

// type check
var _ Interface = (*Recorder)(nil)

// Collect implements the [Interface] interface for *Recorder.
func (r *Recorder) Collect(_ context.Context, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errs = append(r.errs, err)
}

// Errors returns a copy of the collected errors.
func (r *Recorder) Errors() (errs []error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]error(nil), r.errs...)
}
