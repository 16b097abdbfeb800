package engine

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
)

// ErrStopped is returned by operations on a stopped engine.
const ErrStopped errors.Error = "engine stopped"

// ErrorKind categorizes resync and event failures.
type ErrorKind string

const (
	// KindStorage means the durable store was unreachable or corrupt.  The
	// event is aborted and the prior state is retained.
	KindStorage ErrorKind = "STORAGE"

	// KindAssetResolution means no requested rule file could be resolved.
	// The previous artifact is kept.
	KindAssetResolution ErrorKind = "ASSET_RESOLUTION"

	// KindAssemblyIO means writing or replacing the artifact failed.  The
	// previous artifact is untouched.
	KindAssemblyIO ErrorKind = "ASSEMBLY_IO"

	// KindReload means the runtime refused or failed the reload.  It keeps
	// serving the previous ruleset until the next event.
	KindReload ErrorKind = "RELOAD"
)

// SyncError is an error detected while applying an event or running a resync.
// None of them is fatal; the engine logs, collects and continues.
type SyncError struct {
	// Kind identifies the error category.
	Kind ErrorKind

	// Op is the failing operation, for example "switch_to_custom" or
	// "assemble".
	Op string

	// ResyncID identifies the affected resync, if any.
	ResyncID string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface for *SyncError.
func (e *SyncError) Error() string {
	if e.ResyncID != "" {
		return fmt.Sprintf("%s: %s (resync=%s): %v", e.Kind, e.Op, e.ResyncID, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *SyncError in err's chain, or "" if
// there is none.
func KindOf(err error) ErrorKind {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
