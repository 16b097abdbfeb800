package rules

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
)

// ErrNoContent is returned when none of the requested rule files could be
// resolved, so there is nothing to materialize.
const ErrNoContent errors.Error = "no resolvable rule content"

// AssetError describes a rule file that could not be used.  Assembly skips
// such files and reports them in [Result.Skipped].
type AssetError struct {
	// Name is the rule file name without extension.
	Name string

	// Path is the resolved file path.
	Path string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface for *AssetError.
func (e *AssetError) Error() string {
	return fmt.Sprintf("rule asset %s (%s): %v", e.Name, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *AssetError) Unwrap() error {
	return e.Err
}

// WriteError is returned when the artifact could not be written or atomically
// replaced.  The previous artifact is left untouched.
type WriteError struct {
	// Path is the destination artifact path.
	Path string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface for *WriteError.
func (e *WriteError) Error() string {
	return fmt.Sprintf("write rule artifact %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *WriteError) Unwrap() error {
	return e.Err
}
