package notify

import (
	"context"
	"strconv"

	"github.com/roach88/blocksync/internal/state"
)

// ConfigReader reads the current configuration.
type ConfigReader interface {
	CurrentConfig(ctx context.Context) (state.Configuration, error)
}

// ScratchMirror writes the isDefault flag to the shared scratch space for
// processes that read it synchronously.
type ScratchMirror struct {
	Scratch Scratch
}

// SetDefaultMirror stores isDefault under [KeyIsDefault].
func (m ScratchMirror) SetDefaultMirror(ctx context.Context, isDefault bool) (err error) {
	return m.Scratch.PutShared(ctx, KeyIsDefault, strconv.FormatBool(isDefault))
}

// IsDefaultConfigEnabled derives the isDefault flag from the configuration
// record rather than from the mirror, which may lag behind.  An unreachable
// store reports the default mode.
func IsDefaultConfigEnabled(ctx context.Context, r ConfigReader) (ok bool) {
	conf, err := r.CurrentConfig(ctx)
	if err != nil {
		return true
	}

	return conf.IsDefault()
}

// MirroredIsDefault returns the mirrored flag and whether it is set.  It
// exists for diagnostics; use [IsDefaultConfigEnabled] for decisions.
func MirroredIsDefault(ctx context.Context, s Scratch) (isDefault, ok bool, err error) {
	v, ok, err := s.Shared(ctx, KeyIsDefault)
	if err != nil || !ok {
		return false, false, err
	}

	isDefault, err = strconv.ParseBool(v)
	if err != nil {
		return false, false, err
	}

	return isDefault, true, nil
}
