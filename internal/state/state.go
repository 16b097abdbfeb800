// Package state holds the value types describing the blocker configuration.
package state

import (
	"fmt"

	"github.com/roach88/blocksync/internal/category"
)

// Mode is the filtering mode.
type Mode string

const (
	// ModeDefault blocks the fixed default category set.
	ModeDefault Mode = "default"

	// ModeCustom blocks the user-selected categories.
	ModeCustom Mode = "custom"
)

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDefault, ModeCustom:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Configuration is the durable singleton configuration record.
//
// EnabledCategories is only meaningful when Mode is ModeCustom, but it is kept
// across mode switches.
type Configuration struct {
	Mode              Mode
	EnabledCategories []category.ID

	// Revision increases with every committed write.
	Revision int64
}

// DefaultConfiguration is the record created on first startup.
func DefaultConfiguration() Configuration {
	return Configuration{Mode: ModeDefault}
}

// IsDefault reports whether the default mode is selected.
func (c Configuration) IsDefault() bool {
	return c.Mode != ModeCustom
}

// BlockedCategories returns the categories that should be blocked for the
// configured mode while active.  defaults is the default-mode set.
func (c Configuration) BlockedCategories(defaults []category.ID) []category.ID {
	if c.Mode == ModeCustom {
		return category.Dedup(c.EnabledCategories)
	}
	return append([]category.ID(nil), defaults...)
}
