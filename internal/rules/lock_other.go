//go:build !unix

package rules

import "context"

// lockFile is a no-op where flock is unavailable; in-process serialization
// by the engine loop still holds.
func lockFile(_ context.Context, _ string) (unlock func() error, err error) {
	return func() error { return nil }, nil
}
