// Package testutil provides shared helpers for tests: a standard rule asset
// tree, a recording reloader and deterministic resync IDs.
package testutil
