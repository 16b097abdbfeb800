// Package assettest contains helpers for tests that need a rule asset tree
// on disk.
package assettest

import (
	"os"
	"testing"

	"github.com/roach88/blocksync/internal/category"
	"github.com/roach88/blocksync/internal/rules"
	"github.com/roach88/blocksync/internal/testutil"
	"github.com/stretchr/testify/require"
)

// WriteAssets is like [testutil.GenerateAssets] but fails tb on error.
func WriteAssets(tb testing.TB, root string) (l rules.Layout) {
	tb.Helper()

	l, err := testutil.GenerateAssets(root)
	require.NoError(tb, err)

	return l
}

// RemoveAsset deletes the rule file of id.
func RemoveAsset(tb testing.TB, l rules.Layout, id category.ID) {
	tb.Helper()

	require.NoError(tb, os.Remove(l.FilePath(l.CategoryFolder(), category.FileName(id))))
}

// ReadArtifact returns the artifact at path as a string.
func ReadArtifact(tb testing.TB, path string) (s string) {
	tb.Helper()

	b, err := os.ReadFile(path)
	require.NoError(tb, err)

	return string(b)
}
