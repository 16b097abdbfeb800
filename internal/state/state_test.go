package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/blocksync/internal/category"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode("custom")
	require.NoError(t, err)
	assert.Equal(t, ModeCustom, m)

	_, err = ParseMode("Custom")
	assert.Error(t, err)
}

func TestConfiguration_BlockedCategories(t *testing.T) {
	defaults := []category.ID{category.Advertising, category.Comments}
	cfg := Configuration{
		Mode:              ModeDefault,
		EnabledCategories: []category.ID{category.Social},
	}
	assert.Equal(t, defaults, cfg.BlockedCategories(defaults))
	assert.True(t, cfg.IsDefault())

	// The result is a copy.
	got := cfg.BlockedCategories(defaults)
	got[0] = category.Essential
	assert.Equal(t, category.Advertising, defaults[0])

	cfg.Mode = ModeCustom
	assert.Equal(t, []category.ID{category.Social}, cfg.BlockedCategories(defaults))
	assert.False(t, cfg.IsDefault())

	cfg.EnabledCategories = []category.ID{category.Social, category.Social}
	assert.Equal(t, []category.ID{category.Social}, cfg.BlockedCategories(defaults))

	cfg.EnabledCategories = nil
	assert.Empty(t, cfg.BlockedCategories(defaults))
}

func TestDefaultConfiguration(t *testing.T) {
	cfg := DefaultConfiguration()
	assert.Equal(t, ModeDefault, cfg.Mode)
	assert.Empty(t, cfg.EnabledCategories)
}
