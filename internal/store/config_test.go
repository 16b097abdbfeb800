package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/blocksync/internal/category"
	"github.com/roach88/blocksync/internal/state"
)

func TestCurrentConfig_Absent(t *testing.T) {
	s := createTestStore(t)

	_, err := s.CurrentConfig(context.Background())
	assert.True(t, errors.Is(err, ErrNoConfiguration))
}

func TestCreateConfigIfAbsent_Defaults(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConfigIfAbsent(ctx))

	cfg, err := s.CurrentConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.ModeDefault, cfg.Mode)
	assert.Empty(t, cfg.EnabledCategories)
	assert.Equal(t, int64(0), cfg.Revision)
}

func TestCreateConfigIfAbsent_PreservesExisting(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConfigIfAbsent(ctx))
	require.NoError(t, s.SetMode(ctx, state.ModeCustom))
	require.NoError(t, s.SetEnabledCategories(ctx, []category.ID{category.Comments}))

	require.NoError(t, s.CreateConfigIfAbsent(ctx))

	cfg, err := s.CurrentConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.ModeCustom, cfg.Mode)
	assert.Equal(t, []category.ID{category.Comments}, cfg.EnabledCategories)

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM configuration").Scan(&n))
	assert.Equal(t, 1, n, "exactly one configuration record")
}

func TestSetMode_KeepsCategories(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateConfigIfAbsent(ctx))

	require.NoError(t, s.SetEnabledCategories(ctx, []category.ID{category.Advertising, category.Analytics}))
	require.NoError(t, s.SetMode(ctx, state.ModeCustom))
	require.NoError(t, s.SetMode(ctx, state.ModeDefault))

	cfg, err := s.CurrentConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.ModeDefault, cfg.Mode)
	assert.Equal(t, []category.ID{category.Advertising, category.Analytics}, cfg.EnabledCategories)
	assert.Equal(t, int64(3), cfg.Revision)
}

func TestSetMode_Invalid(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateConfigIfAbsent(ctx))

	err := s.SetMode(ctx, state.Mode("paranoid"))
	require.Error(t, err)

	cfg, err := s.CurrentConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.ModeDefault, cfg.Mode)
}

func TestSetMode_WithoutRecord(t *testing.T) {
	s := createTestStore(t)

	err := s.SetMode(context.Background(), state.ModeCustom)
	assert.True(t, errors.Is(err, ErrNoConfiguration))
}

func TestSetEnabledCategories_ReplacesWholesale(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateConfigIfAbsent(ctx))

	require.NoError(t, s.SetEnabledCategories(ctx, []category.ID{category.Social, category.Essential}))
	require.NoError(t, s.SetEnabledCategories(ctx, []category.ID{category.Analytics, category.Analytics, category.Advertising}))

	cfg, err := s.CurrentConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, []category.ID{category.Analytics, category.Advertising}, cfg.EnabledCategories)

	require.NoError(t, s.SetEnabledCategories(ctx, nil))
	cfg, err = s.CurrentConfig(ctx)
	require.NoError(t, err)
	assert.Empty(t, cfg.EnabledCategories)
}

func TestCurrentConfig_SkipsUnknownCategoryNames(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateConfigIfAbsent(ctx))

	_, err := s.db.Exec(`UPDATE configuration SET enabled_categories = '["social","retired","comments"]'`)
	require.NoError(t, err)

	cfg, err := s.CurrentConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, []category.ID{category.Social, category.Comments}, cfg.EnabledCategories)
}

func TestConfig_ConcurrentWritesNeverTear(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateConfigIfAbsent(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			mode := state.ModeDefault
			if i%2 == 0 {
				mode = state.ModeCustom
			}
			assert.NoError(t, s.SetMode(ctx, mode))
		}(i)
		go func() {
			defer wg.Done()
			_, err := s.CurrentConfig(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cfg, err := s.CurrentConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), cfg.Revision)
}
