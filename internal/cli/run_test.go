package cli

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/roach88/blocksync/internal/category"
	"github.com/roach88/blocksync/internal/notify"
	"github.com/roach88/blocksync/internal/testutil"
	"github.com/roach88/blocksync/internal/testutil/assettest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunExtraArgs(t *testing.T) {
	_, err := execute(t, "run", "extra")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestRunInvalidConfig(t *testing.T) {
	e := newTestEnv(t, "memory")
	require.NoError(t, os.WriteFile(e.config, []byte("notify:\n  transport: carrier-pigeon\n"), 0o644))

	_, err := execute(t, "--config", e.config, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunWithTimeout(t *testing.T) {
	e := newTestEnv(t, "memory")
	assettest.WriteAssets(t, e.assets)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	errChan := make(chan error, 1)
	var out string
	go func() {
		var err error
		out, err = executeContext(t, ctx, "--config", e.config, "run")
		errChan <- err
	}()

	select {
	case err := <-errChan:
		// The engine exits gracefully on context cancellation.
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("command did not respect context timeout")
	}

	_, err := os.Stat(e.db)
	assert.NoError(t, err, "database should be created")

	assert.Equal(t, testutil.Merged(category.Default()...), assettest.ReadArtifact(t, e.artifact))
	assert.Contains(t, out, "Engine started")
}

func TestRunInjectedBus(t *testing.T) {
	e := newTestEnv(t, "memory")
	assettest.WriteAssets(t, e.assets)

	bus := notify.NewMemoryBus()
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text", Config: e.config},
		IDGen:       testutil.NewFixedIDGenerator("resync-1"),
		Bus:         bus,
	}

	buf := &bytes.Buffer{}
	cmd := NewRunCommand(opts.RootOptions)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	cmd.SetContext(ctx)

	errChan := make(chan error, 1)
	go func() { errChan <- runEngine(opts, cmd) }()

	// The startup resync writes the default artifact.
	require.Eventually(t, func() bool {
		_, err := os.Stat(e.artifact)
		return err == nil
	}, testTimeout, 10*time.Millisecond)

	// Posting is repeated until the adapter has subscribed; pausing twice is
	// idempotent.
	require.Eventually(t, func() bool {
		postCtx, postCancel := context.WithTimeout(ctx, testTimeout)
		defer postCancel()

		if err := bus.Post(postCtx, notify.Notification{Name: notify.NamePause, Peer: notify.DefaultPeer}); err != nil {
			return false
		}

		data, err := os.ReadFile(e.artifact)
		return err == nil && !bytes.Contains(data, []byte(testutil.RuleFor(category.Advertising)))
	}, testTimeout, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-errChan)
}

func TestRunHelpText(t *testing.T) {
	out, err := execute(t, "run", "--help")
	require.NoError(t, err)

	assert.Contains(t, out, "Start the blocksync engine")
	assert.Contains(t, out, "SIGHUP")
}

func TestRunSocketReloadTarget(t *testing.T) {
	e := newTestEnv(t, "socket")

	conf, err := (&RootOptions{Config: e.config}).loadConfig()
	require.NoError(t, err)
	require.Empty(t, conf.Reload.Command)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	logger := slogutil.NewDiscardLogger()

	bus, err := newBus(logger, conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	engineCh, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	runtimeBus := notify.NewSocketBus(logger, conf.Notify.ReloadSocketPath)
	t.Cleanup(func() { _ = runtimeBus.Close() })

	runtimeCh, err := runtimeBus.Subscribe(ctx)
	require.NoError(t, err)

	r, err := newReloader(logger, conf, bus)
	require.NoError(t, err)

	select {
	case err = <-r.Reload(ctx, conf.Artifact.ID):
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("reload not finished")
	}

	select {
	case n := <-runtimeCh:
		assert.Equal(t, notify.Notification{Name: notify.NameReload, Peer: notify.DefaultPeer}, n)
	case <-ctx.Done():
		t.Fatal("reload not received by the runtime")
	}

	select {
	case n := <-engineCh:
		t.Fatalf("engine received %v", n)
	case <-time.After(100 * time.Millisecond):
	}
}
