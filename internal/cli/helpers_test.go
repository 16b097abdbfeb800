package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/testutil"
	"github.com/roach88/blocksync/internal/store"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 5 * time.Second

// testEnv is a temporary installation: a configuration file and the paths it
// names.
type testEnv struct {
	dir      string
	config   string
	db       string
	assets   string
	artifact string
}

// newTestEnv writes a configuration using the given transport into a fresh
// temporary directory.
func newTestEnv(t *testing.T, transport string) (e *testEnv) {
	t.Helper()

	dir := t.TempDir()
	e = &testEnv{
		dir:      dir,
		config:   filepath.Join(dir, "blocksync.yaml"),
		db:       filepath.Join(dir, "blocksync.db"),
		assets:   filepath.Join(dir, "assets"),
		artifact: filepath.Join(dir, "blockerList.json"),
	}

	conf := fmt.Sprintf(`store:
  path: %s
assets:
  root: %s
artifact:
  path: %s
notify:
  transport: %s
  socket_path: %s
  reload_socket_path: %s
`, e.db, e.assets, e.artifact, transport, filepath.Join(dir, "blocksync.sock"), filepath.Join(dir, "runtime.sock"))
	require.NoError(t, os.WriteFile(e.config, []byte(conf), 0o644))

	return e
}

// openStore creates the database of e and returns it open.
func (e *testEnv) openStore(t *testing.T) (st *store.Store) {
	t.Helper()

	st, err := store.Open(e.db)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, st.Close()) })

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	require.NoError(t, st.CreateConfigIfAbsent(ctx))

	return st
}

// execute runs the root command with args and returns its standard output.
func execute(t *testing.T, args ...string) (out string, err error) {
	t.Helper()

	return executeContext(t, context.Background(), args...)
}

// executeContext is like [execute] but runs the command with ctx.
func executeContext(t *testing.T, ctx context.Context, args ...string) (out string, err error) {
	t.Helper()

	buf, errBuf := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err = cmd.ExecuteContext(ctx)
	if errBuf.Len() > 0 {
		t.Logf("stderr:\n%s", errBuf)
	}

	return buf.String(), err
}
