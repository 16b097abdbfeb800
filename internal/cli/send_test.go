package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/roach88/blocksync/internal/notify"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPoster records every posted notification.
type recordingPoster struct {
	mu   sync.Mutex
	sent []notify.Notification
}

// Post implements the [notify.Poster] interface for *recordingPoster.
func (p *recordingPoster) Post(_ context.Context, n notify.Notification) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sent = append(p.sent, n)

	return nil
}

func (p *recordingPoster) notifications() []notify.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]notify.Notification(nil), p.sent...)
}

// sendWith runs the send command with an injected poster.
func sendWith(t *testing.T, e *testEnv, format string, p notify.Poster, args ...string) (out string, err error) {
	t.Helper()

	opts := &SendOptions{
		RootOptions: &RootOptions{Format: format, Config: e.config},
		Poster:      p,
	}

	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})

	err = runSend(opts, args[0], args[1:], cmd)

	return buf.String(), err
}

func TestSend(t *testing.T) {
	e := newTestEnv(t, "socket")
	st := e.openStore(t)

	p := &recordingPoster{}
	out, err := sendWith(t, e, "text", p, "trustDomain", "News.Example.")
	require.NoError(t, err)
	assert.Equal(t, "sent trustDomain News.Example.\n", out)

	require.Equal(t, []notify.Notification{{
		Name: notify.NameTrustDomain,
		Peer: notify.DefaultPeer,
	}}, p.notifications())

	ctx := context.Background()
	v, ok, err := st.Shared(ctx, notify.KeyDomain)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "news.example", v)

	_, err = sendWith(t, e, "text", p, "setCategories", "social", "comments", "social")
	require.NoError(t, err)

	v, ok, err = st.Shared(ctx, notify.KeyCategories)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `["social","comments"]`, v)
}

func TestSend_json(t *testing.T) {
	e := newTestEnv(t, "socket")
	e.openStore(t)

	out, err := sendWith(t, e, "json", &recordingPoster{}, "pause")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   SendResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, SendResult{Event: "pause", Peer: notify.DefaultPeer}, resp.Data)
}

func TestSend_errors(t *testing.T) {
	e := newTestEnv(t, "socket")
	e.openStore(t)

	testCases := []struct {
		name     string
		wantMsg  string
		args     []string
		wantCode int
	}{{
		name:     "unknown_event",
		wantMsg:  `unknown notification "halt"`,
		args:     []string{"halt"},
		wantCode: ExitCommandError,
	}, {
		name:     "extra_argument",
		wantMsg:  "takes no arguments",
		args:     []string{"pause", "now"},
		wantCode: ExitFailure,
	}, {
		name:     "missing_domain",
		wantMsg:  "want exactly one domain",
		args:     []string{"untrustDomain"},
		wantCode: ExitFailure,
	}, {
		name:     "bad_category",
		wantMsg:  `unknown category "cookies"`,
		args:     []string{"setCategories", "cookies"},
		wantCode: ExitFailure,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := &recordingPoster{}
			_, err := sendWith(t, e, "text", p, tc.args...)
			require.Error(t, err)

			assert.Contains(t, err.Error(), tc.wantMsg)
			assert.Equal(t, tc.wantCode, GetExitCode(err))
			assert.Empty(t, p.notifications())
		})
	}
}

func TestSend_memoryTransport(t *testing.T) {
	e := newTestEnv(t, "memory")
	e.openStore(t)

	_, err := execute(t, "--config", e.config, "send", "pause")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory transport")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSend_socket(t *testing.T) {
	e := newTestEnv(t, "socket")
	e.openStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	conf, err := (&RootOptions{Config: e.config}).loadConfig()
	require.NoError(t, err)

	bus := notify.NewSocketBus(slogutil.NewDiscardLogger(), conf.Notify.SocketPath)
	t.Cleanup(func() { _ = bus.Close() })

	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	out, err := execute(t, "--config", e.config, "send", "resume")
	require.NoError(t, err)
	assert.Equal(t, "sent resume\n", out)

	select {
	case n := <-ch:
		assert.Equal(t, notify.Notification{Name: notify.NameResume, Peer: notify.DefaultPeer}, n)
	case <-ctx.Done():
		t.Fatal("notification not received")
	}
}
