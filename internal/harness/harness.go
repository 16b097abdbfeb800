package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/roach88/blocksync/internal/category"
	"github.com/roach88/blocksync/internal/engine"
	"github.com/roach88/blocksync/internal/hostname"
	"github.com/roach88/blocksync/internal/notify"
	"github.com/roach88/blocksync/internal/reload"
	"github.com/roach88/blocksync/internal/rules"
	"github.com/roach88/blocksync/internal/state"
	"github.com/roach88/blocksync/internal/store"
	"github.com/roach88/blocksync/internal/testutil"
	"github.com/roach88/blocksync/internal/trust"
)

// Harness executes one scenario against a real engine.
type Harness struct {
	logger *slog.Logger
	store  *store.Store
	engine *engine.Engine
	sender *notify.Sender
	layout rules.Layout
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh temporary directory for isolation.
//
// Execution flow:
//  1. Create the asset tree and the store, and persist the setup state
//  2. Start the engine and wait for the startup resync
//  3. Deliver every event through the host notification path and flush
//  4. Stop the engine and compare the final state with the expectation
func Run(ctx context.Context, s *Scenario) (res *Result, err error) {
	dir, err := os.MkdirTemp("", "blocksync-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, os.RemoveAll(dir)) }()

	layout, err := scenarioAssets(dir, s)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(filepath.Join(dir, "blocksync.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, st.Close()) }()

	if err = applySetup(ctx, st, s.Setup); err != nil {
		return nil, fmt.Errorf("failed to apply setup: %w", err)
	}

	res = NewResult()
	artifact := filepath.Join(dir, "blockerList.json")
	logger := slogutil.NewDiscardLogger()

	eng := engine.New(&engine.Config{
		Logger:       logger,
		Store:        st,
		Trust:        trust.NewCache(st, trust.DefaultTTL),
		Assembler:    rules.New(&rules.Config{Logger: logger, Layout: layout}),
		Reloader:     reload.Nop{},
		Mirror:       notify.ScratchMirror{Scratch: st},
		IDGen:        testutil.NewFixedIDGenerator(s.ResyncID),
		Layout:       layout,
		ArtifactPath: artifact,
		ArtifactID:   reload.DefaultArtifactID,
	}, engine.WithReportHook(res.AddResync))

	h := &Harness{
		logger: logger,
		store:  st,
		engine: eng,
		layout: layout,
	}
	h.sender = notify.NewSender(&enginePoster{
		adapter: notify.NewAdapter(&notify.AdapterConfig{
			Logger:  logger,
			Scratch: st,
			Target:  eng,
		}),
		engine: eng,
	}, st, notify.DefaultPeer)

	runErr := make(chan error, 1)
	go func() { runErr <- eng.Run(ctx) }()
	defer func() {
		eng.Stop()
		if rerr := <-runErr; rerr != nil && !errors.Is(rerr, context.Canceled) {
			err = errors.WithDeferred(err, rerr)
		}
	}()

	// The startup resync runs before the first barrier is processed.
	if err = eng.Flush(ctx); err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}

	if err = h.deliver(ctx, s.Events); err != nil {
		return nil, err
	}

	if err = h.collect(ctx, res, artifact); err != nil {
		return nil, err
	}

	h.check(res, s.Expect)

	return res, nil
}

// scenarioAssets returns the asset layout of s, generating the standard tree
// under dir unless s names its own.
func scenarioAssets(dir string, s *Scenario) (l rules.Layout, err error) {
	if s.Assets != "" {
		return rules.Layout{Root: s.Assets}, nil
	}

	l, err = testutil.GenerateAssets(filepath.Join(dir, "assets"))
	if err != nil {
		return l, err
	}

	missing, err := category.ParseAll(s.Setup.Missing)
	if err != nil {
		return l, fmt.Errorf("setup.missing: %w", err)
	}

	for _, id := range missing {
		if err = os.Remove(l.FilePath(l.CategoryFolder(), category.FileName(id))); err != nil {
			return l, fmt.Errorf("removing %s asset: %w", id, err)
		}
	}

	return l, nil
}

// applySetup persists the initial state before the engine starts.
func applySetup(ctx context.Context, st *store.Store, setup Setup) (err error) {
	if err = st.CreateConfigIfAbsent(ctx); err != nil {
		return err
	}

	if setup.Mode != "" {
		mode, perr := state.ParseMode(setup.Mode)
		if perr != nil {
			return perr
		}
		if err = st.SetMode(ctx, mode); err != nil {
			return err
		}
	}

	if len(setup.Categories) > 0 {
		ids, perr := category.ParseAll(setup.Categories)
		if perr != nil {
			return perr
		}
		if err = st.SetEnabledCategories(ctx, ids); err != nil {
			return err
		}
	}

	for _, d := range setup.Trusted {
		n, nerr := hostname.Normalize(d)
		if nerr != nil {
			return nerr
		}
		if err = st.AddTrustedDomain(ctx, n); err != nil {
			return err
		}
	}

	return nil
}

// deliver sends every event the way the host application does and waits for
// the engine to process it.
func (h *Harness) deliver(ctx context.Context, steps []Step) (err error) {
	for i, step := range steps {
		args := step.Categories
		if step.Domain != "" {
			args = []string{step.Domain}
		}

		if err = h.sender.Send(ctx, notify.Name(step.Event), args...); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}

		if err = h.engine.Flush(ctx); err != nil {
			return fmt.Errorf("event %d: flushing engine: %w", i, err)
		}

		h.logger.DebugContext(ctx, "event delivered", "step", i, "event", step.Event)
	}

	return nil
}

// collect records the final state into res.
func (h *Harness) collect(ctx context.Context, res *Result, artifact string) (err error) {
	res.Artifact, err = os.ReadFile(artifact)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}

	conf, err := h.store.CurrentConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to read configuration: %w", err)
	}

	res.Paused = h.engine.IsPaused()
	res.Mode = string(conf.Mode)

	return nil
}

// check compares res with e and records every mismatch.
func (h *Harness) check(res *Result, e Expect) {
	want, err := h.expectedRules(e)
	if err != nil {
		res.AddError(fmt.Sprintf("expected artifact: %v", err))
	} else {
		compareArtifact(res, want)
	}

	if e.Paused != nil && res.Paused != *e.Paused {
		res.AddError(fmt.Sprintf("paused: got %t, want %t", res.Paused, *e.Paused))
	}

	if e.Mode != "" && res.Mode != e.Mode {
		res.AddError(fmt.Sprintf("mode: got %q, want %q", res.Mode, e.Mode))
	}

	if e.Resyncs != nil && len(res.Resyncs) != *e.Resyncs {
		res.AddError(fmt.Sprintf("resyncs: got %d, want %d", len(res.Resyncs), *e.Resyncs))
	}
}

// expectedRules returns the rules the artifact should hold for e.  Missing
// category files are skipped, as the assembler does.
func (h *Harness) expectedRules(e Expect) (want []json.RawMessage, err error) {
	if e.Fallback {
		want, err = rules.ReadArtifact(h.layout.EmptyRulesPath())
		if errors.Is(err, fs.ErrNotExist) {
			return rules.BuiltinEmptyRules(), nil
		}

		return want, err
	}

	ids, err := category.ParseAll(e.Categories)
	if err != nil {
		return nil, err
	}

	for _, p := range h.layout.CategoryFiles(ids) {
		rs, rerr := rules.ReadArtifact(p)
		if errors.Is(rerr, fs.ErrNotExist) {
			continue
		} else if rerr != nil {
			return nil, rerr
		}

		want = append(want, rs...)
	}

	return want, nil
}

// compareArtifact compares the artifact in res with want rule by rule.
func compareArtifact(res *Result, want []json.RawMessage) {
	var got []json.RawMessage
	if err := json.Unmarshal(res.Artifact, &got); err != nil {
		res.AddError(fmt.Sprintf("artifact: %v", err))

		return
	}

	if len(got) != len(want) {
		res.AddError(fmt.Sprintf("artifact: got %d rules, want %d", len(got), len(want)))

		return
	}

	for i := range got {
		g, w := compact(got[i]), compact(want[i])
		if g != w {
			res.AddError(fmt.Sprintf("artifact rule %d: got %s, want %s", i, g, w))
		}
	}
}

// compact returns the compact form of a single rule.
func compact(r json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, r); err != nil {
		return string(r)
	}

	return buf.String()
}

// enginePoster delivers notifications to the engine synchronously, through
// the same translation the bus adapter applies.
type enginePoster struct {
	adapter *notify.Adapter
	engine  *engine.Engine
}

// type check
var _ notify.Poster = (*enginePoster)(nil)

// Post implements the [notify.Poster] interface for *enginePoster.
func (p *enginePoster) Post(ctx context.Context, n notify.Notification) (err error) {
	ev, ok, err := p.adapter.Translate(ctx, n)
	if err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("notification %q not addressed to the engine", n.Name)
	}

	if !p.engine.Enqueue(ev) {
		return engine.ErrStopped
	}

	return nil
}
