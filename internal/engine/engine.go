package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/roach88/blocksync/internal/category"
	"github.com/roach88/blocksync/internal/errcoll"
	"github.com/roach88/blocksync/internal/rules"
	"github.com/roach88/blocksync/internal/state"
	"github.com/roach88/blocksync/internal/trust"
)

// ConfigStore is the durable singleton configuration record.
type ConfigStore interface {
	CreateConfigIfAbsent(ctx context.Context) error
	CurrentConfig(ctx context.Context) (state.Configuration, error)
	SetMode(ctx context.Context, mode state.Mode) error
	SetEnabledCategories(ctx context.Context, ids []category.ID) error
}

// Assembler materializes the merged rule artifact.  It is implemented by
// *rules.Assembler.
type Assembler interface {
	Assemble(
		ctx context.Context,
		fileNames []string,
		sourceFolder string,
		dest string,
		then func(),
	) (*rules.Result, error)
}

// Reloader asks the extension runtime to reload the artifact.  The returned
// channel receives exactly one value.
type Reloader interface {
	Reload(ctx context.Context, artifactID string) <-chan error
}

// Mirror publishes the isDefault flag for processes that cannot ask the
// engine.
type Mirror interface {
	SetDefaultMirror(ctx context.Context, isDefault bool) error
}

// Config is the configuration for an [Engine].
type Config struct {
	// Logger is used for all engine logging.  It must not be nil.
	Logger *slog.Logger

	// Store is the configuration store.  It must not be nil.
	Store ConfigStore

	// Trust is the trusted-domain set.  It must not be nil.
	Trust trust.Store

	// Assembler builds the artifact.  It must not be nil.
	Assembler Assembler

	// Reloader reloads the runtime after each assembly.  It must not be nil.
	Reloader Reloader

	// Mirror receives the isDefault flag on mode switches.  If nil, the flag
	// is not mirrored.
	Mirror Mirror

	// ErrColl receives every non-fatal failure.  If nil, errors are only
	// logged.
	ErrColl errcoll.Interface

	// Metrics observes engine activity.  If nil, [EmptyMetrics] is used.
	Metrics Metrics

	// IDGen generates resync IDs.  If nil, [UUIDv7Generator] is used.
	IDGen IDGenerator

	// Layout locates the category rule files.
	Layout rules.Layout

	// ArtifactPath is where the merged artifact is written.
	ArtifactPath string

	// ArtifactID names the artifact for the reload call.
	ArtifactID string

	// DefaultCategories is the category set used in the default mode.  If
	// empty, [category.Default] is used.
	DefaultCategories []category.ID
}

// Report describes one completed resync.
type Report struct {
	// ID correlates logs and collected errors of this resync.
	ID string `json:"id"`

	// Seq is the logical clock value of this resync.
	Seq int64 `json:"seq"`

	// Trigger is the event that decided the plan.
	Trigger string `json:"trigger"`

	// Forced is true when a trust overlay forced the empty ruleset.
	Forced bool `json:"forced"`

	// Categories are the categories requested.
	Categories []string `json:"categories"`

	// Files are the rule files that made it into the artifact.
	Files []string `json:"files"`

	// Skipped are the requested files that could not be used.
	Skipped []string `json:"skipped,omitempty"`

	// Fallback is true when the empty ruleset was materialized.
	Fallback bool `json:"fallback"`

	// Rules is the number of rules written.
	Rules int `json:"rules"`

	// Err is the failure, if any.  It is a *SyncError.
	Err error `json:"-"`

	// Duration is the wall time of the resync.
	Duration time.Duration `json:"duration"`
}

// Option allows configuration of optional engine behavior.
type Option func(*Engine)

// WithReportHook registers fn to observe every resync report.  fn is called
// from the Run goroutine and must not block.
func WithReportHook(fn func(Report)) Option {
	return func(e *Engine) {
		e.hooks = append(e.hooks, fn)
	}
}

// plan is the resync a batch of events asks for.
type plan struct {
	// trigger is the event that produced the plan.
	trigger EventType

	// forced requests the empty ruleset regardless of the core rule.
	forced bool
}

// Engine is the single-writer synchronization loop.
//
// Thread-safety model:
//   - Enqueue, Flush, Refresh, Stop and the query methods: safe from any
//     goroutine
//   - Run: must be called from exactly one goroutine
type Engine struct {
	logger    *slog.Logger
	store     ConfigStore
	trust     trust.Store
	assembler Assembler
	reloader  Reloader
	mirror    Mirror
	errColl   errcoll.Interface
	metrics   Metrics
	idGen     IDGenerator
	clock     *Clock
	queue     *eventQueue
	hooks     []func(Report)

	layout       rules.Layout
	artifactPath string
	artifactID   string
	defaults     []category.ID

	paused       atomic.Bool
	activeDomain atomic.Pointer[string]
	started      atomic.Bool
	stopped      chan struct{}

	reportMu   sync.Mutex
	lastReport *Report
}

// Refresher forces a full recomputation on demand.
type Refresher interface {
	Refresh(ctx context.Context) (err error)
}

// type check
var _ Refresher = (*Engine)(nil)

// New returns a new properly initialized *Engine.  c must not be nil.  The
// engine starts Active with no active domain.
func New(c *Config, opts ...Option) *Engine {
	e := &Engine{
		logger:       c.Logger,
		store:        c.Store,
		trust:        c.Trust,
		assembler:    c.Assembler,
		reloader:     c.Reloader,
		mirror:       c.Mirror,
		errColl:      c.ErrColl,
		metrics:      c.Metrics,
		idGen:        c.IDGen,
		clock:        NewClock(),
		queue:        newEventQueue(),
		layout:       c.Layout,
		artifactPath: c.ArtifactPath,
		artifactID:   c.ArtifactID,
		defaults:     category.Dedup(c.DefaultCategories),
		stopped:      make(chan struct{}),
	}

	if e.errColl == nil {
		e.errColl = errcoll.EmptyCollector{}
	}
	if e.metrics == nil {
		e.metrics = EmptyMetrics{}
	}
	if e.idGen == nil {
		e.idGen = UUIDv7Generator{}
	}
	if len(e.defaults) == 0 {
		e.defaults = category.Default()
	}

	empty := ""
	e.activeDomain.Store(&empty)

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Enqueue submits an event for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	ev.done = nil
	return e.queue.Enqueue(ev)
}

// Flush blocks until every event enqueued before the call has been applied and
// the resync it caused, if any, has finished.
func (e *Engine) Flush(ctx context.Context) error {
	return e.barrier(ctx, eventFlush)
}

// Refresh implements the [Refresher] interface for *Engine.  It
// forces a resync of the current state and waits for it.
func (e *Engine) Refresh(ctx context.Context) (err error) {
	return e.barrier(ctx, eventRefresh)
}

// barrier enqueues an event of type t and waits until it has been processed.
func (e *Engine) barrier(ctx context.Context, t EventType) error {
	done := make(chan struct{})
	if !e.queue.Enqueue(Event{Type: t, done: done}) {
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the single-writer event loop.
// Blocks until context is cancelled or Stop() is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// On start Run creates the configuration record if absent and performs one
// resync from the persisted state, which repairs an artifact left stale by a
// crash between a store write and its resync.
//
// ERROR HANDLING: On event processing failure, the error is logged and
// collected, and processing continues.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return fmt.Errorf("engine: run called twice")
	}
	defer close(e.stopped)

	e.logger.InfoContext(ctx, "engine starting", "artifact", e.artifactPath)

	if err := e.store.CreateConfigIfAbsent(ctx); err != nil {
		e.collect(ctx, &SyncError{Kind: KindStorage, Op: "create_config", Err: err})
	}
	e.metrics.SetPaused(false)
	e.resync(ctx, plan{trigger: eventRefresh})

	for {
		if batch := e.queue.DrainAll(); len(batch) > 0 {
			e.processBatch(ctx, batch)

			continue
		}

		select {
		case <-ctx.Done():
			e.logger.InfoContext(ctx, "engine stopping: context cancelled")
			e.queue.Close()

			return ctx.Err()
		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed.
			if e.queue.Len() == 0 && e.queue.IsClosed() {
				e.logger.InfoContext(ctx, "engine stopping: queue closed")

				return nil
			}
		}
	}
}

// Stop closes the event queue, which makes Run return once the queued events
// are processed.  It does not wait for an in-flight resync.
func (e *Engine) Stop() {
	e.queue.Close()
}

// processBatch applies every event in order and runs at most one resync for
// the whole batch.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) processBatch(ctx context.Context, batch []Event) {
	var (
		next     *plan
		barriers []chan struct{}
	)

	for _, ev := range batch {
		if ev.done != nil {
			barriers = append(barriers, ev.done)
		}

		if ev.Type == eventFlush {
			continue
		}

		e.metrics.IncEvent(ev.Type.String())

		p, err := e.apply(ctx, ev)
		if err != nil {
			e.collect(ctx, err)

			continue
		}

		if p != nil {
			next = p
		}
	}

	if len(batch) > 1 {
		e.logger.DebugContext(ctx, "coalesced events", "count", len(batch))
	}

	if next != nil {
		e.resync(ctx, *next)
	}

	for _, done := range barriers {
		close(done)
	}
}

// apply performs the state change of ev and returns the resync it requires,
// or nil if the desired ruleset is unchanged.
func (e *Engine) apply(ctx context.Context, ev Event) (p *plan, err error) {
	e.logger.DebugContext(ctx, "applying event", "event", ev.Type, "domain", ev.Domain)

	recompute := &plan{trigger: ev.Type}

	switch ev.Type {
	case EventPause:
		e.paused.Store(true)
		e.metrics.SetPaused(true)

		return recompute, nil
	case EventResume:
		e.paused.Store(false)
		e.metrics.SetPaused(false)

		return recompute, nil
	case EventSwitchToDefault:
		return e.switchMode(ctx, ev.Type, state.ModeDefault)
	case EventSwitchToCustom:
		return e.switchMode(ctx, ev.Type, state.ModeCustom)
	case EventSetCategories:
		if err = e.store.SetEnabledCategories(ctx, ev.Categories); err != nil {
			return nil, &SyncError{Kind: KindStorage, Op: ev.Type.String(), Err: err}
		}

		return recompute, nil
	case EventTrustDomain:
		return e.trustDomain(ctx, ev)
	case EventUntrustDomain:
		if err = e.trust.RemoveTrustedDomain(ctx, ev.Domain); err != nil {
			return nil, &SyncError{Kind: KindStorage, Op: ev.Type.String(), Err: err}
		}

		// Takes effect on the next domain change.
		return nil, nil
	case EventActiveDomainChanged:
		return e.activeDomainChanged(ctx, ev)
	case eventRefresh:
		return recompute, nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", ev.Type)
	}
}

// switchMode persists mode and mirrors the isDefault flag.
func (e *Engine) switchMode(ctx context.Context, t EventType, mode state.Mode) (p *plan, err error) {
	if err = e.store.SetMode(ctx, mode); err != nil {
		return nil, &SyncError{Kind: KindStorage, Op: t.String(), Err: err}
	}

	if e.mirror != nil {
		merr := e.mirror.SetDefaultMirror(ctx, mode == state.ModeDefault)
		if merr != nil {
			// The mirror is advisory; readers re-derive it from the store.
			e.collect(ctx, &SyncError{Kind: KindStorage, Op: "mirror_is_default", Err: merr})
		}
	}

	return &plan{trigger: t}, nil
}

// trustDomain adds ev.Domain to the trusted set and forces the empty ruleset
// if it is the active domain.
func (e *Engine) trustDomain(ctx context.Context, ev Event) (p *plan, err error) {
	if err = e.trust.AddTrustedDomain(ctx, ev.Domain); err != nil {
		return nil, &SyncError{Kind: KindStorage, Op: ev.Type.String(), Err: err}
	}

	if ev.Domain != "" && ev.Domain == e.ActiveDomain() {
		return &plan{trigger: ev.Type, forced: true}, nil
	}

	return nil, nil
}

// activeDomainChanged records the active domain and applies its trust
// overlay.
func (e *Engine) activeDomainChanged(ctx context.Context, ev Event) (p *plan, err error) {
	d := ev.Domain
	e.activeDomain.Store(&d)

	if d == "" {
		return &plan{trigger: ev.Type}, nil
	}

	trusted, err := e.trust.IsTrusted(ctx, d)
	if err != nil {
		return nil, &SyncError{Kind: KindStorage, Op: ev.Type.String(), Err: err}
	}

	return &plan{trigger: ev.Type, forced: trusted}, nil
}

// desiredCategories is the core recomputation rule.
func (e *Engine) desiredCategories(ctx context.Context) (ids []category.ID, err error) {
	if e.paused.Load() {
		return nil, nil
	}

	conf, err := e.store.CurrentConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	return conf.BlockedCategories(e.defaults), nil
}

// resync materializes the artifact for p and waits for the reload.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) resync(ctx context.Context, p plan) {
	start := time.Now()
	rep := Report{
		ID:      e.idGen.Generate(),
		Seq:     e.clock.Next(),
		Trigger: p.trigger.String(),
		Forced:  p.forced,
	}

	var ids []category.ID
	if !p.forced {
		var err error
		ids, err = e.desiredCategories(ctx)
		if err != nil {
			// Keep the previous artifact and skip the reload.
			rep.Err = &SyncError{Kind: KindStorage, Op: "read_config", ResyncID: rep.ID, Err: err}
			rep.Duration = time.Since(start)
			e.finish(ctx, rep)

			return
		}
	}
	rep.Categories = category.Strings(ids)

	var reloaded <-chan error
	res, err := e.assembler.Assemble(
		ctx,
		rules.FileNames(ids),
		e.layout.CategoryFolder(),
		e.artifactPath,
		func() { reloaded = e.reloader.Reload(ctx, e.artifactID) },
	)
	if err != nil {
		rep.Err = &SyncError{Kind: assemblyKind(err), Op: "assemble", ResyncID: rep.ID, Err: err}
	} else {
		rep.Files = res.Files
		rep.Fallback = res.Fallback
		rep.Rules = res.Rules
		for _, s := range res.Skipped {
			rep.Skipped = append(rep.Skipped, s.Name)
		}
		e.metrics.SetArtifactRules(res.Rules)

		rep.Err = e.waitReload(ctx, rep.ID, reloaded)
	}

	rep.Duration = time.Since(start)
	e.finish(ctx, rep)
}

// waitReload waits for the reload result.  There is no timeout; cancelling
// ctx abandons the wait.
func (e *Engine) waitReload(ctx context.Context, id string, reloaded <-chan error) (err error) {
	if reloaded == nil {
		return nil
	}

	select {
	case err = <-reloaded:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err != nil {
		e.metrics.IncReload("error")

		return &SyncError{Kind: KindReload, Op: "reload", ResyncID: id, Err: err}
	}

	e.metrics.IncReload("ok")

	return nil
}

// finish records rep and reports it to the hooks.
func (e *Engine) finish(ctx context.Context, rep Report) {
	result := "ok"
	if rep.Err != nil {
		result = string(KindOf(rep.Err))
		e.collect(ctx, rep.Err)
	} else {
		e.logger.InfoContext(
			ctx,
			"resync done",
			"id", rep.ID,
			"seq", rep.Seq,
			"trigger", rep.Trigger,
			"forced", rep.Forced,
			"categories", rep.Categories,
			"rules", rep.Rules,
			"fallback", rep.Fallback,
		)
	}
	e.metrics.ObserveResync(result, rep.Duration)

	e.reportMu.Lock()
	e.lastReport = &rep
	e.reportMu.Unlock()

	for _, h := range e.hooks {
		h(rep)
	}
}

// assemblyKind classifies an assembly failure.
func assemblyKind(err error) ErrorKind {
	if errors.Is(err, rules.ErrNoContent) {
		return KindAssetResolution
	}
	return KindAssemblyIO
}

// collect logs err and passes it to the error collector.  Context
// cancellation during shutdown is only logged at debug level.
func (e *Engine) collect(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) {
		e.logger.DebugContext(ctx, "engine operation canceled", slogutil.KeyError, err)

		return
	}

	errcoll.Collect(ctx, e.errColl, e.logger, "engine", err)
}

// IsPaused reports the Activity axis.
func (e *Engine) IsPaused() bool {
	return e.paused.Load()
}

// ActiveDomain returns the last domain reported by ActiveDomainChanged.
func (e *Engine) ActiveDomain() string {
	return *e.activeDomain.Load()
}

// IsDefaultConfigEnabled re-derives the isDefault flag from the store.  An
// unreachable store reports the default mode.
func (e *Engine) IsDefaultConfigEnabled(ctx context.Context) bool {
	conf, err := e.store.CurrentConfig(ctx)
	if err != nil {
		return true
	}
	return conf.IsDefault()
}

// CurrentRuleFiles returns the paths of the category rule files the core rule
// currently selects, ignoring trust overlays.
func (e *Engine) CurrentRuleFiles(ctx context.Context) (files []string, err error) {
	ids, err := e.desiredCategories(ctx)
	if err != nil {
		return nil, err
	}

	return e.layout.CategoryFiles(ids), nil
}

// LastReport returns the report of the latest resync and true, or false if
// none has finished yet.
func (e *Engine) LastReport() (Report, bool) {
	e.reportMu.Lock()
	defer e.reportMu.Unlock()

	if e.lastReport == nil {
		return Report{}, false
	}
	return *e.lastReport, true
}

// QueueLen returns the number of pending events.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}
