package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/roach88/blocksync/internal/config"
	"github.com/roach88/blocksync/internal/engine"
	"github.com/roach88/blocksync/internal/errcoll"
	"github.com/roach88/blocksync/internal/metrics"
	"github.com/roach88/blocksync/internal/notify"
	"github.com/roach88/blocksync/internal/reload"
	"github.com/roach88/blocksync/internal/rules"
	"github.com/roach88/blocksync/internal/store"
	"github.com/roach88/blocksync/internal/trust"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	// IDGen allows overriding the resync ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGen engine.IDGenerator

	// Bus allows injecting the notification bus (for testing).  If nil, the
	// configured transport is used.
	Bus notify.Bus
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the synchronization engine",
		Long: `Start the blocksync engine.

The engine opens the shared SQLite database (creating it if it doesn't exist),
materializes the rule artifact from the persisted configuration, and then
applies every notification received from the host application.

Signals:
  SIGINT, SIGTERM - stop after the current resync
  SIGHUP          - resync the current state

Example:
  blocksync run --config /etc/blocksync.yaml
  BLOCKSYNC_DB=/tmp/test.db blocksync run --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	return cmd
}

func runEngine(opts *RunOptions, cmd *cobra.Command) (err error) {
	conf, err := opts.loadConfig()
	if err != nil {
		return err
	}

	logger := opts.newLogger(cmd.ErrOrStderr())

	defaults, err := conf.DefaultCategoryIDs()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid default categories", err)
	}

	logger.Info("opening database", "path", conf.Store.Path)
	st, err := store.Open(conf.Store.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("closing database", slogutil.KeyError, closeErr)
		}
	}()

	bus := opts.Bus
	if bus == nil {
		bus, err = newBus(logger, conf)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create notification bus", err)
		}
	}
	defer func() {
		if closeErr := bus.Close(); closeErr != nil && !errors.Is(closeErr, notify.ErrClosed) {
			logger.Error("closing notification bus", slogutil.KeyError, closeErr)
		}
	}()

	errColl, flushErrs, err := newErrColl(logger, conf, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create error collector", err)
	}
	defer flushErrs()

	reloader, err := newReloader(logger, conf, bus)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create reloader", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register metrics", err)
	}

	idGen := opts.IDGen
	if idGen == nil {
		idGen = engine.UUIDv7Generator{}
	}

	layout := conf.Layout()
	eng := engine.New(&engine.Config{
		Logger:            logger,
		Store:             st,
		Trust:             trust.NewCache(st, conf.Trust.CacheTTL),
		Assembler:         rules.New(&rules.Config{Logger: logger, Layout: layout, MaxFileSize: conf.Assets.MaxFileSize}),
		Reloader:          reloader,
		Mirror:            notify.ScratchMirror{Scratch: st},
		ErrColl:           errColl,
		Metrics:           m,
		IDGen:             idGen,
		Layout:            layout,
		ArtifactPath:      conf.Artifact.Path,
		ArtifactID:        conf.Artifact.ID,
		DefaultCategories: defaults,
	})

	adapter := notify.NewAdapter(&notify.AdapterConfig{
		Logger:     logger,
		Subscriber: bus,
		Scratch:    st,
		Target:     eng,
		Peer:       conf.Notify.PeerID,
		Limiter:    rate.NewLimiter(rate.Limit(conf.Notify.MaxRate), conf.Notify.Burst),
	})

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	handleSignals(ctx, logger, eng, cancel)

	adapterDone := make(chan error, 1)
	go func() {
		aerr := adapter.Run(ctx)
		if aerr != nil && !errors.Is(aerr, context.Canceled) {
			logger.Error("notification adapter stopped", slogutil.KeyError, aerr)
			// Without the adapter the engine cannot receive anything.
			cancel()
		}
		adapterDone <- aerr
	}()

	if conf.Metrics.Addr != "" {
		stopMetrics := serveMetrics(logger, conf.Metrics.Addr, reg)
		defer stopMetrics()
	}

	logger.Info("engine starting", "db", conf.Store.Path, "artifact", conf.Artifact.Path, "transport", conf.Notify.Transport)
	fmt.Fprintln(cmd.OutOrStdout(), "Engine started. Listening for notifications...")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	runErr := eng.Run(ctx)
	cancel()

	aerr := <-adapterDone
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "engine error", runErr)
	}
	if aerr != nil && !errors.Is(aerr, context.Canceled) && !errors.Is(aerr, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "notification adapter error", aerr)
	}

	logger.Info("engine stopped gracefully")
	return nil
}

// handleSignals stops the engine on SIGINT and SIGTERM and refreshes it on
// SIGHUP until ctx is done.
func handleSignals(ctx context.Context, logger *slog.Logger, eng *engine.Engine, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sigChan)

		for {
			select {
			case sig := <-sigChan:
				if sig != syscall.SIGHUP {
					logger.Info("received signal, shutting down", "signal", sig)
					cancel()

					return
				}

				logger.Info("received signal, refreshing", "signal", sig)
				go func() {
					if err := eng.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
						logger.Warn("refresh failed", slogutil.KeyError, err)
					}
				}()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// newBus returns the configured notification transport.
func newBus(logger *slog.Logger, conf *config.Config) (notify.Bus, error) {
	switch conf.Notify.Transport {
	case config.TransportSocket:
		return notify.NewSocketBus(logger, conf.Notify.SocketPath), nil
	case config.TransportRedis:
		return notify.NewRedisBus(&notify.RedisConfig{
			Logger:  logger,
			URL:     conf.Notify.RedisURL,
			Channel: conf.Notify.Channel,
		}), nil
	case config.TransportMemory:
		return notify.NewMemoryBus(), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", conf.Notify.Transport)
	}
}

// newReloader returns the command reloader if a reload command is configured
// and the bus reloader otherwise.  The socket transport posts reloads to the
// runtime's own socket, since the engine's socket only reaches the engine.
func newReloader(logger *slog.Logger, conf *config.Config, p notify.Poster) (engine.Reloader, error) {
	if len(conf.Reload.Command) > 0 {
		r, err := reload.NewCommandReloader(logger, conf.Reload.Command)
		if err != nil {
			return nil, err
		}
		return r, nil
	}

	if conf.Notify.Transport == config.TransportSocket {
		p = notify.NewSocketBus(logger, conf.Notify.ReloadSocketPath)
	}

	return reload.NewBusReloader(p, conf.Notify.PeerID), nil
}

// newErrColl returns the Sentry collector if a DSN is configured and a
// collector writing to stderr otherwise.  flush must be called before exit.
func newErrColl(
	logger *slog.Logger,
	conf *config.Config,
	cmd *cobra.Command,
) (c errcoll.Interface, flush func(), err error) {
	if conf.Sentry.DSN == "" {
		return errcoll.NewWriterErrorCollector(cmd.ErrOrStderr()), func() {}, nil
	}

	cli, err := errcoll.NewSentryClient(conf.Sentry.DSN, Version)
	if err != nil {
		return nil, nil, err
	}

	sc := errcoll.NewSentryErrorCollector(cli, logger)
	return sc, sc.Flush, nil
}

// serveMetrics serves reg on addr/metrics in the background.  The returned
// function shuts the server down.
func serveMetrics(logger *slog.Logger, addr string, reg *prometheus.Registry) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", slogutil.KeyError, err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("shutting down metrics server", slogutil.KeyError, err)
		}
	}
}
