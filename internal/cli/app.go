package cli

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/photostack/internal/access"
	"github.com/roach88/photostack/internal/config"
	"github.com/roach88/photostack/internal/engine"
	"github.com/roach88/photostack/internal/eventbus"
	"github.com/roach88/photostack/internal/logging"
	"github.com/roach88/photostack/internal/metrics"
	"github.com/roach88/photostack/internal/store"
)

// shutdownTimeout bounds how long closing an app waits for queued events.
const shutdownTimeout = 30 * time.Second

// app is the wired engine stack shared by commands: config, logger,
// store, metrics, bus and engine. The bus is running once openApp returns.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	registry *prometheus.Registry
	metrics  *metrics.Collector
	bus      *eventbus.Bus
	engine   *engine.Engine

	cancel  context.CancelFunc
	stopped chan struct{}
}

// loadConfig loads the config file and applies flag overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		path, err := config.ExpandPath(opts.Database)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid --db path", err)
		}
		cfg.Database.Path = path
	}
	return cfg, nil
}

// newLogger builds the process logger from cfg, writing to w.
func newLogger(opts *RootOptions, cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	logger, err := logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Verbose: opts.Verbose,
		Writer:  w,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to configure logging", err)
	}
	return logger, nil
}

// openStore loads config and opens the database without starting the engine.
func openStore(opts *RootOptions) (*store.Store, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// openApp wires the full stack and starts the bus.
func openApp(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(opts, cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	logger.Debug("opening database", "path", cfg.Database.Path)
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	lastSeq, err := st.LastEventSeq(ctx)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to register metrics", err)
	}

	bus := eventbus.New(
		eventbus.WithJournal(st),
		eventbus.WithLogger(logger),
		eventbus.WithMetrics(m),
		eventbus.WithWorkers(cfg.Bus.Workers),
		eventbus.WithRedeliveries(cfg.Bus.Redeliveries),
		eventbus.WithStartSeq(lastSeq),
	)

	retry := engine.DefaultRetryConfig()
	retry.MaxAttempts = cfg.AutoStack.MaxAttempts
	retry.InitialDelay = cfg.AutoStack.InitialDelay()
	retry.MaxDelay = cfg.AutoStack.MaxDelay()

	eng := engine.New(st, st, access.NewOwnership(st), bus,
		engine.WithLogger(logger),
		engine.WithMetrics(m),
		engine.WithRetry(retry),
	)
	if err := eng.Register(bus); err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to register handlers", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		registry: registry,
		metrics:  m,
		bus:      bus,
		engine:   eng,
		cancel:   cancel,
		stopped:  make(chan struct{}),
	}
	go func() {
		defer close(a.stopped)
		if err := bus.Run(runCtx); err != nil && err != context.Canceled {
			logger.Error("event bus stopped with error", "error", err)
		}
	}()

	return a, nil
}

// drain waits until every queued event has been handled.
func (a *app) drain(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return a.bus.Drain(ctx)
}

// close drains the bus, stops it and closes the database.
func (a *app) close() {
	if err := a.drain(context.Background()); err != nil {
		a.logger.Warn("closing with undelivered events", "pending", a.bus.Pending(), "error", err)
	}
	a.bus.Stop()
	a.cancel()
	<-a.stopped

	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// formatter returns the output formatter for cmd.
func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// commandContext returns the command's context, or Background when unset.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
