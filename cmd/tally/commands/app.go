package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"
	"github.com/tallydash/tally/internal/adapter"
	"github.com/tallydash/tally/internal/backend"
	"github.com/tallydash/tally/internal/cli/output"
	"github.com/tallydash/tally/internal/collection"
	"github.com/tallydash/tally/internal/domain"
	"github.com/tallydash/tally/internal/events"
	"github.com/tallydash/tally/internal/metrics"
	"github.com/tallydash/tally/internal/store"
)

// app is the wired application behind a command.
type app struct {
	cfg      *adapter.Config
	logger   *slog.Logger
	store    *store.SnapshotStore
	commands *collection.Commands
	queries  *collection.Queries
	printer  *output.Printer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// loadConfig reads and validates the configuration, applying flag overrides.
func loadConfig(opts *globalOptions) (*adapter.Config, error) {
	cfg, err := adapter.LoadConfig(opts.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp wires config, logging, the snapshot store, the backend client and
// the collection commands. Close releases everything it started.
func newApp(ctx context.Context, opts *globalOptions, out *output.Printer) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logger, err := adapter.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = adapter.NullLogger()
	}
	slog.SetDefault(logger)

	st, err := store.NewSnapshotStore(cfg.StoreDir(), cfg.Server.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}

	client := backend.NewClient(cfg.Server.URL, cfg.Server.Token, logger,
		backend.WithTimeout(cfg.Server.Timeout),
		backend.WithRetries(cfg.Server.MaxRetries, cfg.Server.RetryDelay),
	)
	fetchers := make(map[string]domain.PageFetcher, len(cfg.Collections))
	for name, coll := range cfg.Collections {
		fetchers[name] = client.Collection(coll)
	}

	ctx, cancel := context.WithCancel(ctx)
	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		printer: out,
		cancel:  cancel,
	}

	cmdOpts := []collection.Option{
		collection.WithRetries(cfg.Loader.Retries, cfg.Server.RetryDelay),
	}
	if cfg.Metrics.Addr != "" {
		reg := metrics.NewRegistry()
		cmdOpts = append(cmdOpts, collection.WithMetrics(metrics.NewLoaderMetrics(reg)))
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, reg, logger); err != nil {
				logger.Error("metrics endpoint failed", "addr", cfg.Metrics.Addr, "error", err)
			}
		}()
	}

	a.commands = collection.NewCommands(fetchers, st, events.NewBus(logger), cfg.LoaderSettings(), logger, cmdOpts...)
	a.queries = collection.NewQueries(st)

	logger.Info("starting tally",
		"version", Version,
		"server", client.BaseURL(),
		"collections", cfg.CollectionNames(),
		"persistent", st.Persistent(),
	)
	return a, nil
}

// Close stops background work and closes the store.
func (a *app) Close() error {
	a.cancel()
	a.wg.Wait()
	return a.store.Close()
}

// withApp runs fn against a wired app, closing it afterwards.
func withApp(cmd *cobra.Command, opts *globalOptions, fn func(a *app) error) error {
	printer, err := newPrinter(cmd, opts)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), opts, printer)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Warn("failed to close store", "error", err)
		}
	}()
	return fn(a)
}

// newPrinter writes to the command's output in the --output format.
func newPrinter(cmd *cobra.Command, opts *globalOptions) (*output.Printer, error) {
	format, err := output.ParseFormat(opts.output)
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(cmd.OutOrStdout(), format), nil
}
