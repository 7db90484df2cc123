// Package collection runs load sessions for named collections and keeps
// the last complete result of each in the snapshot store.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tallydash/tally/internal/domain"
	"github.com/tallydash/tally/internal/events"
	"github.com/tallydash/tally/internal/loader"
)

// LoadResult summarizes a finished (or stopped) load.
type LoadResult struct {
	Collection string
	Filter     domain.Filter
	SessionID  string
	Records    []domain.Record
	Total      int
	Requests   int
	Escalated  bool
	Duplicates int
	Retries    int
	Duration   time.Duration
	Empty      bool // the filter matched no records
}

// Option customizes Commands.
type Option func(*Commands)

// WithMetrics attaches loader instrumentation.
func WithMetrics(m loader.Metrics) Option {
	return func(c *Commands) { c.metrics = m }
}

// WithRetries makes Load resume a failed or stalled session up to n times,
// waiting delay before each attempt.
func WithRetries(n int, delay time.Duration) Option {
	return func(c *Commands) {
		c.retries = max(n, 0)
		c.retryDelay = max(delay, 0)
	}
}

// Commands provides operations that hit the network.
type Commands struct {
	fetchers   map[string]domain.PageFetcher
	store      domain.SnapshotStore
	bus        *events.Bus
	cfg        loader.Config
	metrics    loader.Metrics
	retries    int
	retryDelay time.Duration
	source     string // tags notifications this instance publishes
	logger     *slog.Logger
}

// NewCommands creates a new Commands instance. cfg.Collection is ignored;
// every loader is bound to the collection it serves.
func NewCommands(
	fetchers map[string]domain.PageFetcher,
	store domain.SnapshotStore,
	bus *events.Bus,
	cfg loader.Config,
	logger *slog.Logger,
	opts ...Option,
) *Commands {
	if logger == nil {
		logger = slog.Default()
	}
	if bus == nil {
		bus = events.NewBus(logger)
	}
	c := &Commands{
		fetchers: fetchers,
		store:    store,
		bus:      bus,
		cfg:      cfg,
		source:   uuid.NewString(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collections returns the configured collection names, sorted.
func (c *Commands) Collections() []string {
	names := make([]string, 0, len(c.fetchers))
	for name := range c.fetchers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load runs one session for filter until every record has arrived or the
// session stops on an error that retries could not clear. A complete
// result is saved as the collection's snapshot. A session that stops early,
// or is canceled after records arrived, returns the partial result with an
// error wrapping domain.ErrIncomplete.
func (c *Commands) Load(
	ctx context.Context,
	name string,
	filter domain.Filter,
	onProgress domain.ProgressFunc,
) (LoadResult, error) {
	fetcher, err := c.fetcher(name)
	if err != nil {
		return LoadResult{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	terminal := make(chan domain.LoadProgress, 1)
	observer := domain.ObserverFunc(func(p domain.LoadProgress) {
		if p.Kind == domain.EventProgress && onProgress != nil {
			onProgress(p.Loaded, p.Total)
		}
		if p.Terminal() {
			select {
			case terminal <- p:
			default:
			}
		}
	})

	l := c.newLoader(name, fetcher, observer)
	go l.Run(ctx)
	defer func() {
		cancel()
		<-l.Done()
	}()

	start := time.Now()
	if err := l.SetFilter(filter); err != nil {
		return LoadResult{}, err
	}

	retries := 0
	for {
		var last domain.LoadProgress
		select {
		case last = <-terminal:
		case <-ctx.Done():
			return c.interrupted(l, retries, start, ctx.Err())
		}

		if last.Kind == domain.EventComplete {
			result := c.result(l, retries, start)
			result.Empty = errors.Is(last.Err, domain.ErrEmptyResult)
			c.save(result)
			return result, nil
		}

		if retries >= c.retries {
			return c.result(l, retries, start), fmt.Errorf("%w: %s stage at %d of %d records: %w",
				domain.ErrIncomplete, last.Stage, last.Loaded, last.Total, last.Err)
		}
		retries++
		c.logger.Warn("load stopped, retrying",
			"collection", name,
			"stage", string(last.Stage),
			"loaded", last.Loaded,
			"attempt", retries,
			"error", last.Err,
		)
		select {
		case <-time.After(c.retryDelay):
		case <-ctx.Done():
			return c.interrupted(l, retries, start, ctx.Err())
		}
		l.Retry()
	}
}

// Watch is a long-lived loader for an interactive view. The caller runs it
// and sets its filter. Complete sessions are saved as snapshots and
// data-changed notifications for the collection restart it. Call the
// returned stop function once Run has returned.
func (c *Commands) Watch(name string, observer domain.LoadObserver) (*loader.Loader, func(), error) {
	fetcher, err := c.fetcher(name)
	if err != nil {
		return nil, nil, err
	}

	var l *loader.Loader
	saver := domain.ObserverFunc(func(p domain.LoadProgress) {
		if p.Kind != domain.EventComplete {
			return
		}
		if s, ok := l.Session(); ok && s.Epoch == p.Epoch {
			c.save(resultOf(s, 0, 0))
		}
	})

	sub := c.bus.Subscribe(4)
	l = c.newLoader(name, fetcher, domain.MultiObserver{saver, observer}, loader.WithDataChanges(sub))
	return l, sub.Close, nil
}

// NotifyDataChanged drops the stored snapshots of a collection (every
// collection if name is empty) and restarts loaders watching it.
func (c *Commands) NotifyDataChanged(name, reason string) {
	c.invalidate(name)
	c.bus.Publish(events.DataChanged{Collection: name, Reason: reason, Source: c.source})
}

// RunInvalidator drops snapshots for data-changed notifications published
// by other components until ctx is done. Notifications from this
// instance's NotifyDataChanged are skipped; it invalidated already.
func (c *Commands) RunInvalidator(ctx context.Context) {
	sub := c.bus.Subscribe(16)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if ev.Source == c.source {
				continue
			}
			c.invalidate(ev.Collection)
		}
	}
}

// InvalidateAll drops every stored snapshot.
func (c *Commands) InvalidateAll() {
	c.store.InvalidateAll()
	c.logger.Info("invalidated all snapshots")
}

// --- Private helpers ---

func (c *Commands) fetcher(name string) (domain.PageFetcher, error) {
	f, ok := c.fetchers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCollection, name)
	}
	return f, nil
}

func (c *Commands) newLoader(name string, fetcher domain.PageFetcher, observer domain.LoadObserver, opts ...loader.Option) *loader.Loader {
	cfg := c.cfg
	cfg.Collection = name
	if c.metrics != nil {
		opts = append(opts, loader.WithMetrics(c.metrics))
	}
	return loader.New(fetcher, cfg, observer, c.logger, opts...)
}

func (c *Commands) result(l *loader.Loader, retries int, start time.Time) LoadResult {
	s, _ := l.Session()
	return resultOf(s, retries, time.Since(start))
}

// interrupted returns what a canceled load gathered. Records already
// merged are kept and the error wraps domain.ErrIncomplete.
func (c *Commands) interrupted(l *loader.Loader, retries int, start time.Time, err error) (LoadResult, error) {
	result := c.result(l, retries, start)
	if len(result.Records) == 0 {
		return result, err
	}
	return result, fmt.Errorf("%w: %d of %d records: %w",
		domain.ErrIncomplete, len(result.Records), result.Total, err)
}

func resultOf(s loader.Session, retries int, d time.Duration) LoadResult {
	return LoadResult{
		Collection: s.Collection,
		Filter:     s.Filter,
		SessionID:  s.ID,
		Records:    s.Records,
		Total:      s.Total,
		Requests:   s.Requests,
		Escalated:  s.Escalated,
		Duplicates: s.Duplicates,
		Retries:    retries,
		Duration:   d,
		Empty:      s.Complete && len(s.Records) == 0,
	}
}

func (c *Commands) save(r LoadResult) {
	if c.store == nil {
		return
	}
	err := c.store.SaveSnapshot(domain.Snapshot{
		Collection: r.Collection,
		Filter:     r.Filter,
		Records:    r.Records,
		Total:      r.Total,
		SavedAt:    time.Now(),
	})
	if err != nil {
		c.logger.Error("failed to save snapshot", "error", err, "collection", r.Collection)
		return
	}
	c.logger.Debug("saved snapshot", "collection", r.Collection, "records", len(r.Records), "filter", r.Filter.String())
}

func (c *Commands) invalidate(name string) {
	if c.store == nil {
		return
	}
	if name == "" {
		c.store.InvalidateAll()
	} else {
		c.store.InvalidateCollection(name)
	}
	c.logger.Info("invalidated snapshots", "collection", name)
}
