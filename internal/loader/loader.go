// Package loader incrementally retrieves a filtered record set from a
// paginated backend.
//
// A Loader owns one session at a time. The first page decides how the rest
// is fetched: a page served from the server's warm cache is followed by a
// single bulk fetch of everything remaining; an uncached page is followed
// by fixed-size batches spaced by a delay. Every page is merged into the
// session with identity-based dedup. Changing the filter starts a new
// session and any response still in flight for the old one is discarded.
//
// All session state is owned by the goroutine running Run; fetches and
// timers only post messages back to it.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tallydash/tally/internal/domain"
	"github.com/tallydash/tally/internal/events"
)

const (
	DefaultPageSize   = 30
	DefaultBatchDelay = 500 * time.Millisecond
	queueSize         = 64
)

// Config tunes a Loader.
type Config struct {
	Collection string
	PageSize   int           // records per trickle batch
	BatchDelay time.Duration // pause between trickle batches
	BulkDelay  time.Duration // pause before the bulk fetch; zero issues it immediately
}

// Option customizes a Loader.
type Option func(*Loader)

// WithMetrics attaches instrumentation.
func WithMetrics(m Metrics) Option {
	return func(l *Loader) {
		if m != nil {
			l.metrics = m
		}
	}
}

// WithDataChanges restarts the session whenever a notification for the
// loader's collection arrives on sub.
func WithDataChanges(sub *events.Subscription) Option {
	return func(l *Loader) {
		if sub != nil {
			l.changes = sub.C
		}
	}
}

// WithSessionIDs replaces the session ID generator.
func WithSessionIDs(gen func() string) Option {
	return func(l *Loader) {
		if gen != nil {
			l.newID = gen
		}
	}
}

// Loader runs load sessions for one collection.
type Loader struct {
	fetcher  domain.PageFetcher
	cfg      Config
	observer domain.LoadObserver
	metrics  Metrics
	logger   *slog.Logger
	newID    func() string

	queue   chan message
	changes <-chan events.DataChanged
	done    chan struct{}
	running atomic.Bool

	current atomic.Pointer[Session]

	// Owned by the Run goroutine.
	epoch   uint64
	session Session
	active  bool
	timer   *time.Timer
	cancel  context.CancelFunc
	started time.Time
}

// New creates a Loader. Call Run to start it.
func New(fetcher domain.PageFetcher, cfg Config, observer domain.LoadObserver, logger *slog.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = domain.NoOpObserver{}
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	if cfg.BulkDelay < 0 {
		cfg.BulkDelay = 0
	}

	l := &Loader{
		fetcher:  fetcher,
		cfg:      cfg,
		observer: observer,
		metrics:  noopMetrics{},
		logger:   logger.With("collection", cfg.Collection),
		newID:    uuid.NewString,
		queue:    make(chan message, queueSize),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Messages handled by the loop.
type (
	message any

	setFilterMsg struct {
		filter domain.Filter
		force  bool
		reason string
	}

	retryMsg struct{}

	fetchDoneMsg struct {
		epoch    uint64
		offset   int
		limit    int
		mode     domain.LoadMode
		page     domain.PageResult
		err      error
		duration time.Duration
	}

	timerMsg struct {
		epoch uint64
	}
)

// Run processes loader messages until ctx is done. It must be called once.
func (l *Loader) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("loader already running")
	}
	defer close(l.done)
	defer l.stopPending()

	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("loader stopped", "reason", ctx.Err())
			return ctx.Err()

		case m := <-l.queue:
			l.handle(ctx, m)

		case ev, ok := <-l.changes:
			if !ok {
				l.changes = nil
				continue
			}
			if !ev.Affects(l.cfg.Collection) {
				continue
			}
			if !l.active {
				l.logger.Debug("data changed before any session", "reason", ev.Reason)
				continue
			}
			l.start(ctx, l.session.Filter, "data changed: "+ev.Reason)
		}
	}
}

// Done is closed when Run returns.
func (l *Loader) Done() <-chan struct{} { return l.done }

// SetFilter activates filter. A filter equal to the active one is ignored;
// any other filter supersedes the current session.
func (l *Loader) SetFilter(filter domain.Filter) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	l.post(setFilterMsg{filter: filter, reason: "filter changed"})
	return nil
}

// Refresh restarts the current session from offset zero with the same filter.
func (l *Loader) Refresh() {
	l.post(setFilterMsg{force: true, reason: "refresh"})
}

// Retry resumes a failed or stalled session from where it stopped.
func (l *Loader) Retry() {
	l.post(retryMsg{})
}

// Session returns the latest session state. The value is immutable and
// safe to read from any goroutine.
func (l *Loader) Session() (Session, bool) {
	s := l.current.Load()
	if s == nil {
		return Session{}, false
	}
	return *s, true
}

func (l *Loader) post(m message) {
	select {
	case l.queue <- m:
	case <-l.done:
	}
}

func (l *Loader) handle(ctx context.Context, m message) {
	switch m := m.(type) {
	case setFilterMsg:
		if m.force {
			if !l.active {
				l.logger.Debug("refresh ignored, no session")
				return
			}
			l.start(ctx, l.session.Filter, m.reason)
			return
		}
		if l.active && m.filter == l.session.Filter {
			l.logger.Debug("filter unchanged", "filter", m.filter.String())
			return
		}
		l.start(ctx, m.filter, m.reason)

	case retryMsg:
		l.retry(ctx)

	case fetchDoneMsg:
		l.onFetchDone(ctx, m)

	case timerMsg:
		if m.epoch != l.epoch {
			return
		}
		l.timer = nil
		l.issue(ctx)

	default:
		l.logger.Warn("unknown loader message", "type", fmt.Sprintf("%T", m))
	}
}

// start supersedes the current session with a fresh one for filter.
func (l *Loader) start(ctx context.Context, filter domain.Filter, reason string) {
	if l.active && !l.finished() {
		l.metrics.RecordSession(l.cfg.Collection, "superseded", l.session.Loaded(), time.Since(l.started))
	}
	l.stopPending()

	l.epoch++
	l.session = NewSession(l.newID(), l.cfg.Collection, l.epoch, filter)
	l.active = true
	l.started = time.Now()

	l.logger.Info("session started",
		"session", l.session.ID,
		"epoch", l.epoch,
		"filter", filter.String(),
		"reason", reason,
	)
	l.issue(ctx)
}

// issue sends the next request for the current session.
func (l *Loader) issue(ctx context.Context) {
	s := l.session
	offset, limit := requestFor(s, l.cfg.PageSize)

	s.State = StateFetching
	s.Requests++
	l.session = s
	l.publish()

	fctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	epoch, mode, filter := l.epoch, s.Mode, s.Filter
	l.logger.Debug("fetching page",
		"session", s.ID,
		"epoch", epoch,
		"offset", offset,
		"limit", limit,
		"mode", mode.String(),
	)

	go func() {
		start := time.Now()
		page, err := l.fetcher.Fetch(fctx, filter, offset, limit)
		l.post(fetchDoneMsg{
			epoch:    epoch,
			offset:   offset,
			limit:    limit,
			mode:     mode,
			page:     page,
			err:      err,
			duration: time.Since(start),
		})
	}()
}

func (l *Loader) onFetchDone(ctx context.Context, m fetchDoneMsg) {
	if m.epoch != l.epoch {
		l.metrics.RecordStaleDiscard(l.cfg.Collection)
		l.logger.Debug("dropping response",
			"error", domain.ErrStaleResponse,
			"epoch", m.epoch,
			"current", l.epoch,
			"offset", m.offset,
		)
		return
	}
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}

	l.metrics.ObserveFetch(l.cfg.Collection, m.mode, len(m.page.Records), m.duration, m.err)

	if m.err != nil {
		l.fail(m)
		return
	}

	page := m.page
	if page.Offset < m.offset {
		// The server echoed an offset behind the one requested.
		page.Offset = m.offset
	}

	merged, stats := Merge(l.session, page)
	if page.HasMore && len(page.Records) > 0 && stats.Added == 0 {
		l.session = merged
		m.err = fmt.Errorf("%w at offset %d (%d duplicates)", domain.ErrNoProgress, m.offset, stats.Duplicates)
		l.fail(m)
		return
	}
	if stats.Duplicates > 0 {
		l.logger.Warn("skipped duplicate records",
			"session", merged.ID,
			"offset", m.offset,
			"duplicates", stats.Duplicates,
		)
	}

	decision := Decide(merged, page)
	if decision.Mode == domain.ModeBulkRemainder && merged.Mode != domain.ModeBulkRemainder {
		l.metrics.RecordEscalation(l.cfg.Collection, merged.Mode)
		l.logger.Info("escalating to bulk",
			"session", merged.ID,
			"from", merged.Mode.String(),
			"next_offset", merged.NextOffset,
			"total", merged.Total,
			"reason", decision.Reason,
		)
	}
	if decision.Escalated {
		merged.Escalated = true
	}
	merged.Mode = decision.Mode
	merged.LastErr = nil
	l.session = merged

	progress := merged.progress(domain.EventProgress)
	progress.CacheHit = page.CacheHit

	switch decision.Mode {
	case domain.ModeDone:
		l.finish(progress, decision)
	case domain.ModeBulkRemainder:
		l.publish()
		l.observer.OnProgress(progress)
		l.schedule(ctx, l.cfg.BulkDelay)
	default:
		l.publish()
		l.observer.OnProgress(progress)
		l.schedule(ctx, l.cfg.BatchDelay)
	}
}

func (l *Loader) finish(progress domain.LoadProgress, decision Decision) {
	s := l.session
	s.State = StateTerminal
	s.Complete = true
	l.session = s
	l.publish()

	if s.Loaded() != s.Total {
		l.logger.Warn("record count differs from server total",
			"session", s.ID,
			"loaded", s.Loaded(),
			"total", s.Total,
			"reason", decision.Reason,
		)
	}

	l.observer.OnProgress(progress)

	done := s.progress(domain.EventComplete)
	done.CacheHit = progress.CacheHit
	if s.Loaded() == 0 {
		done.Err = domain.ErrEmptyResult
	}

	l.metrics.RecordSession(l.cfg.Collection, "complete", s.Loaded(), time.Since(l.started))
	l.logger.Info("session complete",
		"session", s.ID,
		"epoch", s.Epoch,
		"records", s.Loaded(),
		"requests", s.Requests,
		"escalated", s.Escalated,
		"duration", time.Since(l.started),
	)
	l.observer.OnProgress(done)
}

// fail records a page failure. A failed first page fails the session;
// a failed later page stalls it with its records kept.
func (l *Loader) fail(m fetchDoneMsg) {
	s := l.session
	stage := stageFor(m.mode)
	if stage == domain.StageInitial {
		s.State = StateFailed
	} else {
		s.State = StateStalled
	}
	s.LastErr = m.err
	l.session = s
	l.publish()

	l.metrics.RecordSession(l.cfg.Collection, s.State.String(), s.Loaded(), time.Since(l.started))
	l.logger.Error("page fetch failed",
		"error", m.err,
		"session", s.ID,
		"stage", string(stage),
		"offset", m.offset,
		"limit", m.limit,
		"loaded", s.Loaded(),
	)

	p := s.progress(domain.EventError)
	p.Stage = stage
	p.Err = m.err
	l.observer.OnProgress(p)
}

func (l *Loader) retry(ctx context.Context) {
	if !l.active {
		return
	}
	switch l.session.State {
	case StateFailed, StateStalled:
		l.logger.Info("retrying",
			"session", l.session.ID,
			"state", l.session.State.String(),
			"offset", l.session.NextOffset,
		)
		l.started = time.Now()
		l.issue(ctx)
	default:
		l.logger.Debug("nothing to retry", "state", l.session.State.String())
	}
}

// schedule issues the next fetch after delay.
func (l *Loader) schedule(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		l.issue(ctx)
		return
	}

	s := l.session
	s.State = StateWaiting
	l.session = s
	l.publish()

	epoch := l.epoch
	l.timer = time.AfterFunc(delay, func() {
		l.post(timerMsg{epoch: epoch})
	})
}

// stopPending clears the wait timer and cancels the in-flight request.
func (l *Loader) stopPending() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

func (l *Loader) finished() bool {
	switch l.session.State {
	case StateTerminal, StateFailed, StateStalled:
		return true
	}
	return false
}

func (l *Loader) publish() {
	s := l.session
	l.current.Store(&s)
}
