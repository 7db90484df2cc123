package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tallydash/tally/internal/domain"
	"github.com/tallydash/tally/internal/events"
)

const testDelay = 20 * time.Millisecond

func trickleConfig() Config {
	return Config{PageSize: 30, BatchDelay: testDelay}
}

func TestLoader_UncachedTrickles(t *testing.T) {
	backend := newFakeBackend(130)
	l, rec := startLoader(t, backend, trickleConfig())

	require.NoError(t, l.SetFilter(domain.Filter{}))
	done := waitEvent(t, rec, 1, domain.EventComplete, 1)

	assert.Equal(t, 130, done.Loaded)
	assert.Equal(t, 130, done.Total)
	assert.NoError(t, done.Err)

	calls := backend.Calls()
	assert.Equal(t, []int{0, 30, 60, 90, 120}, offsets(calls))
	assert.Equal(t, []int{30, 30, 30, 30, 30}, limits(calls))
	for i := 1; i < len(calls); i++ {
		gap := calls[i].at.Sub(calls[i-1].at)
		assert.GreaterOrEqual(t, gap, testDelay, "batch %d issued too early", i)
	}

	s, ok := l.Session()
	require.True(t, ok)
	assert.Equal(t, StateTerminal, s.State)
	assert.True(t, s.Complete)
	assert.False(t, s.Escalated)
	assert.Equal(t, 5, s.Requests)
	assertNoDuplicates(t, s.Records)
}

func TestLoader_CachedFirstPageFetchesRemainderInBulk(t *testing.T) {
	backend := newFakeBackend(130)
	backend.cachedFrom = 0
	metrics := &fakeMetrics{}
	l, rec := startLoader(t, backend, trickleConfig(), WithMetrics(metrics))

	require.NoError(t, l.SetFilter(domain.Filter{}))
	done := waitEvent(t, rec, 1, domain.EventComplete, 1)
	assert.Equal(t, 130, done.Loaded)

	calls := backend.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, 0, calls[0].offset)
	assert.Equal(t, 30, calls[0].limit)
	assert.Equal(t, 30, calls[1].offset)
	assert.Equal(t, domain.LimitAll, calls[1].limit)

	assert.Equal(t, []domain.LoadMode{domain.ModeInitial}, metrics.Escalations())

	s, _ := l.Session()
	assert.False(t, s.Escalated, "initial bulk decision is not a mid-flight escalation")
	assert.Equal(t, domain.ModeDone, s.Mode)
}

func TestLoader_CachedSinglePageNeedsNoBulk(t *testing.T) {
	backend := newFakeBackend(20)
	backend.cachedFrom = 0
	l, rec := startLoader(t, backend, trickleConfig())

	require.NoError(t, l.SetFilter(domain.Filter{}))
	done := waitEvent(t, rec, 1, domain.EventComplete, 1)

	assert.Equal(t, 20, done.Loaded)
	assert.Equal(t, 1, backend.CallCount())
}

func TestLoader_EscalatesMidFlightOnce(t *testing.T) {
	backend := newFakeBackend(130)
	backend.cachedFrom = 2
	metrics := &fakeMetrics{}
	l, rec := startLoader(t, backend, trickleConfig(), WithMetrics(metrics))

	require.NoError(t, l.SetFilter(domain.Filter{}))
	done := waitEvent(t, rec, 1, domain.EventComplete, 1)
	assert.Equal(t, 130, done.Loaded)

	calls := backend.Calls()
	assert.Equal(t, []int{0, 30, 60, 90}, offsets(calls))
	assert.Equal(t, []int{30, 30, 30, domain.LimitAll}, limits(calls))
	assert.Equal(t, []domain.LoadMode{domain.ModeTrickle}, metrics.Escalations())

	s, _ := l.Session()
	assert.True(t, s.Escalated)
	assertNoDuplicates(t, s.Records)
}

func TestLoader_SeventyFiveRecords(t *testing.T) {
	backend := newFakeBackend(75)
	l, rec := startLoader(t, backend, trickleConfig())

	require.NoError(t, l.SetFilter(domain.Filter{TimePeriod: domain.PeriodLast6Months}))
	waitEvent(t, rec, 1, domain.EventComplete, 1)

	assert.Equal(t, []int{0, 30, 60}, offsets(backend.Calls()))

	var loaded []int
	for _, e := range rec.Events() {
		if e.Kind == domain.EventProgress {
			loaded = append(loaded, e.Loaded)
			assert.Equal(t, 75, e.Total)
		}
	}
	assert.Equal(t, []int{30, 60, 75}, loaded)

	s, _ := l.Session()
	assert.Equal(t, 75, s.Loaded())
	assert.Equal(t, domain.PeriodLast6Months, s.Filter.TimePeriod)
}

func TestLoader_OffsetsAreMonotonic(t *testing.T) {
	backend := newFakeBackend(200)
	backend.cachedFrom = 4
	l, rec := startLoader(t, backend, Config{PageSize: 25, BatchDelay: time.Millisecond})

	require.NoError(t, l.SetFilter(domain.Filter{}))
	waitEvent(t, rec, 1, domain.EventComplete, 1)

	calls := backend.Calls()
	expected := 0
	for i, c := range calls {
		assert.Equal(t, expected, c.offset, "call %d", i)
		expected += 25
	}

	s, _ := l.Session()
	assert.Equal(t, 200, s.NextOffset)
	assert.Equal(t, 200, s.Loaded())
}

func TestLoader_PartialFailureStallsAndRetryResumes(t *testing.T) {
	backend := newFakeBackend(130)
	backend.failOn[2] = &domain.TransportError{URL: "http://backend", Err: errors.New("connection reset")}
	metrics := &fakeMetrics{}
	l, rec := startLoader(t, backend, trickleConfig(), WithMetrics(metrics))

	require.NoError(t, l.SetFilter(domain.Filter{}))
	failure := waitEvent(t, rec, 1, domain.EventError, 1)

	assert.Equal(t, domain.StageTrickle, failure.Stage)
	assert.Equal(t, 60, failure.Loaded)
	var transportErr *domain.TransportError
	assert.ErrorAs(t, failure.Err, &transportErr)

	s, _ := l.Session()
	assert.Equal(t, StateStalled, s.State)
	assert.False(t, s.Complete)
	assert.Equal(t, 60, s.Loaded())

	// No automatic retry.
	time.Sleep(5 * testDelay)
	assert.Equal(t, 3, backend.CallCount())

	l.Retry()
	done := waitEvent(t, rec, 1, domain.EventComplete, 1)
	assert.Equal(t, 130, done.Loaded)
	assert.Equal(t, []int{0, 30, 60, 60, 90, 120}, offsets(backend.Calls()))

	s, _ = l.Session()
	assert.NoError(t, s.LastErr)
	assertNoDuplicates(t, s.Records)
}

func TestLoader_BulkFailureRetriesBulk(t *testing.T) {
	backend := newFakeBackend(130)
	backend.cachedFrom = 0
	backend.failOn[1] = &domain.ServerError{StatusCode: 503, Message: "unavailable"}
	l, rec := startLoader(t, backend, trickleConfig())

	require.NoError(t, l.SetFilter(domain.Filter{}))
	failure := waitEvent(t, rec, 1, domain.EventError, 1)
	assert.Equal(t, domain.StageBulk, failure.Stage)
	assert.Equal(t, 30, failure.Loaded)

	l.Retry()
	waitEvent(t, rec, 1, domain.EventComplete, 1)

	calls := backend.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, 30, calls[2].offset)
	assert.Equal(t, domain.LimitAll, calls[2].limit)
}

func TestLoader_InitialFailure(t *testing.T) {
	backend := newFakeBackend(130)
	backend.failOn[0] = &domain.ServerError{StatusCode: 500, Message: "boom"}
	l, rec := startLoader(t, backend, trickleConfig())

	require.NoError(t, l.SetFilter(domain.Filter{}))
	failure := waitEvent(t, rec, 1, domain.EventError, 1)

	assert.Equal(t, domain.StageInitial, failure.Stage)
	assert.Equal(t, 0, failure.Loaded)

	s, _ := l.Session()
	assert.Equal(t, StateFailed, s.State)
	assert.Empty(t, s.Records)

	l.Retry()
	done := waitEvent(t, rec, 1, domain.EventComplete, 1)
	assert.Equal(t, 130, done.Loaded)
}

func TestLoader_RetryIgnoredWhenHealthy(t *testing.T) {
	backend := newFakeBackend(10)
	l, rec := startLoader(t, backend, trickleConfig())

	require.NoError(t, l.SetFilter(domain.Filter{}))
	waitEvent(t, rec, 1, domain.EventComplete, 1)

	l.Retry()
	time.Sleep(3 * testDelay)
	assert.Equal(t, 1, backend.CallCount())
}

func TestLoader_FilterChangeDiscardsStaleResponse(t *testing.T) {
	backend := newFakeBackend(40)
	gate := make(chan struct{})
	backend.gates["sales"] = gate
	metrics := &fakeMetrics{}
	l, rec := startLoader(t, backend, trickleConfig(), WithMetrics(metrics))

	require.NoError(t, l.SetFilter(domain.Filter{Department: "sales"}))
	require.Eventually(t, func() bool { return backend.CallCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, l.SetFilter(domain.Filter{Department: "ops"}))
	done := waitEvent(t, rec, 2, domain.EventComplete, 1)
	assert.Equal(t, 40, done.Loaded)

	// The superseded request now completes and must be dropped.
	close(gate)
	require.Eventually(t, func() bool { return metrics.Stale() == 1 }, time.Second, time.Millisecond)

	s, _ := l.Session()
	assert.Equal(t, uint64(2), s.Epoch)
	assert.Equal(t, "ops", s.Filter.Department)
	assert.True(t, allPrefixed(s.Records, "ops"))
	assert.Equal(t, 40, s.Loaded())

	for _, e := range rec.Events() {
		assert.NotEqual(t, uint64(1), e.Epoch, "superseded session emitted %s", e.Kind)
	}
}

func TestLoader_FilterChangeCancelsPendingBatch(t *testing.T) {
	backend := newFakeBackend(130)
	l, rec := startLoader(t, backend, Config{PageSize: 30, BatchDelay: time.Hour})

	require.NoError(t, l.SetFilter(domain.Filter{Department: "sales"}))
	waitEvent(t, rec, 1, domain.EventProgress, 1)

	require.NoError(t, l.SetFilter(domain.Filter{Department: "ops"}))
	waitEvent(t, rec, 2, domain.EventProgress, 1)

	calls := backend.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "sales", calls[0].filter.Department)
	assert.Equal(t, "ops", calls[1].filter.Department)
	assert.Equal(t, 0, calls[1].offset)
}

func TestLoader_SameFilterIsIgnored(t *testing.T) {
	backend := newFakeBackend(10)
	l, rec := startLoader(t, backend, trickleConfig())

	f := domain.Filter{TimePeriod: domain.PeriodThisMonth}
	require.NoError(t, l.SetFilter(f))
	waitEvent(t, rec, 1, domain.EventComplete, 1)

	require.NoError(t, l.SetFilter(f))
	time.Sleep(3 * testDelay)

	assert.Equal(t, 1, backend.CallCount())
	s, _ := l.Session()
	assert.Equal(t, uint64(1), s.Epoch)
}

func TestLoader_InvalidFilterRejected(t *testing.T) {
	backend := newFakeBackend(10)
	l, _ := startLoader(t, backend, trickleConfig())

	err := l.SetFilter(domain.Filter{TimePeriod: domain.PeriodCustomMonth})
	require.Error(t, err)

	time.Sleep(testDelay)
	assert.Equal(t, 0, backend.CallCount())
	_, ok := l.Session()
	assert.False(t, ok)
}

func TestLoader_RefreshRestartsFromZero(t *testing.T) {
	backend := newFakeBackend(50)
	l, rec := startLoader(t, backend, trickleConfig())

	require.NoError(t, l.SetFilter(domain.Filter{}))
	waitEvent(t, rec, 1, domain.EventComplete, 1)

	l.Refresh()
	done := waitEvent(t, rec, 2, domain.EventComplete, 1)
	assert.Equal(t, 50, done.Loaded)
	assert.Equal(t, []int{0, 30, 0, 30}, offsets(backend.Calls()))
}

func TestLoader_DataChangedRestartsSession(t *testing.T) {
	backend := newFakeBackend(10)
	bus := events.NewBus(nil)
	sub := bus.Subscribe(4)
	defer sub.Close()

	l, rec := startLoader(t, backend, Config{Collection: "employees", PageSize: 30}, WithDataChanges(sub))

	require.NoError(t, l.SetFilter(domain.Filter{}))
	waitEvent(t, rec, 1, domain.EventComplete, 1)

	bus.Publish(events.DataChanged{Collection: "attendance", Reason: "import"})
	time.Sleep(3 * testDelay)
	assert.Equal(t, 1, backend.CallCount(), "other collection must not restart")

	bus.Publish(events.DataChanged{Collection: "employees", Reason: "record edited"})
	waitEvent(t, rec, 2, domain.EventComplete, 1)
	assert.Equal(t, 2, backend.CallCount())
}

func TestLoader_EmptyResult(t *testing.T) {
	backend := newFakeBackend(0)
	l, rec := startLoader(t, backend, trickleConfig())

	require.NoError(t, l.SetFilter(domain.Filter{}))
	done := waitEvent(t, rec, 1, domain.EventComplete, 1)

	assert.ErrorIs(t, done.Err, domain.ErrEmptyResult)
	assert.Equal(t, 0, done.Loaded)
	s, _ := l.Session()
	assert.Equal(t, StateTerminal, s.State)
}

func TestLoader_DuplicatesAcrossPagesAreDropped(t *testing.T) {
	// A record inserted server-side between requests shifts page two back by five.
	pages := map[int]struct {
		from, to int
		hasMore  bool
	}{
		0:  {0, 30, true},
		30: {25, 55, true},
		60: {55, 60, false},
	}
	fetcher := domain.FetcherFunc(func(_ context.Context, _ domain.Filter, offset, _ int) (domain.PageResult, error) {
		p, ok := pages[offset]
		if !ok {
			return domain.PageResult{}, fmt.Errorf("unexpected offset %d", offset)
		}
		var records []domain.Record
		for i := p.from; i < p.to; i++ {
			records = append(records, makeRecord("", i))
		}
		return domain.PageResult{Records: records, TotalCount: 60, HasMore: p.hasMore, Offset: offset}, nil
	})
	l, rec := startLoader(t, fetcher, Config{PageSize: 30, BatchDelay: time.Millisecond})

	require.NoError(t, l.SetFilter(domain.Filter{}))
	done := waitEvent(t, rec, 1, domain.EventComplete, 1)
	assert.Equal(t, 60, done.Loaded)

	s, _ := l.Session()
	assert.Equal(t, 5, s.Duplicates)
	assertNoDuplicates(t, s.Records)
}

func TestLoader_LaggingEchoedOffsetStillAdvances(t *testing.T) {
	// Serves the requested slice but always reports offset 0.
	fetcher := domain.FetcherFunc(func(_ context.Context, _ domain.Filter, offset, limit int) (domain.PageResult, error) {
		var records []domain.Record
		for i := offset; i < offset+limit && i < 90; i++ {
			records = append(records, makeRecord("", i))
		}
		return domain.PageResult{Records: records, TotalCount: 90, HasMore: offset+limit < 90}, nil
	})
	var seen []int
	var mu sync.Mutex
	recording := domain.FetcherFunc(func(ctx context.Context, f domain.Filter, offset, limit int) (domain.PageResult, error) {
		mu.Lock()
		seen = append(seen, offset)
		mu.Unlock()
		return fetcher(ctx, f, offset, limit)
	})
	l, rec := startLoader(t, recording, Config{PageSize: 30, BatchDelay: time.Millisecond})

	require.NoError(t, l.SetFilter(domain.Filter{}))
	done := waitEvent(t, rec, 1, domain.EventComplete, 1)

	assert.Equal(t, 90, done.Loaded)
	mu.Lock()
	assert.Equal(t, []int{0, 30, 60}, seen)
	mu.Unlock()
}

func TestLoader_RepeatedTricklePageStalls(t *testing.T) {
	// Returns the first page whatever offset is asked for.
	var calls atomic.Int32
	fetcher := domain.FetcherFunc(func(_ context.Context, _ domain.Filter, _, _ int) (domain.PageResult, error) {
		calls.Add(1)
		var records []domain.Record
		for i := 0; i < 30; i++ {
			records = append(records, makeRecord("", i))
		}
		return domain.PageResult{Records: records, TotalCount: 90, HasMore: true}, nil
	})
	l, rec := startLoader(t, fetcher, Config{PageSize: 30, BatchDelay: time.Millisecond})

	require.NoError(t, l.SetFilter(domain.Filter{}))
	failure := waitEvent(t, rec, 1, domain.EventError, 1)

	assert.ErrorIs(t, failure.Err, domain.ErrNoProgress)
	assert.Equal(t, domain.StageTrickle, failure.Stage)
	assert.Equal(t, 30, failure.Loaded)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load(), "no request after the stall")

	s, _ := l.Session()
	assert.Equal(t, StateStalled, s.State)
	assert.Equal(t, 60, s.NextOffset)
	assertNoDuplicates(t, s.Records)
}

func TestLoader_RepeatedBulkReplyStalls(t *testing.T) {
	// Bulk replies resend the whole set from 0 and still claim more.
	var calls atomic.Int32
	fetcher := domain.FetcherFunc(func(_ context.Context, _ domain.Filter, offset, limit int) (domain.PageResult, error) {
		calls.Add(1)
		from, to := offset, offset+limit
		if limit == domain.LimitAll {
			from, to = 0, 50
		}
		var records []domain.Record
		for i := from; i < to; i++ {
			records = append(records, makeRecord("", i))
		}
		return domain.PageResult{Records: records, TotalCount: 50, HasMore: true, CacheHit: true}, nil
	})
	l, rec := startLoader(t, fetcher, Config{PageSize: 30, BatchDelay: time.Millisecond})

	require.NoError(t, l.SetFilter(domain.Filter{}))
	failure := waitEvent(t, rec, 1, domain.EventError, 1)

	assert.ErrorIs(t, failure.Err, domain.ErrNoProgress)
	assert.Equal(t, domain.StageBulk, failure.Stage)
	assert.Equal(t, 50, failure.Loaded)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(3), calls.Load(), "page, bulk, repeated bulk")

	s, _ := l.Session()
	assert.Equal(t, StateStalled, s.State)
	assertNoDuplicates(t, s.Records)
}

func TestLoader_RunTwice(t *testing.T) {
	l, _ := startLoader(t, newFakeBackend(1), trickleConfig())
	require.Eventually(t, func() bool { return l.running.Load() }, time.Second, time.Millisecond)

	err := l.Run(context.Background())
	assert.Error(t, err)
}
