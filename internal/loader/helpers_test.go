package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tallydash/tally/internal/domain"
)

// call is one request seen by fakeBackend.
type call struct {
	filter domain.Filter
	offset int
	limit  int
	at     time.Time
}

// fakeBackend serves `total` records per filter. Record ids are prefixed
// with the filter's department so sessions can be told apart.
type fakeBackend struct {
	mu         sync.Mutex
	total      int
	cachedFrom int                      // first call index reporting a cache hit; -1 never
	failOn     map[int]error            // call index -> failure
	gates      map[string]chan struct{} // department -> blocks until closed
	calls      []call
}

func newFakeBackend(total int) *fakeBackend {
	return &fakeBackend{
		total:      total,
		cachedFrom: -1,
		failOn:     make(map[int]error),
		gates:      make(map[string]chan struct{}),
	}
}

func (f *fakeBackend) Fetch(ctx context.Context, filter domain.Filter, offset, limit int) (domain.PageResult, error) {
	f.mu.Lock()
	idx := len(f.calls)
	f.calls = append(f.calls, call{filter: filter, offset: offset, limit: limit, at: time.Now()})
	err := f.failOn[idx]
	gate := f.gates[filter.Department]
	cached := f.cachedFrom >= 0 && idx >= f.cachedFrom
	total := f.total
	f.mu.Unlock()

	if gate != nil {
		// Ignores ctx on purpose: simulates a transport that cannot abort.
		<-gate
	}
	if err != nil {
		return domain.PageResult{}, err
	}

	end := total
	if limit != domain.LimitAll && offset+limit < total {
		end = offset + limit
	}
	var records []domain.Record
	for i := offset; i < end; i++ {
		records = append(records, makeRecord(filter.Department, i))
	}
	return domain.PageResult{
		Records:    records,
		TotalCount: total,
		HasMore:    end < total,
		Offset:     offset,
		CacheHit:   cached,
	}, nil
}

func (f *fakeBackend) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeBackend) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func makeRecord(prefix string, i int) domain.Record {
	id := fmt.Sprintf("%s%d", prefix, i)
	payload, _ := json.Marshal(map[string]any{"id": id, "name": "Employee " + id})
	return domain.Record{
		Keys:    []domain.Key{{Name: "id", Value: id}},
		Label:   "Employee " + id,
		Payload: payload,
	}
}

// recorder collects loader signals.
type recorder struct {
	mu     sync.Mutex
	events []domain.LoadProgress
}

func (r *recorder) OnProgress(p domain.LoadProgress) {
	r.mu.Lock()
	r.events = append(r.events, p)
	r.mu.Unlock()
}

func (r *recorder) Events() []domain.LoadProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.LoadProgress(nil), r.events...)
}

// last returns the most recent event of kind for epoch.
func (r *recorder) last(kind domain.EventKind, epoch uint64) (domain.LoadProgress, bool) {
	events := r.Events()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == kind && events[i].Epoch == epoch {
			return events[i], true
		}
	}
	return domain.LoadProgress{}, false
}

// fakeMetrics counts instrumentation calls.
type fakeMetrics struct {
	mu          sync.Mutex
	fetches     int
	escalations []domain.LoadMode
	stale       int
	outcomes    []string
}

func (m *fakeMetrics) ObserveFetch(string, domain.LoadMode, int, time.Duration, error) {
	m.mu.Lock()
	m.fetches++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordEscalation(_ string, from domain.LoadMode) {
	m.mu.Lock()
	m.escalations = append(m.escalations, from)
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordStaleDiscard(string) {
	m.mu.Lock()
	m.stale++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordSession(_ string, outcome string, _ int, _ time.Duration) {
	m.mu.Lock()
	m.outcomes = append(m.outcomes, outcome)
	m.mu.Unlock()
}

func (m *fakeMetrics) Stale() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stale
}

func (m *fakeMetrics) Escalations() []domain.LoadMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.LoadMode(nil), m.escalations...)
}

// startLoader runs a loader until the test ends.
func startLoader(t *testing.T, fetcher domain.PageFetcher, cfg Config, opts ...Option) (*Loader, *recorder) {
	t.Helper()
	if cfg.Collection == "" {
		cfg.Collection = "employees"
	}
	rec := &recorder{}
	l := New(fetcher, cfg, rec, nil, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l, rec
}

// waitTerminal waits for a complete or error event of epoch.
func waitTerminal(t *testing.T, rec *recorder, epoch uint64) domain.LoadProgress {
	t.Helper()
	var got domain.LoadProgress
	require.Eventually(t, func() bool {
		for _, e := range rec.Events() {
			if e.Epoch == epoch && e.Terminal() {
				got = e
				return true
			}
		}
		return false
	}, 5*time.Second, 2*time.Millisecond)
	return got
}

// waitEvent waits for the n-th event (1-based) of kind for epoch.
func waitEvent(t *testing.T, rec *recorder, epoch uint64, kind domain.EventKind, n int) domain.LoadProgress {
	t.Helper()
	var got domain.LoadProgress
	require.Eventually(t, func() bool {
		seen := 0
		for _, e := range rec.Events() {
			if e.Epoch == epoch && e.Kind == kind {
				seen++
				if seen == n {
					got = e
					return true
				}
			}
		}
		return false
	}, 5*time.Second, 2*time.Millisecond)
	return got
}

func offsets(calls []call) []int {
	out := make([]int, len(calls))
	for i, c := range calls {
		out[i] = c.offset
	}
	return out
}

func limits(calls []call) []int {
	out := make([]int, len(calls))
	for i, c := range calls {
		out[i] = c.limit
	}
	return out
}

func assertNoDuplicates(t *testing.T, records []domain.Record) {
	t.Helper()
	seen := make(map[string]int)
	for i, r := range records {
		for _, id := range r.Identity() {
			if prev, ok := seen[id]; ok {
				t.Fatalf("records %d and %d share identity key %s", prev, i, id)
			}
			seen[id] = i
		}
	}
}

func allPrefixed(records []domain.Record, prefix string) bool {
	for _, r := range records {
		if !strings.HasPrefix(r.Keys[0].Value, prefix) {
			return false
		}
	}
	return true
}
