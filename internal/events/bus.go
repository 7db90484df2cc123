// Package events carries data-change notifications between the components
// that mutate backend data (uploads, edits) and the loaders that must
// restart when it happens.
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DataChanged announces that a collection's backend data changed.
// An empty Collection means every collection.
type DataChanged struct {
	Collection string
	Reason     string // e.g. "upload", "manual"
	Source     string // publisher id; empty for anonymous publishers
	At         time.Time
}

// Affects reports whether the notification concerns collection.
func (e DataChanged) Affects(collection string) bool {
	return e.Collection == "" || e.Collection == collection
}

// Bus fans DataChanged notifications out to subscribers.
// Publish never blocks: a subscriber whose buffer is full misses the
// notification and the drop is counted.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	dropped atomic.Int64
	logger  *slog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{subs: make(map[*Subscription]struct{}), logger: logger}
}

// Subscription is one receiver registered on a Bus.
type Subscription struct {
	C <-chan DataChanged

	ch   chan DataChanged
	bus  *Bus
	once sync.Once
}

// Subscribe registers a receiver with the given buffer size.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan DataChanged, buffer)
	sub := &Subscription{C: ch, ch: ch, bus: b}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()

	b.logger.Debug("event subscriber added", "subscribers", count)
	return sub
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		close(s.ch)
		s.bus.mu.Unlock()
	})
}

// Publish delivers ev to every subscriber and returns how many received it.
func (b *Bus) Publish(ev DataChanged) int {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	sent := 0
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
			sent++
		default:
			b.dropped.Add(1)
		}
	}

	b.logger.Info("data changed published",
		"collection", ev.Collection,
		"reason", ev.Reason,
		"delivered", sent,
		"subscribers", len(b.subs),
	)
	return sent
}

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
