package collection

import (
	"fmt"

	"github.com/tallydash/tally/internal/domain"
)

// Queries provides synchronous, store-only reads.
type Queries struct {
	store domain.SnapshotStore
}

// NewQueries creates a new Queries instance.
func NewQueries(store domain.SnapshotStore) *Queries {
	return &Queries{store: store}
}

// GetSnapshot returns the last complete result for a collection and filter.
func (q *Queries) GetSnapshot(name string, filter domain.Filter) (domain.Snapshot, error) {
	snap, ok := q.store.GetSnapshot(name, filter)
	if !ok {
		return domain.Snapshot{}, fmt.Errorf("%w: %s %s", domain.ErrSnapshotNotFound, name, filter.String())
	}
	return snap, nil
}

// ListSnapshots describes stored snapshots, newest first. An empty name
// lists every collection.
func (q *Queries) ListSnapshots(name string) ([]domain.SnapshotInfo, error) {
	return q.store.ListSnapshots(name)
}
