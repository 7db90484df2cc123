package domain

import "time"

// Snapshot is the complete record set of a finished load session.
type Snapshot struct {
	Collection string    `json:"collection"`
	Filter     Filter    `json:"filter"`
	Records    []Record  `json:"records"`
	Total      int       `json:"total"`
	SavedAt    time.Time `json:"saved_at"`
}

// SnapshotInfo describes a stored snapshot without its records.
type SnapshotInfo struct {
	Collection string    `json:"collection" yaml:"collection"`
	Signature  string    `json:"signature" yaml:"signature"`
	Filter     Filter    `json:"filter" yaml:"filter"`
	Count      int       `json:"count" yaml:"count"`
	SavedAt    time.Time `json:"saved_at" yaml:"saved_at"`
}

// SnapshotStore persists complete record sets keyed by collection and
// filter signature.
// Keys encode ancestry (coll:X:filter:Y) for invalidation via prefix deletion.
type SnapshotStore interface {
	GetSnapshot(collection string, filter Filter) (Snapshot, bool)
	SaveSnapshot(snap Snapshot) error
	ListSnapshots(collection string) ([]SnapshotInfo, error)

	InvalidateCollection(collection string) // Wipes every filter of a collection
	InvalidateAll()

	Close() error
}
