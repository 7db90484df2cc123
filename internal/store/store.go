package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tallydash/tally/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketSnapshots = []byte("snapshots")
	bucketMeta      = []byte("meta")
)

var buckets = [][]byte{bucketSnapshots, bucketMeta}

// snapshotMeta is stored next to each snapshot so listings don't decode records.
type snapshotMeta struct {
	Collection string        `json:"collection"`
	Signature  string        `json:"signature"`
	Filter     domain.Filter `json:"filter"`
	Count      int           `json:"count"`
	SavedAt    time.Time     `json:"saved_at"`
}

// SnapshotStore implements domain.SnapshotStore using BoltDB.
type SnapshotStore struct {
	db *bolt.DB
	mu sync.RWMutex // Protects memory cache

	// In-memory cache for hot-path reads (promoted on access)
	cache map[string][]byte
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore opens the store under baseCacheDir, one database per
// server. An empty baseCacheDir keeps everything in memory.
func NewSnapshotStore(baseCacheDir, serverURL string) (*SnapshotStore, error) {
	if baseCacheDir == "" {
		// Memory-only mode (no persistence)
		return &SnapshotStore{cache: make(map[string][]byte)}, nil
	}

	dir := baseCacheDir
	if serverURL != "" {
		dir = filepath.Join(baseCacheDir, hashServerURL(serverURL))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "tally.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SnapshotStore{db: db, cache: make(map[string][]byte)}, nil
}

func hashServerURL(serverURL string) string {
	normalized := strings.TrimRight(strings.ToLower(serverURL), "/")
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:6])
}

// snapshotKey is coll:{collection}:filter:{signature}.
func snapshotKey(collection, signature string) string {
	return collectionPrefix(collection) + "filter:" + signature
}

func collectionPrefix(collection string) string {
	return "coll:" + collection + ":"
}

func (s *SnapshotStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Persistent reports whether snapshots survive a restart.
func (s *SnapshotStore) Persistent() bool { return s.db != nil }

// === Generic helpers ===

func (s *SnapshotStore) get(bucket []byte, key string, dest interface{}) bool {
	cacheKey := string(bucket) + ":" + key

	// Check memory cache first
	s.mu.RLock()
	if data, ok := s.cache[cacheKey]; ok {
		s.mu.RUnlock()
		return json.Unmarshal(data, dest) == nil
	}
	s.mu.RUnlock()

	if s.db == nil {
		return false
	}

	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})

	if data == nil {
		return false
	}

	// Promote to memory cache
	s.mu.Lock()
	s.cache[cacheKey] = data
	s.mu.Unlock()

	return json.Unmarshal(data, dest) == nil
}

// entry is one value to write into a bucket.
type entry struct {
	bucket []byte
	key    string
	value  interface{}
}

// set writes entries in one bolt transaction, then updates the memory cache.
func (s *SnapshotStore) set(entries ...entry) error {
	encoded := make([][]byte, len(entries))
	for i, e := range entries {
		data, err := json.Marshal(e.value)
		if err != nil {
			return err
		}
		encoded[i] = data
	}

	if s.db != nil {
		err := s.db.Update(func(tx *bolt.Tx) error {
			for i, e := range entries {
				if err := tx.Bucket(e.bucket).Put([]byte(e.key), encoded[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	for i, e := range entries {
		s.cache[string(e.bucket)+":"+e.key] = encoded[i]
	}
	s.mu.Unlock()
	return nil
}

func (s *SnapshotStore) deletePrefix(bucket []byte, prefix string) {
	// Clear from memory cache
	s.mu.Lock()
	cachePrefix := string(bucket) + ":" + prefix
	for k := range s.cache {
		if strings.HasPrefix(k, cachePrefix) {
			delete(s.cache, k)
		}
	}
	s.mu.Unlock()

	if s.db == nil {
		return
	}

	// Delete from BoltDB using prefix scan
	s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		return deleteKeys(b, keys)
	})
}

// === Snapshots ===

func (s *SnapshotStore) GetSnapshot(collection string, filter domain.Filter) (domain.Snapshot, bool) {
	var snap domain.Snapshot
	ok := s.get(bucketSnapshots, snapshotKey(collection, filter.Signature()), &snap)
	return snap, ok
}

// SaveSnapshot stores snap, replacing any snapshot for the same collection
// and filter.
func (s *SnapshotStore) SaveSnapshot(snap domain.Snapshot) error {
	if snap.Collection == "" {
		return fmt.Errorf("snapshot has no collection")
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now()
	}

	sig := snap.Filter.Signature()
	key := snapshotKey(snap.Collection, sig)
	meta := snapshotMeta{
		Collection: snap.Collection,
		Signature:  sig,
		Filter:     snap.Filter,
		Count:      len(snap.Records),
		SavedAt:    snap.SavedAt,
	}

	return s.set(
		entry{bucket: bucketSnapshots, key: key, value: snap},
		entry{bucket: bucketMeta, key: key, value: meta},
	)
}

// ListSnapshots describes stored snapshots, newest first. An empty
// collection lists every collection.
func (s *SnapshotStore) ListSnapshots(collection string) ([]domain.SnapshotInfo, error) {
	prefix := "coll:"
	if collection != "" {
		prefix = collectionPrefix(collection)
	}

	var raw [][]byte
	if s.db == nil {
		cachePrefix := string(bucketMeta) + ":" + prefix
		s.mu.RLock()
		for k, v := range s.cache {
			if strings.HasPrefix(k, cachePrefix) {
				raw = append(raw, v)
			}
		}
		s.mu.RUnlock()
	} else {
		err := s.db.View(func(tx *bolt.Tx) error {
			c := tx.Bucket(bucketMeta).Cursor()
			p := []byte(prefix)
			for k, v := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
				data := make([]byte, len(v))
				copy(data, v)
				raw = append(raw, data)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list snapshots: %w", err)
		}
	}

	infos := make([]domain.SnapshotInfo, 0, len(raw))
	for _, data := range raw {
		var meta snapshotMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot metadata: %w", err)
		}
		infos = append(infos, domain.SnapshotInfo{
			Collection: meta.Collection,
			Signature:  meta.Signature,
			Filter:     meta.Filter,
			Count:      meta.Count,
			SavedAt:    meta.SavedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].SavedAt.After(infos[j].SavedAt) })
	return infos, nil
}

// === Cascade Invalidation (prefix deletion) ===

// InvalidateCollection wipes every snapshot of a collection
func (s *SnapshotStore) InvalidateCollection(collection string) {
	prefix := collectionPrefix(collection)
	s.deletePrefix(bucketSnapshots, prefix)
	s.deletePrefix(bucketMeta, prefix)
}

func (s *SnapshotStore) InvalidateAll() {
	s.mu.Lock()
	s.cache = make(map[string][]byte)
	s.mu.Unlock()

	if s.db == nil {
		return
	}

	s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range buckets {
			b := tx.Bucket(bucket)
			if b == nil {
				continue
			}
			var keys [][]byte
			b.ForEach(func(k, _ []byte) error {
				keys = append(keys, append([]byte(nil), k...))
				return nil
			})
			if err := deleteKeys(b, keys); err != nil {
				return err
			}
		}
		return nil
	})
}

// deleteKeys removes keys collected beforehand; deleting under a live
// cursor skips entries.
func deleteKeys(b *bolt.Bucket, keys [][]byte) error {
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
