// Package search finds records among those already loaded.
package search

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"
	sfuzzy "github.com/sahilm/fuzzy"
	"github.com/tallydash/tally/internal/domain"
	"github.com/tidwall/gjson"
)

// Result is a matched record with match metadata for highlighting.
type Result struct {
	Record         domain.Record
	MatchedIndexes []int // Character positions in the label that matched
	Score          int   // Higher is better
}

// Index implements sahilm/fuzzy.Source over record labels.
type Index struct {
	mu          sync.RWMutex
	records     []domain.Record
	lowerLabels []string // Pre-computed lowercase labels
	indexed     map[string]bool
	logger      *slog.Logger
}

// NewIndex creates an empty index.
func NewIndex(logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{indexed: make(map[string]bool), logger: logger}
}

// String returns the lowercase label at index i (implements fuzzy.Source).
// Callers hold the read lock.
func (idx *Index) String(i int) string { return idx.lowerLabels[i] }

// Len returns the number of indexed records (implements fuzzy.Source).
func (idx *Index) Len() int { return len(idx.lowerLabels) }

// Add indexes records, skipping any whose identity is already indexed.
func (idx *Index) Add(records []domain.Record) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	added := 0
	for _, rec := range records {
		ids := rec.Identity()
		if len(ids) == 0 {
			ids = []string{domain.ContentKey(rec.Payload).String()}
		}
		if anyIndexed(idx.indexed, ids) {
			continue
		}
		for _, id := range ids {
			idx.indexed[id] = true
		}
		idx.records = append(idx.records, rec)
		idx.lowerLabels = append(idx.lowerLabels, strings.ToLower(rec.Label))
		added++
	}

	idx.logger.Debug("indexed records", "added", added, "skipped", len(records)-added, "total", len(idx.records))
}

// Reset empties the index.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.records = nil
	idx.lowerLabels = nil
	idx.indexed = make(map[string]bool)
}

// Count returns the number of indexed records.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.records)
}

// Find ranks indexed records by how well their label matches query.
func (idx *Index) Find(query string) []Result {
	query = strings.TrimSpace(query)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if query == "" || len(idx.records) == 0 {
		return nil
	}

	matches := sfuzzy.FindFrom(strings.ToLower(query), idx)
	results := make([]Result, len(matches))
	for i, m := range matches {
		results[i] = Result{
			Record:         idx.records[m.Index],
			MatchedIndexes: m.MatchedIndexes,
			Score:          m.Score,
		}
	}
	return results
}

// Find ranks records by label without keeping an index.
func Find(records []domain.Record, query string) []Result {
	idx := NewIndex(slog.New(slog.DiscardHandler))
	idx.Add(records)
	return idx.Find(query)
}

// Where keeps records whose payload field fuzzily contains value, ignoring
// case and diacritics. field is a gjson path.
func Where(records []domain.Record, field, value string) []domain.Record {
	value = strings.TrimSpace(value)
	if field == "" || value == "" {
		return records
	}

	var out []domain.Record
	for _, rec := range records {
		got := gjson.GetBytes(rec.Payload, field)
		if !got.Exists() {
			continue
		}
		if fuzzy.MatchNormalizedFold(value, got.String()) {
			out = append(out, rec)
		}
	}
	return out
}

// ParseWhere splits a "field=value" expression.
func ParseWhere(expr string) (field, value string, ok bool) {
	field, value, ok = strings.Cut(expr, "=")
	field = strings.TrimSpace(field)
	if !ok || field == "" {
		return "", "", false
	}
	return field, strings.TrimSpace(value), true
}

func anyIndexed(indexed map[string]bool, ids []string) bool {
	for _, id := range ids {
		if indexed[id] {
			return true
		}
	}
	return false
}
