package loader

import "github.com/tallydash/tally/internal/domain"

// MergeStats describes what a merge did with an incoming page.
type MergeStats struct {
	Added      int
	Duplicates int
}

// Merge folds page into s and returns the new session.
//
// A record is appended only if none of its identity keys is already
// present; otherwise it is dropped (first write wins). The input session
// is not modified. NextOffset advances by the number of records the server
// returned, duplicates included, so it keeps tracking server positions.
func Merge(s Session, page domain.PageResult) (Session, MergeStats) {
	var stats MergeStats

	next := s
	next.Records = make([]domain.Record, len(s.Records), len(s.Records)+len(page.Records))
	copy(next.Records, s.Records)
	next.seen = make(map[string]struct{}, len(s.seen)+2*len(page.Records))
	for k := range s.seen {
		next.seen[k] = struct{}{}
	}

	for _, rec := range page.Records {
		ids := rec.Identity()
		if len(ids) == 0 {
			rec.Keys = append(rec.Keys[:len(rec.Keys):len(rec.Keys)], domain.ContentKey(rec.Payload))
			ids = rec.Identity()
		}
		if anySeen(next.seen, ids) {
			stats.Duplicates++
			continue
		}
		for _, id := range ids {
			next.seen[id] = struct{}{}
		}
		next.Records = append(next.Records, rec)
		stats.Added++
	}

	if end := page.Offset + len(page.Records); end > next.NextOffset {
		next.NextOffset = end
	}
	next.Total = page.TotalCount
	next.Complete = !page.HasMore
	next.Duplicates += stats.Duplicates

	return next, stats
}

func anySeen(seen map[string]struct{}, ids []string) bool {
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return true
		}
	}
	return false
}
