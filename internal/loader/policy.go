package loader

import "github.com/tallydash/tally/internal/domain"

// Decision is the escalation policy's verdict for the rest of a session.
type Decision struct {
	Mode      domain.LoadMode
	Escalated bool   // trickle switched to bulk on this page
	Reason    string // short explanation for logs
}

// Decide picks the loading mode after page has been merged into s.
//
// s.Mode is the mode the page was fetched under. A cached first page with
// records remaining escalates to one bulk fetch; an uncached one trickles.
// A trickle batch that reports a cache hit escalates to bulk, at most once.
// Bulk never reverts to trickle.
func Decide(s Session, page domain.PageResult) Decision {
	if !page.HasMore {
		return Decision{Mode: domain.ModeDone, Reason: "no more records"}
	}
	if len(page.Records) == 0 {
		return Decision{Mode: domain.ModeDone, Reason: "empty page reported has_more"}
	}

	remaining := s.Total - s.NextOffset

	switch s.Mode {
	case domain.ModeInitial:
		if page.CacheHit && remaining > 0 {
			return Decision{Mode: domain.ModeBulkRemainder, Reason: "first page served from cache"}
		}
		return Decision{Mode: domain.ModeTrickle, Reason: "first page computed fresh"}

	case domain.ModeTrickle:
		if page.CacheHit && remaining > 0 && !s.Escalated {
			return Decision{Mode: domain.ModeBulkRemainder, Escalated: true, Reason: "cache warmed mid-flight"}
		}
		return Decision{Mode: domain.ModeTrickle, Reason: "continue batches"}

	case domain.ModeBulkRemainder:
		return Decision{Mode: domain.ModeBulkRemainder, Reason: "bulk response was capped"}

	default:
		return Decision{Mode: domain.ModeDone, Reason: "session already done"}
	}
}

// requestFor returns the offset and limit of the next fetch for s.
func requestFor(s Session, pageSize int) (offset, limit int) {
	if s.Mode == domain.ModeBulkRemainder {
		return s.NextOffset, domain.LimitAll
	}
	return s.NextOffset, pageSize
}

// stageFor names the stage a fetch under mode belongs to.
func stageFor(mode domain.LoadMode) domain.Stage {
	switch mode {
	case domain.ModeInitial:
		return domain.StageInitial
	case domain.ModeBulkRemainder:
		return domain.StageBulk
	default:
		return domain.StageTrickle
	}
}
