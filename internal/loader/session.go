package loader

import "github.com/tallydash/tally/internal/domain"

// State is the scheduler state of a session.
type State int

const (
	StateIdle     State = iota
	StateFetching       // one request in flight
	StateWaiting        // inter-batch delay running
	StateTerminal       // all records merged
	StateFailed         // first page failed; nothing to show
	StateStalled        // a later page failed; partial records kept
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateWaiting:
		return "waiting"
	case StateTerminal:
		return "terminal"
	case StateFailed:
		return "failed"
	case StateStalled:
		return "stalled"
	default:
		return "unknown"
	}
}

// Session is the state of one load for one filter. It is an immutable
// value: Merge returns a new Session and never mutates its input.
type Session struct {
	ID         string
	Collection string
	Epoch      uint64
	Filter     domain.Filter

	Records    []domain.Record // arrival order
	NextOffset int
	Total      int
	Complete   bool
	Mode       domain.LoadMode
	Escalated  bool // a trickle session switched to bulk mid-flight
	Requests   int  // fetches issued, retries included
	Duplicates int  // records dropped by dedup

	State   State
	LastErr error

	seen map[string]struct{} // identity keys of Records
}

// NewSession creates an empty session for filter.
func NewSession(id, collection string, epoch uint64, filter domain.Filter) Session {
	return Session{
		ID:         id,
		Collection: collection,
		Epoch:      epoch,
		Filter:     filter,
		Mode:       domain.ModeInitial,
		State:      StateIdle,
		seen:       make(map[string]struct{}),
	}
}

// Loaded returns the number of accumulated records.
func (s Session) Loaded() int { return len(s.Records) }

// HasMore reports whether records remain to be fetched.
func (s Session) HasMore() bool { return !s.Complete }

// Contains reports whether any accumulated record carries identity key id.
func (s Session) Contains(id string) bool {
	_, ok := s.seen[id]
	return ok
}

// progress builds the signal for the session's current counters.
func (s Session) progress(kind domain.EventKind) domain.LoadProgress {
	return domain.LoadProgress{
		Kind:       kind,
		Collection: s.Collection,
		SessionID:  s.ID,
		Epoch:      s.Epoch,
		Filter:     s.Filter,
		Loaded:     len(s.Records),
		Total:      s.Total,
		Mode:       s.Mode,
	}
}
