package domain

// ProgressFunc reports load progress.
// Called after every merged page: (30, 130), (60, 130), ...
type ProgressFunc func(loaded, total int)

// LoadMode is how the remainder of a session is being fetched.
type LoadMode int

const (
	ModeInitial       LoadMode = iota // first page not yet merged
	ModeTrickle                       // fixed-size batches with a delay between them
	ModeBulkRemainder                 // one fetch of everything that is left
	ModeDone
)

func (m LoadMode) String() string {
	switch m {
	case ModeInitial:
		return "initial"
	case ModeTrickle:
		return "trickle"
	case ModeBulkRemainder:
		return "bulk"
	case ModeDone:
		return "done"
	default:
		return "unknown"
	}
}

// EventKind distinguishes the signals a loader emits.
type EventKind int

const (
	EventProgress EventKind = iota
	EventComplete
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventComplete:
		return "complete"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Stage names the part of a session an error happened in.
type Stage string

const (
	StageInitial Stage = "initial"
	StageTrickle Stage = "trickle"
	StageBulk    Stage = "bulk"
)

// LoadProgress reports progress, completion or failure of a load session.
type LoadProgress struct {
	Kind       EventKind
	Collection string
	SessionID  string
	Epoch      uint64
	Filter     Filter
	Loaded     int
	Total      int
	Mode       LoadMode
	CacheHit   bool
	Stage      Stage // set for EventError
	Err        error // set for EventError; ErrEmptyResult on an empty EventComplete
}

// Terminal reports whether no further events follow for this session
// without an explicit retry.
func (p LoadProgress) Terminal() bool {
	return p.Kind != EventProgress
}

// LoadObserver receives loader signals.
type LoadObserver interface {
	OnProgress(progress LoadProgress)
}

// ObserverFunc adapts a function to LoadObserver.
type ObserverFunc func(LoadProgress)

func (f ObserverFunc) OnProgress(p LoadProgress) { f(p) }

// NoOpObserver discards progress updates (for testing/batch operations).
type NoOpObserver struct{}

func (NoOpObserver) OnProgress(LoadProgress) {}

// MultiObserver fans a signal out to several observers in order.
type MultiObserver []LoadObserver

func (m MultiObserver) OnProgress(p LoadProgress) {
	for _, o := range m {
		if o != nil {
			o.OnProgress(p)
		}
	}
}
