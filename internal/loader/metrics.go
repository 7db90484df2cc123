package loader

import (
	"time"

	"github.com/tallydash/tally/internal/domain"
)

// Metrics receives loader instrumentation. A nil Metrics disables it.
type Metrics interface {
	// ObserveFetch records one completed page request.
	ObserveFetch(collection string, mode domain.LoadMode, records int, duration time.Duration, err error)

	// RecordEscalation records a switch to bulk loading; from is the mode
	// the switch happened in (initial or trickle).
	RecordEscalation(collection string, from domain.LoadMode)

	// RecordStaleDiscard records a response dropped for a superseded session.
	RecordStaleDiscard(collection string)

	// RecordSession records a session reaching a terminal, failed or stalled state.
	RecordSession(collection string, outcome string, records int, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveFetch(string, domain.LoadMode, int, time.Duration, error) {}
func (noopMetrics) RecordEscalation(string, domain.LoadMode)                       {}
func (noopMetrics) RecordStaleDiscard(string)                                      {}
func (noopMetrics) RecordSession(string, string, int, time.Duration)               {}
