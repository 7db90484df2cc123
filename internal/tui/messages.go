package tui

import "github.com/tallydash/tally/internal/domain"

// Message types for the TUI

// ErrMsg represents an error
type ErrMsg struct {
	Err     error
	Context string
}

// Error implements the error interface
func (e ErrMsg) Error() string {
	if e.Context != "" {
		return e.Context + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// ProgressMsg carries one loader signal
type ProgressMsg struct {
	Progress domain.LoadProgress
}

// ProgressClosedMsg signals that the loader stopped emitting
type ProgressClosedMsg struct{}

// DataChangedMsg signals that a data-changed notification was published
type DataChangedMsg struct {
	Collection string
}

// ClearStatusMsg clears the status bar message
type ClearStatusMsg struct{}

// StatusMsg sets a temporary status message
type StatusMsg struct {
	Message string
	IsError bool
}

// FilterAppliedMsg signals that the loader accepted a filter
type FilterAppliedMsg struct {
	Filter domain.Filter
}
