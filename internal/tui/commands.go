package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tallydash/tally/internal/domain"
)

// Command factories for loader operations. The loader queue can block, so
// every call runs inside a command rather than in Update.

// WaitForProgressCmd reads the next loader signal from ch
func WaitForProgressCmd(ch <-chan domain.LoadProgress) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-ch
		if !ok {
			return ProgressClosedMsg{}
		}
		return ProgressMsg{Progress: p}
	}
}

// SetFilterCmd activates filter on the loader
func SetFilterCmd(ctrl Controller, filter domain.Filter) tea.Cmd {
	return func() tea.Msg {
		if err := ctrl.SetFilter(filter); err != nil {
			return ErrMsg{Err: err, Context: "applying filter"}
		}
		return FilterAppliedMsg{Filter: filter}
	}
}

// RetryCmd resumes a failed or stalled session
func RetryCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		ctrl.Retry()
		return StatusMsg{Message: "Retrying..."}
	}
}

// RefreshCmd reloads the current filter from offset zero
func RefreshCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		ctrl.Refresh()
		return StatusMsg{Message: "Reloading..."}
	}
}

// NotifyDataChangedCmd publishes a data-changed notification for collection
func NotifyDataChangedCmd(notify Notifier, collection string) tea.Cmd {
	return func() tea.Msg {
		notify(collection, "manual")
		return DataChangedMsg{Collection: collection}
	}
}

// ClearStatusCmd returns a command that clears status after a delay
func ClearStatusCmd(delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(t time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}
