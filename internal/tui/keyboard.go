package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/tallydash/tally/internal/domain"
)

// handleKeyMsg handles keyboard input
func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Handle state-specific keys
	switch m.State {
	case StateHelp:
		if key.Matches(msg, Keys.Escape, Keys.Help, Keys.Quit) {
			m.State = StateMonitoring
		}
		return m, nil

	case StateEditingSearch:
		return m.handleSearchInput(msg)
	}

	// The record list owns the keyboard while its find input is focused
	if m.Records.IsFindTyping() {
		return m, m.Records.Update(msg)
	}

	switch {
	case key.Matches(msg, Keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, Keys.Help):
		m.State = StateHelp
		return m, nil

	case key.Matches(msg, Keys.Period):
		next := domain.Filter{
			TimePeriod: domain.NextPeriod(m.Filter.TimePeriod),
			Department: m.Filter.Department,
			Search:     m.Filter.Search,
		}
		return m, SetFilterCmd(m.controller, next)

	case key.Matches(msg, Keys.Search):
		m.State = StateEditingSearch
		m.searchInput.SetValue(m.Filter.Search)
		m.searchInput.CursorEnd()
		return m, m.searchInput.Focus()

	case key.Matches(msg, Keys.Retry):
		if m.Status.Last().Kind != domain.EventError {
			return m, func() tea.Msg { return StatusMsg{Message: "Nothing to retry"} }
		}
		return m, RetryCmd(m.controller)

	case key.Matches(msg, Keys.Refresh):
		return m, RefreshCmd(m.controller)

	case key.Matches(msg, Keys.DataChanged):
		return m, NotifyDataChangedCmd(m.notify, m.Collection)

	case key.Matches(msg, Keys.Find):
		return m, m.Records.StartFind()
	}

	return m, m.Records.Update(msg)
}

// handleSearchInput edits the server-side search term
func (m Model) handleSearchInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, Keys.Escape):
		m.State = StateMonitoring
		m.searchInput.Blur()
		return m, nil

	case key.Matches(msg, Keys.Enter):
		m.State = StateMonitoring
		m.searchInput.Blur()
		next := m.Filter
		next.Search = m.searchInput.Value()
		return m, SetFilterCmd(m.controller, next)
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}
