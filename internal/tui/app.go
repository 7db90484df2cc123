// Package tui is the interactive load monitor.
package tui

import (
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/tallydash/tally/internal/domain"
	"github.com/tallydash/tally/internal/loader"
	"github.com/tallydash/tally/internal/search"
	"github.com/tallydash/tally/internal/tui/components"
	"github.com/tallydash/tally/internal/tui/styles"
)

// ApplicationState represents the current state of the monitor
type ApplicationState int

const (
	StateMonitoring ApplicationState = iota
	StateEditingSearch
	StateHelp
)

// Controller is the part of a loader the monitor drives.
type Controller interface {
	SetFilter(filter domain.Filter) error
	Retry()
	Refresh()
	Session() (loader.Session, bool)
}

// Notifier publishes a data-changed notification for a collection.
type Notifier func(collection, reason string)

// Vertical layout
const (
	StatusHeight = 4 // title, bar, details, outcome
	ChromeHeight = 2 // gap below the status panel and the footer line
)

// Model is the Bubble Tea model for the load monitor
type Model struct {
	State ApplicationState
	Ready bool

	Collection string
	Filter     domain.Filter

	controller Controller
	notify     Notifier
	progress   <-chan domain.LoadProgress
	logger     *slog.Logger

	// UI components
	Status      components.LoadStatus
	Records     *components.RecordList
	searchInput textinput.Model
	help        help.Model

	// Newest session seen; older signals are ignored
	epoch uint64

	// Dimensions
	Width  int
	Height int

	// UI state
	StatusMsg   string
	StatusIsErr bool
}

// NewModel creates a monitor for collection. progress must be fed by a
// ChannelObserver attached to the same loader as ctrl.
func NewModel(
	collection string,
	filter domain.Filter,
	ctrl Controller,
	progress <-chan domain.LoadProgress,
	notify Notifier,
	logger *slog.Logger,
) Model {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if notify == nil {
		notify = func(string, string) {}
	}

	ti := textinput.New()
	ti.Placeholder = "name, employee id..."
	ti.Prompt = "/ "
	ti.PromptStyle = styles.FilterPromptStyle
	ti.TextStyle = styles.FilterStyle
	ti.CharLimit = 200

	h := help.New()
	h.Styles.ShortKey = styles.HelpKeyStyle
	h.Styles.ShortDesc = styles.HelpDescStyle
	h.Styles.FullKey = styles.HelpKeyStyle
	h.Styles.FullDesc = styles.HelpDescStyle

	return Model{
		State:       StateMonitoring,
		Collection:  collection,
		Filter:      filter,
		controller:  ctrl,
		notify:      notify,
		progress:    progress,
		logger:      logger,
		Status:      components.NewLoadStatus(collection),
		Records:     components.NewRecordList("Records", search.NewIndex(logger)),
		searchInput: ti,
		help:        h,
	}
}

// Init starts the first session and begins listening for progress
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		SetFilterCmd(m.controller, m.Filter),
		WaitForProgressCmd(m.progress),
		m.Status.Tick(),
	)
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Ready = true
		m.updateLayout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Status, cmd = m.Status.Update(msg)
		return m, cmd

	case ProgressMsg:
		m.applyProgress(msg.Progress)
		return m, WaitForProgressCmd(m.progress)

	case ProgressClosedMsg:
		m.logger.Debug("progress channel closed")
		return m, nil

	case FilterAppliedMsg:
		m.Filter = msg.Filter
		return m, nil

	case DataChangedMsg:
		m.StatusMsg = "Data changed, reloading " + msg.Collection
		m.StatusIsErr = false
		return m, ClearStatusCmd(3 * time.Second)

	case StatusMsg:
		m.StatusMsg = msg.Message
		m.StatusIsErr = msg.IsError
		return m, ClearStatusCmd(3 * time.Second)

	case ClearStatusMsg:
		m.StatusMsg = ""
		m.StatusIsErr = false
		return m, nil

	case ErrMsg:
		m.logger.Error("monitor error", "error", msg.Err, "context", msg.Context)
		m.StatusMsg = msg.Error()
		m.StatusIsErr = true
		return m, ClearStatusCmd(5 * time.Second)
	}

	return m, nil
}

// applyProgress folds a loader signal into the view. Records are read from
// the loader's published session, which is never older than the signal.
func (m *Model) applyProgress(p domain.LoadProgress) {
	if p.Epoch < m.epoch {
		return
	}
	reset := p.Epoch > m.epoch
	m.epoch = p.Epoch

	escalated, duplicates := false, 0
	if s, ok := m.controller.Session(); ok && s.Epoch == p.Epoch {
		escalated, duplicates = s.Escalated, s.Duplicates
		m.Records.SetRecords(s.Records, reset)
	} else if reset {
		m.Records.SetRecords(nil, true)
	}
	m.Status.SetProgress(p, escalated, duplicates)

	if p.Kind == domain.EventError {
		m.logger.Warn("session failed", "epoch", p.Epoch, "stage", p.Stage, "error", p.Err)
	}
}

// updateLayout sizes the components to the terminal
func (m *Model) updateLayout() {
	m.Status.SetWidth(m.Width)
	m.help.Width = m.Width
	m.searchInput.Width = max(m.Width-4, 10)
	m.Records.SetSize(m.Width, max(m.Height-StatusHeight-ChromeHeight, 5))
}
