package components

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/tallydash/tally/internal/domain"
	"github.com/tallydash/tally/internal/tui/styles"
)

// LoadStatus renders the current session: spinner, progress bar, mode and
// the filter it is bound to.
type LoadStatus struct {
	collection string
	last       domain.LoadProgress
	started    bool
	escalated  bool
	duplicates int

	bar     progress.Model
	spinner spinner.Model
	width   int
}

// NewLoadStatus creates the status panel for a collection.
func NewLoadStatus(collection string) LoadStatus {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.SpinnerStyle

	return LoadStatus{
		collection: collection,
		bar: progress.New(
			progress.WithSolidFill(string(styles.Amber)),
			progress.WithoutPercentage(),
		),
		spinner: s,
	}
}

// Tick starts the spinner.
func (s LoadStatus) Tick() tea.Cmd { return s.spinner.Tick }

// Update advances the spinner.
func (s LoadStatus) Update(msg tea.Msg) (LoadStatus, tea.Cmd) {
	var cmd tea.Cmd
	s.spinner, cmd = s.spinner.Update(msg)
	return s, cmd
}

// SetProgress records the latest loader signal. escalated and duplicates
// come from the session snapshot.
func (s *LoadStatus) SetProgress(p domain.LoadProgress, escalated bool, duplicates int) {
	s.last = p
	s.started = true
	s.escalated = escalated
	s.duplicates = duplicates
}

func (s *LoadStatus) SetWidth(width int) {
	s.width = width
	s.bar.Width = max(width-24, 10)
}

// Busy reports whether the session is still fetching.
func (s LoadStatus) Busy() bool {
	return !s.started || s.last.Kind == domain.EventProgress
}

// Last returns the latest signal.
func (s LoadStatus) Last() domain.LoadProgress { return s.last }

// Percent returns the loaded fraction in [0, 1].
func (s LoadStatus) Percent() float64 {
	if s.last.Total <= 0 {
		if s.last.Kind == domain.EventComplete {
			return 1
		}
		return 0
	}
	return min(float64(s.last.Loaded)/float64(s.last.Total), 1)
}

func (s LoadStatus) View() string {
	var b strings.Builder

	title := styles.TitleStyle.Render(s.collection)
	b.WriteString(title + " " + s.modeBadge() + "\n")

	counts := fmt.Sprintf("%d / %d", s.last.Loaded, s.last.Total)
	b.WriteString(s.indicator() + " " + s.bar.ViewAs(s.Percent()) + " " + styles.SubtitleStyle.Render(counts) + "\n")

	b.WriteString(styles.DimStyle.Render(s.details()) + "\n")
	b.WriteString(s.outcome())
	return b.String()
}

func (s LoadStatus) indicator() string {
	if !s.started {
		return s.spinner.View()
	}
	switch s.last.Kind {
	case domain.EventComplete:
		return styles.SuccessStyle.Render("✓")
	case domain.EventError:
		return styles.ErrorStyle.Render("✗")
	default:
		return s.spinner.View()
	}
}

func (s LoadStatus) modeBadge() string {
	mode := s.last.Mode
	switch {
	case !s.started:
		return styles.DimBadgeStyle.Render("starting")
	case mode == domain.ModeBulkRemainder:
		return styles.BulkBadgeStyle.Render(mode.String())
	case mode == domain.ModeDone:
		return styles.DimBadgeStyle.Render(mode.String())
	default:
		return styles.BadgeStyle.Render(mode.String())
	}
}

func (s LoadStatus) details() string {
	parts := []string{
		fmt.Sprintf("epoch %d", s.last.Epoch),
		"filter " + s.last.Filter.String(),
	}
	if s.last.CacheHit {
		parts = append(parts, "cache hit")
	}
	if s.escalated {
		parts = append(parts, "escalated")
	}
	if s.duplicates > 0 {
		parts = append(parts, fmt.Sprintf("%d duplicates dropped", s.duplicates))
	}
	return strings.Join(parts, " · ")
}

func (s LoadStatus) outcome() string {
	switch s.last.Kind {
	case domain.EventComplete:
		if errors.Is(s.last.Err, domain.ErrEmptyResult) {
			return styles.DimStyle.Render("No records match this filter")
		}
		return styles.SuccessStyle.Render("Loaded all records")
	case domain.EventError:
		msg := fmt.Sprintf("%s stage failed: %v", s.last.Stage, s.last.Err)
		return styles.ErrorStyle.Render(styles.Truncate(msg, max(s.width, 20))) +
			styles.DimStyle.Render("  (r to retry)")
	default:
		return " "
	}
}
