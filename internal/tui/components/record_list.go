package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/tallydash/tally/internal/domain"
	"github.com/tallydash/tally/internal/search"
	"github.com/tallydash/tally/internal/tui/styles"
)

// Layout constants for the record list
const (
	// Border adds 1 char on each side
	BorderWidth  = 2
	BorderHeight = 2

	// Scroll indicators ("↑ more" and "↓ more") each take 1 line
	ScrollIndicatorLines = 2
)

// RecordList is a scrollable list of accumulated records with fuzzy find.
type RecordList struct {
	records []domain.Record
	index   *search.Index

	// Selection
	cursor     int
	offset     int
	maxVisible int

	// Dimensions
	width   int
	height  int
	focused bool

	title string

	// Find state
	findActive bool
	findInput  textinput.Model
	findQuery  string
	results    []search.Result // nil when no query
}

// NewRecordList creates an empty list backed by index.
func NewRecordList(title string, index *search.Index) *RecordList {
	ti := textinput.New()
	ti.Placeholder = "type to find..."
	ti.Prompt = "f "
	ti.PromptStyle = styles.FilterPromptStyle
	ti.TextStyle = styles.FilterStyle

	if index == nil {
		index = search.NewIndex(nil)
	}
	return &RecordList{title: title, index: index, findInput: ti, focused: true}
}

// SetRecords replaces the displayed records. reset drops the find index,
// for a new session; otherwise only unseen records are indexed.
func (c *RecordList) SetRecords(records []domain.Record, reset bool) {
	if reset {
		c.index.Reset()
		c.cursor = 0
		c.offset = 0
	}
	c.records = records
	c.index.Add(records)
	if c.findQuery != "" {
		c.applyFind()
	}
	c.clampCursor()
}

// Update handles navigation and find input.
func (c *RecordList) Update(msg tea.Msg) tea.Cmd {
	if !c.focused {
		return nil
	}

	// Typing mode
	if c.findActive && c.findInput.Focused() {
		if msg, ok := msg.(tea.KeyMsg); ok {
			switch {
			case key.Matches(msg, RecordListKeys.Escape):
				c.ClearFind()
				return nil
			case key.Matches(msg, RecordListKeys.Enter):
				c.findInput.Blur()
				return nil
			case msg.String() == "backspace" && c.findInput.Value() == "":
				c.ClearFind()
				return nil
			}
		}

		var cmd tea.Cmd
		c.findInput, cmd = c.findInput.Update(msg)
		c.applyFind()
		return cmd
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}

	if c.findActive && key.Matches(keyMsg, RecordListKeys.Escape) {
		c.ClearFind()
		return nil
	}

	count := c.ItemCount()
	if count == 0 {
		return nil
	}

	switch {
	case key.Matches(keyMsg, RecordListKeys.Down):
		if c.cursor < count-1 {
			c.cursor++
			c.ensureVisible()
		}
	case key.Matches(keyMsg, RecordListKeys.Up):
		if c.cursor > 0 {
			c.cursor--
			c.ensureVisible()
		}
	case key.Matches(keyMsg, RecordListKeys.Home):
		c.cursor = 0
		c.offset = 0
	case key.Matches(keyMsg, RecordListKeys.End):
		c.cursor = count - 1
		c.ensureVisible()
	case key.Matches(keyMsg, RecordListKeys.HalfDown):
		c.cursor += c.maxVisible / 2
		c.clampCursor()
		c.ensureVisible()
	case key.Matches(keyMsg, RecordListKeys.HalfUp):
		c.cursor -= c.maxVisible / 2
		if c.cursor < 0 {
			c.cursor = 0
		}
		c.ensureVisible()
	}
	return nil
}

func (c *RecordList) View() string {
	style := styles.InactiveBorder
	if c.focused {
		style = styles.ActiveBorder
	}

	// Subtract frame size so the rendered size equals c.width x c.height
	frameW, frameH := style.GetFrameSize()
	return style.
		Width(max(c.width-frameW, 0)).
		Height(max(c.height-frameH, 0)).
		Render(c.renderContent())
}

func (c *RecordList) SetSize(width, height int) {
	c.width = width
	c.height = height
	c.recalcMaxVisible()
	c.ensureVisible()
}

func (c *RecordList) SetFocused(focused bool) { c.focused = focused }

// StartFind opens the find input.
func (c *RecordList) StartFind() tea.Cmd {
	c.findActive = true
	c.recalcMaxVisible()
	return c.findInput.Focus()
}

// IsFinding reports whether a find is active.
func (c *RecordList) IsFinding() bool { return c.findActive }

// IsFindTyping reports whether the find input has focus.
func (c *RecordList) IsFindTyping() bool { return c.findActive && c.findInput.Focused() }

// ClearFind closes the find input and shows every record.
func (c *RecordList) ClearFind() {
	c.findActive = false
	c.findQuery = ""
	c.results = nil
	c.findInput.SetValue("")
	c.findInput.Blur()
	c.recalcMaxVisible()
	c.clampCursor()
}

// ItemCount returns the number of visible rows.
func (c *RecordList) ItemCount() int {
	if c.results != nil {
		return len(c.results)
	}
	return len(c.records)
}

// Selected returns the record under the cursor.
func (c *RecordList) Selected() (domain.Record, bool) {
	if c.cursor < 0 || c.cursor >= c.ItemCount() {
		return domain.Record{}, false
	}
	if c.results != nil {
		return c.results[c.cursor].Record, true
	}
	return c.records[c.cursor], true
}

// Internal methods

func (c *RecordList) applyFind() {
	query := c.findInput.Value()
	if query == c.findQuery && c.results != nil {
		return
	}
	c.findQuery = query
	if query == "" {
		c.results = nil
		return
	}
	c.results = c.index.Find(query)
	if c.results == nil {
		c.results = []search.Result{}
	}
	c.cursor = 0
	c.offset = 0
}

func (c *RecordList) recalcMaxVisible() {
	// Interior height minus the title line and scroll indicators
	c.maxVisible = c.height - BorderHeight - ScrollIndicatorLines - 1
	if c.findActive {
		c.maxVisible--
	}
	if c.maxVisible < 1 {
		c.maxVisible = 1
	}
}

func (c *RecordList) ensureVisible() {
	if c.maxVisible <= 0 {
		return
	}
	if c.cursor < c.offset {
		c.offset = c.cursor
	}
	if c.cursor >= c.offset+c.maxVisible {
		c.offset = c.cursor - c.maxVisible + 1
	}
}

func (c *RecordList) clampCursor() {
	if n := c.ItemCount(); c.cursor >= n {
		c.cursor = max(n-1, 0)
	}
}

// Rendering

func (c *RecordList) renderContent() string {
	itemWidth := max(c.width-BorderWidth, 10)

	titleLine := styles.AccentStyle.Render(styles.Truncate(c.title, itemWidth))

	count := c.ItemCount()
	if count == 0 {
		emptyMsg := styles.DimStyle.Render("No records")
		if c.findQuery != "" {
			emptyMsg = styles.DimStyle.Render("No matches")
		}
		content := titleLine + "\n \n" + emptyMsg + "\n "
		if c.findActive {
			content += "\n" + c.renderFindBar()
		}
		return content
	}

	end := min(c.offset+c.maxVisible, count)
	lines := make([]string, 0, end-c.offset)
	for i := c.offset; i < end; i++ {
		lines = append(lines, c.renderRow(i, itemWidth))
	}

	// Reserve header and footer lines to prevent layout shifts
	header := " "
	if c.offset > 0 {
		header = styles.DimStyle.Render("↑ more")
	}
	footer := " "
	if end < count {
		footer = styles.DimStyle.Render("↓ more")
	}

	content := titleLine + "\n" + header + "\n" + strings.Join(lines, "\n") + "\n" + footer
	if c.findActive {
		content += "\n" + c.renderFindBar()
	}
	return content
}

func (c *RecordList) renderRow(i, width int) string {
	selected := i == c.cursor

	var rec domain.Record
	var matched []int
	if c.results != nil {
		rec, matched = c.results[i].Record, c.results[i].MatchedIndexes
	} else {
		rec = c.records[i]
	}

	label := styles.Truncate(recordLabel(rec), width-2)
	return " " + styles.HighlightMatches(label, matched, selected)
}

func (c *RecordList) renderFindBar() string {
	countStr := ""
	if c.findQuery != "" {
		countStr = styles.DimStyle.Render(fmt.Sprintf(" [%d/%d]", c.ItemCount(), len(c.records)))
	}
	return c.findInput.View() + countStr
}

func recordLabel(rec domain.Record) string {
	if rec.Label != "" {
		return rec.Label
	}
	if ids := rec.Identity(); len(ids) > 0 {
		return ids[0]
	}
	return domain.ContentKey(rec.Payload).String()
}
