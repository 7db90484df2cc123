package tui

import (
	"strings"

	"github.com/tallydash/tally/internal/tui/styles"
)

// View renders the monitor
func (m Model) View() string {
	if !m.Ready {
		return "Starting..."
	}

	if m.State == StateHelp {
		return m.renderHelp()
	}

	var b strings.Builder
	b.WriteString(m.Status.View())
	b.WriteString("\n\n")
	b.WriteString(m.Records.View())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderFooter() string {
	switch {
	case m.State == StateEditingSearch:
		return m.searchInput.View()
	case m.StatusMsg != "" && m.StatusIsErr:
		return styles.ErrorStyle.Render(styles.Truncate(m.StatusMsg, m.Width))
	case m.StatusMsg != "":
		return styles.AccentStyle.Render(styles.Truncate(m.StatusMsg, m.Width))
	default:
		return m.help.ShortHelpView(Keys.ShortHelp())
	}
}

func (m Model) renderHelp() string {
	title := styles.TitleStyle.Render("Keys")
	return title + "\n\n" + m.help.FullHelpView(Keys.FullHelp()) + "\n\n" +
		styles.DimStyle.Render("esc to close")
}
