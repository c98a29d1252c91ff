package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/76creates/stickers/flexbox"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattermost/mattermost-webapp-sub002/pkg/router"
)

// View renders the current view
func (m Model) View() string {
	// Don't render until we have dimensions
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if activeModal := m.modalStack.Top(); activeModal != nil {
		return activeModal.Render(m.width, m.height)
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderHeader(),
		InputStyle.Width(max(10, m.width-2)).Render(m.input.View()),
		m.renderPanes(),
		m.renderFooter(),
	)
}

// renderPanes lays out history on the left and the current location on the right
func (m Model) renderPanes() string {
	// header(1) + input(3) + footer(1)
	paneHeight := max(5, m.height-5)
	layout := flexbox.NewHorizontal(m.width, paneHeight)

	historyWidth := max(20, m.width/3-2)

	historyCol := layout.NewColumn().AddCells(
		flexbox.NewCell(1, 1).
			SetStyle(HistoryPaneStyle.Width(historyWidth).Height(paneHeight - 2)).
			SetContent(m.buildHistoryContent(historyWidth-2, paneHeight-2)),
	)
	detailCol := layout.NewColumn().AddCells(
		flexbox.NewCell(2, 1).
			SetStyle(DetailPaneStyle).
			SetContent(m.buildDetailContent(m.width - historyWidth - 6)),
	)

	layout.AddColumns([]*flexbox.Column{historyCol, detailCol})
	return layout.Render()
}

// buildHistoryContent lists history entries, newest on top
func (m Model) buildHistoryContent(width, height int) string {
	lines := []string{PaneTitleStyle.Render("History"), ""}

	entries := m.history.Entries()
	for i := len(entries) - 1; i >= 0 && len(lines) < height; i-- {
		entry := truncateString(entries[i], max(1, width-2))
		if i == len(entries)-1 {
			lines = append(lines, CurrentEntryStyle.Render("> "+entry))
		} else {
			lines = append(lines, "  "+entry)
		}
	}

	return strings.Join(lines, "\n")
}

// buildDetailContent describes where we are and how we got there
func (m Model) buildDetailContent(width int) string {
	lines := []string{PaneTitleStyle.Render("Location"), ""}

	team := m.router.Team()
	if team == "" {
		team = "(none)"
	}
	lines = append(lines, field("Team", team))
	lines = append(lines, field("Current", PathStyle.Render(truncateString(m.history.Current(), max(1, width-14)))))

	if m.resolving {
		pending := m.pendingPath
		if pending == "" {
			pending = "…"
		}
		lines = append(lines, field("Opening", m.spinner.View()+" "+truncateString(pending, max(1, width-16))))
	}

	if len(m.recent) > 0 {
		lines = append(lines, "", PaneTitleStyle.Render("Last navigation"), "")
		lines = append(lines, describeSettled(m.recent[0])...)

		if len(m.recent) > 1 {
			lines = append(lines, "", PaneTitleStyle.Render("Earlier"), "")
			for _, s := range m.recent[1:] {
				lines = append(lines, truncateString(formatRecent(s), max(1, width)))
			}
		}
	}

	return strings.Join(lines, "\n")
}

func field(label, value string) string {
	return LabelStyle.Render(label) + value
}

func describeSettled(s router.Settled) []string {
	id := s.Identifier
	lines := []string{
		field("Typed", fmt.Sprintf("%s/%s", id.Namespace, id.Raw)),
		field("Kind", id.Kind.String()),
	}

	if s.Outcome.Failed() {
		lines = append(lines,
			field("Result", RenderError(s.Outcome.Err.Error())),
			field("Sent to", PathStyle.Render(s.Outcome.Path)),
		)
		return lines
	}

	mode := "push"
	if s.Outcome.Replace {
		mode = "replace"
	}
	lines = append(lines, field("Result", SuccessStyle.Render(s.Outcome.Path)+MutedTextStyle.Render(" ("+mode+")")))
	if ch := s.Target.Channel; ch != nil {
		name := ch.DisplayName
		if name == "" {
			name = ch.Name
		}
		lines = append(lines, field("Channel", fmt.Sprintf("%s %s", name, MutedTextStyle.Render("["+ch.Type.String()+"]"))))
	}
	if u := s.Target.User; u != nil {
		lines = append(lines, field("With", "@"+u.Username))
	}
	lines = append(lines, field("Source", s.Target.Source.String()))
	lines = append(lines, field("Took", s.Elapsed.Round(time.Microsecond).String()))
	return lines
}

func formatRecent(s router.Settled) string {
	mark := SuccessStyle.Render("✓")
	if s.Outcome.Failed() {
		mark = ErrorStyle.Render("✗")
	}
	return fmt.Sprintf("%s %s/%s → %s", mark, s.Identifier.Namespace, s.Identifier.Raw, s.Outcome.Path)
}

// renderHeader renders the header
func (m Model) renderHeader() string {
	left := HeaderStyle.Render(fmt.Sprintf("mmlink %s", m.version))

	status := "Idle"
	if m.resolving {
		status = m.spinner.View() + " Resolving"
	}
	if me, ok := m.cache.UserByID(m.cache.CurrentUserID()); ok {
		status += MutedTextStyle.Render("  @" + me.Username)
	}
	right := StatusStyle.Render(status)

	spacer := strings.Repeat(" ", max(0, m.width-lipgloss.Width(left)-lipgloss.Width(right)))
	return left + spacer + right
}

// renderFooter renders the footer
func (m Model) renderFooter() string {
	footerContent := "[Enter] Open  [Ctrl+K] DM  [Ctrl+B] Back  [?] Help"

	if m.statusMessage != "" {
		footerContent += "  " + SuccessStyle.Render(m.statusMessage)
	}
	if m.errorMessage != "" {
		footerContent += "  " + RenderError(m.errorMessage)
	}

	// FooterStyle has Padding(0, 1) which adds 2 chars total
	maxWidth := m.width - 2
	if lipgloss.Width(footerContent) > maxWidth {
		footerContent = truncateString(footerContent, max(0, maxWidth-1)) + "…"
	}

	return FooterStyle.Render(footerContent)
}

// truncateString truncates a string to maxLen runes, accounting for ANSI escape codes
func truncateString(s string, maxLen int) string {
	// Use lipgloss.Width to handle ANSI codes properly
	if lipgloss.Width(s) <= maxLen {
		return s
	}

	var result strings.Builder
	currentWidth := 0
	inEscape := false

	for _, r := range s {
		// Track ANSI escape sequences (don't count toward width)
		if r == '\x1b' {
			inEscape = true
		}

		if inEscape {
			result.WriteRune(r)
			if r == 'm' {
				inEscape = false
			}
			continue
		}

		if currentWidth >= maxLen {
			break
		}

		result.WriteRune(r)
		currentWidth++
	}

	return result.String()
}
