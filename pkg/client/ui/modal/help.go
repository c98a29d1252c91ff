package modal

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// HelpModal lists the keyboard shortcuts
type HelpModal struct {
	shortcuts [][2]string
}

// NewHelpModal creates a help modal from (key, description) pairs
func NewHelpModal(shortcuts [][2]string) *HelpModal {
	return &HelpModal{shortcuts: shortcuts}
}

func (m *HelpModal) Type() ModalType {
	return ModalHelp
}

func (m *HelpModal) HandleKey(msg tea.KeyMsg) (bool, Modal, tea.Cmd) {
	switch msg.String() {
	case "esc", "?", "q", "enter":
		return true, nil, nil
	}
	return true, m, nil
}

func (m *HelpModal) Render(width, height int) string {
	keyStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Width(10)
	descStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("252"))

	var lines []string
	for _, sc := range m.shortcuts {
		lines = append(lines, keyStyle.Render(sc[0])+"  "+descStyle.Render(sc[1]))
	}

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Render("Keyboard Shortcuts"),
		"",
		strings.Join(lines, "\n"),
		"",
		lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true).Render("[Press ? or Esc to close]"),
	)

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("39")).
		Padding(1, 2).
		Render(content)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}

func (m *HelpModal) IsBlockingInput() bool {
	return true
}
