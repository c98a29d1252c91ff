package modal

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrorModal tells the user a link could not be opened and where they
// were sent instead
type ErrorModal struct {
	title    string
	message  string
	fallback string
	onClose  func() tea.Cmd
}

// NewErrorModal creates an error modal. fallback is the path the user was
// redirected to and may be empty.
func NewErrorModal(title, message, fallback string, onClose func() tea.Cmd) *ErrorModal {
	return &ErrorModal{
		title:    title,
		message:  message,
		fallback: fallback,
		onClose:  onClose,
	}
}

func (m *ErrorModal) Type() ModalType {
	return ModalError
}

// HandleKey closes the modal on enter, esc or space and swallows everything else
func (m *ErrorModal) HandleKey(msg tea.KeyMsg) (bool, Modal, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc", " ":
		var cmd tea.Cmd
		if m.onClose != nil {
			cmd = m.onClose()
		}
		return true, nil, cmd
	}
	return true, m, nil
}

func (m *ErrorModal) Render(width, height int) string {
	errorColor := lipgloss.Color("#FF5555")

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(errorColor)

	messageStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("252"))

	pathStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("39"))

	hintStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	lines := []string{
		titleStyle.Render(m.title),
		"",
		messageStyle.Render(m.message),
	}
	if m.fallback != "" {
		lines = append(lines, "", hintStyle.Render("Redirected to ")+pathStyle.Render(m.fallback))
	}
	lines = append(lines, "", hintStyle.Render("Press Enter or Esc to dismiss"))

	modalWidth := 56
	if width < modalWidth+4 {
		modalWidth = max(20, width-4)
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(errorColor).
		Padding(1, 2).
		Width(modalWidth - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}

func (m *ErrorModal) IsBlockingInput() bool {
	return true
}
