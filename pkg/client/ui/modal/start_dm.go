package modal

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DMCandidate is a known user that can be messaged directly
type DMCandidate struct {
	Username string
	Nickname string
}

func (c DMCandidate) matches(query string) bool {
	return strings.Contains(strings.ToLower(c.Username), query) ||
		strings.Contains(strings.ToLower(c.Nickname), query)
}

// StartDMModal picks a cached user and opens the direct message with them
type StartDMModal struct {
	users         []DMCandidate
	filteredUsers []DMCandidate
	selectedIndex int
	searchQuery   string
	onSelectUser  func(username string) tea.Cmd
}

// NewStartDMModal creates a picker over users
func NewStartDMModal(users []DMCandidate, onSelectUser func(username string) tea.Cmd) *StartDMModal {
	m := &StartDMModal{
		users:        users,
		onSelectUser: onSelectUser,
	}
	m.filterUsers()
	return m
}

func (m *StartDMModal) Type() ModalType {
	return ModalStartDM
}

// Selected returns the highlighted candidate
func (m *StartDMModal) Selected() (DMCandidate, bool) {
	if len(m.filteredUsers) == 0 {
		return DMCandidate{}, false
	}
	return m.filteredUsers[m.selectedIndex], true
}

func (m *StartDMModal) filterUsers() {
	m.filteredUsers = m.filteredUsers[:0]
	query := strings.ToLower(m.searchQuery)
	for _, user := range m.users {
		if query == "" || user.matches(query) {
			m.filteredUsers = append(m.filteredUsers, user)
		}
	}
	if m.selectedIndex >= len(m.filteredUsers) {
		m.selectedIndex = max(0, len(m.filteredUsers)-1)
	}
}

func (m *StartDMModal) HandleKey(msg tea.KeyMsg) (bool, Modal, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+c":
		return true, nil, nil

	case "up", "ctrl+p":
		if m.selectedIndex > 0 {
			m.selectedIndex--
		}
		return true, m, nil

	case "down", "ctrl+n":
		if m.selectedIndex < len(m.filteredUsers)-1 {
			m.selectedIndex++
		}
		return true, m, nil

	case "enter":
		if user, ok := m.Selected(); ok && m.onSelectUser != nil {
			return true, nil, m.onSelectUser(user.Username)
		}
		return true, m, nil

	case "backspace":
		if len(m.searchQuery) > 0 {
			_, size := lastRune(m.searchQuery)
			m.searchQuery = m.searchQuery[:len(m.searchQuery)-size]
			m.filterUsers()
		}
		return true, m, nil

	default:
		if msg.Type == tea.KeyRunes {
			m.searchQuery += string(msg.Runes)
			m.filterUsers()
		}
		return true, m, nil
	}
}

func lastRune(s string) (rune, int) {
	r := []rune(s)
	last := r[len(r)-1]
	return last, len(string(last))
}

func (m *StartDMModal) Render(width, height int) string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205"))

	searchStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("170")).
		Padding(0, 1).
		Width(46)

	hintStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	selectedStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205"))

	nicknameStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	modalStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("205")).
		Padding(1, 2).
		Width(54).
		Height(max(8, min(height-4, 20)))

	var searchDisplay string
	if m.searchQuery == "" {
		searchDisplay = "█" + hintStyle.Render(" Type to filter...")
	} else {
		searchDisplay = m.searchQuery + "█"
	}

	var userLines []string
	if len(m.filteredUsers) == 0 {
		if len(m.users) == 0 {
			userLines = append(userLines, hintStyle.Render("No users cached yet"))
		} else {
			userLines = append(userLines, hintStyle.Render("No users match your search"))
		}
	} else {
		// Show up to 10 users, centered around selection
		maxVisible := 10
		start := 0
		if len(m.filteredUsers) > maxVisible {
			start = max(0, m.selectedIndex-maxVisible/2)
			start = min(start, len(m.filteredUsers)-maxVisible)
		}
		end := min(start+maxVisible, len(m.filteredUsers))

		if start > 0 {
			userLines = append(userLines, hintStyle.Render("  ↑ more users above"))
		}
		for i := start; i < end; i++ {
			user := m.filteredUsers[i]
			label := "@" + user.Username
			if i == m.selectedIndex {
				label = "> " + selectedStyle.Render(label)
			} else {
				label = "  " + label
			}
			if user.Nickname != "" {
				label += " " + nicknameStyle.Render(user.Nickname)
			}
			userLines = append(userLines, label)
		}
		if end < len(m.filteredUsers) {
			userLines = append(userLines, hintStyle.Render("  ↓ more users below"))
		}
	}

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Render("Direct Message"),
		"",
		searchStyle.Render(searchDisplay),
		"",
		lipgloss.JoinVertical(lipgloss.Left, userLines...),
		"",
		hintStyle.Render("[↑/↓] Navigate  [Enter] Open  [Esc] Cancel"),
	)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, modalStyle.Render(content))
}

func (m *StartDMModal) IsBlockingInput() bool {
	return true
}
