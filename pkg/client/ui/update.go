package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/mattermost/mattermost-webapp-sub002/pkg/client"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/client/ui/modal"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/identifier"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/navigator"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/resolver"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/router"
)

var (
	errEmptyJump = errors.New("nothing to open")
	errNoTeam    = errors.New("no current team, use a full /team/... path")
)

// SettledMsg carries a navigation the router applied
type SettledMsg struct {
	Settled router.Settled
}

// RouterClosedMsg is sent once the router stops publishing
type RouterClosedMsg struct{}

// JumpFailedMsg reports a jump that never reached the navigator
type JumpFailedMsg struct {
	Path string
	Err  error
}

// CacheUpdatedMsg is sent for every server event applied to the cache
type CacheUpdatedMsg struct {
	Event client.Event
}

// ClearStatusMsg clears the status message after a timeout
type ClearStatusMsg struct {
	Version uint64 // Only clear if this matches current statusVersion
}

// Update handles incoming messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(10, msg.Width-8)
		return m, nil

	case jumpRequestMsg:
		return m.jump(msg.Path)

	case SettledMsg:
		return m.handleSettled(msg.Settled)

	case RouterClosedMsg:
		m.resolving = false
		m.pendingPath = ""
		m.errorMessage = "Navigation stopped"
		return m, nil

	case JumpFailedMsg:
		m.resolving = m.router.State() == router.StateResolving
		m.pendingPath = ""
		m.errorMessage = fmt.Sprintf("Could not open %s: %v", msg.Path, msg.Err)
		m.logger.Info("jump failed", zap.String("path", msg.Path), zap.Error(msg.Err))
		return m, nil

	case CacheUpdatedMsg:
		statusCmd := m.setStatus(fmt.Sprintf("Updated from server (%s)", msg.Event.Event))
		return m, tea.Batch(statusCmd, listenForEvents(m.events))

	case ClearStatusMsg:
		// Only clear if version matches (prevents stale timeouts from clearing new messages)
		if msg.Version == m.statusVersion {
			m.statusMessage = ""
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// ctrl+c always quits immediately
	if key == "ctrl+c" {
		return m, m.saveAndQuit()
	}

	if activeModal := m.modalStack.Top(); activeModal != nil {
		handled, newModal, cmd := activeModal.HandleKey(msg)

		if newModal == nil {
			m.modalStack.Pop()
		} else if newModal.Type() != activeModal.Type() {
			m.modalStack.Replace(newModal)
		}

		if handled || activeModal.IsBlockingInput() {
			return m, cmd
		}
	}

	switch key {
	case "enter":
		path, err := parseJump(m.input.Value(), m.router.Team())
		if err != nil {
			m.errorMessage = err.Error()
			return m, nil
		}
		m.input.Reset()
		return m.jump(path)

	case "esc":
		if m.input.Value() == "" {
			return m, m.saveAndQuit()
		}
		m.input.Reset()
		m.errorMessage = ""
		return m, nil

	case "ctrl+k":
		m.modalStack.Push(modal.NewStartDMModal(m.dmCandidates(), func(username string) tea.Cmd {
			return func() tea.Msg {
				return jumpRequestMsg{Path: navigator.MessagesPath(m.router.Team(), "@"+username)}
			}
		}))
		return m, nil

	case "ctrl+b":
		return m.back()

	case "?":
		if m.input.Value() == "" {
			m.modalStack.Push(modal.NewHelpModal(shortcuts))
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// jumpRequestMsg asks the model to open a path from outside the key handler
type jumpRequestMsg struct {
	Path string
}

var shortcuts = [][2]string{
	{"Enter", "Open the typed channel, user or link"},
	{"Ctrl+K", "Direct message a known user"},
	{"Ctrl+B", "Go back"},
	{"Esc", "Clear input, quit when empty"},
	{"?", "Toggle this help"},
	{"Ctrl+C", "Quit"},
}

// jump records path as a new history entry and resolves it
func (m Model) jump(path string) (tea.Model, tea.Cmd) {
	if _, err := identifier.ParsePath(path); err != nil {
		m.errorMessage = fmt.Sprintf("%s: %v", path, err)
		return m, nil
	}
	m.history.Push(path)
	return m.open(path)
}

// open resolves path without touching history first
func (m Model) open(path string) (tea.Model, tea.Cmd) {
	m.resolving = true
	m.pendingPath = path
	m.errorMessage = ""
	return m, tea.Batch(jumpCmd(m.router, path, m.jumpTimeout), m.spinner.Tick)
}

// back walks one entry back in history and re-resolves it
func (m Model) back() (tea.Model, tea.Cmd) {
	if !m.history.Back() {
		return m, m.setStatus("Already at the oldest entry")
	}
	path := m.history.Current()
	if _, err := identifier.ParsePath(path); err != nil {
		return m, m.setStatus("Back to " + path)
	}
	return m.open(path)
}

func (m Model) handleSettled(settled router.Settled) (tea.Model, tea.Cmd) {
	m.recent = append([]router.Settled{settled}, m.recent...)
	if len(m.recent) > maxRecent {
		m.recent = m.recent[:maxRecent]
	}
	m.resolving = m.router.State() == router.StateResolving
	if !m.resolving {
		m.pendingPath = ""
	}

	listen := listenForSettled(m.router.Settled())
	if settled.Outcome.Failed() {
		m.modalStack.Push(modal.NewErrorModal(
			"Could not open this conversation",
			resolver.KindOf(settled.Outcome.Err).UserMessage(),
			settled.Outcome.Path,
			nil,
		))
		return m, listen
	}
	return m, tea.Batch(listen, m.setStatus("Opened "+settled.Outcome.Path))
}

// dmCandidates lists cached users other than ourselves
func (m Model) dmCandidates() []modal.DMCandidate {
	self := m.cache.CurrentUserID()
	var candidates []modal.DMCandidate
	for _, u := range m.cache.Users() {
		if u.ID == self || u.Username == "" {
			continue
		}
		candidates = append(candidates, modal.DMCandidate{Username: u.Username, Nickname: u.Nickname})
	}
	return candidates
}

// parseJump turns what the user typed into a conversation path within team.
//
//	~town-square       -> /team/channels/town-square
//	@john, j@x.com     -> /team/messages/@john, /team/messages/j@x.com
//	/other/channels/x  -> unchanged, as are full URLs
//	anything else      -> /team/channels/<input>
func parseJump(input, team string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errEmptyJump
	}
	if strings.HasPrefix(input, "/") || strings.Contains(input, "://") {
		return input, nil
	}
	if team == "" {
		return "", errNoTeam
	}
	switch {
	case strings.HasPrefix(input, "~"):
		return navigator.ChannelPath(team, input[1:]), nil
	case strings.Contains(input, "@"):
		return navigator.MessagesPath(team, input), nil
	default:
		return navigator.ChannelPath(team, input), nil
	}
}

// jumpCmd runs a blocking Go on the router. Success is reported through
// the Settled stream, so only failures produce a message here.
func jumpCmd(r *router.Router, path string, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		_, err := r.Go(ctx, path)
		if err == nil || errors.Is(err, router.ErrSuperseded) {
			return nil
		}
		return JumpFailedMsg{Path: path, Err: err}
	}
}

// listenForSettled waits for the router's next applied navigation
func listenForSettled(settled <-chan router.Settled) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-settled
		if !ok {
			return RouterClosedMsg{}
		}
		return SettledMsg{Settled: s}
	}
}

// listenForEvents waits for the next server event applied to the cache
func listenForEvents(events <-chan client.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return CacheUpdatedMsg{Event: ev}
	}
}

// statusTimeout returns a command that clears the status after 3 seconds
func statusTimeout(version uint64) tea.Cmd {
	return tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
		return ClearStatusMsg{Version: version}
	})
}

// setStatus sets the status message and returns the timeout command
func (m *Model) setStatus(message string) tea.Cmd {
	m.statusVersion++
	m.statusMessage = message
	return statusTimeout(m.statusVersion)
}
