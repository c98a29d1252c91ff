package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/mattermost/mattermost-webapp-sub002/pkg/client"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/client/ui/modal"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/navigator"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/router"
)

const (
	defaultJumpTimeout = 30 * time.Second
	maxRecent          = 20
)

// History is the navigation history the UI displays and walks back through
type History interface {
	navigator.History
	Current() string
	Back() bool
	Entries() []string
}

// Model is the interactive link jumper
type Model struct {
	router  *router.Router
	history History
	cache   *client.Cache
	state   client.StateInterface
	events  <-chan client.Event
	logger  *zap.Logger
	version string

	modalStack modal.ModalStack
	input      textinput.Model
	spinner    spinner.Model

	width  int
	height int

	// UI state
	resolving     bool
	pendingPath   string
	recent        []router.Settled
	errorMessage  string
	statusMessage string
	statusVersion uint64
	jumpTimeout   time.Duration
}

// NewModel creates the UI over an already wired router. state may be nil,
// in which case nothing is persisted on quit.
func NewModel(r *router.Router, history History, cache *client.Cache, state client.StateInterface, version string, logger *zap.Logger) Model {
	if logger == nil {
		logger = zap.NewNop()
	}

	input := textinput.New()
	input.Placeholder = "~channel, @user, email, id or /team/channels/name"
	input.Prompt = "→ "
	input.CharLimit = 512
	input.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)

	return Model{
		router:      r,
		history:     history,
		cache:       cache,
		state:       state,
		logger:      logger.Named("ui"),
		version:     version,
		input:       input,
		spinner:     s,
		jumpTimeout: defaultJumpTimeout,
	}
}

// WithEvents makes the UI refresh when the websocket feed updates the cache
func (m Model) WithEvents(events <-chan client.Event) Model {
	m.events = events
	return m
}

// WithJumpTimeout bounds how long a single jump may take
func (m Model) WithJumpTimeout(d time.Duration) Model {
	if d > 0 {
		m.jumpTimeout = d
	}
	return m
}

// Init starts listening for router and cache updates
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		m.spinner.Tick,
		listenForSettled(m.router.Settled()),
	}
	if m.events != nil {
		cmds = append(cmds, listenForEvents(m.events))
	}
	return tea.Batch(cmds...)
}

// Recent returns the settled navigations seen so far, newest first
func (m Model) Recent() []router.Settled {
	return m.recent
}

// Resolving reports whether a jump is in flight
func (m Model) Resolving() bool {
	return m.resolving
}

// ActiveModal returns the type of the modal on top of the stack
func (m Model) ActiveModal() modal.ModalType {
	return m.modalStack.TopType()
}

// saveAndQuit persists the cache and current team, then quits
func (m *Model) saveAndQuit() tea.Cmd {
	if m.state != nil {
		if err := m.state.SaveCache(m.cache); err != nil {
			m.logger.Warn("failed to save cache", zap.Error(err))
		}
		if team := m.router.Team(); team != "" {
			if err := m.state.SetLastTeam(team); err != nil {
				m.logger.Warn("failed to save last team", zap.Error(err))
			}
		}
	}
	return tea.Quit
}
