package ui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/mattermost-webapp-sub002/pkg/client"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/model"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/navigator"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/resolver"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/router"
)

const (
	meID   = "aaaaaaaaaaaaaaaaaaaaaaaaaa"
	johnID = "bbbbbbbbbbbbbbbbbbbbbbbbbb"
	janeID = "cccccccccccccccccccccccccc"
	teamID = "tttttttttttttttttttttttttt"
)

type harness struct {
	model   Model
	router  *router.Router
	history *navigator.MemoryHistory
	cache   *client.Cache
	remote  *client.MockRemote
	state   *client.MockState
}

// newHarness wires a real router over an in-memory remote, the same way
// the interactive command does
func newHarness(t *testing.T) *harness {
	t.Helper()

	cache := client.NewCache()
	cache.SetCurrentUser(&model.User{ID: meID, Username: "me"})
	cache.SetCurrentTeamID(teamID)
	cache.AddChannel(&model.Channel{ID: "c1cccccccccccccccccccccccc", TeamID: teamID, Name: "town-square", DisplayName: "Town Square", Type: model.ChannelOpen})
	cache.AddChannel(&model.Channel{ID: "c2cccccccccccccccccccccccc", TeamID: teamID, Name: "off-topic", DisplayName: "Off-Topic", Type: model.ChannelOpen})
	cache.AddUser(&model.User{ID: johnID, Username: "johndoe", Nickname: "John"})
	cache.AddUser(&model.User{ID: janeID, Username: "jane"})

	remote := client.NewMockRemote(meID)
	remote.AddUser(model.User{ID: johnID, Username: "johndoe"})

	history := navigator.NewMemoryHistory("/foo/channels/town-square")
	nav := navigator.New(history, "")
	r := router.New("foo", resolver.New(cache, remote, remote), nav)
	t.Cleanup(r.Close)

	state := client.NewMockState()
	m := NewModel(r, history, cache, state, "test", nil).WithJumpTimeout(2 * time.Second)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	return &harness{
		model:   updated.(Model),
		router:  r,
		history: history,
		cache:   cache,
		remote:  remote,
		state:   state,
	}
}

func (h *harness) send(t *testing.T, msg tea.Msg) tea.Cmd {
	t.Helper()
	updated, cmd := h.model.Update(msg)
	m, ok := updated.(Model)
	require.True(t, ok, "Update returned %T", updated)
	h.model = m
	return cmd
}

func (h *harness) key(t *testing.T, k tea.KeyType) tea.Cmd {
	t.Helper()
	return h.send(t, tea.KeyMsg{Type: k})
}

func (h *harness) runes(t *testing.T, s string) tea.Cmd {
	t.Helper()
	return h.send(t, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

// settle runs the jump for path to completion and feeds the published
// navigation back into the model
func (h *harness) settle(t *testing.T, path string) {
	t.Helper()
	msg := jumpCmd(h.router, path, 2*time.Second)()
	require.Nil(t, msg, "jump failed: %v", msg)

	done := make(chan tea.Msg, 1)
	go func() { done <- listenForSettled(h.router.Settled())() }()
	select {
	case msg := <-done:
		h.send(t, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no navigation settled")
	}
}
