package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/mattermost/mattermost-webapp-sub002/pkg/model"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/resolver"
)

// MockRemote is an in-memory test implementation of resolver.Remote and
// resolver.DirectOpener. It records every call for verification.
type MockRemote struct {
	mu sync.RWMutex

	// Server-side data
	channels map[string]*model.Channel // by id
	users    map[string]*model.User    // by id
	me       string

	// Error injection, keyed by operation name
	errs map[string]error

	// Optional gate: when set, calls block until it is closed or ctx ends
	gate chan struct{}

	Calls []MockCall
}

// MockCall records one remote call
type MockCall struct {
	Op          string
	UserID      string
	TeamID      string
	ChannelID   string
	ChannelName string
	Key         string
}

// NewMockRemote creates a mock remote acting on behalf of currentUserID
func NewMockRemote(currentUserID string) *MockRemote {
	return &MockRemote{
		channels: make(map[string]*model.Channel),
		users:    make(map[string]*model.User),
		errs:     make(map[string]error),
		me:       currentUserID,
	}
}

func (m *MockRemote) record(ctx context.Context, call MockCall) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, call)
	gate := m.gate
	err := m.errs[call.Op]
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// JoinChannel implements resolver.Remote
func (m *MockRemote) JoinChannel(ctx context.Context, userID, teamID, channelID, channelName string) (*model.Channel, error) {
	if err := m.record(ctx, MockCall{Op: "join_channel", UserID: userID, TeamID: teamID, ChannelID: channelID, ChannelName: channelName}); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.channels {
		if channelID != "" && ch.ID == channelID {
			return copyChannel(ch), nil
		}
		if channelName != "" && ch.Name == channelName && (ch.TeamID == teamID || ch.TeamID == "") {
			return copyChannel(ch), nil
		}
	}
	return nil, &APIError{ID: "app.channel.get.existing.app_error", Message: "channel not found", StatusCode: 404}
}

// GetUser implements resolver.Remote
func (m *MockRemote) GetUser(ctx context.Context, userID string) (*model.User, error) {
	if err := m.record(ctx, MockCall{Op: "get_user", Key: userID}); err != nil {
		return nil, err
	}
	return m.findUser(func(u *model.User) bool { return u.ID == userID })
}

// GetUserByUsername implements resolver.Remote
func (m *MockRemote) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	if err := m.record(ctx, MockCall{Op: "get_user_by_username", Key: username}); err != nil {
		return nil, err
	}
	return m.findUser(func(u *model.User) bool { return u.Username == username })
}

// GetUserByEmail implements resolver.Remote
func (m *MockRemote) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	if err := m.record(ctx, MockCall{Op: "get_user_by_email", Key: email}); err != nil {
		return nil, err
	}
	return m.findUser(func(u *model.User) bool { return u.Email == email })
}

func (m *MockRemote) findUser(match func(*model.User) bool) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, &APIError{ID: "app.user.missing_account.const", Message: "user not found", StatusCode: 404}
}

// OpenDirectChannel implements resolver.DirectOpener. The DM is created on
// first use, like the server does.
func (m *MockRemote) OpenDirectChannel(ctx context.Context, userID string) (*model.Channel, error) {
	if err := m.record(ctx, MockCall{Op: "open_direct_channel", Key: userID}); err != nil {
		return nil, err
	}

	name := model.DirectChannelName(m.me, userID)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.channels {
		if ch.Name == name {
			return copyChannel(ch), nil
		}
	}
	ch := &model.Channel{
		ID:   fmt.Sprintf("dm%024d", len(m.channels)),
		Name: name,
		Type: model.ChannelDirect,
	}
	m.channels[ch.ID] = ch
	return copyChannel(ch), nil
}

func copyChannel(ch *model.Channel) *model.Channel {
	cp := *ch
	return &cp
}

// Test helpers

// AddChannel makes a channel known to the mock server
func (m *MockRemote) AddChannel(ch model.Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.ID] = &ch
}

// AddUser makes a user known to the mock server
func (m *MockRemote) AddUser(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = &u
}

// SetError makes the named operation fail with err (nil clears it)
func (m *MockRemote) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, op)
		return
	}
	m.errs[op] = err
}

// Block makes every subsequent call wait until Unblock is called
func (m *MockRemote) Block() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = make(chan struct{})
}

// Unblock releases calls held by Block
func (m *MockRemote) Unblock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

// CallCount returns the number of recorded calls
func (m *MockRemote) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Calls)
}

// CallsFor returns the recorded calls of one operation
func (m *MockRemote) CallsFor(op string) []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var calls []MockCall
	for _, c := range m.Calls {
		if c.Op == op {
			calls = append(calls, c)
		}
	}
	return calls
}

// ClearCalls clears the recorded calls
func (m *MockRemote) ClearCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

var (
	_ resolver.Remote       = (*MockRemote)(nil)
	_ resolver.DirectOpener = (*MockRemote)(nil)
)
