package client

import (
	"sort"
	"strings"
	"sync"

	"github.com/mattermost/mattermost-webapp-sub002/pkg/model"
	"github.com/mattermost/mattermost-webapp-sub002/pkg/resolver"
)

// Cache is the in-memory entity store the resolvers read from.
// Writers are the API client (after successful fetches), the websocket
// event listener and the persisted state on startup.
type Cache struct {
	mu sync.RWMutex

	channelsByID   map[string]*model.Channel
	channelsByName map[string]*model.Channel // teamID + "/" + name
	usersByID      map[string]*model.User
	usersByName    map[string]*model.User
	usersByEmail   map[string]*model.User
	teamIDsByName  map[string]string

	currentUserID string
	currentTeamID string
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{
		channelsByID:   make(map[string]*model.Channel),
		channelsByName: make(map[string]*model.Channel),
		usersByID:      make(map[string]*model.User),
		usersByName:    make(map[string]*model.User),
		usersByEmail:   make(map[string]*model.User),
		teamIDsByName:  make(map[string]string),
	}
}

func channelNameKey(teamID, name string) string {
	return teamID + "/" + name
}

// AddChannel inserts or replaces a channel.
// DM and GM channels have no team and are indexed under every team lookup.
func (c *Cache) AddChannel(ch *model.Channel) {
	if ch == nil || ch.ID == "" {
		return
	}
	cp := *ch

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.channelsByID[cp.ID]; ok && old.Name != cp.Name {
		delete(c.channelsByName, channelNameKey(old.TeamID, old.Name))
	}
	c.channelsByID[cp.ID] = &cp
	c.channelsByName[channelNameKey(cp.TeamID, cp.Name)] = &cp
}

// RemoveChannel drops a channel from the cache
func (c *Cache) RemoveChannel(channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, ok := c.channelsByID[channelID]; ok {
		delete(c.channelsByName, channelNameKey(ch.TeamID, ch.Name))
		delete(c.channelsByID, channelID)
	}
}

// AddUser inserts or replaces a user
func (c *Cache) AddUser(u *model.User) {
	if u == nil || u.ID == "" {
		return
	}
	cp := *u

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.usersByID[cp.ID]; ok {
		delete(c.usersByName, strings.ToLower(old.Username))
		if old.Email != "" {
			delete(c.usersByEmail, strings.ToLower(old.Email))
		}
	}
	c.usersByID[cp.ID] = &cp
	c.usersByName[strings.ToLower(cp.Username)] = &cp
	if cp.Email != "" {
		c.usersByEmail[strings.ToLower(cp.Email)] = &cp
	}
}

// SetCurrentUser records the logged-in user and caches it
func (c *Cache) SetCurrentUser(u *model.User) {
	c.AddUser(u)
	c.mu.Lock()
	defer c.mu.Unlock()
	if u != nil {
		c.currentUserID = u.ID
	}
}

// SetCurrentTeamID records the team the user is viewing
func (c *Cache) SetCurrentTeamID(teamID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTeamID = teamID
}

// AddTeam remembers a team's id under its URL name
func (c *Cache) AddTeam(team *model.Team) {
	if team == nil || team.ID == "" || team.Name == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teamIDsByName[team.Name] = team.ID
}

// TeamIDByName returns the id of a team seen before
func (c *Cache) TeamIDByName(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.teamIDsByName[name]
	return id, ok
}

// ChannelByID implements resolver.Store
func (c *Cache) ChannelByID(id string) (*model.Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.channelsByID[id]
	return ch, ok
}

// ChannelByName implements resolver.Store. Team-less channels (DM/GM)
// match regardless of the requested team.
func (c *Cache) ChannelByName(teamID, name string) (*model.Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if ch, ok := c.channelsByName[channelNameKey(teamID, name)]; ok {
		return ch, true
	}
	ch, ok := c.channelsByName[channelNameKey("", name)]
	return ch, ok
}

// UserByID implements resolver.Store
func (c *Cache) UserByID(id string) (*model.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.usersByID[id]
	return u, ok
}

// UserByUsername implements resolver.Store (case-insensitive)
func (c *Cache) UserByUsername(username string) (*model.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.usersByName[strings.ToLower(username)]
	return u, ok
}

// UserByEmail implements resolver.Store (case-insensitive)
func (c *Cache) UserByEmail(email string) (*model.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.usersByEmail[strings.ToLower(email)]
	return u, ok
}

// CurrentUserID implements resolver.Store
func (c *Cache) CurrentUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentUserID
}

// CurrentTeamID implements resolver.Store
func (c *Cache) CurrentTeamID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentTeamID
}

// Users returns a snapshot of all cached users sorted by username
func (c *Cache) Users() []model.User {
	c.mu.RLock()
	defer c.mu.RUnlock()

	users := make([]model.User, 0, len(c.usersByID))
	for _, u := range c.usersByID {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}

// Channels returns a snapshot of all cached channels sorted by name
func (c *Cache) Channels() []model.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()

	channels := make([]model.Channel, 0, len(c.channelsByID))
	for _, ch := range c.channelsByID {
		channels = append(channels, *ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].Name < channels[j].Name })
	return channels
}

var _ resolver.Store = (*Cache)(nil)
