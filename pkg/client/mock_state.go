package client

import (
	"sync"

	"github.com/mattermost/mattermost-webapp-sub002/pkg/model"
)

// MockState is an in-memory test implementation of StateInterface
type MockState struct {
	mu sync.RWMutex

	// In-memory storage
	config    map[string]string
	lastPaths map[string]string
	channels  []model.Channel
	users     []model.User
	dir       string

	// Error injection
	getConfigErr   error
	setConfigErr   error
	setLastPathErr error
	saveCacheErr   error
}

// NewMockState creates a new mock state
func NewMockState() *MockState {
	return &MockState{
		config:    make(map[string]string),
		lastPaths: make(map[string]string),
		dir:       "/tmp/mock-state",
	}
}

// GetConfig retrieves a configuration value
func (s *MockState) GetConfig(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.getConfigErr != nil {
		return "", s.getConfigErr
	}

	return s.config[key], nil
}

// SetConfig stores a configuration value
func (s *MockState) SetConfig(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.setConfigErr != nil {
		return s.setConfigErr
	}

	s.config[key] = value
	return nil
}

// GetLastTeam returns the last team the user navigated in
func (s *MockState) GetLastTeam() string {
	team, _ := s.GetConfig("last_team")
	return team
}

// SetLastTeam stores the last team the user navigated in
func (s *MockState) SetLastTeam(team string) error {
	return s.SetConfig("last_team", team)
}

// GetLastPath returns the last conversation path opened in a team
func (s *MockState) GetLastPath(team string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPaths[team], nil
}

// SetLastPath records the conversation path last opened in a team
func (s *MockState) SetLastPath(team, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.setLastPathErr != nil {
		return s.setLastPathErr
	}

	s.lastPaths[team] = path
	return nil
}

// SaveCache snapshots the cache contents
func (s *MockState) SaveCache(cache *Cache) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveCacheErr != nil {
		return s.saveCacheErr
	}

	s.channels = cache.Channels()
	s.users = cache.Users()
	return nil
}

// LoadCache restores the last snapshot into cache
func (s *MockState) LoadCache(cache *Cache) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.channels {
		cache.AddChannel(&s.channels[i])
	}
	for i := range s.users {
		cache.AddUser(&s.users[i])
	}
	return nil
}

// GetStateDir returns the directory where state is stored
func (s *MockState) GetStateDir() string {
	return s.dir
}

// Close closes the mock state (no-op for in-memory)
func (s *MockState) Close() error {
	return nil
}

// Test helpers

// SetGetConfigError sets an error to return from GetConfig()
func (s *MockState) SetGetConfigError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getConfigErr = err
}

// SetSetConfigError sets an error to return from SetConfig()
func (s *MockState) SetSetConfigError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setConfigErr = err
}

// SetSetLastPathError sets an error to return from SetLastPath()
func (s *MockState) SetSetLastPathError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLastPathErr = err
}

// SetSaveCacheError sets an error to return from SaveCache()
func (s *MockState) SetSaveCacheError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCacheErr = err
}

// GetAllLastPaths returns all recorded last paths (for testing)
func (s *MockState) GetAllLastPaths() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]string)
	for k, v := range s.lastPaths {
		result[k] = v
	}
	return result
}

// Verify that MockState implements StateInterface
var _ StateInterface = (*MockState)(nil)
