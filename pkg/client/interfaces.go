package client

// StateInterface defines the interface for client state persistence
// This allows for mocking in tests while the real State implements all these methods
type StateInterface interface {
	// Configuration
	GetConfig(key string) (string, error)
	SetConfig(key, value string) error

	// Last team the user navigated in
	GetLastTeam() string
	SetLastTeam(team string) error

	// Last successfully opened conversation path per team
	GetLastPath(team string) (string, error)
	SetLastPath(team, path string) error

	// Entity cache snapshot for warm starts
	SaveCache(cache *Cache) error
	LoadCache(cache *Cache) error

	// State directory
	GetStateDir() string

	// Close the state
	Close() error
}
