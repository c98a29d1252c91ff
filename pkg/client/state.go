package client

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mattermost/mattermost-webapp-sub002/pkg/model"
)

// State manages client-side persistent state
type State struct {
	db  *sql.DB
	dir string // Directory where state is stored
}

// OpenState opens or creates the client state database
func OpenState(path string) (*State, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	// Client only needs one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	state := &State{
		db:  db,
		dir: dir,
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return state, nil
}

// migrations are applied in order; the index+1 is stored in user_version
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS Config (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS CachedChannel (
		id           TEXT PRIMARY KEY,
		team_id      TEXT NOT NULL,
		name         TEXT NOT NULL,
		display_name TEXT NOT NULL,
		type         TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS CachedUser (
		id       TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		email    TEXT NOT NULL,
		nickname TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS LastPath (
		team       TEXT PRIMARY KEY,
		path       TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
}

func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		// PRAGMA does not accept bound parameters
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}

// Close closes the state database
func (s *State) Close() error {
	return s.db.Close()
}

// GetConfig retrieves a configuration value
func (s *State) GetConfig(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM Config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetConfig stores a configuration value
func (s *State) SetConfig(key, value string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO Config (key, value) VALUES (?, ?)
	`, key, value)
	return err
}

// GetLastTeam returns the last team the user navigated in
func (s *State) GetLastTeam() string {
	team, _ := s.GetConfig("last_team")
	return team
}

// SetLastTeam stores the last team the user navigated in
func (s *State) SetLastTeam(team string) error {
	return s.SetConfig("last_team", team)
}

// GetLastPath returns the last conversation path opened in a team.
// Returns "" if nothing was opened there yet.
func (s *State) GetLastPath(team string) (string, error) {
	var path string
	err := s.db.QueryRow("SELECT path FROM LastPath WHERE team = ?", team).Scan(&path)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return path, err
}

// SetLastPath records the conversation path last opened in a team
func (s *State) SetLastPath(team, path string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO LastPath (team, path, updated_at) VALUES (?, ?, ?)
	`, team, path, time.Now().Unix())
	return err
}

// SaveCache writes every cached channel and user in one transaction
func (s *State) SaveCache(cache *Cache) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, ch := range cache.Channels() {
		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO CachedChannel (id, team_id, name, display_name, type)
			VALUES (?, ?, ?, ?, ?)
		`, ch.ID, ch.TeamID, ch.Name, ch.DisplayName, string(ch.Type)); err != nil {
			return fmt.Errorf("failed to save channel %s: %w", ch.ID, err)
		}
	}

	for _, u := range cache.Users() {
		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO CachedUser (id, username, email, nickname)
			VALUES (?, ?, ?, ?)
		`, u.ID, u.Username, u.Email, u.Nickname); err != nil {
			return fmt.Errorf("failed to save user %s: %w", u.ID, err)
		}
	}

	return tx.Commit()
}

// LoadCache fills cache with the saved snapshot
func (s *State) LoadCache(cache *Cache) error {
	rows, err := s.db.Query("SELECT id, team_id, name, display_name, type FROM CachedChannel")
	if err != nil {
		return fmt.Errorf("failed to load channels: %w", err)
	}
	for rows.Next() {
		var ch model.Channel
		var chType string
		if err := rows.Scan(&ch.ID, &ch.TeamID, &ch.Name, &ch.DisplayName, &chType); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan channel: %w", err)
		}
		ch.Type = model.ChannelType(chType)
		cache.AddChannel(&ch)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	rows, err = s.db.Query("SELECT id, username, email, nickname FROM CachedUser")
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Nickname); err != nil {
			return fmt.Errorf("failed to scan user: %w", err)
		}
		cache.AddUser(&u)
	}
	return rows.Err()
}

// GetStateDir returns the directory where state is stored
func (s *State) GetStateDir() string {
	return s.dir
}

var _ StateInterface = (*State)(nil)
