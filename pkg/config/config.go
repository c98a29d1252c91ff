package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/mattermost/mattermost-webapp-sub002/pkg/model"
)

// DefaultPath is where the config file lives unless --config says otherwise
const DefaultPath = "~/.mmlink/config.toml"

// Config represents the structure of the config file
type Config struct {
	Server        ServerSection        `toml:"server"`
	Navigation    NavigationSection    `toml:"navigation"`
	State         StateSection         `toml:"state"`
	Metrics       MetricsSection       `toml:"metrics"`
	Notifications NotificationsSection `toml:"notifications"`
}

type ServerSection struct {
	URL                   string `toml:"url"`
	Token                 string `toml:"token"`
	Team                  string `toml:"team"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

type NavigationSection struct {
	DefaultChannel string `toml:"default_channel"`
}

type StateSection struct {
	DatabasePath string `toml:"database_path"`
}

type MetricsSection struct {
	ListenAddress string `toml:"listen_address"`
}

type NotificationsSection struct {
	Enabled  bool   `toml:"enabled"`
	IconPath string `toml:"icon_path"`
}

// Default returns the default configuration
func Default() Config {
	return Config{
		Server: ServerSection{
			URL:                   "http://localhost:8065",
			RequestTimeoutSeconds: 30,
		},
		Navigation: NavigationSection{
			DefaultChannel: model.DefaultChannelName,
		},
		State: StateSection{
			DatabasePath: "~/.mmlink/state.db",
		},
		Notifications: NotificationsSection{
			Enabled: true,
		},
	}
}

// Load loads configuration from a TOML file, creates a documented default
// file if none exists, and applies environment variable overrides
func Load(path string) (Config, error) {
	path, err := ExpandHome(path)
	if err != nil {
		return Config{}, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := Default()
		// A read-only home still gets working defaults
		_ = writeDefault(path)
		return applyEnvOverrides(config), nil
	}

	// Fields missing from the file keep their defaults
	config := Default()
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return applyEnvOverrides(config), nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables follow the pattern MMLINK_SECTION_KEY,
// e.g. MMLINK_SERVER_URL=https://chat.example.com
func applyEnvOverrides(config Config) Config {
	if val := os.Getenv("MMLINK_SERVER_URL"); val != "" {
		config.Server.URL = val
	}
	if val := os.Getenv("MMLINK_SERVER_TOKEN"); val != "" {
		config.Server.Token = val
	}
	if val := os.Getenv("MMLINK_SERVER_TEAM"); val != "" {
		config.Server.Team = val
	}
	if val := os.Getenv("MMLINK_SERVER_REQUEST_TIMEOUT_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			config.Server.RequestTimeoutSeconds = seconds
		}
	}

	if val := os.Getenv("MMLINK_NAVIGATION_DEFAULT_CHANNEL"); val != "" {
		config.Navigation.DefaultChannel = val
	}

	if val := os.Getenv("MMLINK_STATE_DATABASE_PATH"); val != "" {
		config.State.DatabasePath = val
	}

	if val := os.Getenv("MMLINK_METRICS_LISTEN_ADDRESS"); val != "" {
		config.Metrics.ListenAddress = val
	}

	if val := os.Getenv("MMLINK_NOTIFICATIONS_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			config.Notifications.Enabled = enabled
		}
	}
	if val := os.Getenv("MMLINK_NOTIFICATIONS_ICON_PATH"); val != "" {
		config.Notifications.IconPath = val
	}

	return config
}

// Validate reports settings that make the client unusable
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.URL) == "" {
		errs = append(errs, errors.New("server.url is required"))
	}
	if c.Server.RequestTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("server.request_timeout_seconds must not be negative, got %d", c.Server.RequestTimeoutSeconds))
	}
	if strings.ContainsAny(c.Navigation.DefaultChannel, "/ ") {
		errs = append(errs, fmt.Errorf("navigation.default_channel %q is not a channel name", c.Navigation.DefaultChannel))
	}
	return errors.Join(errs...)
}

// RequestTimeout returns the per-request timeout
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// GetDatabasePath returns the state database path with ~ expanded
func (c *Config) GetDatabasePath() (string, error) {
	return ExpandHome(c.State.DatabasePath)
}

// ExpandHome expands a leading "~/" to the user's home directory
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, path[2:]), nil
}

// writeDefault writes the default config to a file with all options documented
func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file holds a token once edited
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	content := `# mmlink configuration
# This file was auto-generated with default values
# Commented settings show available options with their defaults
#
# Environment variables can override these settings:
# MMLINK_SECTION_KEY (e.g., MMLINK_SERVER_URL=https://chat.example.com)

[server]
# Base URL of the chat server
url = "http://localhost:8065"

# Personal access token or session token
# token = ""

# Team to start in (the team's URL name, not its display name)
# team = "myteam"

# Per-request timeout in seconds (0 = no timeout)
request_timeout_seconds = 30

[navigation]
# Channel to fall back to when a link cannot be opened
default_channel = "town-square"

[state]
# Path to the SQLite database caching channels, users and last locations
database_path = "~/.mmlink/state.db"

[metrics]
# Serve Prometheus metrics on this address (empty = disabled)
# listen_address = "127.0.0.1:9465"

[notifications]
# Show a desktop notification when a link cannot be opened
enabled = true

# Icon shown next to notifications
# icon_path = ""
`

	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
