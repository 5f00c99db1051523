// Package config loads and stores the daemon configuration as JSON under
// the XDG config directory.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
)

const (
	appName    = "twitch-sentry"
	configFile = "config.json"
)

// Config holds the daemon configuration.
type Config struct {
	ClientID string `json:"client_id"`
	// Channels is the list of channel logins to watch.
	Channels []string `json:"channels"`
	// KeepaliveTimeoutSec, when non-zero, is requested from the server and
	// must lie in [10, 600].
	KeepaliveTimeoutSec int  `json:"keepalive_timeout_sec,omitempty"`
	NotifyOnLive        bool `json:"notify_on_live"`
	NotifyOnCategory    bool `json:"notify_on_category"`
	// ReconnectMaxDelaySec caps the reconnect backoff.
	ReconnectMaxDelaySec int `json:"reconnect_max_delay_sec"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		NotifyOnLive:         true,
		NotifyOnCategory:     true,
		ReconnectMaxDelaySec: 30,
	}
}

// Manager handles configuration loading and saving.
type Manager struct {
	mu       sync.RWMutex
	config   Config
	filePath string
}

// NewManager creates a manager and loads any existing config file.
func NewManager() (*Manager, error) {
	configPath, err := xdg.ConfigFile(filepath.Join(appName, configFile))
	if err != nil {
		return nil, err
	}

	m := &Manager{
		config:   DefaultConfig(),
		filePath: configPath,
	}
	if err := m.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return m, nil
}

// Load reads the configuration from disk, merging defaults for unset
// fields.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		return err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return err
	}
	if cfg.ReconnectMaxDelaySec == 0 {
		cfg.ReconnectMaxDelaySec = DefaultConfig().ReconnectMaxDelaySec
	}

	m.config = cfg
	return nil
}

// Save writes the configuration to disk.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(m.filePath), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.filePath, data, 0600)
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetChannels replaces the watch list and saves.
func (m *Manager) SetChannels(channels []string) error {
	m.mu.Lock()
	m.config.Channels = channels
	m.mu.Unlock()
	return m.Save()
}

// SetClientID updates the client ID and saves.
func (m *Manager) SetClientID(clientID string) error {
	m.mu.Lock()
	m.config.ClientID = clientID
	m.mu.Unlock()
	return m.Save()
}

// FilePath returns the path of the config file.
func (m *Manager) FilePath() string {
	return m.filePath
}
