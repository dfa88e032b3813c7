// Package config provides configuration management for the remote input
// service.
package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// Config represents the application configuration
type Config struct {
	// Device describes this machine's identity on the wire
	Device DeviceConfig `json:"device"`

	// Network contains discovery and transport settings
	Network NetworkConfig `json:"network"`

	// General contains general application settings
	General GeneralConfig `json:"general"`
}

// DeviceConfig is the identity payload presented to peers
type DeviceConfig struct {
	// ID is the stable device identifier, generated on first run
	ID string `json:"id"`

	// Name is the human-readable device name shown on the peer
	Name string `json:"name"`

	// Type is the device class, e.g. "desktop" or "tablet"
	Type string `json:"type"`
}

// NetworkConfig contains discovery and transport settings
type NetworkConfig struct {
	// EventPort is the TCP port the host accepts event streams on
	EventPort int `json:"event_port"`

	// BeaconPort is the UDP port presence beacons are sent to
	BeaconPort int `json:"beacon_port"`

	// BroadcastAddr overrides the beacon destination (default broadcast)
	BroadcastAddr string `json:"broadcast_addr,omitempty"`

	// RangingSocket is the proximity ranging daemon socket path; empty
	// disables the proximity transport probe
	RangingSocket string `json:"ranging_socket,omitempty"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	// Role determines if this machine is a "host" or "client"
	Role string `json:"role"`

	// StartOnBoot determines if the service starts on login
	StartOnBoot bool `json:"start_on_boot"`

	// AutoConnect makes the client connect to the first discovered host
	AutoConnect bool `json:"auto_connect"`

	// AutoAccept makes the host accept inbound sessions without asking
	AutoAccept bool `json:"auto_accept"`

	// APIEnabled enables the local HTTP status API
	APIEnabled bool `json:"api_enabled"`

	// APIPort is the port for the status API (default: 18411)
	APIPort int `json:"api_port"`

	// APIToken is an optional authentication token for API requests
	APIToken string `json:"api_token,omitempty"`
}

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "deskpad"
	}
	return &Config{
		Device: DeviceConfig{
			Name: name,
			Type: "desktop",
		},
		Network: NetworkConfig{
			EventPort:  35712,
			BeaconPort: 35711,
		},
		General: GeneralConfig{
			Role:        "host",
			AutoConnect: true,
			AutoAccept:  true,
			APIEnabled:  true,
			APIPort:     18411,
		},
	}
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	onChanged  func()
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	return &Manager{
		configPath: configPath,
		config:     DefaultConfig(),
	}, nil
}

// NewManagerAt creates a manager bound to an explicit config file path.
func NewManagerAt(path string) *Manager {
	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
	}
}

// getConfigPath returns the path to the configuration file
func getConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "deskpad")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "deskpad")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config", "deskpad")
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}

	return filepath.Join(configDir, "config.json"), nil
}

// Load reads the configuration from disk
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		// No config file, use defaults
		return nil
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, m.config); err != nil {
		return err
	}
	if m.onChanged != nil {
		m.onChanged()
	}
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return err
	}

	log.Printf("Config: Saving configuration to %s (%d bytes)", m.configPath, len(data))
	return os.WriteFile(m.configPath, data, 0644)
}

// Get returns the current configuration
func (m *Manager) Get() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Set updates the configuration
func (m *Manager) Set(config *Config) {
	m.mu.Lock()
	m.config = config
	m.mu.Unlock()
	if m.onChanged != nil {
		m.onChanged()
	}
}

// RegisterChangeCallback registers a function to be called when config changes
func (m *Manager) RegisterChangeCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}

// EnsureDeviceID assigns a generated device ID if none is stored yet. It
// returns true when the ID was newly assigned and needs saving.
func (m *Manager) EnsureDeviceID(generate func() string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config.Device.ID != "" {
		return false
	}
	m.config.Device.ID = generate()
	log.Printf("Config: Assigned device ID %s", m.config.Device.ID)
	return true
}
