package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bryanchriswhite/FocusWatcher/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. FOCUSWATCHER_LOG_LEVEL or
// FOCUSWATCHER_REPORT_SERVER_URL
const EnvPrefix = "FOCUSWATCHER"

// Manager handles configuration
type Manager struct {
	configPath string
	v          *viper.Viper
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/focuswatcher/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "focuswatcher", "config.yaml"), nil
}

// NewManager loads configFile, or the default path when empty. A missing
// file is created with the defaults.
func NewManager(configFile string) (*Manager, error) {
	log := logger.WithComponent("config")

	configPath := configFile
	if configPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}

	m := &Manager{
		configPath: configPath,
		v:          newViper(configPath),
	}

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		log.Info().
			Str("path", configPath).
			Msg("Config file not found, creating new config")
		if err := m.write(Defaults()); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	if err := m.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := m.reload(); err != nil {
		return nil, err
	}

	log.Info().
		Str("path", m.configPath).
		Str("server_url", m.config.Report.ServerURL).
		Msg("Config loaded")

	return m, nil
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Defaults()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_pretty", d.LogPretty)
	v.SetDefault("report.server_url", d.Report.ServerURL)
	v.SetDefault("report.bucket_id", d.Report.BucketID)
	v.SetDefault("report.hostname", d.Report.Hostname)
	v.SetDefault("report.pulsetime", d.Report.PulseTime)
	v.SetDefault("report.retry_max", d.Report.RetryMax)
	v.SetDefault("reporter.poll_interval", d.Reporter.PollInterval)
	v.SetDefault("reporter.iteration_timeout", d.Reporter.IterationTimeout)
	v.SetDefault("reporter.send_timeout", d.Reporter.SendTimeout)
	v.SetDefault("watcher.relay_capacity", d.Watcher.RelayCapacity)
	v.SetDefault("watcher.dispatch_interval", d.Watcher.DispatchInterval)
	v.SetDefault("status.enabled", d.Status.Enabled)
	v.SetDefault("status.host", d.Status.Host)
	v.SetDefault("status.port", d.Status.Port)
	return v
}

// reload decodes viper's current state and swaps it in if valid
func (m *Manager) reload() error {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg := *m.config
	return &cfg
}

// GetViper exposes the underlying viper instance for flag bindings and
// key lookups
func (m *Manager) GetViper() *viper.Viper {
	return m.v
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// Set updates a single key and persists the result. The change is rejected
// if it would make the config invalid.
func (m *Manager) Set(key string, value interface{}) error {
	prev := m.v.Get(key)
	m.v.Set(key, value)
	if err := m.reload(); err != nil {
		m.v.Set(key, prev)
		return err
	}
	return m.Save()
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	return m.write(m.Get())
}

func (m *Manager) write(cfg *Config) error {
	log := logger.WithComponent("config")

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg.Document())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	log.Debug().Str("path", m.configPath).Msg("Config saved")
	return nil
}

// Watch reloads the config whenever the file changes and calls onChange with
// the new value. Invalid edits are logged and ignored.
func (m *Manager) Watch(onChange func(*Config)) {
	log := logger.WithComponent("config")

	m.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if err := m.reload(); err != nil {
			log.Warn().Err(err).Str("path", e.Name).Msg("Ignoring config change")
			return
		}
		log.Info().Str("path", e.Name).Msg("Config reloaded")
		if onChange != nil {
			onChange(m.Get())
		}
	})
	m.v.WatchConfig()
}
