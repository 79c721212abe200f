package config

import (
	"fmt"
	"time"
)

// Config represents the application configuration
type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`

	Report   ReportConfig   `mapstructure:"report"`
	Reporter ReporterConfig `mapstructure:"reporter"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	Status   StatusConfig   `mapstructure:"status"`
}

// ReportConfig describes the report server
type ReportConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	BucketID  string        `mapstructure:"bucket_id"` // Empty means aw-watcher-window_<hostname>
	Hostname  string        `mapstructure:"hostname"`  // Empty means os.Hostname()
	PulseTime time.Duration `mapstructure:"pulsetime"`
	RetryMax  int           `mapstructure:"retry_max"`
}

// ReporterConfig controls the polling side
type ReporterConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	IterationTimeout time.Duration `mapstructure:"iteration_timeout"`
	SendTimeout      time.Duration `mapstructure:"send_timeout"`
}

// WatcherConfig controls the protocol thread
type WatcherConfig struct {
	RelayCapacity    int           `mapstructure:"relay_capacity"`
	DispatchInterval time.Duration `mapstructure:"dispatch_interval"`
}

// StatusConfig controls the local status API
type StatusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		LogLevel:  "info",
		LogPretty: true,
		Report: ReportConfig{
			ServerURL: "http://localhost:5600",
			PulseTime: 2 * time.Second,
			RetryMax:  0,
		},
		Reporter: ReporterConfig{
			PollInterval:     time.Second,
			IterationTimeout: time.Second,
			SendTimeout:      800 * time.Millisecond, // margin under the iteration timeout
		},
		Watcher: WatcherConfig{
			RelayCapacity:    32,
			DispatchInterval: 10 * time.Millisecond,
		},
		Status: StatusConfig{
			Enabled: false,
			Host:    "localhost",
			Port:    5680,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Report.ServerURL == "" {
		return fmt.Errorf("report.server_url cannot be empty")
	}
	if c.Report.PulseTime <= 0 {
		return fmt.Errorf("report.pulsetime must be positive, got %v", c.Report.PulseTime)
	}
	if c.Report.RetryMax < 0 {
		return fmt.Errorf("report.retry_max cannot be negative")
	}

	if c.Reporter.PollInterval <= 0 {
		return fmt.Errorf("reporter.poll_interval must be positive, got %v", c.Reporter.PollInterval)
	}
	if c.Reporter.SendTimeout <= 0 {
		return fmt.Errorf("reporter.send_timeout must be positive, got %v", c.Reporter.SendTimeout)
	}
	if c.Reporter.SendTimeout >= c.Reporter.IterationTimeout {
		return fmt.Errorf("reporter.send_timeout (%v) must be shorter than reporter.iteration_timeout (%v)",
			c.Reporter.SendTimeout, c.Reporter.IterationTimeout)
	}

	if c.Watcher.RelayCapacity < 1 {
		return fmt.Errorf("watcher.relay_capacity must be at least 1, got %d", c.Watcher.RelayCapacity)
	}
	if c.Watcher.DispatchInterval <= 0 {
		return fmt.Errorf("watcher.dispatch_interval must be positive, got %v", c.Watcher.DispatchInterval)
	}

	if c.Status.Enabled && (c.Status.Port < 1 || c.Status.Port > 65535) {
		return fmt.Errorf("status.port must be between 1 and 65535, got %d", c.Status.Port)
	}

	return nil
}

// Document is the on-disk shape of Config. Durations are written as
// strings like "800ms" so the file stays readable.
type Document struct {
	LogLevel  string         `yaml:"log_level" json:"log_level"`
	LogPretty bool           `yaml:"log_pretty" json:"log_pretty"`
	Report    reportDoc      `yaml:"report" json:"report"`
	Reporter  reporterDoc    `yaml:"reporter" json:"reporter"`
	Watcher   watcherDoc     `yaml:"watcher" json:"watcher"`
	Status    StatusDocument `yaml:"status" json:"status"`
}

type reportDoc struct {
	ServerURL string `yaml:"server_url" json:"server_url"`
	BucketID  string `yaml:"bucket_id" json:"bucket_id"`
	Hostname  string `yaml:"hostname" json:"hostname"`
	PulseTime string `yaml:"pulsetime" json:"pulsetime"`
	RetryMax  int    `yaml:"retry_max" json:"retry_max"`
}

type reporterDoc struct {
	PollInterval     string `yaml:"poll_interval" json:"poll_interval"`
	IterationTimeout string `yaml:"iteration_timeout" json:"iteration_timeout"`
	SendTimeout      string `yaml:"send_timeout" json:"send_timeout"`
}

type watcherDoc struct {
	RelayCapacity    int    `yaml:"relay_capacity" json:"relay_capacity"`
	DispatchInterval string `yaml:"dispatch_interval" json:"dispatch_interval"`
}

// StatusDocument mirrors StatusConfig
type StatusDocument struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port"`
}

// Document converts the config into its serializable form
func (c *Config) Document() Document {
	return Document{
		LogLevel:  c.LogLevel,
		LogPretty: c.LogPretty,
		Report: reportDoc{
			ServerURL: c.Report.ServerURL,
			BucketID:  c.Report.BucketID,
			Hostname:  c.Report.Hostname,
			PulseTime: c.Report.PulseTime.String(),
			RetryMax:  c.Report.RetryMax,
		},
		Reporter: reporterDoc{
			PollInterval:     c.Reporter.PollInterval.String(),
			IterationTimeout: c.Reporter.IterationTimeout.String(),
			SendTimeout:      c.Reporter.SendTimeout.String(),
		},
		Watcher: watcherDoc{
			RelayCapacity:    c.Watcher.RelayCapacity,
			DispatchInterval: c.Watcher.DispatchInterval.String(),
		},
		Status: StatusDocument{
			Enabled: c.Status.Enabled,
			Host:    c.Status.Host,
			Port:    c.Status.Port,
		},
	}
}
