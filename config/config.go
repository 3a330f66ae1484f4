package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cast"

	"github.com/SimioLLC/WebAPISync/errors"
	"github.com/SimioLLC/WebAPISync/input/webhook"
	"github.com/SimioLLC/WebAPISync/processor/materialize"
	"github.com/SimioLLC/WebAPISync/processor/merge"
	"github.com/SimioLLC/WebAPISync/table"
)

// Destination drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Drain triggers
const (
	TriggerArrival  = "arrival"  // drain once per accepted request
	TriggerInterval = "interval" // drain on a fixed period
)

// Config represents the complete application configuration
type Config struct {
	Receiver    webhook.Config    `yaml:"receiver" json:"receiver"`
	Drain       DrainConfig       `yaml:"drain" json:"drain"`
	Destination DestinationConfig `yaml:"destination" json:"destination"`
	Metrics     MetricsConfig     `yaml:"metrics" json:"metrics"`
	NATS        NATSConfig        `yaml:"nats" json:"nats"`
	Log         LogConfig         `yaml:"log" json:"log"`
}

// DrainConfig controls how buffered messages reach the destination table
type DrainConfig struct {
	// ClearRows removes the destination rows before each non-empty drain.
	ClearRows bool `yaml:"clear_rows" json:"clear_rows"`
	// Stylesheet is a path to the stylesheet file; empty means identity.
	Stylesheet  string        `yaml:"stylesheet" json:"stylesheet,omitempty"`
	MergePolicy string        `yaml:"merge_policy" json:"merge_policy"`
	Binding     string        `yaml:"binding" json:"binding"`
	Trigger     string        `yaml:"trigger" json:"trigger"`
	Interval    time.Duration `yaml:"interval" json:"interval,omitempty"`
}

// ColumnConfig declares one destination column
type ColumnConfig struct {
	Name string `yaml:"name" json:"name"`
	Kind string `yaml:"kind" json:"kind"`
}

// DestinationConfig describes the destination table
type DestinationConfig struct {
	Driver  string         `yaml:"driver" json:"driver"`
	DSN     string         `yaml:"dsn" json:"dsn,omitempty"`
	Table   string         `yaml:"table" json:"table"`
	Columns []ColumnConfig `yaml:"columns" json:"columns"`
	// Epoch is the reference time for date-time cells set from an hours
	// offset. Empty means 2000-01-01 UTC.
	Epoch string `yaml:"epoch" json:"epoch,omitempty"`
}

// MetricsConfig defines the metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}

// NATSConfig defines the optional NATS tap
type NATSConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled"`
	URL           string        `yaml:"url" json:"url"`
	Subject       string        `yaml:"subject" json:"subject"`
	Username      string        `yaml:"username" json:"username,omitempty"`
	Password      string        `yaml:"password" json:"-"`
	Token         string        `yaml:"token" json:"-"`
	MaxReconnects int           `yaml:"max_reconnects" json:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait" json:"reconnect_wait"`
	PingInterval  time.Duration `yaml:"ping_interval" json:"ping_interval"`
	DrainTimeout  time.Duration `yaml:"drain_timeout" json:"drain_timeout"`
}

// LogConfig selects the log handler
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Receiver: webhook.DefaultConfig(),
		Drain: DrainConfig{
			ClearRows:   true,
			MergePolicy: "positional",
			Binding:     "position",
			Trigger:     TriggerArrival,
		},
		Destination: DestinationConfig{
			Driver:  DriverMemory,
			Table:   "Messages",
			Columns: []ColumnConfig{{Name: "Value", Kind: "string"}},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
			Path:    "/metrics",
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Subject:       "webapisync.messages",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			PingInterval:  30 * time.Second,
			DrainTimeout:  5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	copied := *c
	copied.Destination.Columns = append([]ColumnConfig(nil), c.Destination.Columns...)
	return &copied
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if err := c.Receiver.Validate(); err != nil {
		return fmt.Errorf("receiver: %w", err)
	}
	if err := c.Drain.validate(); err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	if err := c.Destination.validate(); err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return invalid("metrics.path must start with /")
	}
	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return invalid("nats.url is required when the tap is enabled")
		}
		if c.NATS.Subject == "" || strings.ContainsAny(c.NATS.Subject, " \t*>") {
			return invalid(fmt.Sprintf("nats.subject %q is not a valid publish subject", c.NATS.Subject))
		}
		if c.NATS.PingInterval < 0 || c.NATS.DrainTimeout < 0 {
			return invalid("nats.ping_interval and nats.drain_timeout must not be negative")
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return invalid(fmt.Sprintf("log.level %q is not one of debug, info, warn or error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return invalid(fmt.Sprintf("log.format %q must be json or text", c.Log.Format))
	}
	return nil
}

func (d DrainConfig) validate() error {
	if _, err := merge.ParsePolicy(d.MergePolicy); err != nil {
		return err
	}
	if _, err := materialize.ParseBinding(d.Binding); err != nil {
		return err
	}
	switch d.Trigger {
	case "", TriggerArrival:
	case TriggerInterval:
		if d.Interval <= 0 {
			return invalid("interval trigger requires a positive interval")
		}
	default:
		return invalid(fmt.Sprintf("unknown trigger %q", d.Trigger))
	}
	return nil
}

func (d DestinationConfig) validate() error {
	switch d.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if d.DSN == "" {
			return invalid(fmt.Sprintf("dsn is required for driver %s", d.Driver))
		}
	default:
		return invalid(fmt.Sprintf("unknown driver %q", d.Driver))
	}
	if d.Table == "" {
		return invalid("table is required")
	}
	if _, err := d.ColumnSpecs(); err != nil {
		return err
	}
	if _, err := d.EpochTime(); err != nil {
		return err
	}
	return nil
}

// ColumnSpecs converts the column declarations into table column specs.
func (d DestinationConfig) ColumnSpecs() ([]table.ColumnSpec, error) {
	if len(d.Columns) == 0 {
		return nil, invalid("at least one column is required")
	}
	seen := make(map[string]bool, len(d.Columns))
	specs := make([]table.ColumnSpec, 0, len(d.Columns))
	for i, c := range d.Columns {
		if c.Name == "" {
			return nil, invalid(fmt.Sprintf("columns[%d] has no name", i))
		}
		if seen[c.Name] {
			return nil, invalid(fmt.Sprintf("column %q declared twice", c.Name))
		}
		seen[c.Name] = true
		kind, err := table.ParseKind(c.Kind)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Config", "ColumnSpecs", fmt.Sprintf("parse kind of column %s", c.Name))
		}
		specs = append(specs, table.ColumnSpec{Name: c.Name, Kind: kind})
	}
	return specs, nil
}

// EpochTime parses Epoch, falling back to table.DefaultEpoch.
func (d DestinationConfig) EpochTime() (time.Time, error) {
	if d.Epoch == "" {
		return table.DefaultEpoch, nil
	}
	t, err := cast.ToTimeInDefaultLocationE(d.Epoch, time.UTC)
	if err != nil {
		return time.Time{}, errors.WrapInvalid(err, "Config", "EpochTime", "parse epoch")
	}
	return t, nil
}

func invalid(msg string) error {
	return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", msg)
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return invalid("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg.Clone()
	return nil
}
