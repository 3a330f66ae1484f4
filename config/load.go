package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/SimioLLC/WebAPISync/errors"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "WEBAPISYNC"

// Load reads a YAML (or JSON) file over the defaults, applies environment
// overrides and validates the result. An empty path loads the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := safeReadFile(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "read config file")
		}
		if err := Decode(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", fmt.Sprintf("decode %s", path))
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode merges YAML data into cfg. Keys absent from data keep their
// current values. Unknown keys are rejected.
func Decode(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

// ApplyEnv applies WEBAPISYNC_* environment overrides
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"BASE_URL":      &c.Receiver.BaseURL,
		"STYLESHEET":    &c.Drain.Stylesheet,
		"MERGE_POLICY":  &c.Drain.MergePolicy,
		"BINDING":       &c.Drain.Binding,
		"TRIGGER":       &c.Drain.Trigger,
		"DB_DRIVER":     &c.Destination.Driver,
		"DB_DSN":        &c.Destination.DSN,
		"DB_TABLE":      &c.Destination.Table,
		"METRICS_ADDR":  &c.Metrics.Addr,
		"NATS_URL":      &c.NATS.URL,
		"NATS_SUBJECT":  &c.NATS.Subject,
		"NATS_USERNAME": &c.NATS.Username,
		"NATS_PASSWORD": &c.NATS.Password,
		"NATS_TOKEN":    &c.NATS.Token,
		"LOG_LEVEL":     &c.Log.Level,
		"LOG_FORMAT":    &c.Log.Format,
	}
	for key, dst := range strs {
		val, ok, err := lookupEnv(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = val
		}
	}

	bools := map[string]*bool{
		"PERSIST_MESSAGES": &c.Receiver.PersistMessages,
		"CLEAR_ROWS":       &c.Drain.ClearRows,
		"METRICS_ENABLED":  &c.Metrics.Enabled,
		"NATS_ENABLED":     &c.NATS.Enabled,
	}
	for key, dst := range bools {
		val, ok, err := lookupEnv(key)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		b, err := cast.ToBoolE(val)
		if err != nil {
			return errors.WrapInvalid(err, "Config", "ApplyEnv", fmt.Sprintf("parse %s_%s", EnvPrefix, key))
		}
		*dst = b
	}

	if val, ok, err := lookupEnv("INTERVAL"); err != nil {
		return err
	} else if ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			return errors.WrapInvalid(err, "Config", "ApplyEnv", fmt.Sprintf("parse %s_INTERVAL", EnvPrefix))
		}
		c.Drain.Interval = d
	}
	return nil
}

func lookupEnv(key string) (string, bool, error) {
	name := EnvPrefix + "_" + key
	val, ok := os.LookupEnv(name)
	if !ok || val == "" {
		return "", false, nil
	}
	if err := validateEnvVar(name, val); err != nil {
		return "", false, errors.WrapInvalid(err, "Config", "ApplyEnv", "validate environment")
	}
	return val, true, nil
}

// String returns a YAML representation of the config with secrets removed
func (c *Config) String() string {
	redacted := c.Clone()
	if redacted.NATS.Password != "" {
		redacted.NATS.Password = "***"
	}
	if redacted.NATS.Token != "" {
		redacted.NATS.Token = "***"
	}
	data, _ := yaml.Marshal(redacted)
	return string(data)
}
