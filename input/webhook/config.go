package webhook

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/SimioLLC/WebAPISync/errors"
)

// Config holds webhook receiver settings
type Config struct {
	// BaseURL is the listening prefix, for example http://localhost:54000/.
	// Its host:port is the listen address and its path the route.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// PersistMessages keeps every message until drained. When false only the
	// most recent message is kept.
	PersistMessages bool `yaml:"persist_messages" json:"persist_messages"`

	MaxBodyBytes    int64         `yaml:"max_body_bytes" json:"max_body_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig returns the receiver defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:         "http://localhost:54000",
		PersistMessages: true,
		MaxBodyBytes:    32 << 20,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if _, _, err := c.endpoint(); err != nil {
		return err
	}
	if c.MaxBodyBytes < 0 {
		return errors.WrapInvalid(fmt.Errorf("max_body_bytes %d is negative", c.MaxBodyBytes),
			"Config", "Validate", "body limit validation")
	}
	return nil
}

// endpoint splits BaseURL into a listen address and a route path.
func (c Config) endpoint() (addr, path string, err error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", "", errors.WrapInvalid(err, "Config", "endpoint", "parse base URL")
	}
	if u.Scheme != "http" {
		return "", "", errors.WrapInvalid(fmt.Errorf("unsupported scheme %q in %s", u.Scheme, c.BaseURL),
			"Config", "endpoint", "scheme validation")
	}

	host, port := u.Hostname(), u.Port()
	if host == "" {
		return "", "", errors.WrapInvalid(fmt.Errorf("base URL %s has no host", c.BaseURL),
			"Config", "endpoint", "host validation")
	}
	if port == "" {
		port = "80"
	}
	if host == "+" || host == "*" {
		host = ""
	}

	path = "/" + strings.Trim(u.Path, "/")
	return net.JoinHostPort(host, port), path, nil
}
