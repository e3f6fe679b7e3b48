package canary

import (
	"errors"
	"net"
	"net/url"
	"strings"
	"time"
)

const defaultViewsPort = "55235"

// Config captures how to reach the Canary Views web API.
type Config struct {
	Host     string        `yaml:"host"`
	Timeout  time.Duration `yaml:"timeout"`
	LiveMode string        `yaml:"live_mode"`
}

func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.LiveMode == "" {
		c.LiveMode = "CurrentValue"
	}
}

func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("host is required")
	}
	_, err := c.BaseURL()
	return err
}

// BaseURL resolves Host into the API root. A bare host gets http:// and the
// default Views port.
func (c *Config) BaseURL() (*url.URL, error) {
	raw := strings.TrimRight(c.Host, "/")
	if !strings.Contains(raw, "://") {
		host := raw
		if _, _, err := net.SplitHostPort(host); err != nil {
			host = net.JoinHostPort(host, defaultViewsPort)
		}
		raw = "http://" + host
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, errors.New("host has no address")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v2/"
	return u, nil
}
