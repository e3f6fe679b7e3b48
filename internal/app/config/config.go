package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/adapters/canary"
	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/adapters/mqtt"
	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/adapters/opcua"
	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/ports"
)

// Environment variable names. The first three are required.
const (
	EnvSourceHost     = "Canary_Url"
	EnvDataset        = "Canary_Dataset"
	EnvBrokerHost     = "Mqtt_Url"
	EnvLogLevel       = "LOGLEVEL"
	EnvWaitTime       = "WAITTIME"
	EnvLogDir         = "LOG_DIR"
	EnvMetricsAddr    = "METRICS_ADDR"
	EnvSourceKind     = "SOURCE_KIND"
	EnvCanaryTimeout  = "CANARY_TIMEOUT"
	EnvCanaryLiveMode = "CANARY_LIVE_MODE"
	EnvMQTTClientID   = "MQTT_CLIENT_ID"
	EnvMQTTQoS        = "MQTT_QOS"
	EnvMQTTReconnect  = "MQTT_AUTO_RECONNECT"
	EnvPayloadFormat  = "PAYLOAD_FORMAT"
	EnvReleaseMemory  = "RELEASE_MEMORY"
	EnvOPCUAMode      = "OPCUA_SECURITY_MODE"
	EnvOPCUAPolicy    = "OPCUA_SECURITY_POLICY"
)

const (
	SourceCanary = "canary"
	SourceOPCUA  = "opcua"
)

// ErrMissingConfig wraps the list of required settings that were not provided.
var ErrMissingConfig = errors.New("missing required environment variables")

type Config struct {
	Source  SourceConfig  `yaml:"source"`
	MQTT    mqtt.Config   `yaml:"mqtt"`
	Policy  PolicyConfig  `yaml:"policy"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Payload PayloadConfig `yaml:"payload"`
}

type SourceConfig struct {
	Kind    string        `yaml:"kind"`
	Dataset string        `yaml:"dataset"`
	Canary  canary.Config `yaml:"canary"`
	OPCUA   opcua.Config  `yaml:"opcua"`
}

// Host is the configured historian address for the selected source kind.
func (s SourceConfig) Host() string {
	if s.Kind == SourceOPCUA {
		return s.OPCUA.Endpoint
	}
	return s.Canary.Host
}

type PolicyConfig struct {
	// PollInterval is nil when unset; an explicit zero means no pause.
	PollInterval  *time.Duration `yaml:"poll_interval"`
	RetryPause    time.Duration  `yaml:"retry_pause"`
	ReleaseMemory *bool          `yaml:"release_memory"`
}

// Ports converts the policy section into the forwarder's policy.
func (p PolicyConfig) Ports() ports.Policy {
	interval := ports.DefaultPollInterval
	if p.PollInterval != nil {
		interval = *p.PollInterval
	}
	return ports.Policy{
		PollInterval:  interval,
		RetryPause:    p.RetryPause,
		ReleaseMemory: p.ReleaseMemory == nil || *p.ReleaseMemory,
	}.WithDefaults()
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type MetricsConfig struct {
	// Addr is the listen address of /metrics and /healthz. "off" disables it.
	Addr string `yaml:"addr"`
}

type PayloadConfig struct {
	Format string `yaml:"format"`
}

// Load reads the optional YAML file at path, then a .env file in the working
// directory, then the process environment. Later sources win.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	parse := func(name string, fn func(string) error) {
		if v, ok := lookup(name); ok && v != "" {
			if err := fn(v); err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: %w", name, v, err))
			}
		}
	}

	str(EnvSourceKind, &c.Source.Kind)
	str(EnvDataset, &c.Source.Dataset)
	if v, ok := lookup(EnvSourceHost); ok && v != "" {
		if strings.EqualFold(c.Source.Kind, SourceOPCUA) {
			c.Source.OPCUA.Endpoint = v
		} else {
			c.Source.Canary.Host = v
		}
	}
	str(EnvCanaryLiveMode, &c.Source.Canary.LiveMode)
	str(EnvOPCUAMode, &c.Source.OPCUA.SecurityMode)
	str(EnvOPCUAPolicy, &c.Source.OPCUA.SecurityPolicy)
	parse(EnvCanaryTimeout, func(v string) (err error) {
		c.Source.Canary.Timeout, err = time.ParseDuration(v)
		return err
	})

	str(EnvBrokerHost, &c.MQTT.Broker)
	str(EnvMQTTClientID, &c.MQTT.ClientID)
	parse(EnvMQTTQoS, func(v string) error {
		q, err := strconv.ParseUint(v, 10, 8)
		c.MQTT.QoS = byte(q)
		return err
	})
	parse(EnvMQTTReconnect, func(v string) (err error) {
		c.MQTT.AutoReconnect, err = strconv.ParseBool(v)
		return err
	})

	parse(EnvWaitTime, func(v string) error {
		d, err := parseSeconds(v)
		c.Policy.PollInterval = &d
		return err
	})
	parse(EnvReleaseMemory, func(v string) error {
		b, err := strconv.ParseBool(v)
		c.Policy.ReleaseMemory = &b
		return err
	})

	str(EnvLogLevel, &c.Log.Level)
	str(EnvLogDir, &c.Log.Dir)
	str(EnvMetricsAddr, &c.Metrics.Addr)
	str(EnvPayloadFormat, &c.Payload.Format)

	return errors.Join(errs...)
}

// parseSeconds accepts a fractional number of seconds ("0.5") or a Go duration
// ("500ms"). Zero is allowed.
func parseSeconds(v string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0, errors.New("must be a non-negative number of seconds")
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.New("must not be negative")
	}
	return d, nil
}

func (c *Config) applyDefaults() {
	c.Source.Kind = strings.ToLower(c.Source.Kind)
	if c.Source.Kind == "" {
		c.Source.Kind = SourceCanary
	}
	if c.Log.Level == "" {
		c.Log.Level = "INFO"
	}
	if c.Log.Dir == "" {
		c.Log.Dir = "/app/logs"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 5
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Payload.Format == "" {
		c.Payload.Format = "json"
	}

	c.Source.Canary.ApplyDefaults()
	c.Source.OPCUA.ApplyDefaults()
	c.MQTT.ApplyDefaults()
}

func (c *Config) validate() error {
	var missing []string
	if c.Source.Host() == "" {
		missing = append(missing, EnvSourceHost)
	}
	if c.Source.Dataset == "" {
		missing = append(missing, EnvDataset)
	}
	if c.MQTT.Broker == "" {
		missing = append(missing, EnvBrokerHost)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingConfig, missing)
	}

	switch c.Source.Kind {
	case SourceCanary:
		if err := c.Source.Canary.Validate(); err != nil {
			return fmt.Errorf("canary config: %w", err)
		}
	case SourceOPCUA:
		if err := c.Source.OPCUA.Validate(); err != nil {
			return fmt.Errorf("opcua config: %w", err)
		}
	default:
		return fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt config: %w", err)
	}
	return nil
}
