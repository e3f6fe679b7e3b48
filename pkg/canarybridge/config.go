package canarybridge

import (
	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/adapters/canary"
	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/adapters/mqtt"
	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/adapters/opcua"
	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/app/config"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// SourceConfig selects the historian and the dataset root.
	SourceConfig = config.SourceConfig
	// CanaryConfig addresses the Canary Views API.
	CanaryConfig = canary.Config
	// OPCUAConfig addresses an OPC UA server used as the historian.
	OPCUAConfig = opcua.Config
	// MQTTConfig addresses the broker.
	MQTTConfig = mqtt.Config
	// PolicyConfig controls the poll cadence.
	PolicyConfig = config.PolicyConfig
	LogConfig    = config.LogConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	PayloadConfig = config.PayloadConfig
)

// ErrMissingConfig is returned by LoadConfig when a required setting is absent.
var ErrMissingConfig = config.ErrMissingConfig

// LoadConfig reads the optional YAML file at path, a .env file in the working
// directory and the process environment, then validates the result.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
