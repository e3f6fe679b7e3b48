package canarybridge

import (
	base "github.com/huntermatuse/simple-canary-mqtt-forwarder/pkg/canarybridge"
)

// Re-exported errors for convenience.
var (
	ErrMissingConfig          = base.ErrMissingConfig
	ErrLoadTags               = base.ErrLoadTags
	ErrConnectBroker          = base.ErrConnectBroker
	ErrOpenSession            = base.ErrOpenSession
	ErrChannelPublisherClosed = base.ErrChannelPublisherClosed
)

// Type aliases so consumers can import the module root directly.
type (
	Config        = base.Config
	SourceConfig  = base.SourceConfig
	CanaryConfig  = base.CanaryConfig
	OPCUAConfig   = base.OPCUAConfig
	MQTTConfig    = base.MQTTConfig
	PolicyConfig  = base.PolicyConfig
	LogConfig     = base.LogConfig
	MetricsConfig = base.MetricsConfig
	PayloadConfig = base.PayloadConfig
	Runtime       = base.Runtime
	RuntimeOption = base.RuntimeOption
	Tag           = base.Tag
	TVQ           = base.TVQ
	Quality       = base.Quality
	Snapshot      = base.Snapshot
	Entry         = base.Entry
	Message       = base.Message
	Source        = base.Source
	Session       = base.Session
	Publisher     = base.Publisher
	Encoder       = base.Encoder
	Observability = base.Observability
	Field         = base.Field
	Policy        = base.Policy
	State         = base.State
	PublishFunc   = base.PublishFunc
	Delivery      = base.Delivery
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithSource(src Source) RuntimeOption {
	return base.WithSource(src)
}

func WithPublisher(p Publisher) RuntimeOption {
	return base.WithPublisher(p)
}

func WithEncoder(e Encoder) RuntimeOption {
	return base.WithEncoder(e)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

// Publisher adapters.
func NewCallbackPublisher(name string, fn PublishFunc) Publisher {
	return base.NewCallbackPublisher(name, fn)
}

func NewChannelPublisher(name string, buffer int) (Publisher, <-chan Delivery, func()) {
	return base.NewChannelPublisher(name, buffer)
}
