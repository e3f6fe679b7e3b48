package canarybridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/adapters/canary"
	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/adapters/codec"
	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/adapters/mqtt"
	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/adapters/observability"
	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/adapters/opcua"
	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/app/config"
	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/app/forwarder"
	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/ports"
)

// MetricsOff disables the metrics HTTP server when used as Metrics.Addr.
const MetricsOff = "off"

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	source        Source
	publisher     Publisher
	encoder       Encoder
	observability Observability
	logger        *slog.Logger
	clock         clock.Clock
}

// WithSource injects a custom historian source (simulators, other historians).
func WithSource(src Source) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.source = src
	}
}

// WithPublisher injects a custom publisher so values can be sent anywhere.
func WithPublisher(p Publisher) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.publisher = p
	}
}

// WithEncoder overrides the payload encoder selected by Payload.Format.
func WithEncoder(e Encoder) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.encoder = e
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithLogger sets the logger used by the default observability backend.
// Without it the runtime logs through slog.Default.
func WithLogger(l *slog.Logger) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.logger = l
	}
}

// WithClock replaces the clock used for the poll sleeps.
func WithClock(c clock.Clock) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.clock = c
	}
}

// Runtime wires a historian source to a broker publisher and serves the
// metrics and health endpoints while the forwarder runs.
type Runtime struct {
	cfg        *Config
	source     ports.Source
	publisher  ports.Publisher
	encoder    ports.Encoder
	obs        ports.Observability
	registry   *prometheus.Registry
	fwd        *forwarder.Forwarder
	metricsSrv *http.Server
}

// NewRuntime bootstraps the default adapters (Canary or OPC UA source, MQTT
// publisher, payload encoder, Prometheus observability). RuntimeOption values
// override any of them.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	logger := overrides.logger
	if logger == nil {
		logger = slog.Default()
	}
	obs := overrides.observability
	if obs == nil {
		obs = observability.NewPromObs(logger, reg)
	}

	var err error
	src := overrides.source
	if src == nil {
		src, err = newSource(cfg.Source)
		if err != nil {
			return nil, err
		}
	}

	pub := overrides.publisher
	if pub == nil {
		pub, err = mqtt.NewClient(cfg.MQTT, obs)
		if err != nil {
			return nil, err
		}
	}

	enc := overrides.encoder
	if enc == nil {
		enc, err = codec.New(cfg.Payload.Format)
		if err != nil {
			return nil, err
		}
	}

	var fwdOpts []forwarder.Option
	if overrides.clock != nil {
		fwdOpts = append(fwdOpts, forwarder.WithClock(overrides.clock))
	}
	fwd, err := forwarder.New(cfg.Source.Dataset, cfg.Policy.Ports(), src, pub, enc, obs, fwdOpts...)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		cfg:       cfg,
		source:    src,
		publisher: pub,
		encoder:   enc,
		obs:       obs,
		registry:  reg,
		fwd:       fwd,
	}, nil
}

func newSource(cfg config.SourceConfig) (ports.Source, error) {
	switch strings.ToLower(cfg.Kind) {
	case config.SourceOPCUA:
		return opcua.NewSource(cfg.OPCUA)
	case config.SourceCanary, "":
		return canary.NewSource(cfg.Canary)
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}

// State reports the forwarder lifecycle position.
func (r *Runtime) State() State { return r.fwd.State() }

// Tags returns the tag list loaded at startup.
func (r *Runtime) Tags() []Tag { return r.fwd.Tags() }

// Run starts the metrics server and forwards values until ctx is cancelled.
// It returns nil after a graceful shutdown and a wrapped ErrLoadTags,
// ErrConnectBroker or ErrOpenSession when startup fails.
func (r *Runtime) Run(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}
	r.startMetrics()

	runErr := r.fwd.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(runErr, r.shutdownMetrics(shutdownCtx))
}

// Handler serves /metrics and /healthz. /healthz answers 200 only while the
// forwarder is polling.
func (r *Runtime) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		state := r.fwd.State()
		if state != StatePolling {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_, _ = w.Write([]byte(state.String()))
	})
	return mux
}

func (r *Runtime) startMetrics() {
	addr := r.cfg.Metrics.Addr
	if addr == "" || strings.EqualFold(addr, MetricsOff) {
		return
	}

	r.metricsSrv = &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv := r.metricsSrv
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("metrics_server_exited", err, ports.F("addr", addr))
		}
	}()
}

func (r *Runtime) shutdownMetrics(ctx context.Context) error {
	if r.metricsSrv == nil {
		return nil
	}
	if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
