package observability

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/ports"
)

// PromObs logs through slog and records forwarder metrics in Prometheus.
// All methods are safe for concurrent use; the broker callbacks call into it
// from paho's goroutines.
type PromObs struct {
	logger   *slog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the forwarder metrics with reg. A nil logger falls back
// to slog.Default.
func NewPromObs(logger *slog.Logger, reg prometheus.Registerer) *PromObs {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	published := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricPublished,
		Help: "Tag values handed to the broker.",
	})
	publishFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricPublishFailures,
		Help: "Publish calls rejected before reaching the broker.",
	})
	nacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricPublishNacks,
		Help: "Publishes whose delivery completed with an error.",
	})
	tagErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricTagErrors,
		Help: "Tags skipped in a cycle because their record could not be processed.",
	})
	cycleErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricCycleErrors,
		Help: "Poll cycles aborted by a snapshot fetch failure.",
	})
	tagsLoaded := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.MetricTagsLoaded,
		Help: "Number of tags enumerated at startup.",
	})
	connected := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.MetricBrokerConnected,
		Help: "1 while the MQTT connection is up.",
	})
	cycle := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricCycleDuration,
		Help:    "Time spent fetching and publishing one snapshot.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	reg.MustRegister(published, publishFailures, nacks, tagErrors, cycleErrors, tagsLoaded, connected, cycle)

	return &PromObs{
		logger: logger,
		counters: map[string]prometheus.Counter{
			ports.MetricPublished:       published,
			ports.MetricPublishFailures: publishFailures,
			ports.MetricPublishNacks:    nacks,
			ports.MetricTagErrors:       tagErrors,
			ports.MetricCycleErrors:     cycleErrors,
		},
		gauges: map[string]prometheus.Gauge{
			ports.MetricTagsLoaded:      tagsLoaded,
			ports.MetricBrokerConnected: connected,
		},
		histos: map[string]prometheus.Observer{
			ports.MetricCycleDuration: cycle,
		},
	}
}

func (p *PromObs) LogDebug(msg string, fields ...ports.Field) {
	p.log(slog.LevelDebug, msg, nil, fields)
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log(slog.LevelInfo, msg, nil, fields)
}

func (p *PromObs) LogWarn(msg string, err error, fields ...ports.Field) {
	p.log(slog.LevelWarn, msg, err, fields)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.log(slog.LevelError, msg, err, fields)
}

func (p *PromObs) log(level slog.Level, msg string, err error, fields []ports.Field) {
	ctx := context.Background()
	if !p.logger.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, 0, len(fields)+1)
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
	}
	p.logger.LogAttrs(ctx, level, msg, attrs...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

var _ ports.Observability = (*PromObs)(nil)
