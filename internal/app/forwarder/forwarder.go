package forwarder

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"

	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/domain"
	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/ports"
)

var (
	ErrLoadTags      = errors.New("load tag list")
	ErrConnectBroker = errors.New("connect to broker")
	ErrOpenSession   = errors.New("open polling session")
)

// Forwarder moves live values from a Source to a Publisher, one snapshot per
// cycle. A single goroutine runs the loop; the tag list is loaded once and is
// read-only afterwards.
type Forwarder struct {
	dataset   string
	policy    ports.Policy
	source    ports.Source
	publisher ports.Publisher
	encoder   ports.Encoder
	obs       ports.Observability
	clock     clock.Clock

	state atomic.Int32

	mu   sync.RWMutex
	tags []domain.Tag
}

type Option func(*Forwarder)

// WithClock replaces the wall clock used for the inter-cycle sleeps.
func WithClock(c clock.Clock) Option {
	return func(f *Forwarder) {
		if c != nil {
			f.clock = c
		}
	}
}

func New(dataset string, pol ports.Policy, src ports.Source, pub ports.Publisher, enc ports.Encoder, obs ports.Observability, opts ...Option) (*Forwarder, error) {
	switch {
	case dataset == "":
		return nil, errors.New("forwarder: dataset root is required")
	case src == nil:
		return nil, errors.New("forwarder: source is required")
	case pub == nil:
		return nil, errors.New("forwarder: publisher is required")
	case enc == nil:
		return nil, errors.New("forwarder: encoder is required")
	case obs == nil:
		return nil, errors.New("forwarder: observability is required")
	}
	f := &Forwarder{
		dataset:   dataset,
		policy:    pol.WithDefaults(),
		source:    src,
		publisher: pub,
		encoder:   enc,
		obs:       obs,
		clock:     clock.WallClock,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

func (f *Forwarder) State() State { return State(f.state.Load()) }

// Tags returns a copy of the tag list loaded at startup. It is safe to call
// while Run is in progress.
func (f *Forwarder) Tags() []domain.Tag {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]domain.Tag(nil), f.tags...)
}

// Run loads the tag list, connects the publisher and forwards snapshots until
// ctx is cancelled. Cancellation is observed between cycles only: a cycle that
// has started runs to completion, including a slow snapshot fetch. The
// publisher is disconnected exactly once on every return path. Run returns nil
// after a graceful shutdown and a wrapped Err* on a startup failure.
func (f *Forwarder) Run(ctx context.Context) error {
	defer f.setState(StateStopped)
	defer f.shutdown()
	f.obs.LogInfo("forwarder_starting", ports.F("source", f.source.Name()), ports.F("dataset", f.dataset))

	f.setState(StateLoadingTags)
	if err := f.loadTags(ctx); err != nil {
		f.obs.LogError("load_tags_failed", err, ports.F("dataset", f.dataset))
		return fmt.Errorf("%w: %w", ErrLoadTags, err)
	}

	f.setState(StateConnectingBroker)
	if err := f.publisher.Connect(ctx); err != nil {
		f.obs.LogError("broker_connect_failed", err, ports.F("publisher", f.publisher.Name()))
		return fmt.Errorf("%w: %w", ErrConnectBroker, err)
	}

	err := f.withSession(ctx, func(sess ports.Session) error {
		f.setState(StatePolling)
		f.poll(ctx, sess)
		return nil
	})
	if err != nil {
		f.obs.LogError("open_session_failed", err, ports.F("source", f.source.Name()))
		return fmt.Errorf("%w: %w", ErrOpenSession, err)
	}
	return nil
}

func (f *Forwarder) loadTags(ctx context.Context) error {
	return f.withSession(ctx, func(sess ports.Session) error {
		tags, err := sess.BrowseTags(ctx, f.dataset, true)
		if err != nil {
			return err
		}
		f.mu.Lock()
		f.tags = tags
		f.mu.Unlock()
		f.obs.SetGauge(ports.MetricTagsLoaded, float64(len(tags)))
		if len(tags) == 0 {
			f.obs.LogWarn("no_tags_loaded", nil, ports.F("dataset", f.dataset))
			return nil
		}
		f.obs.LogInfo("tags_loaded", ports.F("count", len(tags)))
		return nil
	})
}

// withSession scopes a source session to fn. A failure to open is returned;
// a failure to close is only logged.
func (f *Forwarder) withSession(ctx context.Context, fn func(ports.Session) error) error {
	sess, err := f.source.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			f.obs.LogWarn("close_session_failed", cerr, ports.F("source", f.source.Name()))
		}
	}()
	return fn(sess)
}

func (f *Forwarder) poll(ctx context.Context, sess ports.Session) {
	f.obs.LogInfo("forwarding_loop_started",
		ports.F("tags", len(f.tags)),
		ports.F("interval", f.policy.PollInterval.String()))

	// in-flight calls are not interrupted by shutdown
	cycleCtx := context.WithoutCancel(ctx)
	for ctx.Err() == nil {
		pause := f.policy.PollInterval
		if err := f.cycle(cycleCtx, sess); err != nil {
			f.obs.IncCounter(ports.MetricCycleErrors, 1)
			f.obs.LogError("poll_cycle_failed", err)
			pause = f.policy.RetryPause
		} else if f.policy.ReleaseMemory {
			debug.FreeOSMemory()
		}
		f.obs.LogDebug("sleeping", ports.F("seconds", pause.Seconds()))
		f.sleep(ctx, pause)
	}
	f.obs.LogInfo("shutdown_requested")
}

// cycle fetches one snapshot and forwards it. Only a fetch failure is
// returned; per-tag failures are logged and skipped.
func (f *Forwarder) cycle(ctx context.Context, sess ports.Session) error {
	start := f.clock.Now()
	snap, err := sess.LiveSnapshot(ctx, f.tags, true)
	if err != nil {
		return fmt.Errorf("fetch live snapshot: %w", err)
	}

	published := f.forward(snap)
	if published > 0 {
		f.obs.IncCounter(ports.MetricPublished, float64(published))
		f.obs.LogDebug("cycle_published", ports.F("count", published))
	}
	f.obs.ObserveLatency(ports.MetricCycleDuration, f.clock.Now().Sub(start).Seconds())
	return nil
}

// forward publishes the first record of every loaded tag present in snap, in
// tag list order. Tags missing from the loaded list are ignored.
func (f *Forwarder) forward(snap domain.Snapshot) int {
	var published int
	for _, tag := range f.tags {
		entry, ok := snap[tag]
		if !ok {
			continue
		}
		if f.forwardTag(tag, entry) {
			published++
		}
	}
	return published
}

func (f *Forwarder) forwardTag(tag domain.Tag, entry domain.Entry) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			f.obs.IncCounter(ports.MetricTagErrors, 1)
			f.obs.LogWarn("tag_processing_failed", fmt.Errorf("panic: %v", r), ports.F("tag", tag))
			sent = false
		}
	}()

	if entry.Err != nil {
		f.obs.IncCounter(ports.MetricTagErrors, 1)
		f.obs.LogDebug("tag_record_unreadable", ports.F("tag", tag), ports.F("err", entry.Err.Error()))
	}
	// one point per tag per cycle; later records in the entry are dropped
	rec, ok := entry.First()
	if !ok || !rec.HasValue() {
		return false
	}

	payload, err := f.encoder.Encode(domain.NewOutboundMessage(rec))
	if err != nil {
		f.obs.IncCounter(ports.MetricTagErrors, 1)
		f.obs.LogWarn("tag_encode_failed", err, ports.F("tag", tag))
		return false
	}
	if err := f.publisher.Publish(tag.Topic(), payload); err != nil {
		f.obs.IncCounter(ports.MetricPublishFailures, 1)
		f.obs.LogWarn("tag_publish_failed", err, ports.F("tag", tag))
		return false
	}
	return true
}

func (f *Forwarder) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-f.clock.After(d):
	}
}

func (f *Forwarder) shutdown() {
	f.setState(StateShuttingDown)
	f.obs.LogInfo("cleaning_up")
	f.publisher.Disconnect()
	f.obs.LogInfo("shutdown_complete")
}

func (f *Forwarder) setState(s State) {
	prev := State(f.state.Swap(int32(s)))
	if prev != s {
		f.obs.LogInfo("state_changed", ports.F("from", prev.String()), ports.F("to", s.String()))
	}
}
