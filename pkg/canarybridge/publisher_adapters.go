package canarybridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrChannelPublisherClosed is returned when a channel publisher is written to after being closed.
var ErrChannelPublisherClosed = errors.New("canarybridge: channel publisher closed")

// PublishFunc receives every encoded payload with its topic.
type PublishFunc func(topic string, payload []byte) error

// Delivery is one payload handed to a channel publisher.
type Delivery struct {
	Topic   string
	Payload []byte
}

// NewCallbackPublisher adapts a PublishFunc into a full Publisher so callers
// can forward values anywhere without defining structs.
func NewCallbackPublisher(name string, fn PublishFunc) Publisher {
	if name == "" {
		name = "callback"
	}
	return &callbackPublisher{name: name, fn: fn}
}

// NewChannelPublisher exposes deliveries via a channel; it returns the
// publisher, the read-only channel, and a close function the caller should
// invoke during shutdown. A full channel blocks the forwarding loop until a
// reader catches up or close is called; close may run while the runtime is
// still publishing.
func NewChannelPublisher(name string, buffer int) (Publisher, <-chan Delivery, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Delivery, buffer)
	p := &channelPublisher{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return p, ch, func() { p.close() }
}

type callbackPublisher struct {
	name string
	fn   PublishFunc
}

func (p *callbackPublisher) Connect(context.Context) error {
	if p.fn == nil {
		return fmt.Errorf("callback publisher %q: nil handler", p.name)
	}
	return nil
}

func (p *callbackPublisher) Publish(topic string, payload []byte) error {
	if p.fn == nil {
		return fmt.Errorf("callback publisher %q: nil handler", p.name)
	}
	return p.fn(topic, payload)
}

func (p *callbackPublisher) Disconnect() {}

func (p *callbackPublisher) Name() string { return p.name }

type channelPublisher struct {
	name   string
	ch     chan Delivery
	closed chan struct{}

	// mu orders Publish registrations against close so the channel is only
	// closed once no send can reach it.
	mu       sync.Mutex
	inflight sync.WaitGroup
	isClosed bool
}

func (p *channelPublisher) Connect(context.Context) error {
	select {
	case <-p.closed:
		return ErrChannelPublisherClosed
	default:
		return nil
	}
}

func (p *channelPublisher) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	if p.isClosed {
		p.mu.Unlock()
		return ErrChannelPublisherClosed
	}
	p.inflight.Add(1)
	p.mu.Unlock()
	defer p.inflight.Done()

	select {
	case <-p.closed:
		return ErrChannelPublisherClosed
	case p.ch <- Delivery{Topic: topic, Payload: payload}:
		return nil
	}
}

// Disconnect leaves the channel open; the owner closes it.
func (p *channelPublisher) Disconnect() {}

func (p *channelPublisher) Name() string { return p.name }

// close unblocks pending publishes, waits for them to return and then closes
// the delivery channel so readers ranging over it stop.
func (p *channelPublisher) close() {
	p.mu.Lock()
	if p.isClosed {
		p.mu.Unlock()
		return
	}
	p.isClosed = true
	close(p.closed)
	p.mu.Unlock()

	p.inflight.Wait()
	close(p.ch)
}
