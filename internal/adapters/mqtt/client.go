package mqtt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/ports"
)

// ErrNotConnected is returned by Publish before Connect succeeds or after Disconnect.
var ErrNotConnected = errors.New("mqtt: not connected")

// Config captures how to reach the broker.
type Config struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	QoS            byte          `yaml:"qos"`
	AutoReconnect  bool          `yaml:"auto_reconnect"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	AckBuffer      int           `yaml:"ack_buffer"`
}

func (c *Config) ApplyDefaults() {
	if c.ClientID == "" {
		host, _ := os.Hostname()
		c.ClientID = fmt.Sprintf("canary-forwarder-%s-%d", host, os.Getpid())
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.AckBuffer <= 0 {
		c.AckBuffer = 1024
	}
}

func (c *Config) Validate() error {
	if c.Broker == "" {
		return errors.New("broker is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("qos %d out of range", c.QoS)
	}
	return nil
}

// BrokerURL adds the tcp:// scheme and default port to a bare host.
func (c *Config) BrokerURL() string {
	b := c.Broker
	if !strings.Contains(b, "://") {
		b = "tcp://" + b
	}
	if i := strings.Index(b, "://"); !strings.Contains(b[i+3:], ":") {
		b += ":1883"
	}
	return b
}

type pendingAck struct {
	topic string
	token paho.Token
}

// Client owns one paho connection. Connection state changes and delivery
// acknowledgements are observed on paho's goroutines and on the ack observer;
// they only log and update metrics.
type Client struct {
	cfg       Config
	obs       ports.Observability
	newClient func(*paho.ClientOptions) paho.Client

	mu     sync.Mutex
	client paho.Client
	acks   chan pendingAck
	stop   chan struct{}
	done   chan struct{}
}

func NewClient(cfg Config, obs ports.Observability) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, obs: obs, newClient: paho.NewClient}, nil
}

func (c *Client) Name() string { return "mqtt" }

// Connect dials the broker once. There is no retry; the caller decides what
// a failed connect means.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return nil
	}

	opts := paho.NewClientOptions().
		AddBroker(c.cfg.BrokerURL()).
		SetClientID(c.cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(c.cfg.AutoReconnect).
		SetConnectRetry(false).
		SetConnectTimeout(c.cfg.ConnectTimeout).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	client := c.newClient(opts)
	token := client.Connect()
	if err := waitToken(ctx, token, c.cfg.ConnectTimeout); err != nil {
		c.onConnectFailed(err)
		// a timed-out dial may still complete in the background
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect %s: %w", c.cfg.BrokerURL(), err)
	}

	c.client = client
	c.acks = make(chan pendingAck, c.cfg.AckBuffer)
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.observeAcks(c.acks, c.stop, c.done)
	return nil
}

// Disconnect stops the ack observer and closes the connection. It is a no-op
// when Connect never succeeded or Disconnect already ran.
func (c *Client) Disconnect() {
	c.mu.Lock()
	client, stop, done := c.client, c.stop, c.done
	c.client, c.stop, c.done, c.acks = nil, nil, nil, nil
	c.mu.Unlock()

	if client == nil {
		return
	}
	close(stop)
	<-done
	client.Disconnect(250)
	c.obs.SetGauge(ports.MetricBrokerConnected, 0)
	c.obs.LogInfo("mqtt_disconnected", ports.F("broker", c.cfg.BrokerURL()))
}

// Publish hands payload to paho. A nil error means the message was accepted
// locally; delivery is confirmed asynchronously by the ack observer.
func (c *Client) Publish(topic string, payload []byte) (err error) {
	c.mu.Lock()
	client, acks := c.client, c.acks
	c.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mqtt publish %s: panic: %v", topic, r)
		}
	}()

	token := client.Publish(topic, c.cfg.QoS, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt publish %s: %w", topic, err)
		}
		return nil
	default:
	}

	select {
	case acks <- pendingAck{topic: topic, token: token}:
	default:
		c.obs.LogDebug("mqtt_ack_observer_saturated", ports.F("topic", topic))
	}
	return nil
}

func (c *Client) observeAcks(acks <-chan pendingAck, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case p := <-acks:
			select {
			case <-p.token.Done():
			case <-stop:
				return
			}
			if err := p.token.Error(); err != nil {
				c.obs.IncCounter(ports.MetricPublishNacks, 1)
				c.obs.LogWarn("mqtt_publish_not_acknowledged", err, ports.F("topic", p.topic))
			}
		}
	}
}

func (c *Client) onConnect(paho.Client) {
	c.obs.SetGauge(ports.MetricBrokerConnected, 1)
	c.obs.LogInfo("mqtt_connected", ports.F("broker", c.cfg.BrokerURL()))
}

func (c *Client) onConnectionLost(_ paho.Client, err error) {
	c.obs.SetGauge(ports.MetricBrokerConnected, 0)
	c.obs.LogInfo("mqtt_connection_lost", ports.F("broker", c.cfg.BrokerURL()), ports.F("reason", err))
}

func (c *Client) onConnectFailed(err error) {
	fields := []ports.Field{ports.F("broker", c.cfg.BrokerURL())}
	if code, ok := connackCode(err); ok {
		fields = append(fields, ports.F("reason_code", code))
	}
	c.obs.LogError("mqtt_connect_failed", err, fields...)
}

// connackCode recovers the CONNACK return code paho folds into its error values.
func connackCode(err error) (byte, bool) {
	for code, known := range packets.ConnErrors {
		if code != packets.Accepted && errors.Is(err, known) {
			return code, true
		}
	}
	return 0, false
}

func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ ports.Publisher = (*Client)(nil)
