package ports

import (
	"context"

	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/domain"
)

// Publisher is the broker side of the bridge.
type Publisher interface {
	Connect(ctx context.Context) error
	Publish(topic string, payload []byte) error
	// Disconnect must be safe to call more than once and before Connect.
	Disconnect()
	Name() string
}

// Encoder renders an outbound message into a broker payload.
type Encoder interface {
	Encode(msg domain.OutboundMessage) ([]byte, error)
	ContentType() string
}
