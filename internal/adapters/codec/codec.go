package codec

import (
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-json-experiment/json"

	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/domain"
	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/ports"
)

const (
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

// New returns the encoder for format. An empty format selects JSON.
func New(format string) (ports.Encoder, error) {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return JSON{}, nil
	case FormatCBOR:
		return newCBOR()
	default:
		return nil, fmt.Errorf("unknown payload format %q", format)
	}
}

// JSON encodes {"value":...,"timestamp":...,"quality":...}; absent fields are null.
type JSON struct{}

func (JSON) Encode(msg domain.OutboundMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (JSON) ContentType() string { return "application/json" }

type CBOR struct {
	mode cbor.EncMode
}

func newCBOR() (*CBOR, error) {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	mode, err := opts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor enc mode: %w", err)
	}
	return &CBOR{mode: mode}, nil
}

func (c *CBOR) Encode(msg domain.OutboundMessage) ([]byte, error) {
	return c.mode.Marshal(msg)
}

func (c *CBOR) ContentType() string { return "application/cbor" }

var (
	_ ports.Encoder = JSON{}
	_ ports.Encoder = (*CBOR)(nil)
)
