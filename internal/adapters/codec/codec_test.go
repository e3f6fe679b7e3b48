package codec

import (
	"math"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/domain"
)

func TestJSONEncode(t *testing.T) {
	ts := "2024-05-01T12:00:00Z"
	q := domain.Quality(192)

	enc, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got, err := enc.Encode(domain.OutboundMessage{Value: 21.5, Timestamp: &ts, Quality: &q})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"value":21.5,"timestamp":"2024-05-01T12:00:00Z","quality":192}`
	if string(got) != want {
		t.Fatalf("expected %s, got %s", want, got)
	}

	got, err = enc.Encode(domain.OutboundMessage{Value: true})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(got) != `{"value":true,"timestamp":null,"quality":null}` {
		t.Fatalf("unexpected absent-field rendering %s", got)
	}
}

func TestJSONEncodeRejectsNaN(t *testing.T) {
	if _, err := (JSON{}).Encode(domain.OutboundMessage{Value: math.NaN()}); err == nil {
		t.Fatalf("expected NaN to fail JSON encoding")
	}
}

func TestCBOREncode(t *testing.T) {
	enc, err := New("CBOR")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if enc.ContentType() != "application/cbor" {
		t.Fatalf("unexpected content type %s", enc.ContentType())
	}
	q := domain.Quality(0)
	raw, err := enc.Encode(domain.OutboundMessage{Value: int64(7), Quality: &q})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var decoded map[string]any
	if err := cbor.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["value"] != uint64(7) {
		t.Fatalf("expected value 7, got %#v", decoded["value"])
	}
	if decoded["timestamp"] != nil {
		t.Fatalf("expected nil timestamp, got %#v", decoded["timestamp"])
	}
}

func TestNewUnknownFormat(t *testing.T) {
	if _, err := New("xml"); err == nil {
		t.Fatalf("expected unknown format error")
	}
}
