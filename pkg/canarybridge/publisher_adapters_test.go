package canarybridge

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewCallbackPublisher(t *testing.T) {
	var got []Delivery
	pub := NewCallbackPublisher("cb", func(topic string, payload []byte) error {
		got = append(got, Delivery{Topic: topic, Payload: payload})
		return nil
	})

	if err := pub.Connect(context.Background()); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if err := pub.Publish("A/B", []byte(`{"value":1}`)); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	pub.Disconnect()

	if len(got) != 1 || got[0].Topic != "A/B" || string(got[0].Payload) != `{"value":1}` {
		t.Fatalf("unexpected deliveries: %+v", got)
	}
	if pub.Name() != "cb" {
		t.Fatalf("unexpected name %s", pub.Name())
	}
}

func TestNewCallbackPublisherNilHandler(t *testing.T) {
	pub := NewCallbackPublisher("", nil)
	if err := pub.Connect(context.Background()); err == nil {
		t.Fatalf("expected error when callback is nil")
	}
	if err := pub.Publish("A/B", nil); err == nil {
		t.Fatalf("expected error when callback is nil")
	}
	if pub.Name() != "callback" {
		t.Fatalf("expected default name, got %s", pub.Name())
	}
}

func TestNewChannelPublisher(t *testing.T) {
	pub, ch, closeFn := NewChannelPublisher("chan", 0)
	defer closeFn()

	errCh := make(chan error, 1)
	go func() {
		errCh <- pub.Publish("Plant1/Tag", []byte("7"))
	}()

	var d Delivery
	select {
	case d = <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if d.Topic != "Plant1/Tag" || string(d.Payload) != "7" {
		t.Fatalf("unexpected delivery: %+v", d)
	}

	closeFn()
	if err := pub.Publish("Plant1/Tag", nil); !errors.Is(err, ErrChannelPublisherClosed) {
		t.Fatalf("expected ErrChannelPublisherClosed, got %v", err)
	}
	if err := pub.Connect(context.Background()); !errors.Is(err, ErrChannelPublisherClosed) {
		t.Fatalf("expected ErrChannelPublisherClosed from Connect, got %v", err)
	}
}

func TestChannelPublisherCloseWhilePublishing(t *testing.T) {
	for i := 0; i < 100; i++ {
		pub, ch, closeFn := NewChannelPublisher("chan", 0)

		errCh := make(chan error, 1)
		go func() {
			errCh <- pub.Publish("Plant1/Tag", []byte("1"))
		}()
		closeFn()

		select {
		case err := <-errCh:
			if !errors.Is(err, ErrChannelPublisherClosed) {
				t.Fatalf("expected ErrChannelPublisherClosed, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("publish stayed blocked after close")
		}
		if _, ok := <-ch; ok {
			t.Fatalf("expected delivery channel to be closed")
		}
		closeFn()
	}
}
