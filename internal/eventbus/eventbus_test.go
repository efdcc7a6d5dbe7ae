package eventbus

import (
	"testing"
	"time"

	"github.com/restaurant-platform/courierbroker/core/model"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := New()
	defer b.Close()
	sub := b.Subscribe()
	b.Publish(model.DomainEvent{Type: model.EventOrderCreated})
	select {
	case ev := <-sub:
		if ev.Type != model.EventOrderCreated {
			t.Fatalf("unexpected event %q", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_NonBlockingPublish(t *testing.T) {
	b := New()
	defer b.Close()
	sub := b.Subscribe()
	for i := 0; i < 200; i++ {
		b.Publish(model.DomainEvent{Type: model.EventOrderUpdated})
	}
	// The subscriber buffer is bounded; publishing must not have blocked.
	if len(sub) == 0 {
		t.Fatal("expected buffered events")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()
	defer b.Close()
	sub := b.Subscribe()
	b.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		t.Fatal("channel should be closed")
	}
}

func TestBus_CloseIdempotent(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	b.Close()
	b.Close()
	if _, ok := <-sub; ok {
		t.Fatal("channel should be closed")
	}
	// Publish after close is a no-op.
	b.Publish(model.DomainEvent{Type: model.EventOrderCreated})
}
