package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restaurant-platform/courierbroker/core/model"
)

type fakePublisher struct {
	mu     sync.Mutex
	topics map[string][]byte
	fail   bool
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return assert.AnError
	}
	if f.topics == nil {
		f.topics = make(map[string][]byte)
	}
	f.topics[topic] = payload
	return nil
}

func (f *fakePublisher) Disconnect() {}

func (f *fakePublisher) get(topic string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.topics[topic]
}

func TestBridge_PublishesEventsToTypedTopics(t *testing.T) {
	pub := &fakePublisher{}
	b, err := NewBridge(pub, "")
	require.NoError(t, err)

	events := make(chan model.DomainEvent, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx, events)

	events <- model.DomainEvent{Type: model.EventOrderCreated, CorrelationID: "cid-1", Payload: map[string]string{"order_id": "o1"}}
	events <- model.DomainEvent{Type: model.EventVendorSelected, CorrelationID: "cid-2"}

	require.Eventually(t, func() bool {
		return pub.get("courier/events/order.created") != nil && pub.get("courier/events/vendor.selected") != nil
	}, time.Second, 10*time.Millisecond)

	var ev model.DomainEvent
	require.NoError(t, json.Unmarshal(pub.get("courier/events/order.created"), &ev))
	assert.Equal(t, "cid-1", ev.CorrelationID)
}

func TestBridge_PublishFailureIsNotFatal(t *testing.T) {
	pub := &fakePublisher{fail: true}
	b, err := NewBridge(pub, "broker")
	require.NoError(t, err)

	events := make(chan model.DomainEvent, 1)
	events <- model.DomainEvent{Type: model.EventOrderUpdated}
	close(events)

	done := make(chan struct{})
	go func() {
		b.Run(context.Background(), events)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bridge did not drain a failing publisher")
	}
}

func TestNewBridge_NilPublisher(t *testing.T) {
	_, err := NewBridge(nil, "")
	assert.Error(t, err)
}
