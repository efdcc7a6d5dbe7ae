package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/restaurant-platform/courierbroker/core/model"
	"github.com/restaurant-platform/courierbroker/infra/logger"
)

// Bridge mirrors domain events onto MQTT topics so internal dashboards and
// branch devices can follow the broker without registering webhooks.
// Events publish to <prefix>/<event-type>, e.g. courier/events/order.created.
type Bridge struct {
	pub    Publisher
	prefix string
	log    logger.Logger
}

// NewBridge creates a bridge. An empty prefix defaults to courier/events.
func NewBridge(pub Publisher, prefix string) (*Bridge, error) {
	if pub == nil {
		return nil, fmt.Errorf("mqtt: nil publisher provided to NewBridge")
	}
	if prefix == "" {
		prefix = "courier/events"
	}
	return &Bridge{pub: pub, prefix: strings.TrimSuffix(prefix, "/"), log: logger.New("mqtt_bridge")}, nil
}

// Run consumes events from the channel until it closes or the context is
// cancelled. Publish failures are logged, never fatal.
func (b *Bridge) Run(ctx context.Context, events <-chan model.DomainEvent) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.publish(ev)
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bridge) publish(ev model.DomainEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.log.Errorf("event %s not serializable: %v", ev.Type, err)
		return
	}
	topic := b.prefix + "/" + ev.Type
	if err := b.pub.Publish(topic, payload); err != nil {
		b.log.Errorf("publish %s: %v", topic, err)
	}
}
