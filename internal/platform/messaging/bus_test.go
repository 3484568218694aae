package messaging

import (
	"context"
	"testing"
	"time"

	"geneledger/contexts/data-marketplace/dataset-registry/ports"
)

func TestBusDeliversToTopicSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(nil, nil)
	received := make(chan ports.EventEnvelope, 1)
	bus.Subscribe(ctx, "dataset.registered", "test", func(_ context.Context, event ports.EventEnvelope) error {
		received <- event
		return nil
	})

	if err := bus.Publish(ctx, "escrow.withdrawn", ports.EventEnvelope{EventID: "other"}); err != nil {
		t.Fatalf("publish other topic: %v", err)
	}
	if err := bus.Publish(ctx, "dataset.registered", ports.EventEnvelope{EventID: "evt-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case event := <-received:
		if event.EventID != "evt-1" {
			t.Fatalf("expected evt-1, got %s", event.EventID)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}
}
