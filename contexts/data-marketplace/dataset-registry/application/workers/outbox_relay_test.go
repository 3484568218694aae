package workers_test

import (
	"context"
	"errors"
	"testing"

	"geneledger/contexts/data-marketplace/dataset-registry/adapters/memory"
	"geneledger/contexts/data-marketplace/dataset-registry/adapters/settlement"
	"geneledger/contexts/data-marketplace/dataset-registry/application"
	"geneledger/contexts/data-marketplace/dataset-registry/application/workers"
	"geneledger/contexts/data-marketplace/dataset-registry/domain/entities"
	"geneledger/contexts/data-marketplace/dataset-registry/ports"
	contractsv1 "geneledger/contracts/gen/events/v1"
)

type publishedEvent struct {
	topic    string
	envelope ports.EventEnvelope
}

type capturePublisher struct {
	events []publishedEvent
	fail   error
}

func (p *capturePublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	if p.fail != nil {
		return p.fail
	}
	p.events = append(p.events, publishedEvent{topic: topic, envelope: event})
	return nil
}

func seedRegistry(t *testing.T, store *memory.Store) {
	t.Helper()
	registry := application.NewRegistry(application.RegistryConfig{
		Repository:  store,
		Settlement:  settlement.NewRecorder(),
		Clock:       store,
		IDGenerator: store,
	})
	ctx := context.Background()
	dataset, err := registry.RegisterDataset(ctx, application.RegisterDatasetCommand{
		Owner:      "0x00000000000000000000000000000000000000aa",
		Title:      "cohort",
		Price:      entities.NewAmount(5),
		AccessTier: "Standard",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := registry.PurchaseAccess(ctx, application.PurchaseAccessCommand{
		DatasetID: dataset.DatasetID,
		Buyer:     "0x00000000000000000000000000000000000000cc",
		Amount:    entities.NewAmount(5),
	}); err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
}

func TestOutboxRelayPublishesByEventTypeAndMarksSent(t *testing.T) {
	store := memory.NewStore(nil)
	seedRegistry(t, store)
	publisher := &capturePublisher{}
	relay := workers.OutboxRelay{Outbox: store, Publisher: publisher, Clock: store}

	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("relay failed: %v", err)
	}
	if len(publisher.events) != 2 {
		t.Fatalf("expected two published events, got %d", len(publisher.events))
	}
	if publisher.events[0].topic != contractsv1.EventTypeDatasetRegistered ||
		publisher.events[1].topic != contractsv1.EventTypeAccessPurchased {
		t.Fatalf("unexpected topics %q, %q", publisher.events[0].topic, publisher.events[1].topic)
	}
	if publisher.events[1].envelope.PartitionKey == "" {
		t.Fatal("expected partition key on purchase event")
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending events after relay, got %d", len(pending))
	}

	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("second relay failed: %v", err)
	}
	if len(publisher.events) != 2 {
		t.Fatalf("sent events must not be republished, got %d", len(publisher.events))
	}
}

func TestOutboxRelayTopicOverride(t *testing.T) {
	store := memory.NewStore(nil)
	seedRegistry(t, store)
	publisher := &capturePublisher{}
	relay := workers.OutboxRelay{Outbox: store, Publisher: publisher, Topic: "registry.events", BatchSize: 1}

	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("relay failed: %v", err)
	}
	if len(publisher.events) != 1 || publisher.events[0].topic != "registry.events" {
		t.Fatalf("expected one event on override topic, got %+v", publisher.events)
	}
}

func TestOutboxRelayKeepsEventsPendingWhenPublishFails(t *testing.T) {
	store := memory.NewStore(nil)
	seedRegistry(t, store)
	publisher := &capturePublisher{fail: errors.New("broker unavailable")}
	relay := workers.OutboxRelay{Outbox: store, Publisher: publisher}

	if err := relay.RunOnce(context.Background()); err == nil {
		t.Fatal("expected relay error")
	}
	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected both events still pending, got %d", len(pending))
	}
}
