package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	application "geneledger/contexts/data-marketplace/dataset-registry/application"
	"geneledger/contexts/data-marketplace/dataset-registry/domain/entities"
	domainerrors "geneledger/contexts/data-marketplace/dataset-registry/domain/errors"
	"geneledger/contexts/data-marketplace/dataset-registry/ports"
)

// Store is an in-memory adapter implementing the registry persistence ports
// for local runtime and tests. It is not intended as production persistence.
type Store struct {
	mu          sync.RWMutex
	datasets    map[uint64]entities.Dataset
	grants      map[entities.GrantKey]entities.AccessGrant
	accounts    map[entities.Principal]entities.EscrowAccount
	withdrawals map[string]entities.Withdrawal
	withdrawOrd []string
	outbox      map[string]ports.OutboxMessage
	outboxOrder []string
	outboxSent  map[string]time.Time
	sequence    uint64
	failWrites  error
	logger      *slog.Logger
}

func NewStore(logger *slog.Logger) *Store {
	return &Store{
		datasets:    make(map[uint64]entities.Dataset),
		grants:      make(map[entities.GrantKey]entities.AccessGrant),
		accounts:    make(map[entities.Principal]entities.EscrowAccount),
		withdrawals: make(map[string]entities.Withdrawal),
		outbox:      make(map[string]ports.OutboxMessage),
		outboxSent:  make(map[string]time.Time),
		logger:      application.ResolveLogger(logger),
	}
}

// FailWrites makes every subsequent Save*/Update call return err. Pass nil to
// restore normal behaviour.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = err
}

func (s *Store) LoadSnapshot(_ context.Context) (ports.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := ports.Snapshot{
		Datasets: make([]entities.Dataset, 0, len(s.datasets)),
		Grants:   make([]entities.AccessGrant, 0, len(s.grants)),
		Accounts: make([]entities.EscrowAccount, 0, len(s.accounts)),
	}
	for _, dataset := range s.datasets {
		snapshot.Datasets = append(snapshot.Datasets, dataset.Clone())
	}
	sort.Slice(snapshot.Datasets, func(i, j int) bool {
		return snapshot.Datasets[i].DatasetID < snapshot.Datasets[j].DatasetID
	})
	for _, grant := range s.grants {
		snapshot.Grants = append(snapshot.Grants, grant)
	}
	for _, account := range s.accounts {
		snapshot.Accounts = append(snapshot.Accounts, account)
	}
	return snapshot, nil
}

func (s *Store) LoadDataset(_ context.Context, datasetID uint64) (entities.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dataset, ok := s.datasets[datasetID]
	if !ok {
		return entities.Dataset{}, &domainerrors.NotFoundError{DatasetID: datasetID}
	}
	return dataset.Clone(), nil
}

func (s *Store) LoadEscrow(_ context.Context, owner entities.Principal) (entities.EscrowAccount, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[owner]
	return account, ok, nil
}

func (s *Store) SaveDatasetWithOutbox(_ context.Context, dataset entities.Dataset, event ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites != nil {
		return s.failWrites
	}
	if _, exists := s.datasets[dataset.DatasetID]; exists {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	message, err := outboxMessage(event)
	if err != nil {
		return err
	}
	s.datasets[dataset.DatasetID] = dataset.Clone()
	s.appendOutbox(message)

	s.logger.Debug("dataset and outbox persisted in memory store",
		"event", "memory_save_dataset_with_outbox",
		"module", "data-marketplace/dataset-registry",
		"layer", "adapter",
		"dataset_id", dataset.DatasetID,
		"outbox_event_id", event.EventID,
	)
	return nil
}

func (s *Store) SavePurchaseWithOutbox(
	_ context.Context,
	grant entities.AccessGrant,
	account entities.EscrowAccount,
	event ports.EventEnvelope,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites != nil {
		return s.failWrites
	}
	if _, exists := s.grants[grant.Key()]; exists {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	message, err := outboxMessage(event)
	if err != nil {
		return err
	}
	s.grants[grant.Key()] = grant
	s.accounts[account.Owner] = account
	s.appendOutbox(message)

	s.logger.Debug("purchase and outbox persisted in memory store",
		"event", "memory_save_purchase_with_outbox",
		"module", "data-marketplace/dataset-registry",
		"layer", "adapter",
		"dataset_id", grant.DatasetID,
		"buyer", grant.Principal,
		"outbox_event_id", event.EventID,
	)
	return nil
}

func (s *Store) SaveWithdrawalWithOutbox(
	_ context.Context,
	account entities.EscrowAccount,
	withdrawal entities.Withdrawal,
	event ports.EventEnvelope,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites != nil {
		return s.failWrites
	}
	if _, exists := s.withdrawals[withdrawal.WithdrawalID]; exists {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	message, err := outboxMessage(event)
	if err != nil {
		return err
	}
	s.accounts[account.Owner] = account
	s.withdrawals[withdrawal.WithdrawalID] = withdrawal
	s.withdrawOrd = append(s.withdrawOrd, withdrawal.WithdrawalID)
	s.appendOutbox(message)
	return nil
}

func (s *Store) UpdateWithdrawal(_ context.Context, withdrawal entities.Withdrawal, event *ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites != nil {
		return s.failWrites
	}
	if _, exists := s.withdrawals[withdrawal.WithdrawalID]; !exists {
		return fmt.Errorf("withdrawal %s not found", withdrawal.WithdrawalID)
	}
	if event != nil {
		message, err := outboxMessage(*event)
		if err != nil {
			return err
		}
		s.appendOutbox(message)
	}
	s.withdrawals[withdrawal.WithdrawalID] = withdrawal
	return nil
}

func (s *Store) ListWithdrawals(_ context.Context, owner entities.Principal) ([]entities.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.Withdrawal, 0)
	for _, id := range s.withdrawOrd {
		withdrawal := s.withdrawals[id]
		if withdrawal.Owner == owner {
			items = append(items, withdrawal)
		}
	}
	return items, nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	messages := make([]ports.OutboxMessage, 0, limit)
	for _, id := range s.outboxOrder {
		if _, sent := s.outboxSent[id]; sent {
			continue
		}
		if msg, ok := s.outbox[id]; ok {
			messages = append(messages, msg)
		}
		if len(messages) >= limit {
			break
		}
	}
	return messages, nil
}

func (s *Store) MarkOutboxSent(_ context.Context, outboxID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.outbox[outboxID]; !ok {
		return fmt.Errorf("outbox message %s not found", outboxID)
	}
	s.outboxSent[outboxID] = sentAt.UTC()
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	value := atomic.AddUint64(&s.sequence, 1)
	return fmt.Sprintf("dsr-%d", value), nil
}

// OutboxEvents returns every outbox row in write order, sent or not.
func (s *Store) OutboxEvents() []ports.OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]ports.OutboxMessage, 0, len(s.outboxOrder))
	for _, id := range s.outboxOrder {
		if evt, ok := s.outbox[id]; ok {
			events = append(events, evt)
		}
	}
	return events
}

func (s *Store) appendOutbox(message ports.OutboxMessage) {
	s.outbox[message.OutboxID] = message
	s.outboxOrder = append(s.outboxOrder, message.OutboxID)
}

func outboxMessage(event ports.EventEnvelope) (ports.OutboxMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return ports.OutboxMessage{}, err
	}
	return ports.OutboxMessage{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      payload,
		CreatedAt:    event.OccurredAt,
	}, nil
}
