package application

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"geneledger/contexts/data-marketplace/dataset-registry/domain/entities"
	domainerrors "geneledger/contexts/data-marketplace/dataset-registry/domain/errors"
	"geneledger/contexts/data-marketplace/dataset-registry/domain/ledger"
	"geneledger/contexts/data-marketplace/dataset-registry/domain/services"
	"geneledger/contexts/data-marketplace/dataset-registry/ports"
)

type RegisterDatasetCommand struct {
	Owner       string
	Title       string
	Description string
	ContentRef  string
	Price       entities.Amount
	AccessTier  string
	Tags        []string
	DataType    string
	FileSize    int64
}

type PurchaseAccessCommand struct {
	DatasetID      uint64
	Buyer          string
	Amount         entities.Amount
	IdempotencyKey string
}

type Receipt struct {
	DatasetID   uint64             `json:"dataset_id"`
	Buyer       entities.Principal `json:"buyer"`
	Amount      entities.Amount    `json:"amount"`
	PurchasedAt time.Time          `json:"purchased_at"`
	Replayed    bool               `json:"-"`
}

type WithdrawResult struct {
	WithdrawalID  string
	Owner         entities.Principal
	Amount        entities.Amount
	SettlementRef string
}

type ListDatasetsQuery struct {
	Owner      string
	AccessTier string
	Tag        string
	Query      string
	Cursor     string
	Limit      int
}

type RegistryConfig struct {
	Repository     ports.Repository
	Settlement     ports.Settlement
	Idempotency    ports.IdempotencyStore
	Clock          ports.Clock
	IDGenerator    ports.IDGenerator
	Metrics        ports.Metrics
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

// Registry is the only entry point to the ledger state and its single
// serialization boundary: RegisterDataset, PurchaseAccess and the zeroing step
// of Withdraw run under the write lock, reads share the read lock.
type Registry struct {
	mu        sync.RWMutex
	catalog   *ledger.Catalog
	grants    *ledger.GrantStore
	escrow    *ledger.EscrowLedger
	access    services.AccessController
	purchases PurchaseOrchestrator

	repo           ports.Repository
	settlement     ports.Settlement
	idempotency    ports.IdempotencyStore
	clock          ports.Clock
	ids            ports.IDGenerator
	metrics        ports.Metrics
	idempotencyTTL time.Duration
	logger         *slog.Logger
}

// NewRegistry builds a registry over empty state. Call Restore to load what
// the repository already holds.
func NewRegistry(cfg RegistryConfig) *Registry {
	r := &Registry{
		repo:           cfg.Repository,
		settlement:     cfg.Settlement,
		idempotency:    cfg.Idempotency,
		clock:          cfg.Clock,
		ids:            cfg.IDGenerator,
		metrics:        cfg.Metrics,
		idempotencyTTL: cfg.IdempotencyTTL,
		logger:         ResolveLogger(cfg.Logger),
	}
	if r.repo == nil {
		r.repo = nopRepository{}
	}
	if r.ids == nil {
		r.ids = &sequenceIDs{}
	}
	if r.metrics == nil {
		r.metrics = nopMetrics{}
	}
	if r.idempotencyTTL <= 0 {
		r.idempotencyTTL = 7 * 24 * time.Hour
	}
	r.install(ledger.NewCatalog(), ledger.NewGrantStore(), ledger.NewEscrowLedger())
	return r
}

func (r *Registry) install(catalog *ledger.Catalog, grants *ledger.GrantStore, escrow *ledger.EscrowLedger) {
	r.catalog = catalog
	r.grants = grants
	r.escrow = escrow
	r.access = services.AccessController{Datasets: catalog, Grants: grants}
	r.purchases = PurchaseOrchestrator{Catalog: catalog, Grants: grants, Escrow: escrow}
}

// Restore replaces in-memory state with the repository snapshot. On error the
// previous state is kept.
func (r *Registry) Restore(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot, err := r.repo.LoadSnapshot(ctx)
	if err != nil {
		return persistenceError("load_snapshot", err)
	}

	catalog := ledger.NewCatalog()
	grants := ledger.NewGrantStore()
	escrow := ledger.NewEscrowLedger()
	for _, dataset := range snapshot.Datasets {
		if err := catalog.Restore(dataset); err != nil {
			return fmt.Errorf("restore dataset %d: %w", dataset.DatasetID, err)
		}
	}
	for _, grant := range snapshot.Grants {
		grants.Grant(grant)
	}
	for _, account := range snapshot.Accounts {
		if err := escrow.Restore(account); err != nil {
			return fmt.Errorf("restore escrow %s: %w", account.Owner, err)
		}
	}
	r.install(catalog, grants, escrow)

	r.logger.Info("registry state restored",
		"event", "dataset_registry_restored",
		"module", logModule,
		"layer", "application",
		"datasets", catalog.Len(),
		"grants", grants.Len(),
		"escrow_accounts", len(snapshot.Accounts),
	)
	return nil
}

func (r *Registry) RegisterDataset(ctx context.Context, cmd RegisterDatasetCommand) (entities.Dataset, error) {
	draft, err := buildDraft(cmd)
	if err != nil {
		return entities.Dataset{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dataset, err := r.catalog.PlanRegister(draft, r.now())
	if err != nil {
		r.logger.Warn("register dataset rejected",
			"event", "dataset_register_rejected",
			"module", logModule,
			"layer", "application",
			"owner", draft.Owner,
			"error", err.Error(),
		)
		return entities.Dataset{}, err
	}
	event, err := r.datasetRegisteredEvent(ctx, dataset)
	if err != nil {
		return entities.Dataset{}, persistenceError("build_event", err)
	}
	if err := r.repo.SaveDatasetWithOutbox(ctx, dataset, event); err != nil {
		r.logger.Error("register dataset failed on write",
			"event", "dataset_register_write_failed",
			"module", logModule,
			"layer", "application",
			"dataset_id", dataset.DatasetID,
			"error", err.Error(),
		)
		return entities.Dataset{}, persistenceError("save_dataset", err)
	}
	if err := r.catalog.Insert(dataset); err != nil {
		return entities.Dataset{}, err
	}
	r.metrics.DatasetRegistered(dataset.Tier)

	r.logger.Info("dataset registered",
		"event", "dataset_registered",
		"module", logModule,
		"layer", "application",
		"dataset_id", dataset.DatasetID,
		"owner", dataset.Owner,
		"tier", dataset.Tier,
		"price", dataset.Price.String(),
	)
	return dataset.Clone(), nil
}

// PurchaseAccess runs in this order under the write lock:
// 1) idempotency replay
// 2) purchase plan (lookup, policy, credit preview)
// 3) atomic grant + escrow + outbox persistence
// 4) in-memory commit and idempotency record write.
func (r *Registry) PurchaseAccess(ctx context.Context, cmd PurchaseAccessCommand) (Receipt, error) {
	buyer, err := entities.ParsePrincipal(cmd.Buyer)
	if err != nil {
		return Receipt{}, err
	}
	key := strings.TrimSpace(cmd.IdempotencyKey)
	requestHash := hashPurchase(cmd.DatasetID, buyer, cmd.Amount)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if key != "" && r.idempotency != nil {
		record, found, err := r.idempotency.Get(ctx, key, now)
		if err != nil {
			return Receipt{}, persistenceError("idempotency_get", err)
		}
		if found {
			// A reused idempotency key must map to an identical request payload.
			if record.RequestHash != requestHash {
				return Receipt{}, fmt.Errorf("%w: %s", domainerrors.ErrIdempotencyConflict, key)
			}
			var receipt Receipt
			if err := json.Unmarshal(record.ResponsePayload, &receipt); err != nil {
				return Receipt{}, persistenceError("idempotency_decode", err)
			}
			receipt.Replayed = true
			return receipt, nil
		}
	}

	plan, err := r.purchases.Plan(cmd.DatasetID, buyer, cmd.Amount, now)
	if err != nil {
		r.metrics.PurchaseRejected(rejectionReason(err))
		r.logger.Warn("purchase rejected",
			"event", "dataset_purchase_rejected",
			"module", logModule,
			"layer", "application",
			"dataset_id", cmd.DatasetID,
			"buyer", buyer,
			"amount", cmd.Amount.String(),
			"error", err.Error(),
		)
		return Receipt{}, err
	}
	event, err := r.accessPurchasedEvent(ctx, plan)
	if err != nil {
		return Receipt{}, persistenceError("build_event", err)
	}
	if err := r.repo.SavePurchaseWithOutbox(ctx, plan.Grant, plan.Account, event); err != nil {
		r.logger.Error("purchase failed on write",
			"event", "dataset_purchase_write_failed",
			"module", logModule,
			"layer", "application",
			"dataset_id", cmd.DatasetID,
			"buyer", buyer,
			"error", err.Error(),
		)
		return Receipt{}, persistenceError("save_purchase", err)
	}
	r.purchases.Commit(plan)
	r.metrics.PurchaseCompleted(plan.Dataset.Tier, plan.Grant.Amount)

	receipt := Receipt{
		DatasetID:   plan.Grant.DatasetID,
		Buyer:       plan.Grant.Principal,
		Amount:      plan.Grant.Amount,
		PurchasedAt: plan.Grant.GrantedAt,
	}
	if key != "" && r.idempotency != nil {
		r.rememberReceipt(ctx, key, requestHash, receipt, now)
	}

	r.logger.Info("dataset access purchased",
		"event", "dataset_access_purchased",
		"module", logModule,
		"layer", "application",
		"dataset_id", receipt.DatasetID,
		"buyer", receipt.Buyer,
		"owner", plan.Dataset.Owner,
		"amount", receipt.Amount.String(),
	)
	return receipt, nil
}

// The purchase is already committed; a failed idempotency write only loses replay.
func (r *Registry) rememberReceipt(ctx context.Context, key, requestHash string, receipt Receipt, now time.Time) {
	payload, err := json.Marshal(receipt)
	if err == nil {
		err = r.idempotency.Put(ctx, ports.IdempotencyRecord{
			Key:             key,
			RequestHash:     requestHash,
			ResponsePayload: payload,
			ExpiresAt:       now.Add(r.idempotencyTTL),
		})
	}
	if err != nil {
		r.logger.Warn("purchase idempotency record not stored",
			"event", "dataset_purchase_idempotency_put_failed",
			"module", logModule,
			"layer", "application",
			"idempotency_key", key,
			"error", err.Error(),
		)
	}
}

// Withdraw zeroes the owner's balance, commits that, and only then asks the
// settlement collaborator to transfer the prior balance. A failed transfer
// is reported as a WithdrawError; the balance stays zero.
func (r *Registry) Withdraw(ctx context.Context, ownerRaw string) (WithdrawResult, error) {
	owner, err := entities.ParsePrincipal(ownerRaw)
	if err != nil {
		return WithdrawResult{}, err
	}
	if r.settlement == nil {
		return WithdrawResult{}, &domainerrors.ConfigurationError{
			Op:  "settlement",
			Err: errors.New("settlement collaborator is not configured"),
		}
	}

	withdrawal, err := r.drainEscrow(ctx, owner)
	if err != nil {
		return WithdrawResult{}, err
	}
	result := WithdrawResult{
		WithdrawalID: withdrawal.WithdrawalID,
		Owner:        owner,
		Amount:       withdrawal.Amount,
	}

	settlement, transferErr := r.settlement.Transfer(ctx, ports.SettlementRequest{
		WithdrawalID: withdrawal.WithdrawalID,
		Owner:        owner,
		Amount:       withdrawal.Amount,
	})
	if transferErr != nil {
		failed := withdrawal.Failed(transferErr.Error(), r.now())
		r.recordSettlementOutcome(ctx, failed, true)
		r.metrics.SettlementFailed()
		r.logger.Error("escrow settlement failed",
			"event", "escrow_settlement_failed",
			"module", logModule,
			"layer", "application",
			"withdrawal_id", withdrawal.WithdrawalID,
			"owner", owner,
			"amount", withdrawal.Amount.String(),
			"error", transferErr.Error(),
		)
		return result, &domainerrors.WithdrawError{
			Owner:  owner.String(),
			Amount: withdrawal.Amount.String(),
			Reason: "settlement transfer failed after balance was zeroed",
			Err:    fmt.Errorf("%w: %w", domainerrors.ErrSettlementFailed, transferErr),
		}
	}

	result.SettlementRef = settlement.Reference
	r.recordSettlementOutcome(ctx, withdrawal.Settled(settlement.Reference, r.now()), false)

	r.logger.Info("escrow withdrawn",
		"event", "escrow_withdrawn",
		"module", logModule,
		"layer", "application",
		"withdrawal_id", withdrawal.WithdrawalID,
		"owner", owner,
		"amount", withdrawal.Amount.String(),
		"settlement_ref", settlement.Reference,
	)
	return result, nil
}

func (r *Registry) drainEscrow(ctx context.Context, owner entities.Principal) (entities.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	account, prior, err := r.escrow.PlanWithdrawAll(owner, now)
	if err != nil {
		return entities.Withdrawal{}, err
	}
	withdrawalID, err := r.ids.NewID(ctx)
	if err != nil {
		return entities.Withdrawal{}, persistenceError("new_withdrawal_id", err)
	}
	withdrawal := entities.Withdrawal{
		WithdrawalID: withdrawalID,
		Owner:        owner,
		Amount:       prior,
		Status:       entities.WithdrawalStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	event, err := r.escrowWithdrawnEvent(ctx, withdrawal)
	if err != nil {
		return entities.Withdrawal{}, persistenceError("build_event", err)
	}
	if err := r.repo.SaveWithdrawalWithOutbox(ctx, account, withdrawal, event); err != nil {
		r.logger.Error("withdraw failed on write",
			"event", "escrow_withdraw_write_failed",
			"module", logModule,
			"layer", "application",
			"owner", owner,
			"error", err.Error(),
		)
		return entities.Withdrawal{}, persistenceError("save_withdrawal", err)
	}
	r.escrow.Apply(account)
	r.metrics.EscrowWithdrawn(prior)
	return withdrawal, nil
}

// recordSettlementOutcome journals the transfer result. The money movement
// has already happened or failed, so a journal error is logged, not returned.
func (r *Registry) recordSettlementOutcome(ctx context.Context, withdrawal entities.Withdrawal, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var event *ports.EventEnvelope
	if failed {
		envelope, err := r.settlementFailedEvent(ctx, withdrawal)
		if err == nil {
			event = &envelope
		}
	}
	if err := r.repo.UpdateWithdrawal(ctx, withdrawal, event); err != nil {
		r.logger.Error("withdrawal journal update failed",
			"event", "escrow_withdrawal_journal_failed",
			"module", logModule,
			"layer", "application",
			"withdrawal_id", withdrawal.WithdrawalID,
			"status", withdrawal.Status,
			"error", err.Error(),
		)
	}
}

func (r *Registry) CanAccess(_ context.Context, principalRaw string, datasetID uint64) (bool, error) {
	principal, err := entities.ParsePrincipal(principalRaw)
	if err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.access.CanAccess(principal, datasetID)
}

func (r *Registry) GetDataset(_ context.Context, datasetID uint64) (entities.Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalog.Get(datasetID)
}

// ListDatasets pages through the catalog in id order. The returned cursor is
// empty on the last page.
func (r *Registry) ListDatasets(_ context.Context, query ListDatasetsQuery) ([]entities.Dataset, string, error) {
	filter := ledger.ListFilter{
		Tag:   query.Tag,
		Query: query.Query,
		Limit: ledger.ClampListLimit(query.Limit),
	}
	if strings.TrimSpace(query.Owner) != "" {
		owner, err := entities.ParsePrincipal(query.Owner)
		if err != nil {
			return nil, "", err
		}
		filter.Owner = owner
	}
	if strings.TrimSpace(query.AccessTier) != "" {
		tier, err := entities.ParseAccessTier(query.AccessTier)
		if err != nil {
			return nil, "", err
		}
		filter.Tier = tier
	}
	afterID, err := decodeCursor(query.Cursor)
	if err != nil {
		return nil, "", err
	}
	filter.AfterID = afterID

	r.mu.RLock()
	defer r.mu.RUnlock()

	page, more := r.catalog.List(filter)
	next := ""
	if more && len(page) > 0 {
		next = encodeCursor(page[len(page)-1].DatasetID)
	}
	return page, next, nil
}

func (r *Registry) EscrowBalance(_ context.Context, ownerRaw string) (entities.Amount, error) {
	owner, err := entities.ParsePrincipal(ownerRaw)
	if err != nil {
		return entities.Amount{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.escrow.BalanceOf(owner), nil
}

func (r *Registry) ListWithdrawals(ctx context.Context, ownerRaw string) ([]entities.Withdrawal, error) {
	owner, err := entities.ParsePrincipal(ownerRaw)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	withdrawals, err := r.repo.ListWithdrawals(ctx, owner)
	if err != nil {
		return nil, persistenceError("list_withdrawals", err)
	}
	return withdrawals, nil
}

func (r *Registry) now() time.Time {
	if r.clock == nil {
		return time.Now().UTC()
	}
	return r.clock.Now().UTC()
}

func buildDraft(cmd RegisterDatasetCommand) (entities.DatasetDraft, error) {
	owner, err := entities.ParsePrincipal(cmd.Owner)
	if err != nil {
		return entities.DatasetDraft{}, err
	}
	tier, err := entities.ParseAccessTier(cmd.AccessTier)
	if err != nil {
		return entities.DatasetDraft{}, err
	}
	return entities.DatasetDraft{
		Owner:       owner,
		Title:       cmd.Title,
		Description: cmd.Description,
		ContentRef:  cmd.ContentRef,
		Price:       cmd.Price,
		Tier:        tier,
		Tags:        cmd.Tags,
		DataType:    entities.DataType(strings.ToUpper(strings.TrimSpace(cmd.DataType))),
		FileSize:    cmd.FileSize,
	}, nil
}

func persistenceError(op string, err error) error {
	var configErr *domainerrors.ConfigurationError
	if errors.As(err, &configErr) {
		return err
	}
	return &domainerrors.ConfigurationError{Op: op, Err: err}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domainerrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, domainerrors.ErrPayment):
		return "payment_mismatch"
	case errors.Is(err, domainerrors.ErrAlreadyGranted):
		return "already_granted"
	case errors.Is(err, domainerrors.ErrOpenDatasetNotPurchasable):
		return "open_dataset"
	case errors.Is(err, domainerrors.ErrValidation):
		return "validation"
	default:
		return "other"
	}
}

func hashPurchase(datasetID uint64, buyer entities.Principal, amount entities.Amount) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s", datasetID, buyer, amount.String())))
	return hex.EncodeToString(sum[:])
}

func decodeCursor(cursor string) (uint64, error) {
	if strings.TrimSpace(cursor) == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, &domainerrors.ValidationError{Field: "cursor", Reason: "is malformed"}
	}
	id, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, &domainerrors.ValidationError{Field: "cursor", Reason: "is malformed"}
	}
	return id, nil
}

func encodeCursor(lastID uint64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatUint(lastID, 10)))
}
