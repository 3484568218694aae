package application_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"geneledger/contexts/data-marketplace/dataset-registry/adapters/memory"
	"geneledger/contexts/data-marketplace/dataset-registry/adapters/settlement"
	"geneledger/contexts/data-marketplace/dataset-registry/application"
	"geneledger/contexts/data-marketplace/dataset-registry/domain/entities"
	domainerrors "geneledger/contexts/data-marketplace/dataset-registry/domain/errors"
	"geneledger/contexts/data-marketplace/dataset-registry/ports"
	contractsv1 "geneledger/contracts/gen/events/v1"
)

const (
	owner  = "0x00000000000000000000000000000000000000aa"
	buyer  = "0x00000000000000000000000000000000000000cc"
	anyone = "0x00000000000000000000000000000000000000dd"
)

type harness struct {
	registry *application.Registry
	store    *memory.Store
	payouts  *settlement.Recorder
}

func newHarness(t *testing.T) harness {
	t.Helper()
	store := memory.NewStore(nil)
	payouts := settlement.NewRecorder()
	registry := application.NewRegistry(application.RegistryConfig{
		Repository:  store,
		Settlement:  payouts,
		Idempotency: memory.NewIdempotencyCache(),
		Clock:       store,
		IDGenerator: store,
	})
	return harness{registry: registry, store: store, payouts: payouts}
}

func (h harness) register(t *testing.T, tier string, price int64) entities.Dataset {
	t.Helper()
	dataset, err := h.registry.RegisterDataset(context.Background(), application.RegisterDatasetCommand{
		Owner:      owner,
		Title:      "Rare disease cohort",
		ContentRef: "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi",
		Price:      entities.NewAmount(price),
		AccessTier: tier,
		DataType:   "csv",
	})
	if err != nil {
		t.Fatalf("register dataset failed: %v", err)
	}
	return dataset
}

func (h harness) canAccess(t *testing.T, principal string, datasetID uint64) bool {
	t.Helper()
	ok, err := h.registry.CanAccess(context.Background(), principal, datasetID)
	if err != nil {
		t.Fatalf("can access failed: %v", err)
	}
	return ok
}

func (h harness) balance(t *testing.T, principal string) entities.Amount {
	t.Helper()
	amount, err := h.registry.EscrowBalance(context.Background(), principal)
	if err != nil {
		t.Fatalf("escrow balance failed: %v", err)
	}
	return amount
}

func TestPurchaseThenWithdrawFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dataset := h.register(t, "Standard", 5)

	if h.canAccess(t, buyer, dataset.DatasetID) {
		t.Fatal("buyer must not have access before purchase")
	}
	receipt, err := h.registry.PurchaseAccess(ctx, application.PurchaseAccessCommand{
		DatasetID: dataset.DatasetID,
		Buyer:     buyer,
		Amount:    entities.NewAmount(5),
	})
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if receipt.DatasetID != dataset.DatasetID || !receipt.Amount.Equal(entities.NewAmount(5)) {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if !h.canAccess(t, buyer, dataset.DatasetID) {
		t.Fatal("buyer must have access after purchase")
	}
	if !h.balance(t, owner).Equal(entities.NewAmount(5)) {
		t.Fatalf("expected owner escrow 5, got %s", h.balance(t, owner))
	}

	result, err := h.registry.Withdraw(ctx, owner)
	if err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if !result.Amount.Equal(entities.NewAmount(5)) {
		t.Fatalf("expected withdrawn 5, got %s", result.Amount)
	}
	if !h.balance(t, owner).IsZero() {
		t.Fatalf("expected zero balance after withdraw, got %s", h.balance(t, owner))
	}
	transfers := h.payouts.Transfers()
	if len(transfers) != 1 || !transfers[0].Amount.Equal(entities.NewAmount(5)) {
		t.Fatalf("expected one settlement transfer of 5, got %+v", transfers)
	}
	if result.SettlementRef != "local-"+result.WithdrawalID {
		t.Fatalf("unexpected settlement ref %q", result.SettlementRef)
	}

	withdrawals, err := h.registry.ListWithdrawals(ctx, owner)
	if err != nil {
		t.Fatalf("list withdrawals failed: %v", err)
	}
	if len(withdrawals) != 1 || withdrawals[0].Status != entities.WithdrawalStatusSettled {
		t.Fatalf("expected one settled withdrawal, got %+v", withdrawals)
	}
}

func TestUnderpaymentLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	dataset := h.register(t, "Standard", 5)

	_, err := h.registry.PurchaseAccess(context.Background(), application.PurchaseAccessCommand{
		DatasetID: dataset.DatasetID,
		Buyer:     buyer,
		Amount:    entities.NewAmount(3),
	})
	var paymentErr *domainerrors.PaymentError
	if !errors.As(err, &paymentErr) {
		t.Fatalf("expected payment error, got %v", err)
	}
	if paymentErr.Expected != "5" || paymentErr.Got != "3" {
		t.Fatalf("unexpected payment error detail %+v", paymentErr)
	}
	if h.canAccess(t, buyer, dataset.DatasetID) {
		t.Fatal("failed purchase must not grant access")
	}
	if !h.balance(t, owner).IsZero() {
		t.Fatalf("failed purchase must not credit escrow, got %s", h.balance(t, owner))
	}
}

func TestOpenDatasetIsAccessibleToEveryone(t *testing.T) {
	h := newHarness(t)
	dataset := h.register(t, "Open", 10)

	if !h.canAccess(t, anyone, dataset.DatasetID) {
		t.Fatal("open dataset must be accessible without purchase")
	}

	_, err := h.registry.PurchaseAccess(context.Background(), application.PurchaseAccessCommand{
		DatasetID: dataset.DatasetID,
		Buyer:     anyone,
		Amount:    entities.NewAmount(10),
	})
	if !errors.Is(err, domainerrors.ErrOpenDatasetNotPurchasable) || !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("expected open dataset rejection, got %v", err)
	}
	if !h.balance(t, owner).IsZero() {
		t.Fatal("rejected open purchase must not credit escrow")
	}
}

func TestRepeatPurchaseIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dataset := h.register(t, "Premium", 5)

	cmd := application.PurchaseAccessCommand{DatasetID: dataset.DatasetID, Buyer: buyer, Amount: entities.NewAmount(5)}
	if _, err := h.registry.PurchaseAccess(ctx, cmd); err != nil {
		t.Fatalf("first purchase failed: %v", err)
	}
	if _, err := h.registry.PurchaseAccess(ctx, cmd); !errors.Is(err, domainerrors.ErrAlreadyGranted) {
		t.Fatalf("expected already granted, got %v", err)
	}
	if !h.balance(t, owner).Equal(entities.NewAmount(5)) {
		t.Fatalf("repeat purchase must not charge again, balance %s", h.balance(t, owner))
	}

	ownerCmd := application.PurchaseAccessCommand{DatasetID: dataset.DatasetID, Buyer: owner, Amount: entities.NewAmount(5)}
	if _, err := h.registry.PurchaseAccess(ctx, ownerCmd); !errors.Is(err, domainerrors.ErrAlreadyGranted) {
		t.Fatalf("expected owner purchase to be rejected as already granted, got %v", err)
	}
}

func TestPurchaseUnknownDataset(t *testing.T) {
	h := newHarness(t)
	_, err := h.registry.PurchaseAccess(context.Background(), application.PurchaseAccessCommand{
		DatasetID: 99,
		Buyer:     buyer,
		Amount:    entities.NewAmount(1),
	})
	var notFound *domainerrors.NotFoundError
	if !errors.As(err, &notFound) || notFound.DatasetID != 99 {
		t.Fatalf("expected not found for 99, got %v", err)
	}
	if _, err := h.registry.CanAccess(context.Background(), buyer, 99); !errors.Is(err, domainerrors.ErrNotFound) {
		t.Fatalf("expected can access not found, got %v", err)
	}
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cases := map[string]application.RegisterDatasetCommand{
		"owner": {Owner: "nobody", Title: "t", AccessTier: "Open"},
		"tier":  {Owner: owner, Title: "t", AccessTier: "Gold"},
		"title": {Owner: owner, Title: " ", AccessTier: "Open"},
		"price": {Owner: owner, Title: "t", AccessTier: "Open", Price: entities.NewAmount(-1)},
	}
	for name, cmd := range cases {
		if _, err := h.registry.RegisterDataset(ctx, cmd); !errors.Is(err, domainerrors.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
	if dataset := h.register(t, "Open", 0); dataset.DatasetID != 1 {
		t.Fatalf("rejected registrations must not consume ids, got %d", dataset.DatasetID)
	}
}

func TestPurchaseIdempotencyReplayAndConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dataset := h.register(t, "Standard", 5)

	cmd := application.PurchaseAccessCommand{
		DatasetID:      dataset.DatasetID,
		Buyer:          buyer,
		Amount:         entities.NewAmount(5),
		IdempotencyKey: "idem-purchase-1",
	}
	first, err := h.registry.PurchaseAccess(ctx, cmd)
	if err != nil {
		t.Fatalf("first purchase failed: %v", err)
	}
	second, err := h.registry.PurchaseAccess(ctx, cmd)
	if err != nil {
		t.Fatalf("replayed purchase failed: %v", err)
	}
	if !second.Replayed || first.Replayed {
		t.Fatalf("expected only the second receipt to be a replay")
	}
	if !second.PurchasedAt.Equal(first.PurchasedAt) || second.Buyer != first.Buyer {
		t.Fatalf("replay must return the original receipt, got %+v vs %+v", second, first)
	}
	if !h.balance(t, owner).Equal(entities.NewAmount(5)) {
		t.Fatalf("replay must not credit again, balance %s", h.balance(t, owner))
	}

	cmd.Amount = entities.NewAmount(6)
	if _, err := h.registry.PurchaseAccess(ctx, cmd); !errors.Is(err, domainerrors.ErrIdempotencyConflict) {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
}

func TestRepositoryFailureRejectsWholeOperation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dataset := h.register(t, "Standard", 5)

	h.store.FailWrites(errors.New("disk full"))
	_, err := h.registry.PurchaseAccess(ctx, application.PurchaseAccessCommand{
		DatasetID: dataset.DatasetID,
		Buyer:     buyer,
		Amount:    entities.NewAmount(5),
	})
	var configErr *domainerrors.ConfigurationError
	if !errors.As(err, &configErr) || configErr.Op != "save_purchase" {
		t.Fatalf("expected configuration error on save_purchase, got %v", err)
	}
	if h.canAccess(t, buyer, dataset.DatasetID) || !h.balance(t, owner).IsZero() {
		t.Fatal("failed write must leave grant and escrow untouched")
	}

	_, err = h.registry.RegisterDataset(ctx, application.RegisterDatasetCommand{Owner: owner, Title: "second", AccessTier: "Open"})
	if !errors.Is(err, domainerrors.ErrConfiguration) {
		t.Fatalf("expected configuration error on register, got %v", err)
	}

	h.store.FailWrites(nil)
	next := h.register(t, "Open", 0)
	if next.DatasetID != 2 {
		t.Fatalf("failed registration must not consume an id, got %d", next.DatasetID)
	}
}

func TestWithdrawFailedWriteKeepsBalance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dataset := h.register(t, "Standard", 5)
	if _, err := h.registry.PurchaseAccess(ctx, application.PurchaseAccessCommand{
		DatasetID: dataset.DatasetID, Buyer: buyer, Amount: entities.NewAmount(5),
	}); err != nil {
		t.Fatalf("purchase failed: %v", err)
	}

	h.store.FailWrites(errors.New("connection reset"))
	if _, err := h.registry.Withdraw(ctx, owner); !errors.Is(err, domainerrors.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !h.balance(t, owner).Equal(entities.NewAmount(5)) {
		t.Fatalf("balance must survive an uncommitted withdraw, got %s", h.balance(t, owner))
	}
	if len(h.payouts.Transfers()) != 0 {
		t.Fatal("settlement must not be called when the zeroed balance was not committed")
	}
}

func TestWithdrawEmptyBalance(t *testing.T) {
	h := newHarness(t)
	_, err := h.registry.Withdraw(context.Background(), owner)
	if !errors.Is(err, domainerrors.ErrNothingToWithdraw) || !errors.Is(err, domainerrors.ErrWithdraw) {
		t.Fatalf("expected nothing to withdraw, got %v", err)
	}
	if len(h.payouts.Transfers()) != 0 {
		t.Fatal("no transfer may be attempted for an empty balance")
	}
}

func TestWithdrawWithoutSettlementIsConfigurationError(t *testing.T) {
	registry := application.NewRegistry(application.RegistryConfig{})
	_, err := registry.Withdraw(context.Background(), owner)
	var configErr *domainerrors.ConfigurationError
	if !errors.As(err, &configErr) || configErr.Op != "settlement" {
		t.Fatalf("expected settlement configuration error, got %v", err)
	}
}

func TestSettlementFailureKeepsBalanceZero(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dataset := h.register(t, "Standard", 5)
	if _, err := h.registry.PurchaseAccess(ctx, application.PurchaseAccessCommand{
		DatasetID: dataset.DatasetID, Buyer: buyer, Amount: entities.NewAmount(5),
	}); err != nil {
		t.Fatalf("purchase failed: %v", err)
	}

	h.payouts.Fail = errors.New("bank offline")
	result, err := h.registry.Withdraw(ctx, owner)
	if !errors.Is(err, domainerrors.ErrWithdraw) || !errors.Is(err, domainerrors.ErrSettlementFailed) {
		t.Fatalf("expected settlement failure, got %v", err)
	}
	if !result.Amount.Equal(entities.NewAmount(5)) || result.WithdrawalID == "" {
		t.Fatalf("failed withdraw must still identify the journal entry, got %+v", result)
	}
	if !h.balance(t, owner).IsZero() {
		t.Fatalf("balance must stay zero after failed settlement, got %s", h.balance(t, owner))
	}

	withdrawals, err := h.registry.ListWithdrawals(ctx, owner)
	if err != nil {
		t.Fatalf("list withdrawals failed: %v", err)
	}
	if len(withdrawals) != 1 || withdrawals[0].Status != entities.WithdrawalStatusFailed || withdrawals[0].FailureReason == "" {
		t.Fatalf("expected failed journal entry, got %+v", withdrawals)
	}

	h.payouts.Fail = nil
	if _, err := h.registry.Withdraw(ctx, owner); !errors.Is(err, domainerrors.ErrNothingToWithdraw) {
		t.Fatalf("retrying must not pay out twice, got %v", err)
	}
}

func TestNestedWithdrawDuringSettlementSeesZeroBalance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dataset := h.register(t, "Standard", 5)
	if _, err := h.registry.PurchaseAccess(ctx, application.PurchaseAccessCommand{
		DatasetID: dataset.DatasetID, Buyer: buyer, Amount: entities.NewAmount(5),
	}); err != nil {
		t.Fatalf("purchase failed: %v", err)
	}

	var nestedErr error
	h.payouts.OnTransfer = func(ctx context.Context, _ ports.SettlementRequest) {
		_, nestedErr = h.registry.Withdraw(ctx, owner)
	}
	result, err := h.registry.Withdraw(ctx, owner)
	if err != nil {
		t.Fatalf("outer withdraw failed: %v", err)
	}
	if !result.Amount.Equal(entities.NewAmount(5)) {
		t.Fatalf("expected outer withdraw of 5, got %s", result.Amount)
	}
	if !errors.Is(nestedErr, domainerrors.ErrNothingToWithdraw) {
		t.Fatalf("expected nested withdraw to find nothing, got %v", nestedErr)
	}
	if len(h.payouts.Transfers()) != 1 {
		t.Fatalf("expected exactly one transfer, got %d", len(h.payouts.Transfers()))
	}
}

func TestConcurrentPurchasesCreditEveryBuyer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dataset := h.register(t, "Standard", 5)

	const buyers = 32
	var wg sync.WaitGroup
	errs := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.registry.PurchaseAccess(ctx, application.PurchaseAccessCommand{
				DatasetID: dataset.DatasetID,
				Buyer:     fmt.Sprintf("0x%040x", 0x1000+i),
				Amount:    entities.NewAmount(5),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent purchase failed: %v", err)
		}
	}
	if !h.balance(t, owner).Equal(entities.NewAmount(5 * buyers)) {
		t.Fatalf("expected escrow %d, got %s", 5*buyers, h.balance(t, owner))
	}
}

func TestConcurrentWithdrawsPayOutOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dataset := h.register(t, "Standard", 5)
	if _, err := h.registry.PurchaseAccess(ctx, application.PurchaseAccessCommand{
		DatasetID: dataset.DatasetID, Buyer: buyer, Amount: entities.NewAmount(5),
	}); err != nil {
		t.Fatalf("purchase failed: %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.registry.Withdraw(ctx, owner)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, domainerrors.ErrNothingToWithdraw) {
				t.Errorf("unexpected withdraw error: %v", err)
			}
		}()
	}
	wg.Wait()
	if succeeded != 1 || len(h.payouts.Transfers()) != 1 {
		t.Fatalf("expected one payout, got %d successes and %d transfers", succeeded, len(h.payouts.Transfers()))
	}
}

func TestRestoreRebuildsStateFromRepository(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	paid := h.register(t, "Standard", 5)
	if _, err := h.registry.PurchaseAccess(ctx, application.PurchaseAccessCommand{
		DatasetID: paid.DatasetID, Buyer: buyer, Amount: entities.NewAmount(5),
	}); err != nil {
		t.Fatalf("purchase failed: %v", err)
	}

	restarted := application.NewRegistry(application.RegistryConfig{
		Repository:  h.store,
		Settlement:  h.payouts,
		Clock:       h.store,
		IDGenerator: h.store,
	})
	if err := restarted.Restore(ctx); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	ok, err := restarted.CanAccess(ctx, buyer, paid.DatasetID)
	if err != nil || !ok {
		t.Fatalf("restored registry must keep grants, got %v %v", ok, err)
	}
	balance, err := restarted.EscrowBalance(ctx, owner)
	if err != nil || !balance.Equal(entities.NewAmount(5)) {
		t.Fatalf("restored registry must keep escrow, got %s %v", balance, err)
	}
	next, err := restarted.RegisterDataset(ctx, application.RegisterDatasetCommand{Owner: owner, Title: "next", AccessTier: "Open"})
	if err != nil {
		t.Fatalf("register after restore failed: %v", err)
	}
	if next.DatasetID != paid.DatasetID+1 {
		t.Fatalf("expected id %d after restore, got %d", paid.DatasetID+1, next.DatasetID)
	}
}

func TestListDatasetsPagesWithCursor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		h.register(t, "Standard", 5)
	}
	h.register(t, "Open", 0)

	page, cursor, err := h.registry.ListDatasets(ctx, application.ListDatasetsQuery{AccessTier: "standard", Limit: 2})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(page) != 2 || cursor == "" {
		t.Fatalf("expected full first page with cursor, got %d items cursor %q", len(page), cursor)
	}
	page, cursor, err = h.registry.ListDatasets(ctx, application.ListDatasetsQuery{AccessTier: "standard", Limit: 2, Cursor: cursor})
	if err != nil {
		t.Fatalf("list second page failed: %v", err)
	}
	if len(page) != 1 || page[0].DatasetID != 3 || cursor != "" {
		t.Fatalf("unexpected last page %+v cursor %q", page, cursor)
	}

	if _, _, err := h.registry.ListDatasets(ctx, application.ListDatasetsQuery{Cursor: "!!"}); !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("expected malformed cursor validation error, got %v", err)
	}
}

func TestListDatasetsClampsHugeLimit(t *testing.T) {
	h := newHarness(t)
	h.register(t, "Standard", 5)
	h.register(t, "Open", 0)

	page, cursor, err := h.registry.ListDatasets(context.Background(), application.ListDatasetsQuery{Limit: math.MaxInt})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(page) != 2 || cursor != "" {
		t.Fatalf("expected both datasets on one page, got %d cursor %q", len(page), cursor)
	}
}

func TestListDatasetsFiltersByTagAndQuery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, cmd := range []application.RegisterDatasetCommand{
		{Owner: owner, Title: "Exome cohort", Price: entities.NewAmount(5), AccessTier: "Standard", Tags: []string{"genomics"}},
		{Owner: owner, Title: "Gut microbiome", Description: "16S exome-free amplicons", Price: entities.NewAmount(5), AccessTier: "Standard", Tags: []string{"microbiome"}},
	} {
		if _, err := h.registry.RegisterDataset(ctx, cmd); err != nil {
			t.Fatalf("register %q: %v", cmd.Title, err)
		}
	}

	page, _, err := h.registry.ListDatasets(ctx, application.ListDatasetsQuery{Tag: "Genomics"})
	if err != nil || len(page) != 1 || page[0].DatasetID != 1 {
		t.Fatalf("expected dataset 1 by tag, got %+v err=%v", page, err)
	}
	page, _, err = h.registry.ListDatasets(ctx, application.ListDatasetsQuery{Query: "EXOME"})
	if err != nil || len(page) != 2 {
		t.Fatalf("expected both datasets by text, got %+v err=%v", page, err)
	}
}

func TestIdenticalRegistrationsHaveIndependentState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.register(t, "Standard", 5)
	second := h.register(t, "Standard", 5)
	if first.DatasetID == second.DatasetID {
		t.Fatalf("identical registrations must get distinct ids, both got %d", first.DatasetID)
	}

	if _, err := h.registry.PurchaseAccess(ctx, application.PurchaseAccessCommand{
		DatasetID: first.DatasetID, Buyer: buyer, Amount: entities.NewAmount(5),
	}); err != nil {
		t.Fatalf("purchase first failed: %v", err)
	}
	if !h.canAccess(t, buyer, first.DatasetID) {
		t.Fatal("buyer must have access to the purchased dataset")
	}
	if h.canAccess(t, buyer, second.DatasetID) {
		t.Fatal("a grant on one dataset must not open its identical twin")
	}
	if !h.balance(t, owner).Equal(entities.NewAmount(5)) {
		t.Fatalf("expected escrow 5 after one purchase, got %s", h.balance(t, owner))
	}

	if _, err := h.registry.PurchaseAccess(ctx, application.PurchaseAccessCommand{
		DatasetID: second.DatasetID, Buyer: buyer, Amount: entities.NewAmount(5),
	}); err != nil {
		t.Fatalf("purchase second failed: %v", err)
	}
	if !h.canAccess(t, buyer, second.DatasetID) {
		t.Fatal("buyer must have access to the second dataset after buying it")
	}
	if !h.balance(t, owner).Equal(entities.NewAmount(10)) {
		t.Fatalf("expected each purchase to credit separately, got %s", h.balance(t, owner))
	}
}

func TestOutboxRecordsEventsInCommitOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dataset := h.register(t, "Standard", 5)
	if _, err := h.registry.PurchaseAccess(ctx, application.PurchaseAccessCommand{
		DatasetID: dataset.DatasetID, Buyer: buyer, Amount: entities.NewAmount(5),
	}); err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if _, err := h.registry.PurchaseAccess(ctx, application.PurchaseAccessCommand{
		DatasetID: dataset.DatasetID, Buyer: anyone, Amount: entities.NewAmount(1),
	}); err == nil {
		t.Fatal("expected underpayment to fail")
	}
	if _, err := h.registry.Withdraw(ctx, owner); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}

	events := h.store.OutboxEvents()
	want := []string{
		contractsv1.EventTypeDatasetRegistered,
		contractsv1.EventTypeAccessPurchased,
		contractsv1.EventTypeEscrowWithdrawn,
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, event := range events {
		if event.EventType != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], event.EventType)
		}
	}
}
