package httpadapter

import (
	"context"
	"log/slog"
	"strings"
	"time"

	cid "github.com/ipfs/go-cid"

	application "geneledger/contexts/data-marketplace/dataset-registry/application"
	"geneledger/contexts/data-marketplace/dataset-registry/domain/entities"
	domainerrors "geneledger/contexts/data-marketplace/dataset-registry/domain/errors"
	httptransport "geneledger/contexts/data-marketplace/dataset-registry/transport/http"
)

type Handler struct {
	Registry *application.Registry
	// RequireCID rejects content references that do not decode as an IPFS CID.
	RequireCID bool
	Logger     *slog.Logger
}

// RegisterDatasetHandler godoc
// @Summary Register a dataset
// @Description Registers a dataset owned by the caller. Records are write-once.
// @Tags dataset-registry
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Caller address"
// @Param request body httptransport.RegisterDatasetRequest true "Dataset metadata"
// @Success 201 {object} httptransport.RegisterDatasetResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Failure 503 {object} httptransport.ErrorResponse
// @Router /v1/datasets [post]
func (h Handler) RegisterDatasetHandler(
	ctx context.Context,
	owner string,
	req httptransport.RegisterDatasetRequest,
) (httptransport.RegisterDatasetResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Info("register dataset request received",
		"event", "http_register_dataset_received",
		"module", "data-marketplace/dataset-registry",
		"layer", "transport",
		"owner", owner,
	)

	if h.RequireCID {
		if _, err := cid.Decode(strings.TrimSpace(req.ContentRef)); err != nil {
			return httptransport.RegisterDatasetResponse{}, &domainerrors.ValidationError{
				Field:  "content_ref",
				Reason: "is not a valid CID",
				Err:    err,
			}
		}
	}
	price, err := entities.ParseAmount(req.Price)
	if err != nil {
		return httptransport.RegisterDatasetResponse{}, &domainerrors.ValidationError{Field: "price", Reason: "must be a non-negative integer of base units"}
	}

	dataset, err := h.Registry.RegisterDataset(ctx, application.RegisterDatasetCommand{
		Owner:       owner,
		Title:       req.Title,
		Description: req.Description,
		ContentRef:  req.ContentRef,
		Price:       price,
		AccessTier:  req.AccessTier,
		Tags:        req.Tags,
		DataType:    req.DataType,
		FileSize:    req.FileSize,
	})
	if err != nil {
		logger.Error("register dataset request failed",
			"event", "http_register_dataset_failed",
			"module", "data-marketplace/dataset-registry",
			"layer", "transport",
			"owner", owner,
			"error", err.Error(),
		)
		return httptransport.RegisterDatasetResponse{}, err
	}
	return httptransport.RegisterDatasetResponse{Item: mapDataset(dataset)}, nil
}

// ListDatasetsHandler godoc
// @Summary List datasets
// @Description Pages through the catalog in registration order.
// @Tags dataset-registry
// @Produce json
// @Param owner query string false "Owner address"
// @Param access_tier query string false "Open, Standard or Premium"
// @Param tag query string false "Tag, case-insensitive"
// @Param q query string false "Search title and description"
// @Param cursor query string false "Cursor token"
// @Param limit query int false "Page size (max 100)"
// @Success 200 {object} httptransport.ListDatasetsResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Router /v1/datasets [get]
func (h Handler) ListDatasetsHandler(ctx context.Context, req httptransport.ListDatasetsRequest) (httptransport.ListDatasetsResponse, error) {
	items, next, err := h.Registry.ListDatasets(ctx, application.ListDatasetsQuery{
		Owner:      req.Owner,
		AccessTier: req.AccessTier,
		Tag:        req.Tag,
		Query:      req.Query,
		Cursor:     req.Cursor,
		Limit:      req.Limit,
	})
	if err != nil {
		return httptransport.ListDatasetsResponse{}, err
	}
	return httptransport.ListDatasetsResponse{
		Items:      mapDatasets(items),
		NextCursor: next,
	}, nil
}

// GetDatasetHandler godoc
// @Summary Get dataset
// @Tags dataset-registry
// @Produce json
// @Param dataset_id path int true "Dataset id"
// @Success 200 {object} httptransport.GetDatasetResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /v1/datasets/{dataset_id} [get]
func (h Handler) GetDatasetHandler(ctx context.Context, datasetID uint64) (httptransport.GetDatasetResponse, error) {
	dataset, err := h.Registry.GetDataset(ctx, datasetID)
	if err != nil {
		return httptransport.GetDatasetResponse{}, err
	}
	return httptransport.GetDatasetResponse{Item: mapDataset(dataset)}, nil
}

// PurchaseAccessHandler godoc
// @Summary Purchase dataset access
// @Description Pays the exact price into the owner's escrow and grants the caller access.
// @Tags dataset-registry
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Caller address"
// @Param Idempotency-Key header string false "Replay key"
// @Param dataset_id path int true "Dataset id"
// @Param request body httptransport.PurchaseAccessRequest true "Payment"
// @Success 200 {object} httptransport.PurchaseAccessResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 402 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Router /v1/datasets/{dataset_id}/purchase [post]
func (h Handler) PurchaseAccessHandler(
	ctx context.Context,
	buyer string,
	idempotencyKey string,
	datasetID uint64,
	req httptransport.PurchaseAccessRequest,
) (httptransport.PurchaseAccessResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	amount, err := entities.ParseAmount(req.Amount)
	if err != nil {
		return httptransport.PurchaseAccessResponse{}, err
	}

	receipt, err := h.Registry.PurchaseAccess(ctx, application.PurchaseAccessCommand{
		DatasetID:      datasetID,
		Buyer:          buyer,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		logger.Warn("purchase request failed",
			"event", "http_purchase_access_failed",
			"module", "data-marketplace/dataset-registry",
			"layer", "transport",
			"dataset_id", datasetID,
			"buyer", buyer,
			"error", err.Error(),
		)
		return httptransport.PurchaseAccessResponse{}, err
	}
	return httptransport.PurchaseAccessResponse{
		DatasetID:   receipt.DatasetID,
		Buyer:       receipt.Buyer.String(),
		Amount:      receipt.Amount.String(),
		PurchasedAt: receipt.PurchasedAt.UTC().Format(time.RFC3339),
		Replayed:    receipt.Replayed,
	}, nil
}

// CanAccessHandler godoc
// @Summary Check dataset access
// @Tags dataset-registry
// @Produce json
// @Param dataset_id path int true "Dataset id"
// @Param principal query string false "Address to check, defaults to the caller"
// @Success 200 {object} httptransport.CanAccessResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /v1/datasets/{dataset_id}/access [get]
func (h Handler) CanAccessHandler(ctx context.Context, principal string, datasetID uint64) (httptransport.CanAccessResponse, error) {
	allowed, err := h.Registry.CanAccess(ctx, principal, datasetID)
	if err != nil {
		return httptransport.CanAccessResponse{}, err
	}
	normalized, _ := entities.ParsePrincipal(principal)
	return httptransport.CanAccessResponse{
		DatasetID: datasetID,
		Principal: normalized.String(),
		Allowed:   allowed,
	}, nil
}

// EscrowBalanceHandler godoc
// @Summary Get caller escrow balance
// @Tags dataset-registry
// @Produce json
// @Param X-User-Id header string true "Caller address"
// @Success 200 {object} httptransport.EscrowBalanceResponse
// @Router /v1/escrow/balance [get]
func (h Handler) EscrowBalanceHandler(ctx context.Context, owner string) (httptransport.EscrowBalanceResponse, error) {
	balance, err := h.Registry.EscrowBalance(ctx, owner)
	if err != nil {
		return httptransport.EscrowBalanceResponse{}, err
	}
	normalized, _ := entities.ParsePrincipal(owner)
	return httptransport.EscrowBalanceResponse{
		Owner:   normalized.String(),
		Balance: balance.String(),
	}, nil
}

// WithdrawHandler godoc
// @Summary Withdraw escrow
// @Description Zeroes the caller's balance and settles it externally.
// @Tags dataset-registry
// @Produce json
// @Param X-User-Id header string true "Caller address"
// @Success 200 {object} httptransport.WithdrawResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 502 {object} httptransport.ErrorResponse
// @Router /v1/escrow/withdraw [post]
func (h Handler) WithdrawHandler(ctx context.Context, owner string) (httptransport.WithdrawResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	result, err := h.Registry.Withdraw(ctx, owner)
	if err != nil {
		logger.Warn("withdraw request failed",
			"event", "http_withdraw_failed",
			"module", "data-marketplace/dataset-registry",
			"layer", "transport",
			"owner", owner,
			"error", err.Error(),
		)
		return httptransport.WithdrawResponse{}, err
	}
	return httptransport.WithdrawResponse{
		WithdrawalID:  result.WithdrawalID,
		Owner:         result.Owner.String(),
		Amount:        result.Amount.String(),
		SettlementRef: result.SettlementRef,
	}, nil
}

// ListWithdrawalsHandler godoc
// @Summary List caller withdrawals
// @Tags dataset-registry
// @Produce json
// @Param X-User-Id header string true "Caller address"
// @Success 200 {object} httptransport.ListWithdrawalsResponse
// @Router /v1/withdrawals [get]
func (h Handler) ListWithdrawalsHandler(ctx context.Context, owner string) (httptransport.ListWithdrawalsResponse, error) {
	items, err := h.Registry.ListWithdrawals(ctx, owner)
	if err != nil {
		return httptransport.ListWithdrawalsResponse{}, err
	}
	out := make([]httptransport.WithdrawalDTO, 0, len(items))
	for _, item := range items {
		out = append(out, httptransport.WithdrawalDTO{
			WithdrawalID:  item.WithdrawalID,
			Amount:        item.Amount.String(),
			Status:        string(item.Status),
			SettlementRef: item.SettlementRef,
			FailureReason: item.FailureReason,
			CreatedAt:     item.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt:     item.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return httptransport.ListWithdrawalsResponse{Items: out}, nil
}

func mapDatasets(datasets []entities.Dataset) []httptransport.DatasetDTO {
	items := make([]httptransport.DatasetDTO, 0, len(datasets))
	for _, dataset := range datasets {
		items = append(items, mapDataset(dataset))
	}
	return items
}

func mapDataset(dataset entities.Dataset) httptransport.DatasetDTO {
	return httptransport.DatasetDTO{
		DatasetID:   dataset.DatasetID,
		Owner:       dataset.Owner.String(),
		Title:       dataset.Title,
		Description: dataset.Description,
		ContentRef:  dataset.ContentRef,
		Price:       dataset.Price.String(),
		AccessTier:  string(dataset.Tier),
		Tags:        dataset.Tags,
		DataType:    string(dataset.DataType),
		FileSize:    dataset.FileSize,
		CreatedAt:   dataset.CreatedAt.UTC().Format(time.RFC3339),
	}
}
