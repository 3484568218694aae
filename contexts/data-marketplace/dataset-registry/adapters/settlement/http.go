package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"geneledger/contexts/data-marketplace/dataset-registry/ports"
)

// HTTPClient posts payout instructions to an external settlement service.
// The withdrawal id travels as Idempotency-Key, so retried requests must not
// pay twice on a conforming server.
type HTTPClient struct {
	Endpoint   string
	Client     *http.Client
	MaxRetries uint64
	Logger     *slog.Logger
}

type transferRequest struct {
	WithdrawalID string `json:"withdrawal_id"`
	Recipient    string `json:"recipient"`
	Amount       string `json:"amount"`
}

type transferResponse struct {
	Reference string `json:"reference"`
}

func (c HTTPClient) Transfer(ctx context.Context, request ports.SettlementRequest) (ports.SettlementReceipt, error) {
	body, err := json.Marshal(transferRequest{
		WithdrawalID: request.WithdrawalID,
		Recipient:    request.Owner.String(),
		Amount:       request.Amount.String(),
	})
	if err != nil {
		return ports.SettlementReceipt{}, err
	}

	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 200 * time.Millisecond
	expBackoff.MaxInterval = 5 * time.Second
	expBackoff.MaxElapsedTime = 30 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, c.MaxRetries), ctx)

	var receipt ports.SettlementReceipt
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", request.WithdrawalID)

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("settlement service returned %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("settlement service rejected transfer: %d %s", resp.StatusCode, bytes.TrimSpace(payload)))
		}

		var decoded transferResponse
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return backoff.Permanent(fmt.Errorf("decode settlement response: %w", err))
		}
		receipt = ports.SettlementReceipt{Reference: decoded.Reference}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("settlement transfer retry",
			"event", "settlement_transfer_retry",
			"module", "data-marketplace/dataset-registry",
			"layer", "adapter",
			"withdrawal_id", request.WithdrawalID,
			"wait_ms", wait.Milliseconds(),
			"error", err.Error(),
		)
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return ports.SettlementReceipt{}, err
	}
	return receipt, nil
}
