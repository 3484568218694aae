package settlement

import (
	"context"
	"sync"

	"geneledger/contexts/data-marketplace/dataset-registry/ports"
)

// Recorder records every transfer it is asked to make and reports success
// with the withdrawal id as reference. Set Fail to make transfers error, or
// OnTransfer to run code (such as a nested registry call) inside Transfer.
type Recorder struct {
	mu         sync.Mutex
	transfers  []ports.SettlementRequest
	Fail       error
	OnTransfer func(ctx context.Context, request ports.SettlementRequest)
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Transfer(ctx context.Context, request ports.SettlementRequest) (ports.SettlementReceipt, error) {
	r.mu.Lock()
	r.transfers = append(r.transfers, request)
	hook := r.OnTransfer
	fail := r.Fail
	r.mu.Unlock()

	if hook != nil {
		hook(ctx, request)
	}
	if fail != nil {
		return ports.SettlementReceipt{}, fail
	}
	return ports.SettlementReceipt{Reference: "local-" + request.WithdrawalID}, nil
}

func (r *Recorder) Transfers() []ports.SettlementRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ports.SettlementRequest(nil), r.transfers...)
}
