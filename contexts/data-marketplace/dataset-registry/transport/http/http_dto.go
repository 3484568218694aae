package httptransport

// Amounts are decimal strings of base token units.

type RegisterDatasetRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	ContentRef  string   `json:"content_ref"`
	Price       string   `json:"price"`
	AccessTier  string   `json:"access_tier"`
	Tags        []string `json:"tags,omitempty"`
	DataType    string   `json:"data_type,omitempty"`
	FileSize    int64    `json:"file_size,omitempty"`
}

type DatasetDTO struct {
	DatasetID   uint64   `json:"dataset_id"`
	Owner       string   `json:"owner"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	ContentRef  string   `json:"content_ref"`
	Price       string   `json:"price"`
	AccessTier  string   `json:"access_tier"`
	Tags        []string `json:"tags,omitempty"`
	DataType    string   `json:"data_type,omitempty"`
	FileSize    int64    `json:"file_size,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

type RegisterDatasetResponse struct {
	Item DatasetDTO `json:"item"`
}

type GetDatasetResponse struct {
	Item DatasetDTO `json:"item"`
}

type ListDatasetsRequest struct {
	Owner      string `json:"owner,omitempty"`
	AccessTier string `json:"access_tier,omitempty"`
	Tag        string `json:"tag,omitempty"`
	Query      string `json:"q,omitempty"`
	Cursor     string `json:"cursor,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

type ListDatasetsResponse struct {
	Items      []DatasetDTO `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type PurchaseAccessRequest struct {
	Amount string `json:"amount"`
}

type PurchaseAccessResponse struct {
	DatasetID   uint64 `json:"dataset_id"`
	Buyer       string `json:"buyer"`
	Amount      string `json:"amount"`
	PurchasedAt string `json:"purchased_at"`
	Replayed    bool   `json:"replayed,omitempty"`
}

type CanAccessResponse struct {
	DatasetID uint64 `json:"dataset_id"`
	Principal string `json:"principal"`
	Allowed   bool   `json:"allowed"`
}

type EscrowBalanceResponse struct {
	Owner   string `json:"owner"`
	Balance string `json:"balance"`
}

type WithdrawResponse struct {
	WithdrawalID  string `json:"withdrawal_id"`
	Owner         string `json:"owner"`
	Amount        string `json:"amount"`
	SettlementRef string `json:"settlement_ref,omitempty"`
}

type WithdrawalDTO struct {
	WithdrawalID  string `json:"withdrawal_id"`
	Amount        string `json:"amount"`
	Status        string `json:"status"`
	SettlementRef string `json:"settlement_ref,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type ListWithdrawalsResponse struct {
	Items []WithdrawalDTO `json:"items"`
}

type ErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}
