package entities

import (
	"strings"
	"time"

	domainerrors "geneledger/contexts/data-marketplace/dataset-registry/domain/errors"
)

type AccessTier string

const (
	AccessTierOpen     AccessTier = "Open"
	AccessTierStandard AccessTier = "Standard"
	AccessTierPremium  AccessTier = "Premium"
)

// ParseAccessTier accepts the three tier names case-insensitively and returns
// the canonical spelling.
func ParseAccessTier(raw string) (AccessTier, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "open":
		return AccessTierOpen, nil
	case "standard":
		return AccessTierStandard, nil
	case "premium":
		return AccessTierPremium, nil
	default:
		return "", &domainerrors.ValidationError{Field: "access_tier", Reason: "must be Open, Standard or Premium"}
	}
}

func (t AccessTier) Valid() bool {
	switch t {
	case AccessTierOpen, AccessTierStandard, AccessTierPremium:
		return true
	default:
		return false
	}
}

// RequiresPurchase is false only for Open. Standard and Premium are not
// distinguished beyond this.
func (t AccessTier) RequiresPurchase() bool {
	return t != AccessTierOpen
}

type DataType string

const (
	DataTypeUnspecified DataType = ""
	DataTypeCSV         DataType = "CSV"
	DataTypeJSON        DataType = "JSON"
)

func (t DataType) Valid() bool {
	switch t {
	case DataTypeUnspecified, DataTypeCSV, DataTypeJSON:
		return true
	default:
		return false
	}
}

// Dataset is write-once: no field changes after NewDataset returns.
type Dataset struct {
	DatasetID   uint64
	Owner       Principal
	Title       string
	Description string
	ContentRef  string
	Price       Amount
	Tier        AccessTier
	Tags        []string
	DataType    DataType
	FileSize    int64
	CreatedAt   time.Time
}

// DatasetDraft holds the owner-supplied fields of a registration.
type DatasetDraft struct {
	Owner       Principal
	Title       string
	Description string
	ContentRef  string
	Price       Amount
	Tier        AccessTier
	Tags        []string
	DataType    DataType
	FileSize    int64
}

func (d DatasetDraft) Validate() error {
	if strings.TrimSpace(string(d.Owner)) == "" {
		return &domainerrors.ValidationError{Field: "owner", Reason: "is required"}
	}
	if strings.TrimSpace(d.Title) == "" {
		return &domainerrors.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if d.Price.IsNegative() {
		return &domainerrors.ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if !d.Tier.Valid() {
		return &domainerrors.ValidationError{Field: "access_tier", Reason: "must be Open, Standard or Premium"}
	}
	if !d.DataType.Valid() {
		return &domainerrors.ValidationError{Field: "data_type", Reason: "must be CSV or JSON"}
	}
	if d.FileSize < 0 {
		return &domainerrors.ValidationError{Field: "file_size", Reason: "must not be negative"}
	}
	return nil
}

func NewDataset(datasetID uint64, draft DatasetDraft, createdAt time.Time) (Dataset, error) {
	if datasetID == 0 {
		return Dataset{}, &domainerrors.ValidationError{Field: "dataset_id", Reason: "must be assigned"}
	}
	if err := draft.Validate(); err != nil {
		return Dataset{}, err
	}
	return Dataset{
		DatasetID:   datasetID,
		Owner:       draft.Owner,
		Title:       strings.TrimSpace(draft.Title),
		Description: strings.TrimSpace(draft.Description),
		ContentRef:  draft.ContentRef,
		Price:       draft.Price,
		Tier:        draft.Tier,
		Tags:        normalizeTags(draft.Tags),
		DataType:    draft.DataType,
		FileSize:    draft.FileSize,
		CreatedAt:   createdAt.UTC(),
	}, nil
}

// Clone returns a copy that shares no mutable memory with d.
func (d Dataset) Clone() Dataset {
	out := d
	out.Tags = append([]string(nil), d.Tags...)
	return out
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		value := strings.TrimSpace(tag)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
