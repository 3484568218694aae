// Package ledger holds the in-memory registry state: the dataset catalog, the
// access grant store and the escrow ledger. None of the types lock; the
// Registry owning them serializes every call.
//
// Mutations come in two halves. Plan* methods compute the record that a
// mutation would produce without touching state, so it can be persisted first;
// Apply/Insert then commit it and cannot fail for a plan that was just
// computed.
package ledger

import (
	"sort"
	"strings"
	"time"

	"geneledger/contexts/data-marketplace/dataset-registry/domain/entities"
	domainerrors "geneledger/contexts/data-marketplace/dataset-registry/domain/errors"
)

// Catalog stores write-once dataset records keyed by a strictly increasing id.
type Catalog struct {
	datasets map[uint64]entities.Dataset
	lastID   uint64
}

func NewCatalog() *Catalog {
	return &Catalog{datasets: make(map[uint64]entities.Dataset)}
}

// PlanRegister validates draft and returns the record it would be stored as,
// under the next unused id.
func (c *Catalog) PlanRegister(draft entities.DatasetDraft, createdAt time.Time) (entities.Dataset, error) {
	return entities.NewDataset(c.lastID+1, draft, createdAt)
}

// Insert adds a planned record. Ids must be fresh and greater than every id
// already issued.
func (c *Catalog) Insert(dataset entities.Dataset) error {
	if dataset.DatasetID == 0 || dataset.DatasetID <= c.lastID {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	if _, exists := c.datasets[dataset.DatasetID]; exists {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	c.datasets[dataset.DatasetID] = dataset.Clone()
	c.lastID = dataset.DatasetID
	return nil
}

// Register is PlanRegister followed by Insert.
func (c *Catalog) Register(draft entities.DatasetDraft, createdAt time.Time) (uint64, error) {
	dataset, err := c.PlanRegister(draft, createdAt)
	if err != nil {
		return 0, err
	}
	if err := c.Insert(dataset); err != nil {
		return 0, err
	}
	return dataset.DatasetID, nil
}

// Restore loads a persisted record regardless of insertion order and advances
// the id counter past it.
func (c *Catalog) Restore(dataset entities.Dataset) error {
	if dataset.DatasetID == 0 {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	if _, exists := c.datasets[dataset.DatasetID]; exists {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	c.datasets[dataset.DatasetID] = dataset.Clone()
	if dataset.DatasetID > c.lastID {
		c.lastID = dataset.DatasetID
	}
	return nil
}

func (c *Catalog) Get(datasetID uint64) (entities.Dataset, error) {
	dataset, ok := c.datasets[datasetID]
	if !ok {
		return entities.Dataset{}, &domainerrors.NotFoundError{DatasetID: datasetID}
	}
	return dataset.Clone(), nil
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ListFilter narrows a catalog page. Tag matches case-insensitively; Query is
// a case-insensitive substring of the title or description.
type ListFilter struct {
	Owner   entities.Principal
	Tier    entities.AccessTier
	Tag     string
	Query   string
	AfterID uint64
	Limit   int
}

// ClampListLimit maps a requested page size into [1, MaxListLimit].
func ClampListLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

func (f ListFilter) matches(dataset entities.Dataset, query string) bool {
	if f.Owner != "" && dataset.Owner != f.Owner {
		return false
	}
	if f.Tier != "" && dataset.Tier != f.Tier {
		return false
	}
	if f.Tag != "" && !hasTag(dataset.Tags, f.Tag) {
		return false
	}
	if query != "" &&
		!strings.Contains(strings.ToLower(dataset.Title), query) &&
		!strings.Contains(strings.ToLower(dataset.Description), query) {
		return false
	}
	return true
}

func hasTag(tags []string, tag string) bool {
	for _, candidate := range tags {
		if strings.EqualFold(candidate, tag) {
			return true
		}
	}
	return false
}

// List returns datasets in ascending id order. The second result reports
// whether more matching records follow the page.
func (c *Catalog) List(filter ListFilter) ([]entities.Dataset, bool) {
	ids := make([]uint64, 0, len(c.datasets))
	for id := range c.datasets {
		if id > filter.AfterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	limit := ClampListLimit(filter.Limit)
	filter.Tag = strings.TrimSpace(filter.Tag)
	query := strings.ToLower(strings.TrimSpace(filter.Query))

	page := make([]entities.Dataset, 0, min(limit, len(ids)))
	for _, id := range ids {
		dataset := c.datasets[id]
		if !filter.matches(dataset, query) {
			continue
		}
		if len(page) == limit {
			return page, true
		}
		page = append(page, dataset.Clone())
	}
	return page, false
}

func (c *Catalog) Len() int {
	return len(c.datasets)
}
