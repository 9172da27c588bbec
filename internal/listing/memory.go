package listing

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bidtobuy/internal/biderrors"
	"bidtobuy/internal/models"
)

// MemoryCatalog is a Catalog backed by a map, seeded with Put.
type MemoryCatalog struct {
	mu       sync.RWMutex
	listings map[models.AuctionKey]models.Listing
}

var _ Catalog = (*MemoryCatalog)(nil)

func NewMemoryCatalog(seed ...models.Listing) *MemoryCatalog {
	c := &MemoryCatalog{listings: make(map[models.AuctionKey]models.Listing, len(seed))}
	for _, l := range seed {
		c.Put(l)
	}
	return c
}

func (c *MemoryCatalog) Put(l models.Listing) {
	c.mu.Lock()
	c.listings[l.Key()] = l
	c.mu.Unlock()
}

func (c *MemoryCatalog) GetListing(_ context.Context, category, itemID string) (*models.Listing, error) {
	c.mu.RLock()
	l, ok := c.listings[models.AuctionKey{Category: category, ItemID: itemID}]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", category, itemID, biderrors.ErrNotFound)
	}
	return &l, nil
}

func (c *MemoryCatalog) ListByCategory(_ context.Context, category string) ([]models.Listing, error) {
	return c.filter(func(l *models.Listing) bool { return l.Category == category }), nil
}

func (c *MemoryCatalog) ListByOwner(_ context.Context, ownerUserID string) ([]models.Listing, error) {
	return c.filter(func(l *models.Listing) bool { return l.OwnerUserID == ownerUserID }), nil
}

func (c *MemoryCatalog) filter(keep func(*models.Listing) bool) []models.Listing {
	c.mu.RLock()
	out := make([]models.Listing, 0)
	for _, l := range c.listings {
		if keep(&l) {
			out = append(out, l)
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
