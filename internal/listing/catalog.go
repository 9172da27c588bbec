// Package listing reads the item catalog. The bidding core never writes listings.
package listing

//go:generate mockgen -source=catalog.go -destination=mock_catalog.go -package=listing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bidtobuy/internal/biderrors"
	"bidtobuy/internal/database/db_client"
	"bidtobuy/internal/models"

	"github.com/Masterminds/squirrel"
)

type Catalog interface {
	// GetListing fails with biderrors.ErrNotFound when the item does not exist.
	GetListing(ctx context.Context, category, itemID string) (*models.Listing, error)
	ListByCategory(ctx context.Context, category string) ([]models.Listing, error)
	ListByOwner(ctx context.Context, ownerUserID string) ([]models.Listing, error)
}

var listingColumns = []string{
	"category", "item_id", "title", "location", "base_price", "created_at", "auction_duration", "owner_user_id",
}

type PostgresCatalog struct {
	db *sql.DB
}

var _ Catalog = (*PostgresCatalog)(nil)

func NewPostgresCatalog(db *sql.DB) *PostgresCatalog { return &PostgresCatalog{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*models.Listing, error) {
	var (
		l        models.Listing
		created  sql.NullTime
		duration sql.NullString
	)
	err := row.Scan(&l.Category, &l.ItemID, &l.Title, &l.Location, &l.BasePrice, &created, &duration, &l.OwnerUserID)
	if err != nil {
		return nil, err
	}
	if created.Valid {
		l.CreatedAt = created.Time.UTC()
	}
	l.AuctionDuration = duration.String
	return &l, nil
}

func (c *PostgresCatalog) GetListing(ctx context.Context, category, itemID string) (*models.Listing, error) {
	q, args, err := db_client.SQL.
		Select(listingColumns...).
		From("listings").
		Where(squirrel.Eq{"category": category, "item_id": itemID}).
		ToSql()
	if err != nil {
		return nil, err
	}
	l, err := scanListing(c.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", category, itemID, biderrors.ErrNotFound)
	}
	return l, err
}

func (c *PostgresCatalog) ListByCategory(ctx context.Context, category string) ([]models.Listing, error) {
	return c.list(ctx, squirrel.Eq{"category": category})
}

func (c *PostgresCatalog) ListByOwner(ctx context.Context, ownerUserID string) ([]models.Listing, error) {
	return c.list(ctx, squirrel.Eq{"owner_user_id": ownerUserID})
}

func (c *PostgresCatalog) list(ctx context.Context, where squirrel.Eq) ([]models.Listing, error) {
	q, args, err := db_client.SQL.
		Select(listingColumns...).
		From("listings").
		Where(where).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Listing, 0)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}
