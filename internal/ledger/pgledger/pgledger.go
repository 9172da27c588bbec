// Package pgledger stores bids in Postgres. Appends to one auction are serialized with a
// transaction-scoped advisory lock on the auction key.
package pgledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bidtobuy/internal/biderrors"
	"bidtobuy/internal/bidstate"
	"bidtobuy/internal/database/db_client"
	"bidtobuy/internal/ledger"
	"bidtobuy/internal/models"
	"bidtobuy/internal/money"

	"github.com/Masterminds/squirrel"
)

const lockQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`

var bidColumns = []string{"id", "bidder_id", "category", "item_id", "amount", "placed_at", "status"}

type PostgresLedger struct {
	db *sql.DB
}

var _ ledger.Ledger = (*PostgresLedger)(nil)

func New(db *sql.DB) *PostgresLedger { return &PostgresLedger{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBid(row rowScanner) (*models.Bid, error) {
	var (
		b      models.Bid
		status string
	)
	if err := row.Scan(&b.ID, &b.BidderUserID, &b.Category, &b.ItemID, &b.Amount, &b.BidTime, &status); err != nil {
		return nil, err
	}
	b.Status = models.BidStatus(status)
	b.BidTime = b.BidTime.UTC()
	return &b, nil
}

func highestQuery(key models.AuctionKey) (string, []any, error) {
	return db_client.SQL.
		Select(bidColumns...).
		From("bids").
		Where(squirrel.Eq{"category": key.Category, "item_id": key.ItemID}).
		OrderBy("amount DESC", "placed_at ASC").
		Limit(1).
		ToSql()
}

func (l *PostgresLedger) Append(ctx context.Context, bid models.Bid, floor float64) (*ledger.AppendResult, error) {
	key := bid.Key()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, lockQuery, key.String()); err != nil {
		return nil, fmt.Errorf("lock auction %s: %w", key, err)
	}

	q, args, err := highestQuery(key)
	if err != nil {
		return nil, err
	}
	prev, err := scanBid(tx.QueryRowContext(ctx, q, args...))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read leader %s: %w", key, err)
	}

	current := floor
	if prev != nil {
		if bidstate.IsTerminal(prev.Status) {
			return nil, biderrors.ErrAuctionClosed
		}
		current = money.Max(current, prev.Amount)
	}
	if !money.Exceeds(bid.Amount, current) {
		return nil, biderrors.TooLow(current)
	}

	stored := bid
	stored.Status = models.BidActive
	res := &ledger.AppendResult{Bid: stored}

	// demote first: the partial unique index allows one active bid per auction
	if prev != nil && prev.Status == models.BidActive {
		if err := bidstate.Transition(prev, models.BidOutbid); err != nil {
			return nil, err
		}
		q, args, err = db_client.SQL.
			Update("bids").
			Set("status", string(models.BidOutbid)).
			Where(squirrel.Eq{"id": prev.ID, "status": string(models.BidActive)}).
			ToSql()
		if err != nil {
			return nil, err
		}
		if _, err = tx.ExecContext(ctx, q, args...); err != nil {
			return nil, fmt.Errorf("demote bid %s: %w", prev.ID, err)
		}
		res.Previous = prev
	}

	q, args, err = db_client.SQL.
		Insert("bids").
		Columns(bidColumns...).
		Values(stored.ID, stored.BidderUserID, stored.Category, stored.ItemID, stored.Amount, stored.BidTime, string(stored.Status)).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("insert bid %s: %w", stored.ID, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

func (l *PostgresLedger) HighestBid(ctx context.Context, key models.AuctionKey) (*models.Bid, error) {
	q, args, err := highestQuery(key)
	if err != nil {
		return nil, err
	}
	b, err := scanBid(l.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (l *PostgresLedger) query(ctx context.Context, sb squirrel.SelectBuilder) ([]models.Bid, error) {
	q, args, err := sb.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Bid, 0)
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (l *PostgresLedger) History(ctx context.Context, key models.AuctionKey) ([]models.Bid, error) {
	return l.query(ctx, db_client.SQL.
		Select(bidColumns...).
		From("bids").
		Where(squirrel.Eq{"category": key.Category, "item_id": key.ItemID}).
		OrderBy("amount DESC", "placed_at ASC"))
}

func (l *PostgresLedger) BidsByBidder(ctx context.Context, bidderID string) ([]models.Bid, error) {
	return l.query(ctx, db_client.SQL.
		Select(bidColumns...).
		From("bids").
		Where(squirrel.Eq{"bidder_id": bidderID}).
		OrderBy("placed_at DESC"))
}

// Settle reads the leader under the same advisory lock Append takes, so no bid can slip in
// between choosing the winner and writing the final statuses.
func (l *PostgresLedger) Settle(ctx context.Context, key models.AuctionKey) (*models.Bid, int, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, lockQuery, key.String()); err != nil {
		return nil, 0, fmt.Errorf("lock auction %s: %w", key, err)
	}

	q, args, err := highestQuery(key)
	if err != nil {
		return nil, 0, err
	}
	top, err := scanBid(tx.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, tx.Commit()
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read leader %s: %w", key, err)
	}

	q, args, err = db_client.SQL.
		Update("bids").
		Set("status", squirrel.Expr("CASE WHEN id = ? AND status = ? THEN ? ELSE ? END",
			top.ID, string(models.BidActive), string(models.BidWon), string(models.BidLost))).
		Where(squirrel.Eq{
			"category": key.Category,
			"item_id":  key.ItemID,
			"status":   []string{string(models.BidActive), string(models.BidOutbid)},
		}).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("settle auction %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, 0, err
	}
	if err = tx.Commit(); err != nil {
		return nil, 0, err
	}

	to, _ := bidstate.SettleStatus(top, top.ID)
	if to != models.BidWon {
		return nil, int(n), nil
	}
	top.Status = models.BidWon
	return top, int(n), nil
}

func (l *PostgresLedger) UnsettledAuctions(ctx context.Context) ([]models.AuctionKey, error) {
	q, args, err := db_client.SQL.
		Select("category", "item_id").
		Distinct().
		From("bids").
		Where(squirrel.Eq{"status": string(models.BidActive)}).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []models.AuctionKey
	for rows.Next() {
		var k models.AuctionKey
		if err := rows.Scan(&k.Category, &k.ItemID); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
