// Package syncbid archives the Redis bid stream into Postgres.
package syncbid

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"bidtobuy/internal/database/db_client"
	"bidtobuy/internal/ledger/redisledger"
	"bidtobuy/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	batchSize = 100
	blockFor  = 2 * time.Second
)

// Run tails the bid stream and upserts every bid insert and status change. It resumes after
// the last entry recorded in archive_cursors, so a restart does not replay old statuses.
func Run(ctx context.Context, rdc *redis.Client, db *sql.DB) {
	go func() {
		lastID, err := loadCursor(ctx, db)
		for err != nil {
			if ctx.Err() != nil {
				return
			}
			zap.L().Warn("syncbid_cursor", zap.Error(err))
			time.Sleep(time.Second)
			lastID, err = loadCursor(ctx, db)
		}
		zap.L().Info("syncbid_resume", zap.String("after", lastID))

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			res, err := rdc.XRead(ctx, &redis.XReadArgs{
				Streams: []string{redisledger.Stream, lastID},
				Count:   batchSize,
				Block:   blockFor,
			}).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				if ctx.Err() != nil {
					return
				}
				zap.L().Warn("syncbid_xread", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			if len(res) == 0 || len(res[0].Messages) == 0 {
				continue
			}
			entries := res[0].Messages
			if err := persist(ctx, db, entries); err != nil {
				zap.L().Error("syncbid_persist", zap.String("from", entries[0].ID), zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			lastID = entries[len(entries)-1].ID
		}
	}()
}

// loadCursor returns the last archived stream id, or "0-0" before the first batch.
func loadCursor(ctx context.Context, db *sql.DB) (string, error) {
	q, args, err := db_client.SQL.
		Select("last_id").
		From("archive_cursors").
		Where(squirrel.Eq{"stream": redisledger.Stream}).
		ToSql()
	if err != nil {
		return "", err
	}
	var id string
	err = db.QueryRowContext(ctx, q, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "0-0", nil
	}
	if err != nil {
		return "", fmt.Errorf("read archive cursor: %w", err)
	}
	return id, nil
}

func field(m redis.XMessage, name string) string {
	s, _ := m.Values[name].(string)
	return s
}

// decode maps one stream entry back to the bid state it records.
func decode(m redis.XMessage) (models.Bid, error) {
	amount, err := strconv.ParseFloat(field(m, "amount"), 64)
	if err != nil {
		return models.Bid{}, fmt.Errorf("entry %s amount: %w", m.ID, err)
	}
	at, err := strconv.ParseInt(field(m, "at"), 10, 64)
	if err != nil {
		return models.Bid{}, fmt.Errorf("entry %s time: %w", m.ID, err)
	}
	b := models.Bid{
		ID:           field(m, "id"),
		BidderUserID: field(m, "bidder"),
		Category:     field(m, "category"),
		ItemID:       field(m, "item"),
		Amount:       amount,
		BidTime:      time.UnixMilli(at).UTC(),
		Status:       models.BidStatus(field(m, "st")),
	}
	if b.ID == "" || b.Status == "" {
		return models.Bid{}, fmt.Errorf("entry %s: missing id or status", m.ID)
	}
	return b, nil
}

func persist(ctx context.Context, db *sql.DB, msgs []redis.XMessage) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, m := range msgs {
		b, err := decode(m)
		if err != nil {
			zap.L().Warn("syncbid_skip_entry", zap.Error(err))
			continue
		}
		q, args, err := db_client.SQL.
			Insert("bids").
			Columns("id", "bidder_id", "category", "item_id", "amount", "placed_at", "status").
			Values(b.ID, b.BidderUserID, b.Category, b.ItemID, b.Amount, b.BidTime, string(b.Status)).
			Suffix("ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status").
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("upsert bid %s: %w", b.ID, err)
		}
	}

	// the cursor moves in the same transaction as the rows it covers
	q, args, err := db_client.SQL.
		Insert("archive_cursors").
		Columns("stream", "last_id", "updated_at").
		Values(redisledger.Stream, msgs[len(msgs)-1].ID, squirrel.Expr("now()")).
		Suffix("ON CONFLICT (stream) DO UPDATE SET last_id = EXCLUDED.last_id, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("advance archive cursor: %w", err)
	}
	return tx.Commit()
}
