// Package activity keeps the per-user activity feed.
package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"bidtobuy/internal/database/db_client"
	"bidtobuy/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

type Recorder interface {
	Record(ctx context.Context, a models.Activity) error
	// List returns the newest limit entries of a user, newest first.
	List(ctx context.Context, userID string, limit int) ([]models.Activity, error)
}

// PlacedBid builds the feed entry written after a successful bid.
func PlacedBid(bid models.Bid, l *models.Listing) models.Activity {
	a := models.Activity{
		UserID:    bid.BidderUserID,
		Type:      models.ActivityTypeBid,
		Action:    models.ActionPlacedBid,
		ItemID:    bid.ItemID,
		Category:  bid.Category,
		Amount:    bid.Amount,
		CreatedAt: bid.BidTime,
		Meta:      map[string]any{"bid_id": bid.ID},
	}
	if l != nil {
		a.ItemTitle = l.Title
		a.Location = l.Location
	}
	return a
}

func prepare(a *models.Activity) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Type == "" {
		a.Type = models.ActivityTypeBid
	}
}

var activityColumns = []string{
	"id", "user_id", "type", "action", "item_id", "category", "amount", "item_title", "location", "meta", "created_at",
}

type PostgresRecorder struct {
	db *sql.DB
}

var _ Recorder = (*PostgresRecorder)(nil)

func NewPostgresRecorder(db *sql.DB) *PostgresRecorder { return &PostgresRecorder{db: db} }

func (r *PostgresRecorder) Record(ctx context.Context, a models.Activity) error {
	prepare(&a)
	meta, err := json.Marshal(a.Meta)
	if err != nil {
		return fmt.Errorf("activity meta: %w", err)
	}
	if a.Meta == nil {
		meta = []byte("{}")
	}
	q, args, err := db_client.SQL.
		Insert("activities").
		Columns(activityColumns...).
		Values(a.ID, a.UserID, a.Type, a.Action, a.ItemID, a.Category, a.Amount, a.ItemTitle, a.Location, string(meta), a.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	return err
}

func (r *PostgresRecorder) List(ctx context.Context, userID string, limit int) ([]models.Activity, error) {
	q, args, err := db_client.SQL.
		Select(activityColumns...).
		From("activities").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Activity, 0)
	for rows.Next() {
		var (
			a                               models.Activity
			itemID, category, title, locStr sql.NullString
			amount                          sql.NullFloat64
			meta                            []byte
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Type, &a.Action, &itemID, &category, &amount, &title, &locStr, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.ItemID, a.Category, a.ItemTitle, a.Location = itemID.String, category.String, title.String, locStr.String
		a.Amount = amount.Float64
		a.CreatedAt = a.CreatedAt.UTC()
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &a.Meta); err != nil {
				return nil, fmt.Errorf("activity %s meta: %w", a.ID, err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type MemoryRecorder struct {
	mu     sync.RWMutex
	byUser map[string][]models.Activity
}

var _ Recorder = (*MemoryRecorder)(nil)

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{byUser: make(map[string][]models.Activity)}
}

func (r *MemoryRecorder) Record(_ context.Context, a models.Activity) error {
	prepare(&a)
	r.mu.Lock()
	r.byUser[a.UserID] = append(r.byUser[a.UserID], a)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRecorder) List(_ context.Context, userID string, limit int) ([]models.Activity, error) {
	r.mu.RLock()
	out := append([]models.Activity(nil), r.byUser[userID]...)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []models.Activity{}
	}
	return out, nil
}
