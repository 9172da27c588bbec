// Package outcome resolves closed auctions. Resolution is recomputed from the listing and the
// ledger on every call; settling the bid statuses of a closed auction is idempotent.
package outcome

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"bidtobuy/internal/auctionclock"
	"bidtobuy/internal/biderrors"
	"bidtobuy/internal/ledger"
	"bidtobuy/internal/listing"
	"bidtobuy/internal/models"

	"go.uber.org/zap"
)

// DashboardItem is one listing on a seller's dashboard.
type DashboardItem struct {
	models.Listing
	Closed        bool        `json:"closed"`
	EndTime       *time.Time  `json:"end_time,omitempty"`
	TimeRemaining string      `json:"time_remaining,omitempty"`
	HighestBid    float64     `json:"highest_bid"`
	WinningBid    *models.Bid `json:"winning_bid,omitempty"`
} // @name DashboardItem

type IOutcomeService interface {
	Resolve(ctx context.Context, key models.AuctionKey) (*models.Outcome, error)
	// Finalize resolves an auction on behalf of a background trigger.
	Finalize(ctx context.Context, key models.AuctionKey) error
	Notifications(ctx context.Context, userID string) ([]models.Notification, error)
	SellerDashboard(ctx context.Context, sellerID string) ([]DashboardItem, error)
}

type outcomeService struct {
	catalog listing.Catalog
	ledger  ledger.Ledger
	now     func() time.Time
}

var _ IOutcomeService = (*outcomeService)(nil)

func NewOutcomeService(catalog listing.Catalog, l ledger.Ledger, now func() time.Time) IOutcomeService {
	if now == nil {
		now = time.Now
	}
	return &outcomeService{catalog: catalog, ledger: l, now: now}
}

func (svc *outcomeService) Resolve(ctx context.Context, key models.AuctionKey) (*models.Outcome, error) {
	l, err := svc.catalog.GetListing(ctx, key.Category, key.ItemID)
	if err != nil {
		return nil, err
	}
	return svc.resolve(ctx, l, svc.now().UTC())
}

// resolve reports an auction without a computable end time as open; it cannot have a winner.
func (svc *outcomeService) resolve(ctx context.Context, l *models.Listing, now time.Time) (*models.Outcome, error) {
	key := l.Key()
	out := &models.Outcome{Key: key}

	end, ok := auctionclock.ListingEnd(l)
	if !ok {
		return out, nil
	}
	out.EndTime = &end
	if auctionclock.IsOpen(end, now) {
		return out, nil
	}
	out.Closed = true

	top, err := svc.ledger.HighestBid(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("highest bid %s: %w", key, err)
	}
	if top == nil {
		return out, nil
	}

	// an active leader means nobody settled yet; the ledger picks the winner under its lock
	if top.Status == models.BidActive {
		winner, n, err := svc.ledger.Settle(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("settle %s: %w", key, err)
		}
		top = winner
		if n > 0 && winner != nil {
			zap.L().Info("auction_settled",
				zap.String("auction", key.String()),
				zap.String("winning_bid", winner.ID),
				zap.String("winner", winner.BidderUserID),
				zap.Float64("amount", winner.Amount),
				zap.Int("bids_changed", n),
			)
		}
	}
	out.WinningBid = top
	return out, nil
}

func (svc *outcomeService) Finalize(ctx context.Context, key models.AuctionKey) error {
	out, err := svc.Resolve(ctx, key)
	if err != nil {
		zap.L().Warn("finalize_failed", zap.String("auction", key.String()), zap.Error(err))
		return err
	}
	if !out.Closed {
		zap.L().Debug("finalize_not_closed", zap.String("auction", key.String()))
	}
	return nil
}

// Notifications scans every auction the user bid on and reports the closed ones the user won,
// newest end time first.
func (svc *outcomeService) Notifications(ctx context.Context, userID string) ([]models.Notification, error) {
	bids, err := svc.ledger.BidsByBidder(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := svc.now().UTC()

	seen := make(map[models.AuctionKey]struct{}, len(bids))
	out := make([]models.Notification, 0)
	for i := range bids {
		key := bids[i].Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		l, err := svc.catalog.GetListing(ctx, key.Category, key.ItemID)
		if errors.Is(err, biderrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		res, err := svc.resolve(ctx, l, now)
		if err != nil {
			return nil, err
		}
		if !res.Closed || res.WinningBid == nil || res.WinningBid.BidderUserID != userID {
			continue
		}
		out = append(out, models.Notification{
			Type:     models.NotificationWon,
			ItemID:   key.ItemID,
			Category: key.Category,
			Title:    l.Title,
			Amount:   res.WinningBid.Amount,
			Time:     *res.EndTime,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	return out, nil
}

func (svc *outcomeService) SellerDashboard(ctx context.Context, sellerID string) ([]DashboardItem, error) {
	listings, err := svc.catalog.ListByOwner(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	now := svc.now().UTC()

	out := make([]DashboardItem, 0, len(listings))
	for i := range listings {
		l := &listings[i]
		res, err := svc.resolve(ctx, l, now)
		if err != nil {
			return nil, err
		}
		item := DashboardItem{
			Listing:    *l,
			Closed:     res.Closed,
			EndTime:    res.EndTime,
			HighestBid: l.BasePrice,
			WinningBid: res.WinningBid,
		}
		if res.EndTime != nil {
			item.TimeRemaining = auctionclock.TimeRemaining(*res.EndTime, now).String()
		}
		if res.WinningBid != nil {
			item.HighestBid = res.WinningBid.Amount
		} else if !res.Closed {
			top, err := svc.ledger.HighestBid(ctx, l.Key())
			if err != nil {
				return nil, err
			}
			if top != nil {
				item.HighestBid = top.Amount
			}
		}
		out = append(out, item)
	}
	return out, nil
}
