package auction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"bidtobuy/internal/activity"
	"bidtobuy/internal/auctionclock"
	"bidtobuy/internal/biderrors"
	"bidtobuy/internal/bidstate"
	"bidtobuy/internal/broadcast"
	"bidtobuy/internal/ledger"
	"bidtobuy/internal/listing"
	"bidtobuy/internal/models"
	"bidtobuy/internal/money"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BidResult is returned for an accepted bid.
type BidResult struct {
	Bid           models.Bid  `json:"bid"`
	NewHighestBid float64     `json:"new_highest_bid"`
	Previous      *models.Bid `json:"outbid,omitempty"`
} // @name BidResult

// ItemDetail is the auction view of one listing.
type ItemDetail struct {
	models.Listing
	HighestBid    float64                 `json:"highest_bid"`
	HighestBidder string                  `json:"highest_bidder,omitempty"`
	BidCount      int                     `json:"bid_count"`
	NextBidAmount float64                 `json:"next_bid_amount"`
	EndTime       *time.Time              `json:"end_time,omitempty"`
	Remaining     *auctionclock.Remaining `json:"remaining,omitempty"`
	TimeRemaining string                  `json:"time_remaining,omitempty"`
	Closed        bool                    `json:"closed"`
} // @name ItemDetail

type IAuctionService interface {
	SubmitBid(ctx context.Context, key models.AuctionKey, bidderID string, amount float64) (*BidResult, error)
	ItemDetail(ctx context.Context, key models.AuctionKey) (*ItemDetail, error)
	BidHistory(ctx context.Context, key models.AuctionKey) ([]models.Bid, error)
	EndingSoon(ctx context.Context, category string) ([]ItemDetail, error)
	MyBids(ctx context.Context, userID string) ([]models.Bid, error)
	MyActivities(ctx context.Context, userID string) ([]models.Activity, error)
}

type Options struct {
	BidStep          float64
	EndingSoonWindow time.Duration
	ActivityLimit    int
	Now              func() time.Time
}

type auctionService struct {
	catalog   listing.Catalog
	ledger    ledger.Ledger
	publisher broadcast.Publisher
	recorder  activity.Recorder
	opts      Options
}

var _ IAuctionService = (*auctionService)(nil)

// NewAuctionService wires the coordinator. publisher and recorder may be nil.
func NewAuctionService(catalog listing.Catalog, l ledger.Ledger, pub broadcast.Publisher, rec activity.Recorder, opts Options) IAuctionService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.EndingSoonWindow <= 0 {
		opts.EndingSoonWindow = auctionclock.Day
	}
	if opts.ActivityLimit <= 0 {
		opts.ActivityLimit = 100
	}
	return &auctionService{
		catalog:   catalog,
		ledger:    l,
		publisher: pub,
		recorder:  rec,
		opts:      opts,
	}
}

func validBid(key models.AuctionKey, bidderID string, amount float64) error {
	switch {
	case key.Category == "" || key.ItemID == "":
		return fmt.Errorf("%w: missing auction key", biderrors.ErrInvalidBid)
	case bidderID == "":
		return fmt.Errorf("%w: missing bidder", biderrors.ErrInvalidBid)
	case math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0:
		return fmt.Errorf("%w: amount must be a positive number", biderrors.ErrInvalidBid)
	}
	return nil
}

// SubmitBid validates a bid against the listing and the current leader, then appends it.
// The append re-checks the amount atomically; losing that race is reported as a conflict.
func (svc *auctionService) SubmitBid(ctx context.Context, key models.AuctionKey, bidderID string, amount float64) (*BidResult, error) {
	if err := validBid(key, bidderID, amount); err != nil {
		return nil, err
	}
	amount = money.Round(amount)

	l, err := svc.catalog.GetListing(ctx, key.Category, key.ItemID)
	if err != nil {
		return nil, err
	}
	if bidderID == l.OwnerUserID {
		return nil, biderrors.ErrSelfBid
	}

	now := svc.opts.Now().UTC()
	end, ok := auctionclock.ListingEnd(l)
	if !ok || !auctionclock.IsOpen(end, now) {
		return nil, biderrors.ErrAuctionClosed
	}

	top, err := svc.ledger.HighestBid(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("highest bid %s: %w", key, err)
	}
	current := l.BasePrice
	if top != nil {
		if bidstate.IsTerminal(top.Status) {
			return nil, biderrors.ErrAuctionClosed
		}
		current = money.Max(current, top.Amount)
	}
	if !money.Exceeds(amount, current) {
		return nil, biderrors.TooLow(current)
	}

	res, err := svc.ledger.Append(ctx, models.Bid{
		ID:           uuid.NewString(),
		BidderUserID: bidderID,
		Category:     key.Category,
		ItemID:       key.ItemID,
		Amount:       amount,
		BidTime:      now,
	}, l.BasePrice)
	if err != nil {
		var lb *biderrors.LowBidError
		if errors.As(err, &lb) {
			zap.L().Info("bid_conflict",
				zap.String("auction", key.String()),
				zap.String("bidder", bidderID),
				zap.Float64("amount", amount),
				zap.Float64("current_highest", lb.Current),
			)
			return nil, &biderrors.LowBidError{Current: lb.Current, Conflict: true}
		}
		return nil, err
	}

	if ct, ok := svc.ledger.(ledger.CloseTimer); ok {
		if err := ct.ArmCloseTimer(ctx, key, end); err != nil {
			zap.L().Warn("close_timer_failed", zap.String("auction", key.String()), zap.Error(err))
		}
	}
	svc.afterBid(ctx, res.Bid, l)

	zap.L().Info("bid_placed",
		zap.String("auction", key.String()),
		zap.String("bid_id", res.Bid.ID),
		zap.String("bidder", bidderID),
		zap.Float64("amount", amount),
	)
	return &BidResult{Bid: res.Bid, NewHighestBid: res.Bid.Amount, Previous: res.Previous}, nil
}

// afterBid runs the side effects of an accepted bid. Failures are logged only.
func (svc *auctionService) afterBid(ctx context.Context, bid models.Bid, l *models.Listing) {
	if svc.publisher != nil {
		if err := svc.publisher.PublishBid(ctx, bid); err != nil {
			zap.L().Warn("broadcast_failed", zap.String("auction", bid.Key().String()), zap.Error(err))
		}
	}
	if svc.recorder != nil {
		if err := svc.recorder.Record(ctx, activity.PlacedBid(bid, l)); err != nil {
			zap.L().Warn("activity_record_failed", zap.String("user", bid.BidderUserID), zap.Error(err))
		}
	}
}

func (svc *auctionService) ItemDetail(ctx context.Context, key models.AuctionKey) (*ItemDetail, error) {
	l, err := svc.catalog.GetListing(ctx, key.Category, key.ItemID)
	if err != nil {
		return nil, err
	}
	return svc.detail(ctx, l, svc.opts.Now().UTC())
}

func (svc *auctionService) detail(ctx context.Context, l *models.Listing, now time.Time) (*ItemDetail, error) {
	hist, err := svc.ledger.History(ctx, l.Key())
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", l.Key(), err)
	}

	d := &ItemDetail{Listing: *l, HighestBid: l.BasePrice, BidCount: len(hist)}
	if len(hist) > 0 {
		d.HighestBid = hist[0].Amount
		d.HighestBidder = hist[0].BidderUserID
	}
	d.NextBidAmount = money.Round(d.HighestBid + svc.opts.BidStep)

	if end, ok := auctionclock.ListingEnd(l); ok {
		rem := auctionclock.TimeRemaining(end, now)
		d.EndTime = &end
		d.Remaining = &rem
		d.TimeRemaining = rem.String()
		d.Closed = !auctionclock.IsOpen(end, now)
	}
	return d, nil
}

func (svc *auctionService) BidHistory(ctx context.Context, key models.AuctionKey) ([]models.Bid, error) {
	if _, err := svc.catalog.GetListing(ctx, key.Category, key.ItemID); err != nil {
		return nil, err
	}
	return svc.ledger.History(ctx, key)
}

// EndingSoon lists the open auctions of a category that end within the configured window,
// soonest first. Listings without a computable end time are left out.
func (svc *auctionService) EndingSoon(ctx context.Context, category string) ([]ItemDetail, error) {
	listings, err := svc.catalog.ListByCategory(ctx, category)
	if err != nil {
		return nil, err
	}
	now := svc.opts.Now().UTC()
	horizon := now.Add(svc.opts.EndingSoonWindow)

	out := make([]ItemDetail, 0)
	for i := range listings {
		end, ok := auctionclock.ListingEnd(&listings[i])
		if !ok || !auctionclock.IsOpen(end, now) || end.After(horizon) {
			continue
		}
		d, err := svc.detail(ctx, &listings[i], now)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EndTime.Before(*out[j].EndTime) })
	return out, nil
}

func (svc *auctionService) MyBids(ctx context.Context, userID string) ([]models.Bid, error) {
	return svc.ledger.BidsByBidder(ctx, userID)
}

func (svc *auctionService) MyActivities(ctx context.Context, userID string) ([]models.Activity, error) {
	if svc.recorder == nil {
		return []models.Activity{}, nil
	}
	return svc.recorder.List(ctx, userID, svc.opts.ActivityLimit)
}
