// Package ledger defines the append-only bid store shared by every bidder.
//
// Implementations must run the highest-bid check, the insert and the demotion of the previous
// leader as one serialized step per auction key, and must not block other keys while doing so.
package ledger

import (
	"context"
	"sort"
	"time"

	"bidtobuy/internal/models"
)

type Ledger interface {
	// Append stores bid as the new active leader if its amount beats both floor and the current
	// highest bid, demoting the previous leader to outbid. Otherwise it fails with a
	// *biderrors.LowBidError carrying the value it lost against.
	Append(ctx context.Context, bid models.Bid, floor float64) (*AppendResult, error)
	// HighestBid returns nil, nil when the auction has no bids.
	HighestBid(ctx context.Context, key models.AuctionKey) (*models.Bid, error)
	History(ctx context.Context, key models.AuctionKey) ([]models.Bid, error)
	BidsByBidder(ctx context.Context, bidderID string) ([]models.Bid, error)
	// Settle closes the auction: the current leader becomes won and every other open bid lost.
	// The leader is picked in the same serialized step as Append, so a bid committed before
	// Settle is the one that wins. It returns the winning bid (nil without bids) and the number
	// of bids whose status changed. Calling it again returns the same winner and changes nothing.
	Settle(ctx context.Context, key models.AuctionKey) (*models.Bid, int, error)
	// UnsettledAuctions lists auction keys that still have an active bid.
	UnsettledAuctions(ctx context.Context) ([]models.AuctionKey, error)
}

// CloseTimer is implemented by ledgers that can signal an auction's end time to a watcher.
type CloseTimer interface {
	ArmCloseTimer(ctx context.Context, key models.AuctionKey, end time.Time) error
}

type AppendResult struct {
	Bid      models.Bid
	Previous *models.Bid // demoted leader, nil for the first bid
}

// SortHistory orders bids by amount descending, earliest bid first on equal amounts.
func SortHistory(bids []models.Bid) {
	sort.SliceStable(bids, func(i, j int) bool {
		if bids[i].Amount != bids[j].Amount {
			return bids[i].Amount > bids[j].Amount
		}
		return bids[i].BidTime.Before(bids[j].BidTime)
	})
}

// SortNewestFirst orders bids by bid time descending.
func SortNewestFirst(bids []models.Bid) {
	sort.SliceStable(bids, func(i, j int) bool {
		return bids[i].BidTime.After(bids[j].BidTime)
	})
}
