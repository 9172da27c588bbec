package outcome

import (
	"context"
	"testing"
	"time"

	"bidtobuy/internal/biderrors"
	"bidtobuy/internal/ledger/memledger"
	"bidtobuy/internal/listing"
	"bidtobuy/internal/models"

	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func listingAt(item, owner string, createdAgo time.Duration, duration string) models.Listing {
	return models.Listing{
		Category: "cars", ItemID: item, Title: "Car " + item, OwnerUserID: owner,
		BasePrice: 10000, CreatedAt: now.Add(-createdAgo), AuctionDuration: duration,
	}
}

func appendBid(t *testing.T, l *memledger.MemoryLedger, id, item, bidder string, amount float64, at time.Time) {
	t.Helper()
	_, err := l.Append(context.Background(), models.Bid{
		ID: id, BidderUserID: bidder, Category: "cars", ItemID: item, Amount: amount, BidTime: at,
	}, 10000)
	require.NoError(t, err)
}

func newService(listings ...models.Listing) (IOutcomeService, *memledger.MemoryLedger) {
	l := memledger.New()
	return NewOutcomeService(listing.NewMemoryCatalog(listings...), l, func() time.Time { return now }), l
}

func TestOutcomeService_ResolveClosedAuction(t *testing.T) {
	ctx := context.Background()
	svc, l := newService(listingAt("car1", "seller", 8*24*time.Hour, "7 days"))
	key := models.AuctionKey{Category: "cars", ItemID: "car1"}
	appendBid(t, l, "b1", "car1", "user1", 11000, now.Add(-7*24*time.Hour-time.Hour))
	appendBid(t, l, "b2", "car1", "user2", 12000, now.Add(-7*24*time.Hour-30*time.Minute))

	first, err := svc.Resolve(ctx, key)
	require.NoError(t, err)
	require.True(t, first.Closed)
	require.NotNil(t, first.WinningBid)
	require.Equal(t, 12000.0, first.WinningBid.Amount)
	require.Equal(t, "user2", first.WinningBid.BidderUserID)
	require.Equal(t, models.BidWon, first.WinningBid.Status)

	hist, err := l.History(ctx, key)
	require.NoError(t, err)
	require.Equal(t, models.BidWon, hist[0].Status)
	require.Equal(t, models.BidLost, hist[1].Status)

	second, err := svc.Resolve(ctx, key)
	require.NoError(t, err)
	require.Equal(t, first.WinningBid, second.WinningBid)
	require.Equal(t, first.EndTime, second.EndTime)
}

func TestOutcomeService_ResolveStates(t *testing.T) {
	ctx := context.Background()
	svc, l := newService(
		listingAt("open", "seller", time.Hour, "7 days"),
		listingAt("unsold", "seller", 8*24*time.Hour, "7 days"),
		models.Listing{Category: "cars", ItemID: "nodate", OwnerUserID: "seller", AuctionDuration: "1 day"},
	)
	appendBid(t, l, "b1", "open", "user1", 11000, now)

	open, err := svc.Resolve(ctx, models.AuctionKey{Category: "cars", ItemID: "open"})
	require.NoError(t, err)
	require.False(t, open.Closed)
	require.Nil(t, open.WinningBid)
	require.NotNil(t, open.EndTime)

	top, err := l.HighestBid(ctx, models.AuctionKey{Category: "cars", ItemID: "open"})
	require.NoError(t, err)
	require.Equal(t, models.BidActive, top.Status)

	unsold, err := svc.Resolve(ctx, models.AuctionKey{Category: "cars", ItemID: "unsold"})
	require.NoError(t, err)
	require.True(t, unsold.Closed)
	require.Nil(t, unsold.WinningBid)

	nodate, err := svc.Resolve(ctx, models.AuctionKey{Category: "cars", ItemID: "nodate"})
	require.NoError(t, err)
	require.False(t, nodate.Closed)
	require.Nil(t, nodate.EndTime)

	_, err = svc.Resolve(ctx, models.AuctionKey{Category: "cars", ItemID: "ghost"})
	require.ErrorIs(t, err, biderrors.ErrNotFound)
}

// lateBidLedger commits one more bid right after the resolver reads the leader.
type lateBidLedger struct {
	*memledger.MemoryLedger
	t    *testing.T
	late *models.Bid
}

func (l *lateBidLedger) HighestBid(ctx context.Context, key models.AuctionKey) (*models.Bid, error) {
	top, err := l.MemoryLedger.HighestBid(ctx, key)
	if l.late != nil {
		_, aerr := l.MemoryLedger.Append(ctx, *l.late, 10000)
		require.NoError(l.t, aerr)
		l.late = nil
	}
	return top, err
}

func TestOutcomeService_ResolveWithBidBeforeSettle(t *testing.T) {
	ctx := context.Background()
	mem := memledger.New()
	l := &lateBidLedger{
		MemoryLedger: mem,
		t:            t,
		late: &models.Bid{
			ID: "late", BidderUserID: "user2", Category: "cars", ItemID: "car1",
			Amount: 13000, BidTime: now.Add(-24*time.Hour - time.Second),
		},
	}
	key := models.AuctionKey{Category: "cars", ItemID: "car1"}
	appendBid(t, mem, "b1", "car1", "user1", 11000, now.Add(-30*time.Hour))
	svc := NewOutcomeService(listing.NewMemoryCatalog(listingAt("car1", "seller", 2*24*time.Hour, "1 day")), l, func() time.Time { return now })

	first, err := svc.Resolve(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "late", first.WinningBid.ID)
	require.Equal(t, models.BidWon, first.WinningBid.Status)

	second, err := svc.Resolve(ctx, key)
	require.NoError(t, err)
	require.Equal(t, first.WinningBid, second.WinningBid)

	hist, err := mem.History(ctx, key)
	require.NoError(t, err)
	won := 0
	for _, b := range hist {
		if b.Status == models.BidWon {
			won++
		}
	}
	require.Equal(t, 1, won)
}

func TestOutcomeService_Finalize(t *testing.T) {
	ctx := context.Background()
	svc, l := newService(listingAt("car1", "seller", 2*24*time.Hour, "1 day"))
	key := models.AuctionKey{Category: "cars", ItemID: "car1"}
	appendBid(t, l, "b1", "car1", "user1", 11000, now.Add(-30*time.Hour))

	require.NoError(t, svc.Finalize(ctx, key))
	unsettled, err := l.UnsettledAuctions(ctx)
	require.NoError(t, err)
	require.Empty(t, unsettled)

	require.ErrorIs(t, svc.Finalize(ctx, models.AuctionKey{Category: "cars", ItemID: "ghost"}), biderrors.ErrNotFound)
}

func TestOutcomeService_Notifications(t *testing.T) {
	ctx := context.Background()
	svc, l := newService(
		listingAt("won_early", "seller", 10*24*time.Hour, "1 day"),
		listingAt("won_late", "seller", 3*24*time.Hour, "1 day"),
		listingAt("lost", "seller", 3*24*time.Hour, "1 day"),
		listingAt("running", "seller", time.Hour, "7 days"),
	)
	appendBid(t, l, "b1", "won_early", "user1", 11000, now.Add(-9*24*time.Hour-time.Hour))
	appendBid(t, l, "b2", "won_late", "user1", 11000, now.Add(-2*24*time.Hour-time.Hour))
	appendBid(t, l, "b3", "won_late", "user1", 12000, now.Add(-2*24*time.Hour-30*time.Minute))
	appendBid(t, l, "b4", "lost", "user1", 11000, now.Add(-2*24*time.Hour-time.Hour))
	appendBid(t, l, "b5", "lost", "user2", 15000, now.Add(-2*24*time.Hour-30*time.Minute))
	appendBid(t, l, "b6", "running", "user1", 11000, now)

	notes, err := svc.Notifications(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, notes, 2)
	require.Equal(t, "won_late", notes[0].ItemID)
	require.Equal(t, 12000.0, notes[0].Amount)
	require.Equal(t, models.NotificationWon, notes[0].Type)
	require.Equal(t, "Car won_late", notes[0].Title)
	require.Equal(t, "won_early", notes[1].ItemID)

	// polling again derives the same answer
	again, err := svc.Notifications(ctx, "user1")
	require.NoError(t, err)
	require.Equal(t, notes, again)

	other, err := svc.Notifications(ctx, "user2")
	require.NoError(t, err)
	require.Len(t, other, 1)
	require.Equal(t, "lost", other[0].ItemID)
}

func TestOutcomeService_SellerDashboard(t *testing.T) {
	ctx := context.Background()
	svc, l := newService(
		listingAt("sold", "seller", 3*24*time.Hour, "1 day"),
		listingAt("live", "seller", time.Hour, "7 days"),
		listingAt("quiet", "seller", time.Hour, "7 days"),
		listingAt("other", "someone", time.Hour, "7 days"),
	)
	appendBid(t, l, "b1", "sold", "user1", 20000, now.Add(-2*24*time.Hour-time.Hour))
	appendBid(t, l, "b2", "live", "user2", 13000, now)

	items, err := svc.SellerDashboard(ctx, "seller")
	require.NoError(t, err)
	require.Len(t, items, 3)

	byID := make(map[string]DashboardItem, len(items))
	for _, it := range items {
		byID[it.ItemID] = it
	}
	require.True(t, byID["sold"].Closed)
	require.Equal(t, models.TimeRemainingEnd, byID["sold"].TimeRemaining)
	require.Equal(t, "user1", byID["sold"].WinningBid.BidderUserID)
	require.Equal(t, 20000.0, byID["sold"].HighestBid)

	require.False(t, byID["live"].Closed)
	require.Nil(t, byID["live"].WinningBid)
	require.Equal(t, 13000.0, byID["live"].HighestBid)

	require.Equal(t, 10000.0, byID["quiet"].HighestBid)
}
