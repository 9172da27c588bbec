// Package memledger is a concurrency-safe in-memory Ledger, used for local runs and tests.
package memledger

import (
	"context"
	"sync"

	"bidtobuy/internal/biderrors"
	"bidtobuy/internal/bidstate"
	"bidtobuy/internal/ledger"
	"bidtobuy/internal/models"
	"bidtobuy/internal/money"
)

// book is the bid list of one auction; its mutex is the per-key critical section.
type book struct {
	mu     sync.Mutex
	bids   []*models.Bid
	leader *models.Bid
}

type MemoryLedger struct {
	mu       sync.RWMutex
	books    map[models.AuctionKey]*book
	byBidder map[string][]*models.Bid
}

var _ ledger.Ledger = (*MemoryLedger)(nil)

func New() *MemoryLedger {
	return &MemoryLedger{
		books:    make(map[models.AuctionKey]*book),
		byBidder: make(map[string][]*models.Bid),
	}
}

func (l *MemoryLedger) book(key models.AuctionKey, create bool) *book {
	l.mu.RLock()
	b, ok := l.books[key]
	l.mu.RUnlock()
	if ok || !create {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.books[key]; !ok {
		b = &book{}
		l.books[key] = b
	}
	return b
}

func (l *MemoryLedger) Append(_ context.Context, bid models.Bid, floor float64) (*ledger.AppendResult, error) {
	bk := l.book(bid.Key(), true)

	bk.mu.Lock()
	defer bk.mu.Unlock()

	current := floor
	if bk.leader != nil {
		if bidstate.IsTerminal(bk.leader.Status) {
			return nil, biderrors.ErrAuctionClosed
		}
		current = money.Max(current, bk.leader.Amount)
	}
	if !money.Exceeds(bid.Amount, current) {
		return nil, biderrors.TooLow(current)
	}

	stored := bid
	stored.Status = models.BidActive
	res := &ledger.AppendResult{Bid: stored}

	if prev := bk.leader; prev != nil && prev.Status == models.BidActive {
		if err := bidstate.Transition(prev, models.BidOutbid); err != nil {
			return nil, err
		}
		demoted := *prev
		res.Previous = &demoted
	}

	ptr := &stored
	bk.bids = append(bk.bids, ptr)
	bk.leader = ptr

	l.mu.Lock()
	l.byBidder[stored.BidderUserID] = append(l.byBidder[stored.BidderUserID], ptr)
	l.mu.Unlock()

	return res, nil
}

func (l *MemoryLedger) HighestBid(_ context.Context, key models.AuctionKey) (*models.Bid, error) {
	bk := l.book(key, false)
	if bk == nil {
		return nil, nil
	}
	bk.mu.Lock()
	defer bk.mu.Unlock()
	if bk.leader == nil {
		return nil, nil
	}
	top := *bk.leader
	return &top, nil
}

func (l *MemoryLedger) History(_ context.Context, key models.AuctionKey) ([]models.Bid, error) {
	bk := l.book(key, false)
	if bk == nil {
		return []models.Bid{}, nil
	}
	bk.mu.Lock()
	out := make([]models.Bid, 0, len(bk.bids))
	for _, b := range bk.bids {
		out = append(out, *b)
	}
	bk.mu.Unlock()

	ledger.SortHistory(out)
	return out, nil
}

func (l *MemoryLedger) BidsByBidder(_ context.Context, bidderID string) ([]models.Bid, error) {
	l.mu.RLock()
	ptrs := append([]*models.Bid(nil), l.byBidder[bidderID]...)
	l.mu.RUnlock()

	out := make([]models.Bid, 0, len(ptrs))
	for _, p := range ptrs {
		bk := l.book(p.Key(), false)
		bk.mu.Lock()
		out = append(out, *p)
		bk.mu.Unlock()
	}
	ledger.SortNewestFirst(out)
	return out, nil
}

func (l *MemoryLedger) Settle(_ context.Context, key models.AuctionKey) (*models.Bid, int, error) {
	bk := l.book(key, false)
	if bk == nil {
		return nil, 0, nil
	}
	bk.mu.Lock()
	defer bk.mu.Unlock()
	if bk.leader == nil {
		return nil, 0, nil
	}

	changed := 0
	for _, b := range bk.bids {
		to, ok := bidstate.SettleStatus(b, bk.leader.ID)
		if !ok {
			continue
		}
		if err := bidstate.Transition(b, to); err != nil {
			return nil, changed, err
		}
		changed++
	}
	if bk.leader.Status != models.BidWon {
		return nil, changed, nil
	}
	winner := *bk.leader
	return &winner, changed, nil
}

func (l *MemoryLedger) UnsettledAuctions(_ context.Context) ([]models.AuctionKey, error) {
	l.mu.RLock()
	keys := make([]models.AuctionKey, 0, len(l.books))
	books := make([]*book, 0, len(l.books))
	for k, b := range l.books {
		keys = append(keys, k)
		books = append(books, b)
	}
	l.mu.RUnlock()

	out := make([]models.AuctionKey, 0)
	for i, b := range books {
		b.mu.Lock()
		if b.leader != nil && b.leader.Status == models.BidActive {
			out = append(out, keys[i])
		}
		b.mu.Unlock()
	}
	return out, nil
}
