// Package sweeper periodically settles closed auctions that still hold an active bid.
// Lazy resolution stays authoritative; the sweep only makes won/lost visible without a read.
package sweeper

import (
	"context"
	"time"

	"bidtobuy/internal/models"

	"go.uber.org/zap"
)

// Source lists auctions with an unsettled leader.
type Source interface {
	UnsettledAuctions(ctx context.Context) ([]models.AuctionKey, error)
}

// Resolver settles an auction if it is closed and reports its state.
type Resolver interface {
	Resolve(ctx context.Context, key models.AuctionKey) (*models.Outcome, error)
}

const sweepTimeout = 20 * time.Second

type sweeper struct {
	src Source
	svc Resolver
	now func() time.Time
	// end times of auctions seen open; they are skipped until then without a catalog read
	openUntil map[models.AuctionKey]time.Time
}

func newSweeper(src Source, svc Resolver, now func() time.Time) *sweeper {
	return &sweeper{src: src, svc: svc, now: now, openUntil: make(map[models.AuctionKey]time.Time)}
}

// Run sweeps every interval until ctx is done.
func Run(ctx context.Context, src Source, svc Resolver, interval time.Duration) {
	s := newSweeper(src, svc, time.Now)
	tk := time.NewTicker(interval)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				s.sweepOnce(ctx)
			}
		}
	}()
}

// sweepOnce returns the number of auctions it resolved.
func (s *sweeper) sweepOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	keys, err := s.src.UnsettledAuctions(ctx)
	if err != nil {
		zap.L().Error("sweeper_list", zap.Error(err))
		return 0
	}

	listed := make(map[models.AuctionKey]struct{}, len(keys))
	now := s.now()
	n := 0
	for _, k := range keys {
		listed[k] = struct{}{}
		if ctx.Err() != nil {
			break
		}
		if end, ok := s.openUntil[k]; ok && now.Before(end) {
			continue
		}

		out, err := s.svc.Resolve(ctx, k)
		n++
		if err != nil {
			zap.L().Warn("sweeper_resolve", zap.String("auction", k.String()), zap.Error(err))
			continue
		}
		if !out.Closed && out.EndTime != nil {
			s.openUntil[k] = *out.EndTime
		} else {
			delete(s.openUntil, k)
		}
	}

	for k := range s.openUntil {
		if _, ok := listed[k]; !ok {
			delete(s.openUntil, k)
		}
	}
	if n > 0 {
		zap.L().Debug("sweeper_pass", zap.Int("auctions", n))
	}
	return n
}
