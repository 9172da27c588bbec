// Package bidstate holds the bid status machine:
//
//	active -> outbid   a higher bid was appended to the same auction
//	active -> won      the auction closed with this bid on top
//	active -> lost     the auction closed and another bid won
//	outbid -> lost     the auction closed
//
// won and lost are terminal.
package bidstate

import (
	"fmt"

	"bidtobuy/internal/biderrors"
	"bidtobuy/internal/models"
)

var transitions = map[models.BidStatus][]models.BidStatus{
	models.BidActive: {models.BidOutbid, models.BidWon, models.BidLost},
	models.BidOutbid: {models.BidLost},
}

func CanTransition(from, to models.BidStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminal(s models.BidStatus) bool {
	return s == models.BidWon || s == models.BidLost
}

// Transition moves b to the given status or returns ErrIllegalTransition.
func Transition(b *models.Bid, to models.BidStatus) error {
	if !CanTransition(b.Status, to) {
		return fmt.Errorf("bid %s %s -> %s: %w", b.ID, b.Status, to, biderrors.ErrIllegalTransition)
	}
	b.Status = to
	return nil
}

// SettleStatus is the final status of a bid in a closed auction whose winning bid id is winnerID.
// ok is false when the bid is already terminal.
func SettleStatus(b *models.Bid, winnerID string) (models.BidStatus, bool) {
	if IsTerminal(b.Status) {
		return b.Status, false
	}
	if b.ID == winnerID && b.Status == models.BidActive {
		return models.BidWon, true
	}
	return models.BidLost, true
}
