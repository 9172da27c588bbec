package biderrors

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrNotFound           = errors.New("listing not found")
	ErrSelfBid            = errors.New("you cannot bid on your own item")
	ErrAuctionClosed      = errors.New("auction closed")
	ErrBidTooLow          = errors.New("bid must be higher than current highest bid")
	ErrConcurrentConflict = errors.New("bid lost to a concurrent higher bid")
	ErrInvalidBid         = errors.New("invalid bid")
	ErrIllegalTransition  = errors.New("illegal bid status transition")
)

// Wire codes returned to HTTP and websocket clients.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeSelfBid            = "SELF_BID"
	CodeAuctionClosed      = "AUCTION_CLOSED"
	CodeBidTooLow          = "BID_TOO_LOW"
	CodeConcurrentConflict = "CONCURRENT_CONFLICT"
	CodeInvalidBid         = "INVALID_BID"
	CodeInternal           = "INTERNAL"
)

// LowBidError rejects an amount that does not beat the current highest bid.
// Conflict is set when the amount passed the pre-check but lost the atomic append.
type LowBidError struct {
	Current  float64
	Conflict bool
}

func (e *LowBidError) Error() string {
	cur := strconv.FormatFloat(e.Current, 'f', -1, 64)
	if e.Conflict {
		return fmt.Sprintf("%s: current highest bid is %s", ErrConcurrentConflict, cur)
	}
	return fmt.Sprintf("%s (%s)", ErrBidTooLow, cur)
}

// Is lets callers treat a lost race exactly like a low bid.
func (e *LowBidError) Is(target error) bool {
	switch target {
	case ErrBidTooLow:
		return true
	case ErrConcurrentConflict:
		return e.Conflict
	}
	return false
}

// TooLow builds a BID_TOO_LOW error carrying the current highest.
func TooLow(current float64) error { return &LowBidError{Current: current} }

// CurrentHighest extracts the highest bid reported by a LowBidError.
func CurrentHighest(err error) (float64, bool) {
	var lb *LowBidError
	if errors.As(err, &lb) {
		return lb.Current, true
	}
	return 0, false
}

// Code maps an error to its wire code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrSelfBid):
		return CodeSelfBid
	case errors.Is(err, ErrAuctionClosed):
		return CodeAuctionClosed
	case errors.Is(err, ErrConcurrentConflict):
		return CodeConcurrentConflict
	case errors.Is(err, ErrBidTooLow):
		return CodeBidTooLow
	case errors.Is(err, ErrInvalidBid):
		return CodeInvalidBid
	default:
		return CodeInternal
	}
}
