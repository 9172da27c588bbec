package biderrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLowBidError_Is(t *testing.T) {
	low := TooLow(10000)
	require.ErrorIs(t, low, ErrBidTooLow)
	require.NotErrorIs(t, low, ErrConcurrentConflict)
	require.Contains(t, low.Error(), "10000")

	conflict := fmt.Errorf("submit: %w", &LowBidError{Current: 12000, Conflict: true})
	require.ErrorIs(t, conflict, ErrBidTooLow)
	require.ErrorIs(t, conflict, ErrConcurrentConflict)

	cur, ok := CurrentHighest(conflict)
	require.True(t, ok)
	require.Equal(t, 12000.0, cur)
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"not_found", fmt.Errorf("lookup: %w", ErrNotFound), CodeNotFound},
		{"self_bid", ErrSelfBid, CodeSelfBid},
		{"closed", ErrAuctionClosed, CodeAuctionClosed},
		{"too_low", TooLow(5), CodeBidTooLow},
		{"conflict", &LowBidError{Current: 5, Conflict: true}, CodeConcurrentConflict},
		{"invalid", ErrInvalidBid, CodeInvalidBid},
		{"other", errors.New("boom"), CodeInternal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Code(tc.err))
		})
	}
}
