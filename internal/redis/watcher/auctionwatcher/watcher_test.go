package auctionwatcher

import (
	"context"
	"testing"

	"bidtobuy/internal/models"

	"github.com/stretchr/testify/require"
)

type finalizerFunc func(ctx context.Context, key models.AuctionKey) error

func (f finalizerFunc) Finalize(ctx context.Context, key models.AuctionKey) error { return f(ctx, key) }

func TestHandleExpired(t *testing.T) {
	var got []models.AuctionKey
	svc := finalizerFunc(func(_ context.Context, key models.AuctionKey) error {
		got = append(got, key)
		return nil
	})
	ctx := context.Background()

	require.True(t, handleExpired(ctx, "auc_t:cars/car1", svc))
	require.False(t, handleExpired(ctx, "session:42", svc))
	require.False(t, handleExpired(ctx, "auc_t:broken", svc))

	require.Equal(t, []models.AuctionKey{{Category: "cars", ItemID: "car1"}}, got)
}
