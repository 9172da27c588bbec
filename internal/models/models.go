package models

import (
	"strings"
	"time"
)

// BidStatus is the lifecycle state of a single bid.
type BidStatus string

const (
	BidActive BidStatus = "active"
	BidOutbid BidStatus = "outbid"
	BidWon    BidStatus = "won"
	BidLost   BidStatus = "lost"
)

// AuctionKey identifies one auction. Item ids are only unique within a category.
type AuctionKey struct {
	Category string `json:"category"`
	ItemID   string `json:"item_id"`
}

func (k AuctionKey) String() string { return k.Category + "/" + k.ItemID }

// ParseAuctionKey is the inverse of AuctionKey.String.
func ParseAuctionKey(s string) (AuctionKey, bool) {
	cat, item, ok := strings.Cut(s, "/")
	if !ok || cat == "" || item == "" {
		return AuctionKey{}, false
	}
	return AuctionKey{Category: cat, ItemID: item}, true
}

// Listing is the part of a catalog item the bidding core reads. It is never written here.
type Listing struct {
	Category        string    `json:"category"`
	ItemID          string    `json:"item_id"`
	Title           string    `json:"title"`
	Location        string    `json:"location,omitempty"`
	BasePrice       float64   `json:"base_price"`
	CreatedAt       time.Time `json:"created_at"`
	AuctionDuration string    `json:"auction_duration"`
	OwnerUserID     string    `json:"owner_user_id"`
}

func (l *Listing) Key() AuctionKey { return AuctionKey{Category: l.Category, ItemID: l.ItemID} }

// Bid is one accepted bid. Status is the only field that changes after creation.
type Bid struct {
	ID           string    `json:"id"`
	BidderUserID string    `json:"bidder_user_id"`
	Category     string    `json:"category"`
	ItemID       string    `json:"item_id"`
	Amount       float64   `json:"amount"`
	BidTime      time.Time `json:"bid_time"`
	Status       BidStatus `json:"status"`
}

func (b *Bid) Key() AuctionKey { return AuctionKey{Category: b.Category, ItemID: b.ItemID} }

// Activity is an entry of a user's activity feed.
type Activity struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Action    string         `json:"action"`
	ItemID    string         `json:"item_id,omitempty"`
	Category  string         `json:"category,omitempty"`
	Amount    float64        `json:"amount,omitempty"`
	ItemTitle string         `json:"item_title,omitempty"`
	Location  string         `json:"location,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

const (
	ActivityTypeBid  = "bid"
	ActionPlacedBid  = "placed bid"
	NotificationWon  = "won"
	TimeRemainingEnd = "Auction ended"
)

// Outcome is the resolved state of an auction at a point in time.
type Outcome struct {
	Key        AuctionKey `json:"auction"`
	Closed     bool       `json:"closed"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	WinningBid *Bid       `json:"winning_bid"`
}

// Notification is derived on every poll, never stored.
type Notification struct {
	Type     string    `json:"type"`
	ItemID   string    `json:"item_id"`
	Category string    `json:"category"`
	Title    string    `json:"title"`
	Amount   float64   `json:"amount"`
	Time     time.Time `json:"time"`
}
