package ws

import (
	"encoding/json"

	"bidtobuy/internal/models"
)

const (
	EventBid      = "auctions/bid"
	EventSnapshot = "auctions/snapshot"
	EventError    = "error"
)

// Envelope wraps every WS frame.
type Envelope struct {
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// ConnContext is what a handler knows about the connection that sent the frame.
type ConnContext struct {
	Key    models.AuctionKey
	UserID string
	Server *WsServer
}

// BidRequest is the body for "auctions/bid".
type BidRequest struct {
	Amount float64 `json:"amount"`
}

// ErrorBody is returned for failures.
type ErrorBody struct {
	Error          string   `json:"error"`
	Code           string   `json:"code,omitempty"`
	CurrentHighest *float64 `json:"current_highest,omitempty"`
}
