package auctionhandler

type PlaceBidBody struct {
	Amount float64 `json:"amount" binding:"required,gt=0" example:"11000"`
} // @name PlaceBidRequest

type ErrorResponse struct {
	Error          string   `json:"error"`
	Code           string   `json:"code,omitempty"            example:"BID_TOO_LOW"`
	CurrentHighest *float64 `json:"current_highest,omitempty" example:"10000"`
} // @name ErrorResponse
