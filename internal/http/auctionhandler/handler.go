package auctionhandler

import (
	"errors"
	"net/http"

	"bidtobuy/internal/biderrors"
	"bidtobuy/internal/models"
	"bidtobuy/internal/services/auction"
	"bidtobuy/internal/services/outcome"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	svc     auction.IAuctionService
	outcome outcome.IOutcomeService
}

func New(svc auction.IAuctionService, out outcome.IOutcomeService) *Handler {
	return &Handler{svc: svc, outcome: out}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/items/:category/ending-soon", h.endingSoon)
	r.GET("/items/:category/:id", h.item)
	r.GET("/items/:category/:id/bid-history", h.bidHistory)
	r.GET("/items/:category/:id/outcome", h.resolve)
	r.GET("/seller-dashboard/:id", h.sellerDashboard)

	authed := r.Group("", RequireUser())
	authed.POST("/items/:category/:id/bid", h.bid)
	authed.GET("/bids/my-bids", h.myBids)
	authed.GET("/activities/my-activities", h.myActivities)
	authed.GET("/notifications", h.notifications)
}

func auctionKey(c *gin.Context) models.AuctionKey {
	return models.AuctionKey{Category: c.Param("category"), ItemID: c.Param("id")}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, biderrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, biderrors.ErrSelfBid):
		return http.StatusForbidden
	case errors.Is(err, biderrors.ErrAuctionClosed), errors.Is(err, biderrors.ErrBidTooLow):
		return http.StatusConflict
	case errors.Is(err, biderrors.ErrInvalidBid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	resp := ErrorResponse{Error: err.Error(), Code: biderrors.Code(err)}
	if cur, ok := biderrors.CurrentHighest(err); ok {
		resp.CurrentHighest = &cur
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("http_request_failed", zap.String("path", c.FullPath()), zap.Error(err))
		resp.Error = "internal error"
	}
	c.JSON(status, resp)
}

// @Summary		Get item auction view
// @Description	Listing fields with highest bid, bid count, suggested next bid and time remaining.
// @Tags			Items
// @Param			category	path		string	true	"Category"	default(cars)
// @Param			id			path		string	true	"Item ID"	default(car1)
// @Success		200			{object}	auction.ItemDetail
// @Failure		404			{object}	ErrorResponse
// @Router			/items/{category}/{id} [get]
func (h *Handler) item(c *gin.Context) {
	d, err := h.svc.ItemDetail(c.Request.Context(), auctionKey(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// @Summary		Bid history
// @Description	All bids of an auction, highest first.
// @Tags			Items
// @Param			category	path		string	true	"Category"	default(cars)
// @Param			id			path		string	true	"Item ID"	default(car1)
// @Success		200			{array}		models.Bid
// @Failure		404			{object}	ErrorResponse
// @Router			/items/{category}/{id}/bid-history [get]
func (h *Handler) bidHistory(c *gin.Context) {
	bids, err := h.svc.BidHistory(c.Request.Context(), auctionKey(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bids)
}

// @Summary		Auctions ending soon
// @Tags			Items
// @Param			category	path	string	true	"Category"	default(cars)
// @Success		200			{array}	auction.ItemDetail
// @Router			/items/{category}/ending-soon [get]
func (h *Handler) endingSoon(c *gin.Context) {
	items, err := h.svc.EndingSoon(c.Request.Context(), c.Param("category"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// @Summary		Auction outcome
// @Description	Resolves the auction; a closed auction is settled on first resolution.
// @Tags			Items
// @Param			category	path		string	true	"Category"	default(cars)
// @Param			id			path		string	true	"Item ID"	default(car1)
// @Success		200			{object}	models.Outcome
// @Failure		404			{object}	ErrorResponse
// @Router			/items/{category}/{id}/outcome [get]
func (h *Handler) resolve(c *gin.Context) {
	out, err := h.outcome.Resolve(c.Request.Context(), auctionKey(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary		Place a bid
// @Description	Bid must be strictly higher than the current highest bid (or the base price).
// @Tags			Bids
// @Param			X-User-ID	header		string			true	"Authenticated user"	default(user1)
// @Param			category	path		string			true	"Category"				default(cars)
// @Param			id			path		string			true	"Item ID"				default(car1)
// @Param			body		body		PlaceBidBody	true	"Bid payload"
// @Success		201			{object}	auction.BidResult
// @Failure		400			{object}	ErrorResponse
// @Failure		401			{object}	ErrorResponse
// @Failure		403			{object}	ErrorResponse
// @Failure		404			{object}	ErrorResponse
// @Failure		409			{object}	ErrorResponse
// @Router			/items/{category}/{id}/bid [post]
func (h *Handler) bid(c *gin.Context) {
	var body PlaceBidBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: biderrors.CodeInvalidBid})
		return
	}
	res, err := h.svc.SubmitBid(c.Request.Context(), auctionKey(c), userID(c), body.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// @Summary		My bids
// @Tags			Bids
// @Param			X-User-ID	header	string	true	"Authenticated user"	default(user1)
// @Success		200			{array}	models.Bid
// @Router			/bids/my-bids [get]
func (h *Handler) myBids(c *gin.Context) {
	bids, err := h.svc.MyBids(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bids)
}

// @Summary		My activities
// @Tags			Activities
// @Param			X-User-ID	header	string	true	"Authenticated user"	default(user1)
// @Success		200			{array}	models.Activity
// @Router			/activities/my-activities [get]
func (h *Handler) myActivities(c *gin.Context) {
	acts, err := h.svc.MyActivities(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, acts)
}

// @Summary		Won auction notifications
// @Tags			Notifications
// @Param			X-User-ID	header	string	true	"Authenticated user"	default(user1)
// @Success		200			{array}	models.Notification
// @Router			/notifications [get]
func (h *Handler) notifications(c *gin.Context) {
	notes, err := h.outcome.Notifications(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, notes)
}

// @Summary		Seller dashboard
// @Tags			Sellers
// @Param			id	path	string	true	"Seller user ID"	default(seller1)
// @Success		200	{array}	outcome.DashboardItem
// @Router			/seller-dashboard/{id} [get]
func (h *Handler) sellerDashboard(c *gin.Context) {
	items, err := h.outcome.SellerDashboard(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}
