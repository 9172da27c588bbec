package auctionhandler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// UserHeader carries the user id verified by the upstream gateway.
	UserHeader = "X-User-ID"
	userCtxKey = "user_id"
)

// RequireUser rejects requests without an authenticated user id.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetHeader(UserHeader)
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing " + UserHeader + " header"})
			return
		}
		c.Set(userCtxKey, uid)
		c.Next()
	}
}

func userID(c *gin.Context) string { return c.GetString(userCtxKey) }
