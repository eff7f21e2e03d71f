package api

import (
	"errors"

	"github.com/gin-gonic/gin"
)

var (
	ErrInternalServer   = errors.New("internal server error")
	ErrEmailNotFound    = errors.New("email not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrIncorrectPass    = errors.New("incorrect password")
	ErrAuctionNotFound  = errors.New("auction not found")
	ErrAuctionNotActive = errors.New("auction is not active")
	ErrBidTooLow        = errors.New("bid must be higher than the current price")
	ErrNotAuctionSeller = errors.New("only the seller can end this auction")
)

func errorResponse(err error) gin.H {
	return gin.H{"error": err.Error()}
}
