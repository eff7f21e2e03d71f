package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/katatrina/gundam-live/internal/event"
	"github.com/katatrina/gundam-live/internal/token"
	"github.com/rs/zerolog/log"
)

func (server *Server) getAuction(c *gin.Context) {
	auction, err := server.store.GetAuction(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse(err))
		return
	}

	c.JSON(http.StatusOK, auction)
}

// endAuction lets the seller close the auction and announces the result to the room.
func (server *Server) endAuction(c *gin.Context) {
	authPayload := c.MustGet(authorizationPayloadKey).(*token.Payload)
	auctionID := c.Param("id")

	auction, err := server.store.EndAuction(auctionID, authPayload.Subject)
	if err != nil {
		switch {
		case errors.Is(err, ErrAuctionNotFound):
			c.JSON(http.StatusNotFound, errorResponse(err))
		case errors.Is(err, ErrNotAuctionSeller):
			c.JSON(http.StatusForbidden, errorResponse(err))
		default:
			c.JSON(http.StatusUnprocessableEntity, errorResponse(err))
		}
		return
	}

	data := gin.H{
		"auctionId":     auction.ID,
		"product_title": auction.ProductTitle,
		"finalAmount":   auction.CurrentPrice,
	}
	if winner, ok := auction.leader(); ok {
		data["winnerId"] = winner.BidderID
		data["winner_name"] = winner.Bidder
	}

	server.hub.Broadcast(event.Event{
		Topic: event.AuctionTopic(auction.ID),
		Type:  event.TypeAuctionEnded,
		Data:  data,
	})

	log.Info().
		Str("auction_id", auction.ID).
		Int64("final_amount", auction.CurrentPrice).
		Int("total_bids", len(auction.Bids)).
		Msg("auction ended by seller")

	c.JSON(http.StatusOK, auction)
}
