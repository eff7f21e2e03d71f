package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/katatrina/gundam-live/internal/event"
	"github.com/katatrina/gundam-live/internal/realtime"
	"github.com/katatrina/gundam-live/internal/util"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096

	typeServerError = "error"
)

// wsClient is one upgraded connection. Only writePump writes to conn.
type wsClient struct {
	server *Server
	conn   *websocket.Conn
	user   User
	events chan event.Event
	done   chan struct{}
	rooms  map[string]bool
}

// serveWebsocket upgrades GET /ws?token=... and speaks the bidding protocol.
func (server *Server) serveWebsocket(c *gin.Context) {
	conn, err := server.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Err(err).Msg("failed to upgrade websocket connection")
		return
	}

	payload, err := server.tokenMaker.VerifyToken(c.Query("token"))
	if err != nil {
		rejectConn(conn, err.Error())
		return
	}
	user, ok := server.store.GetUserByID(payload.Subject)
	if !ok {
		rejectConn(conn, "unknown user")
		return
	}

	client := &wsClient{
		server: server,
		conn:   conn,
		user:   user,
		events: make(chan event.Event, 32),
		done:   make(chan struct{}),
		rooms:  make(map[string]bool),
	}
	server.hub.Register(event.UserTopic(user.ID), client.events)

	client.events <- event.Event{
		Type: event.TypeServerGreeting,
		Data: gin.H{"userId": user.ID, "full_name": user.FullName},
	}

	log.Info().Str("user_id", user.ID).Msg("websocket client connected")

	go client.writePump()
	client.readPump()
}

// rejectConn closes with 1008 so the client knows retrying with the same token is pointless.
func rejectConn(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		log.Debug().Err(err).Msg("failed to send close frame")
	}
	conn.Close()
}

func (client *wsClient) readPump() {
	defer client.cleanup()

	client.conn.SetReadLimit(maxMessageSize)
	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("user_id", client.user.ID).Msg("websocket closed unexpectedly")
			}
			return
		}

		env, err := realtime.ParseEnvelope(raw)
		if err != nil {
			client.sendError(err.Error())
			continue
		}

		switch env.Type {
		case realtime.CommandJoinAuction, realtime.CommandJoinRoom:
			client.joinAuction(env.Payload)
		case realtime.CommandLeaveAuction, realtime.CommandLeaveRoom:
			client.leaveAuction(env.Payload)
		case realtime.CommandPlaceBid:
			client.placeBid(env.Payload)
		case realtime.CommandPing:
			client.send(event.Event{Type: event.TypePong, Data: gin.H{"time": time.Now().UTC()}})
		default:
			client.sendError("unknown command " + env.Type)
		}
	}
}

func (client *wsClient) writePump() {
	defer client.conn.Close()

	for {
		select {
		case <-client.done:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = client.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		case ev := <-client.events:
			data, err := json.Marshal(realtime.OutboundEnvelope{Type: ev.Type, Payload: ev.Data})
			if err != nil {
				log.Err(err).Str("type", ev.Type).Msg("failed to encode event")
				continue
			}

			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err = client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("user_id", client.user.ID).Msg("failed to write event")
				return
			}
		}
	}
}

func (client *wsClient) cleanup() {
	hub := client.server.hub
	for auctionID := range client.rooms {
		hub.Unregister(event.AuctionTopic(auctionID), client.events)
	}
	hub.Unregister(event.UserTopic(client.user.ID), client.events)
	close(client.done)

	log.Info().Str("user_id", client.user.ID).Msg("websocket client disconnected")
}

// send queues an event for this connection only. Like the hub, it drops
// the event when the client stopped draining its queue.
func (client *wsClient) send(ev event.Event) {
	select {
	case client.events <- ev:
	default:
		log.Warn().Str("user_id", client.user.ID).Str("type", ev.Type).Msg("client is too slow, dropping event")
	}
}

func (client *wsClient) sendError(message string) {
	client.send(event.Event{Type: typeServerError, Data: gin.H{"message": message}})
}

func (client *wsClient) joinAuction(payload json.RawMessage) {
	room, err := realtime.Decode[realtime.RoomPayload](payload)
	if err != nil || room.AuctionID == "" {
		client.sendError("join-auction requires an auctionId")
		return
	}

	auction, err := client.server.store.GetAuction(room.AuctionID)
	if err != nil {
		client.sendError(err.Error())
		return
	}
	if client.rooms[auction.ID] {
		return
	}

	client.rooms[auction.ID] = true
	client.server.hub.Register(event.AuctionTopic(auction.ID), client.events)
	client.server.hub.Broadcast(event.Event{
		Topic: event.AuctionTopic(auction.ID),
		Type:  event.TypeNewParticipant,
		Data: gin.H{
			"auctionId": auction.ID,
			"userId":    client.user.ID,
			"full_name": client.user.FullName,
		},
	})
}

func (client *wsClient) leaveAuction(payload json.RawMessage) {
	room, err := realtime.Decode[realtime.RoomPayload](payload)
	if err != nil || !client.rooms[room.AuctionID] {
		return
	}

	delete(client.rooms, room.AuctionID)
	client.server.hub.Unregister(event.AuctionTopic(room.AuctionID), client.events)
}

func (client *wsClient) placeBid(payload json.RawMessage) {
	req, err := realtime.Decode[realtime.BidPayload](payload)
	if err != nil {
		client.sendError("place-bid requires an auctionId and an amount")
		return
	}

	result, err := client.server.store.PlaceBid(req.AuctionID, client.user, req.Amount)
	if err != nil {
		if !errors.Is(err, ErrBidTooLow) {
			log.Debug().Err(err).Str("auction_id", req.AuctionID).Msg("bid rejected")
		}
		client.send(event.Event{
			Type: event.TypeBidError,
			Data: gin.H{
				"auctionId": req.AuctionID,
				"amount":    req.Amount,
				"message":   err.Error(),
			},
		})
		return
	}

	auction := result.Auction
	client.server.hub.Broadcast(event.Event{
		Topic: event.AuctionTopic(auction.ID),
		Type:  event.TypeBidUpdate,
		Data: gin.H{
			"auctionId":  auction.ID,
			"bidId":      result.Bid.ID,
			"amount":     result.Bid.Amount,
			"bidderId":   result.Bid.BidderID,
			"bidderName": result.Bid.Bidder,
		},
	})

	client.server.hub.Broadcast(event.Event{
		Topic: event.UserTopic(auction.SellerID),
		Type:  event.TypeSellerNotice,
		Data: gin.H{
			"message":       fmt.Sprintf("New bid of %s on %s", util.FormatVND(result.Bid.Amount), auction.ProductTitle),
			"product_id":    auction.ID,
			"product_title": auction.ProductTitle,
			"bid_amount":    result.Bid.Amount,
			"buyer_name":    result.Bid.Bidder,
			"buyer_id":      result.Bid.BidderID,
		},
	})

	if result.PreviousLeader != "" && result.PreviousLeader != client.user.ID {
		client.server.hub.Broadcast(event.Event{
			Topic: event.UserTopic(result.PreviousLeader),
			Type:  event.TypeOutbid,
			Data: gin.H{
				"auctionId":     auction.ID,
				"product_title": auction.ProductTitle,
				"new_bid":       result.Bid.Amount,
			},
		})
	}

	log.Info().
		Str("auction_id", auction.ID).
		Str("bidder_id", client.user.ID).
		Int64("amount", result.Bid.Amount).
		Int("total_bids", len(auction.Bids)).
		Msg("bid placed successfully")
}
