package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// Outbound command types.
const (
	CommandJoinAuction  = "join-auction"
	CommandLeaveAuction = "leave-auction"
	CommandPlaceBid     = "place-bid"
	CommandPing         = "ping"

	// Older servers name the room commands after rooms instead of auctions.
	CommandJoinRoom  = "join-room"
	CommandLeaveRoom = "leave-room"
)

// RoomPayload addresses an auction room.
type RoomPayload struct {
	AuctionID string `json:"auctionId"`
}

// BidPayload is the body of a place-bid command.
type BidPayload struct {
	AuctionID string `json:"auctionId"`
	Amount    int64  `json:"amount"`
}

type frameWriter interface {
	IsConnected() bool
	Write(data []byte) error
}

// Encoder serializes commands and writes them on the managed connection.
// Nothing is buffered: a command sent while disconnected is dropped and the
// caller gets ErrNotConnected.
type Encoder struct {
	conn   frameWriter
	logger zerolog.Logger
}

func NewEncoder(conn frameWriter, logger zerolog.Logger) *Encoder {
	return &Encoder{conn: conn, logger: logger}
}

func (e *Encoder) Send(commandType string, payload any) error {
	if !e.conn.IsConnected() {
		e.logger.Warn().
			Str("command", commandType).
			Msg("dropping command while disconnected")
		return ErrNotConnected
	}

	frame, err := json.Marshal(OutboundEnvelope{Type: commandType, Payload: payload})
	if err != nil {
		return fmt.Errorf("realtime: encode %s: %w", commandType, err)
	}

	if err := e.conn.Write(frame); err != nil {
		e.logger.Error().
			Err(err).
			Str("command", commandType).
			Msg("failed to write command")
		return err
	}

	return nil
}

func (e *Encoder) JoinAuction(auctionID string) error {
	return e.Send(CommandJoinAuction, RoomPayload{AuctionID: auctionID})
}

func (e *Encoder) LeaveAuction(auctionID string) error {
	return e.Send(CommandLeaveAuction, RoomPayload{AuctionID: auctionID})
}

func (e *Encoder) PlaceBid(auctionID string, amount int64) error {
	return e.Send(CommandPlaceBid, BidPayload{AuctionID: auctionID, Amount: amount})
}

func (e *Encoder) Ping() error {
	return e.Send(CommandPing, nil)
}
