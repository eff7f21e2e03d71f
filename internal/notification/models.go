package notification

import (
	"time"
)

// Notification is a message for the person running the client, e.g. "you
// have been outbid on RX-78-2".
type Notification struct {
	RecipientID string
	Title       string
	Message     string
	Type        string
	ReferenceID string
	CreatedAt   time.Time
}

const (
	TypeOutbid = "outbid"
	TypeWon    = "won"
	TypeLost   = "lost"
	TypeNewBid = "new_bid" // someone bid on an item we sell
)
