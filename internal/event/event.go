package event

// Event is one message pushed to the clients watching a topic.
type Event struct {
	Topic string // e.g. "auction:7", "user:42"
	Type  string // one of the Type* constants
	Data  any
}

// Server to client event types.
const (
	TypeBidUpdate       = "bid-update"
	TypeNewBid          = "new_bid" // legacy name of bid-update
	TypeOutbid          = "outbid"
	TypeBidAccepted     = "bid_accepted"
	TypeBidError        = "bid-error"
	TypeProductSold     = "product_sold"
	TypeAuctionEnded    = "auction-ended"
	TypeAuctionEndedOld = "auction_ended" // legacy name of auction-ended
	TypeSellerNotice    = "seller_notification"
	TypeBuyerNotice     = "buyer_notification"
	TypeNewParticipant  = "new_participant"
	TypePong            = "pong"
	TypeServerGreeting  = "connected"
)

// AuctionTopic is the topic of everyone watching an auction room.
func AuctionTopic(auctionID string) string {
	return "auction:" + auctionID
}

// UserTopic is the topic of one user's connections.
func UserTopic(userID string) string {
	return "user:" + userID
}

// Broadcaster fans events out to the subscribers of a topic.
type Broadcaster interface {
	Register(topic string, client chan Event)
	Unregister(topic string, client chan Event)
	Broadcast(event Event)
	Run()
	Close()
}
