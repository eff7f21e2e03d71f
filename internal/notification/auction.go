package notification

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/katatrina/gundam-live/internal/auction"
	"github.com/katatrina/gundam-live/internal/realtime"
	"github.com/katatrina/gundam-live/internal/util"
)

// FromStatusChange builds the notification for a tracker status change, if
// the change is one a bidder wants to hear about.
func FromStatusChange(title string, prev, next auction.State) (Notification, bool) {
	if prev.Status == next.Status {
		return Notification{}, false
	}

	n := Notification{
		ReferenceID: next.AuctionID,
		CreatedAt:   time.Now(),
	}
	price := util.FormatMoney(next.CurrentPrice)

	switch next.Status {
	case auction.StatusOutbid:
		n.Type = TypeOutbid
		n.Title = fmt.Sprintf("Outbid on %s", title)
		n.Message = fmt.Sprintf("Someone bid %s. Place a higher bid to stay in the lead.", price)
	case auction.StatusWon:
		n.Type = TypeWon
		n.Title = fmt.Sprintf("You won %s", title)
		n.Message = fmt.Sprintf("Your winning bid was %s.", price)
	case auction.StatusLost:
		n.Type = TypeLost
		n.Title = fmt.Sprintf("Auction for %s ended", title)
		n.Message = fmt.Sprintf("It sold for %s.", price)
	default:
		return Notification{}, false
	}

	return n, true
}

type sellerNotice struct {
	Message      string         `json:"message"`
	ProductID    auction.ID     `json:"product_id"`
	ProductTitle string         `json:"product_title"`
	BidAmount    auction.Amount `json:"bid_amount"`
	BuyerID      auction.ID     `json:"buyer_id"`
	BuyerName    string         `json:"buyer_name"`
}

// FromSellerNotice builds the notification for a seller_notification frame,
// sent to sellers when someone bids on one of their items.
func FromSellerNotice(payload json.RawMessage) (Notification, error) {
	notice, err := realtime.Decode[sellerNotice](payload)
	if err != nil {
		return Notification{}, err
	}

	message := notice.Message
	if message == "" {
		message = fmt.Sprintf("%s bid %s.", notice.BuyerName, util.FormatMoney(int64(notice.BidAmount)))
	}

	return Notification{
		Title:       fmt.Sprintf("New bid on %s", notice.ProductTitle),
		Message:     message,
		Type:        TypeNewBid,
		ReferenceID: notice.ProductID.String(),
		CreatedAt:   time.Now(),
	}, nil
}
