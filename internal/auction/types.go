package auction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ID is an auction, bid or user identifier. Older servers send numeric IDs,
// newer ones strings; both decode to the same value.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("auction: id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// Amount is a money amount in whole currency units. Fractional amounts
// sent by older servers are rounded.
type Amount int64

func (a *Amount) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}

	raw := data
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = []byte(s)
	}

	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return fmt.Errorf("auction: invalid amount %s", data)
	}
	*a = Amount(math.Round(f))
	return nil
}

// first returns the first non-empty id.
func first(ids ...ID) ID {
	for _, id := range ids {
		if id != "" {
			return id
		}
	}
	return ""
}

// bidEvent covers bid-update and its legacy form new_bid.
type bidEvent struct {
	AuctionID  ID     `json:"auctionId"`
	ProductID  ID     `json:"product_id"`
	BidID      ID     `json:"bidId"`
	LegacyID   ID     `json:"bid_id"`
	Amount     Amount `json:"amount"`
	BidderID   ID     `json:"bidderId"`
	BuyerID    ID     `json:"buyer_id"`
	BidderName string `json:"bidderName"`
	BuyerName  string `json:"buyer_name"`
}

type outbidEvent struct {
	AuctionID    ID     `json:"auctionId"`
	ProductID    ID     `json:"product_id"`
	ProductTitle string `json:"product_title"`
	NewBid       Amount `json:"new_bid"`
	Amount       Amount `json:"amount"`
}

// acceptedEvent covers bid_accepted and buyer_notification. A transaction
// or seller means the seller accepted the bid and the item is ours.
type acceptedEvent struct {
	AuctionID     ID     `json:"auctionId"`
	ProductID     ID     `json:"product_id"`
	ProductTitle  string `json:"product_title"`
	Amount        Amount `json:"amount"`
	SellerName    string `json:"seller_name"`
	TransactionID ID     `json:"transaction_id"`
	Message       string `json:"message"`
}

type bidErrorEvent struct {
	AuctionID ID     `json:"auctionId"`
	Amount    Amount `json:"amount"`
	Message   string `json:"message"`
	Error     string `json:"error"`
}

// endedEvent covers auction-ended, auction_ended and product_sold.
type endedEvent struct {
	AuctionID    ID     `json:"auctionId"`
	ProductID    ID     `json:"product_id"`
	ProductTitle string `json:"product_title"`
	WinnerID     ID     `json:"winnerId"`
	LegacyWinner ID     `json:"winner_id"`
	WinnerName   string `json:"winner_name"`
	FinalAmount  Amount `json:"finalAmount"`
	LegacyFinal  Amount `json:"final_amount"`
}
