// Package auction keeps a local view of one live auction in step with the
// events the server pushes, including bids we placed that the server has
// not confirmed yet.
package auction

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/katatrina/gundam-live/internal/event"
	"github.com/katatrina/gundam-live/internal/realtime"
	"github.com/katatrina/gundam-live/internal/util"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrAuctionClosed = errors.New("auction: auction is closed")
	ErrInvalidAmount = errors.New("auction: bid amount must be positive")
	ErrNoBidder      = errors.New("auction: cannot bid without a bidder id")
)

// Bid is one bid in the auction history.
type Bid struct {
	ID         string
	BidderID   string
	BidderName string
	Amount     int64
	// Pending bids were sent by us and not yet confirmed by the server.
	Pending  bool
	PlacedAt time.Time
}

// State is a point-in-time view of the auction.
type State struct {
	AuctionID    string
	Status       Status
	CurrentPrice int64
	Bids         []Bid
	LastError    string
	Winner       string
}

func (s State) clone() State {
	s.Bids = slices.Clone(s.Bids)
	return s
}

// Conn is the part of the real-time client the tracker uses.
type Conn interface {
	On(eventType string, handler realtime.Handler) realtime.Subscription
	Off(eventType string, subs ...realtime.Subscription)
	JoinAuction(auctionID string) error
	LeaveAuction(auctionID string) error
	PlaceBid(auctionID string, amount int64) error
}

// ChangeFunc is called after every change with the state before and after it.
type ChangeFunc func(prev, next State)

type Option func(*Tracker)

// WithBidderName lets legacy events that only carry a display name be
// attributed to us.
func WithBidderName(name string) Option {
	return func(t *Tracker) {
		t.bidderName = name
	}
}

func WithOnChange(fn ChangeFunc) Option {
	return func(t *Tracker) {
		t.onChange = fn
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// Tracker follows one auction on behalf of one bidder.
type Tracker struct {
	conn       Conn
	auctionID  string
	bidderID   string
	bidderName string
	onChange   ChangeFunc
	logger     zerolog.Logger
	now        func() time.Time

	mu     sync.Mutex
	state  State
	seen   map[string]bool
	subs   []realtime.Subscription
	closed bool
}

// Watch starts tracking auctionID for bidderID and joins the auction room.
// The room is joined again after every reconnect.
func Watch(conn Conn, auctionID, bidderID string, opts ...Option) *Tracker {
	t := &Tracker{
		conn:      conn,
		auctionID: auctionID,
		bidderID:  bidderID,
		logger:    log.Logger.With().Str("auction_id", auctionID).Logger(),
		now:       time.Now,
		state:     State{AuctionID: auctionID, Status: StatusWatching},
		seen:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(t)
	}

	handlers := []struct {
		eventType string
		handler   realtime.Handler
	}{
		{realtime.EventConnected, t.handleConnected},
		{event.TypeBidUpdate, t.handleBid},
		{event.TypeNewBid, t.handleBid},
		{event.TypeOutbid, t.handleOutbid},
		{event.TypeBidAccepted, t.handleAccepted},
		{event.TypeBuyerNotice, t.handleAccepted},
		{event.TypeBidError, t.handleBidError},
		{event.TypeAuctionEnded, t.handleEnded},
		{event.TypeAuctionEndedOld, t.handleEnded},
		{event.TypeProductSold, t.handleEnded},
	}
	for _, h := range handlers {
		t.subs = append(t.subs, conn.On(h.eventType, h.handler))
	}

	t.join()
	return t
}

// Seed loads history fetched over REST before live events take over.
func (t *Tracker) Seed(currentPrice int64, history []Bid) {
	t.update(func(s *State) bool {
		for _, bid := range history {
			if bid.ID != "" {
				if t.seen[bid.ID] {
					continue
				}
				t.seen[bid.ID] = true
			}
			s.Bids = append(s.Bids, bid)
		}
		if currentPrice > s.CurrentPrice {
			s.CurrentPrice = currentPrice
		}
		s.Status = t.standing(s)
		return true
	})
}

// PlaceBid records the bid as pending and sends it. If it cannot be sent the
// pending bid is rolled back and the send error returned.
func (t *Tracker) PlaceBid(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if t.bidderID == "" {
		return ErrNoBidder
	}

	pending := Bid{
		ID:         util.GenerateBidID(),
		BidderID:   t.bidderID,
		BidderName: t.bidderName,
		Amount:     amount,
		Pending:    true,
		PlacedAt:   t.now(),
	}

	closed := true
	t.update(func(s *State) bool {
		if s.Status.Final() {
			return false
		}
		closed = false
		s.Bids = append(s.Bids, pending)
		s.LastError = ""
		s.Status = StatusPending
		return true
	})
	if closed {
		return ErrAuctionClosed
	}

	if err := t.conn.PlaceBid(t.auctionID, amount); err != nil {
		t.update(func(s *State) bool {
			s.Bids = slices.DeleteFunc(s.Bids, func(b Bid) bool { return b.ID == pending.ID })
			s.LastError = err.Error()
			s.Status = t.standing(s)
			return true
		})
		return fmt.Errorf("failed to place bid: %w", err)
	}

	return nil
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.clone()
}

// Close leaves the room and stops reacting to events.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	for _, sub := range subs {
		t.conn.Off(sub.EventType(), sub)
	}
	if err := t.conn.LeaveAuction(t.auctionID); err != nil && !errors.Is(err, realtime.ErrNotConnected) {
		t.logger.Warn().Err(err).Msg("failed to leave auction room")
	}
}

func (t *Tracker) join() {
	err := t.conn.JoinAuction(t.auctionID)
	if err != nil && !errors.Is(err, realtime.ErrNotConnected) {
		t.logger.Warn().Err(err).Msg("failed to join auction room")
	}
}

func (t *Tracker) handleConnected(json.RawMessage) error {
	t.join()
	return nil
}

func (t *Tracker) handleBid(payload json.RawMessage) error {
	ev, err := realtime.Decode[bidEvent](payload)
	if err != nil {
		return err
	}
	if !t.matches(ev.AuctionID, ev.ProductID) {
		return nil
	}

	bidID := string(first(ev.BidID, ev.LegacyID))
	bidderID := string(first(ev.BidderID, ev.BuyerID))
	bidderName := ev.BidderName
	if bidderName == "" {
		bidderName = ev.BuyerName
	}
	amount := int64(ev.Amount)

	t.update(func(s *State) bool {
		if s.Status.Final() {
			return false
		}
		if bidID != "" {
			if t.seen[bidID] {
				return false
			}
			t.seen[bidID] = true
		}

		bid := Bid{
			ID:         bidID,
			BidderID:   bidderID,
			BidderName: bidderName,
			Amount:     amount,
			PlacedAt:   t.now(),
		}

		// A legacy echo naming nobody we can recognise is ours when it
		// confirms one of our pending bids.
		mine := t.isMine(bidderID, bidderName)
		if !mine && !t.identifies(bidderID, bidderName) {
			mine = pendingIndex(s.Bids, amount) >= 0
		}

		if mine {
			bid.BidderID = t.bidderID
			if i := pendingIndex(s.Bids, amount); i >= 0 {
				if bid.ID == "" {
					bid.ID = s.Bids[i].ID
				}
				s.Bids[i] = bid
			} else {
				s.Bids = append(s.Bids, bid)
			}
			s.Status = StatusLeading
		} else {
			s.Bids = append(s.Bids, bid)
			if top, ok := t.ourTop(s.Bids); ok && amount > top {
				s.Status = StatusOutbid
			}
		}

		if amount > s.CurrentPrice {
			s.CurrentPrice = amount
		}
		return true
	})
	return nil
}

func (t *Tracker) handleOutbid(payload json.RawMessage) error {
	ev, err := realtime.Decode[outbidEvent](payload)
	if err != nil {
		return err
	}
	if !t.matches(ev.AuctionID, ev.ProductID) {
		return nil
	}

	price := int64(ev.NewBid)
	if price == 0 {
		price = int64(ev.Amount)
	}

	t.update(func(s *State) bool {
		if s.Status.Final() {
			return false
		}
		if price > s.CurrentPrice {
			s.CurrentPrice = price
		}
		s.Status = StatusOutbid
		return true
	})
	return nil
}

func (t *Tracker) handleAccepted(payload json.RawMessage) error {
	ev, err := realtime.Decode[acceptedEvent](payload)
	if err != nil {
		return err
	}
	if !t.matches(ev.AuctionID, ev.ProductID) {
		return nil
	}
	amount := int64(ev.Amount)
	sold := ev.TransactionID != "" || ev.SellerName != ""

	t.update(func(s *State) bool {
		if s.Status.Final() {
			return false
		}

		if i := pendingIndex(s.Bids, amount); i >= 0 {
			s.Bids[i].Pending = false
		}
		if amount > s.CurrentPrice {
			s.CurrentPrice = amount
		}

		if sold {
			s.Status = StatusWon
			s.Winner = t.bidderID
			s.Bids = dropPending(s.Bids)
		} else {
			s.Status = StatusLeading
		}
		return true
	})
	return nil
}

func (t *Tracker) handleBidError(payload json.RawMessage) error {
	ev, err := realtime.Decode[bidErrorEvent](payload)
	if err != nil {
		return err
	}
	if !t.matches(ev.AuctionID) {
		return nil
	}

	reason := ev.Message
	if reason == "" {
		reason = ev.Error
	}
	if reason == "" {
		reason = "bid rejected"
	}
	amount := int64(ev.Amount)

	t.update(func(s *State) bool {
		i := pendingIndex(s.Bids, amount)
		if i < 0 {
			i = lastPending(s.Bids)
		}
		if i >= 0 {
			s.Bids = slices.Delete(s.Bids, i, i+1)
		}
		s.LastError = reason
		if !s.Status.Final() {
			s.Status = t.standing(s)
		}
		return true
	})
	return nil
}

func (t *Tracker) handleEnded(payload json.RawMessage) error {
	ev, err := realtime.Decode[endedEvent](payload)
	if err != nil {
		return err
	}
	if !t.matches(ev.AuctionID, ev.ProductID) {
		return nil
	}

	winnerID := string(first(ev.WinnerID, ev.LegacyWinner))
	final := int64(ev.FinalAmount)
	if final == 0 {
		final = int64(ev.LegacyFinal)
	}

	t.update(func(s *State) bool {
		if s.Status.Final() {
			return false
		}
		if final > 0 {
			s.CurrentPrice = final
		}

		_, bidded := t.ourTop(s.Bids)
		switch {
		case t.identifies(winnerID, ev.WinnerName):
			if t.isMine(winnerID, ev.WinnerName) {
				s.Status = StatusWon
			} else if bidded {
				s.Status = StatusLost
			} else {
				s.Status = StatusEnded
			}
		case s.Status == StatusLeading:
			s.Status = StatusWon
		case bidded:
			s.Status = StatusLost
		default:
			s.Status = StatusEnded
		}

		s.Winner = winnerID
		if s.Winner == "" {
			s.Winner = ev.WinnerName
		}
		if s.Status == StatusWon && s.Winner == "" {
			s.Winner = t.bidderID
		}
		s.Bids = dropPending(s.Bids)
		return true
	})
	return nil
}

// update applies fn under the lock and reports the change outside it.
func (t *Tracker) update(fn func(s *State) bool) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	prev := t.state.clone()
	changed := fn(&t.state)
	next := t.state.clone()
	onChange := t.onChange
	t.mu.Unlock()

	if !changed {
		return
	}
	if prev.Status != next.Status {
		t.logger.Info().
			Str("from", prev.Status.String()).
			Str("to", next.Status.String()).
			Int64("price", next.CurrentPrice).
			Msg("auction status changed")
	}
	if onChange != nil {
		onChange(prev, next)
	}
}

func (t *Tracker) matches(ids ...ID) bool {
	id := first(ids...)
	return id == "" || string(id) == t.auctionID
}

// identifies reports whether the event names its bidder in a way isMine
// can decide on.
func (t *Tracker) identifies(bidderID, bidderName string) bool {
	return bidderID != "" || (bidderName != "" && t.bidderName != "")
}

func (t *Tracker) isMine(bidderID, bidderName string) bool {
	if bidderID != "" {
		return bidderID == t.bidderID
	}
	return t.bidderName != "" && bidderName == t.bidderName
}

// ourTop returns our highest bid, pending or confirmed. Without a bidder id
// nothing can be ours.
func (t *Tracker) ourTop(bids []Bid) (int64, bool) {
	if t.bidderID == "" {
		return 0, false
	}
	var top int64
	found := false
	for _, b := range bids {
		if b.BidderID == t.bidderID && (!found || b.Amount > top) {
			top = b.Amount
			found = true
		}
	}
	return top, found
}

// standing derives the status from the bid list alone.
func (t *Tracker) standing(s *State) Status {
	if lastPending(s.Bids) >= 0 {
		return StatusPending
	}
	if _, ok := t.ourTop(s.Bids); !ok {
		return StatusWatching
	}

	var leader Bid
	for _, b := range s.Bids {
		if b.Amount > leader.Amount {
			leader = b
		}
	}
	if leader.BidderID == t.bidderID {
		return StatusLeading
	}
	return StatusOutbid
}

func pendingIndex(bids []Bid, amount int64) int {
	for i := len(bids) - 1; i >= 0; i-- {
		if bids[i].Pending && bids[i].Amount == amount {
			return i
		}
	}
	return -1
}

func lastPending(bids []Bid) int {
	for i := len(bids) - 1; i >= 0; i-- {
		if bids[i].Pending {
			return i
		}
	}
	return -1
}

func dropPending(bids []Bid) []Bid {
	return slices.DeleteFunc(bids, func(b Bid) bool { return b.Pending })
}
