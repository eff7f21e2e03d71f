package api

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/katatrina/gundam-live/internal/util"
)

const (
	UserRoleBidder = "bidder"
	UserRoleSeller = "seller"

	AuctionStatusActive = "active"
	AuctionStatusEnded  = "ended"
)

type User struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	FullName       string `json:"full_name"`
	Role           string `json:"role"`
	HashedPassword string `json:"-"`
}

type Bid struct {
	ID        string    `json:"id"`
	BidderID  string    `json:"bidder_id"`
	Bidder    string    `json:"bidder_name"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

type Auction struct {
	ID           string    `json:"id"`
	ProductTitle string    `json:"product_title"`
	SellerID     string    `json:"seller_id"`
	StartPrice   int64     `json:"start_price"`
	CurrentPrice int64     `json:"current_price"`
	Status       string    `json:"status"`
	EndsAt       time.Time `json:"ends_at"`
	Bids         []Bid     `json:"bids"`
}

// leader returns the highest bid, if any.
func (a *Auction) leader() (Bid, bool) {
	if len(a.Bids) == 0 {
		return Bid{}, false
	}
	return a.Bids[len(a.Bids)-1], true
}

// PlaceBidResult is what a successful bid changed.
type PlaceBidResult struct {
	Auction        Auction
	Bid            Bid
	PreviousLeader string
}

// Store keeps the users and auctions of the dev server in memory.
type Store struct {
	mu       sync.RWMutex
	users    map[string]User // by email
	auctions map[string]*Auction
}

func NewStore() *Store {
	return &Store{
		users:    make(map[string]User),
		auctions: make(map[string]*Auction),
	}
}

// CreateUser hashes password and stores a new user.
func (s *Store) CreateUser(email, password, fullName, role string) (User, error) {
	hashedPassword, err := util.HashPassword(password)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:             uuid.NewString(),
		Email:          email,
		FullName:       fullName,
		Role:           role,
		HashedPassword: hashedPassword,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[email]; ok {
		return User{}, fmt.Errorf("email %s already exists", email)
	}
	s.users[email] = user
	return user, nil
}

func (s *Store) GetUserByEmail(email string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[email]
	return user, ok
}

func (s *Store) GetUserByID(userID string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.ID == userID {
			return user, true
		}
	}
	return User{}, false
}

func (s *Store) CreateAuction(auction Auction) {
	if auction.CurrentPrice == 0 {
		auction.CurrentPrice = auction.StartPrice
	}
	if auction.Status == "" {
		auction.Status = AuctionStatusActive
	}

	s.mu.Lock()
	s.auctions[auction.ID] = &auction
	s.mu.Unlock()
}

// GetAuction returns a copy of the auction so callers never share the bid slice.
func (s *Store) GetAuction(auctionID string) (Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	auction, ok := s.auctions[auctionID]
	if !ok {
		return Auction{}, ErrAuctionNotFound
	}
	snapshot := *auction
	snapshot.Bids = slices.Clone(auction.Bids)
	return snapshot, nil
}

// PlaceBid records a bid when it beats the current price.
func (s *Store) PlaceBid(auctionID string, bidder User, amount int64) (PlaceBidResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auction, ok := s.auctions[auctionID]
	if !ok {
		return PlaceBidResult{}, ErrAuctionNotFound
	}
	if auction.Status != AuctionStatusActive {
		return PlaceBidResult{}, ErrAuctionNotActive
	}
	if amount <= auction.CurrentPrice {
		return PlaceBidResult{}, fmt.Errorf("%w: current price is %s", ErrBidTooLow, util.FormatVND(auction.CurrentPrice))
	}

	result := PlaceBidResult{}
	if prev, ok := auction.leader(); ok {
		result.PreviousLeader = prev.BidderID
	}

	bid := Bid{
		ID:        util.GenerateBidID(),
		BidderID:  bidder.ID,
		Bidder:    bidder.FullName,
		Amount:    amount,
		CreatedAt: time.Now(),
	}
	auction.Bids = append(auction.Bids, bid)
	auction.CurrentPrice = amount

	result.Bid = bid
	result.Auction = *auction
	result.Auction.Bids = slices.Clone(auction.Bids)
	return result, nil
}

// EndAuction closes the auction. The highest bid, if any, wins.
func (s *Store) EndAuction(auctionID, sellerID string) (Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auction, ok := s.auctions[auctionID]
	if !ok {
		return Auction{}, ErrAuctionNotFound
	}
	if auction.SellerID != sellerID {
		return Auction{}, ErrNotAuctionSeller
	}
	if auction.Status != AuctionStatusActive {
		return Auction{}, ErrAuctionNotActive
	}

	auction.Status = AuctionStatusEnded
	auction.EndsAt = time.Now()

	snapshot := *auction
	snapshot.Bids = slices.Clone(auction.Bids)
	return snapshot, nil
}

// Seed fills the store with demo accounts and one running auction.
func (s *Store) Seed() error {
	seller, err := s.CreateUser("seller1@gmail.com", "seller123", "Gundam Warzone", UserRoleSeller)
	if err != nil {
		return err
	}

	bidders := []struct {
		email, name string
	}{
		{"bidder1@gmail.com", "Nguyễn Văn Tuấn"},
		{"bidder2@gmail.com", "Trần Thị Thanh"},
	}
	for _, b := range bidders {
		if _, err = s.CreateUser(b.email, "bidder123", b.name, UserRoleBidder); err != nil {
			return err
		}
	}

	s.CreateAuction(Auction{
		ID:           "1",
		ProductTitle: "RX-78-2 Gundam Ver.Ka MG 1/100",
		SellerID:     seller.ID,
		StartPrice:   500000,
		EndsAt:       time.Now().Add(time.Hour),
	})
	return nil
}
