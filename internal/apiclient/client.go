// Package apiclient talks to the marketplace REST API for everything that is
// not real-time: logging in and loading auction snapshots.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"resty.dev/v3"
)

var ErrUnauthorized = errors.New("apiclient: invalid credentials")

// APIError is the error body returned by the API.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apiclient: status %d: %s", e.Status, e.Message)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type LoginResponse struct {
	AccessToken          string    `json:"access_token"`
	AccessTokenExpiresAt time.Time `json:"access_token_expires_at"`
	User                 User      `json:"user"`
}

// Bid is one entry of an auction's bid history.
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

// Client wraps a resty client bound to the API base URL.
type Client struct {
	resty *resty.Client
}

func New(baseURL string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15*time.Second).
		SetHeader("Accept", "application/json")

	return &Client{resty: c}
}

func (c *Client) Close() error {
	return c.resty.Close()
}

// Login exchanges email and password for an access token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var result LoginResponse
	var apiErr APIError

	resp, err := c.resty.R().
		SetContext(ctx).
		SetBody(LoginRequest{Email: email, Password: password}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/api/auth/login")
	if err != nil {
		return nil, fmt.Errorf("failed to call login: %w", err)
	}

	if resp.StatusCode() == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		return nil, &apiErr
	}

	return &result, nil
}

// GetAuction loads the current snapshot of an auction.
func (c *Client) GetAuction(ctx context.Context, accessToken, auctionID string) (*Auction, error) {
	var result Auction
	var apiErr APIError

	resp, err := c.resty.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetPathParam("id", auctionID).
		SetResult(&result).
		SetError(&apiErr).
		Get("/api/auctions/{id}")
	if err != nil {
		return nil, fmt.Errorf("failed to get auction %s: %w", auctionID, err)
	}

	if resp.StatusCode() == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		return nil, &apiErr
	}

	return &result, nil
}

// GetMe returns the user the access token belongs to.
func (c *Client) GetMe(ctx context.Context, accessToken string) (*User, error) {
	var result User
	var apiErr APIError

	resp, err := c.resty.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&result).
		SetError(&apiErr).
		Get("/api/users/me")
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	if resp.StatusCode() == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		return nil, &apiErr
	}

	return &result, nil
}
