package apiclient

import (
	"context"

	"github.com/rs/zerolog/log"
)

// TokenStore caches tokens between logins.
type TokenStore interface {
	Token(ctx context.Context) (string, error)
	Save(ctx context.Context, accessToken string) error
}

// LoginProvider hands out the cached token and logs in when there is none.
type LoginProvider struct {
	client   *Client
	store    TokenStore
	email    string
	password string
}

func NewLoginProvider(client *Client, store TokenStore, email, password string) *LoginProvider {
	return &LoginProvider{
		client:   client,
		store:    store,
		email:    email,
		password: password,
	}
}

// Login always performs a fresh login.
func (p *LoginProvider) Login(ctx context.Context) (string, error) {
	resp, err := p.client.Login(ctx, p.email, p.password)
	if err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

// Token returns the cached token, logging in and caching on a miss.
// Without credentials configured it simply reports no token.
func (p *LoginProvider) Token(ctx context.Context) (string, error) {
	if p.store != nil {
		cached, err := p.store.Token(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("token cache unavailable, logging in")
		} else if cached != "" {
			return cached, nil
		}
	}

	if p.email == "" || p.password == "" {
		return "", nil
	}

	fresh, err := p.Login(ctx)
	if err != nil {
		return "", err
	}

	if p.store != nil {
		if err = p.store.Save(ctx, fresh); err != nil {
			log.Warn().Err(err).Msg("failed to cache access token")
		}
	}
	return fresh, nil
}
